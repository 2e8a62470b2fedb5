package cherry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInBook_Streaks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	book := NewSignInBook(newTestStore(t), "", loc, fixedRand{}, nil)
	now := time.Date(2024, 3, 1, 23, 0, 0, 0, loc)
	book.now = func() time.Time { return now }

	result, err := book.SignIn(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, result.AlreadySigned)
	assert.Equal(t, SignInRecord{LastSignIn: "2024-03-01", Streak: 1, Total: 1}, result.Record)

	result, err = book.SignIn(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, result.AlreadySigned)
	assert.Equal(t, 1, result.Record.Total)

	// next day, in the configured timezone (still March 2nd in UTC+8
	// even though UTC is on March 1st)
	now = time.Date(2024, 3, 2, 1, 0, 0, 0, loc)
	result, err = book.SignIn(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SignInRecord{LastSignIn: "2024-03-02", Streak: 2, Total: 2}, result.Record)

	// skipping a day resets the streak, not the total
	now = time.Date(2024, 3, 5, 12, 0, 0, 0, loc)
	result, err = book.SignIn(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, SignInRecord{LastSignIn: "2024-03-05", Streak: 1, Total: 3}, result.Record)

	// other users are independent
	result, err = book.SignIn(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Record.Total)
}

func TestSignInBook_PickImage(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	for _, name := range []string{
		"great_fortune_1.png",
		"misfortune_1.png",
		"funny_1.png",
		"funny_2.png",
		"readme.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "fortune_dir"), 0o755))

	tests := []struct {
		name string
		roll int
		want string
	}{
		{"great fortune", 5, "great_fortune_1.png"},
		{"empty fortune bucket falls through to misfortune", 20, "misfortune_1.png"},
		{"misfortune", 70, "misfortune_1.png"},
		{"funny", 95, "funny_1.png"},
	}
	for _, tc := range tests {
		t.Run(
			tc.name, func(t *testing.T) {
				t.Parallel()
				book := NewSignInBook(newTestStore(t), dir, time.UTC, rollRand{roll: tc.roll}, nil)
				require.NoError(t, book.LoadImages())
				assert.Equal(t, filepath.Join(dir, tc.want), book.PickImage())
			},
		)
	}
}

func TestSignInBook_NoImages(t *testing.T) {
	t.Parallel()
	book := NewSignInBook(newTestStore(t), filepath.Join(t.TempDir(), "missing"), time.UTC, fixedRand{}, nil)
	require.NoError(t, book.LoadImages())
	assert.Empty(t, book.PickImage())
}

// rollRand returns roll for the fortune roll, and 0 when picking within
// a bucket
type rollRand struct {
	roll int
}

func (rollRand) Float64() float64 { return 0 }

func (r rollRand) IntN(n int) int {
	if n == 100 {
		return r.roll
	}
	return 0
}
