package cherry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

const (
	signInDate = time.DateOnly

	msgSignInAlready = "✅ You have already signed in today, %s!"
	msgSignInSuccess = "🎉 %s, you have signed in! Streak: %d days. Total: %d times."
	msgSignInFailed  = "❌ An error occurred while signing in. Please try again later."
)

// SignInRecord tracks a user's daily sign-ins
type SignInRecord struct {
	LastSignIn string `json:"lastSignIn"`
	Streak     int    `json:"streak"`
	Total      int    `json:"total"`
}

// SignInResult is the outcome of a sign-in attempt
type SignInResult struct {
	Record        SignInRecord
	AlreadySigned bool
}

type fortune string

const (
	fortuneGreat       fortune = "great_fortune"
	fortuneGood        fortune = "fortune"
	fortuneGreatMisery fortune = "great_misfortune"
	fortuneBad         fortune = "misfortune"
	fortuneFunny       fortune = "funny"
)

// fortuneThresholds are checked in order against a roll in [0,100). A
// bucket with no images is skipped, and funny catches everything left.
var fortuneThresholds = []struct {
	below  int
	bucket fortune
}{
	{10, fortuneGreat},
	{40, fortuneGood},
	{50, fortuneGreatMisery},
	{80, fortuneBad},
	{100, fortuneFunny},
}

// SignInBook records daily sign-ins and picks a fortune image for each
type SignInBook struct {
	records   *Document[map[string]SignInRecord]
	imagesDir string
	images    atomic.Pointer[map[fortune][]string]
	rand      RandSource
	location  *time.Location
	now       func() time.Time
	logger    *slog.Logger
}

func NewSignInBook(
	store KeyValueStore,
	imagesDir string,
	loc *time.Location,
	rnd RandSource,
	logger *slog.Logger,
) *SignInBook {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	b := &SignInBook{
		records:   NewDocument(store, documentSignIns, emptyMap[string, SignInRecord](), logger),
		imagesDir: imagesDir,
		rand:      rnd,
		location:  loc,
		now:       time.Now,
		logger:    logger.With(loggerNameKey, "sign_in"),
	}
	empty := map[fortune][]string{}
	b.images.Store(&empty)
	return b
}

// LoadImages indexes the fortune images by filename prefix
func (b *SignInBook) LoadImages() error {
	images := map[fortune][]string{}
	if b.imagesDir == "" {
		b.images.Store(&images)
		return nil
	}
	entries, err := os.ReadDir(b.imagesDir)
	if err != nil {
		if os.IsNotExist(err) {
			b.images.Store(&images)
			return nil
		}
		return fmt.Errorf("reading images dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if bucket, ok := fortuneBucket(e.Name()); ok {
			images[bucket] = append(images[bucket], e.Name())
		}
	}
	for _, files := range images {
		sort.Strings(files)
	}
	b.images.Store(&images)
	b.logger.Info("loaded sign-in images", "images", images)
	return nil
}

func fortuneBucket(name string) (fortune, bool) {
	for _, f := range []fortune{fortuneGreat, fortuneGood, fortuneGreatMisery, fortuneBad, fortuneFunny} {
		if strings.HasPrefix(name, string(f)) {
			return f, true
		}
	}
	return "", false
}

// SignIn records a sign-in for userID today. The streak continues only
// when the previous sign-in was yesterday.
func (b *SignInBook) SignIn(ctx context.Context, userID string) (SignInResult, error) {
	now := b.now().In(b.location)
	today := now.Format(signInDate)
	yesterday := now.AddDate(0, 0, -1).Format(signInDate)

	var result SignInResult
	_, err := b.records.Update(
		ctx, func(v *map[string]SignInRecord) error {
			rec := (*v)[userID]
			if rec.LastSignIn == today {
				result = SignInResult{Record: rec, AlreadySigned: true}
				return nil
			}
			if rec.LastSignIn == yesterday {
				rec.Streak++
			} else {
				rec.Streak = 1
			}
			rec.LastSignIn = today
			rec.Total++
			(*v)[userID] = rec
			result = SignInResult{Record: rec}
			return nil
		},
	)
	return result, err
}

// PickImage returns the path of a fortune image, or "" if none exist
func (b *SignInBook) PickImage() string {
	images := *b.images.Load()
	roll := b.rand.IntN(100)
	for _, t := range fortuneThresholds {
		if roll >= t.below {
			continue
		}
		files := images[t.bucket]
		if len(files) == 0 {
			continue
		}
		b.logger.Debug("picked fortune", "roll", roll, "bucket", t.bucket)
		return filepath.Join(b.imagesDir, files[b.rand.IntN(len(files))])
	}
	return ""
}
