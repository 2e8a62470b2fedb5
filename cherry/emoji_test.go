package cherry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCustomEmoji(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in       string
		ok       bool
		id       string
		animated bool
		filename string
	}{
		{"<:cherry:12345>", true, "12345", false, "emoji_12345.png"},
		{" <a:dance:67890> ", true, "67890", true, "emoji_67890.gif"},
		{"🍒", false, "", false, ""},
		{"<:missing_id:>", false, "", false, ""},
	}
	for _, tc := range tests {
		e, ok := parseCustomEmoji(tc.in)
		require.Equal(t, tc.ok, ok, tc.in)
		if !ok {
			continue
		}
		assert.Equal(t, tc.id, e.ID)
		assert.Equal(t, tc.animated, e.Animated)
		assert.Equal(t, tc.filename, e.Filename())
	}
}

func TestEmojiFetcher_Fetch(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(
		http.HandlerFunc(
			func(w http.ResponseWriter, r *http.Request) {
				switch r.URL.Path {
				case "/12345.png":
					_, _ = w.Write([]byte("png-bytes"))
				case "/67890.gif":
					_, _ = w.Write([]byte("gif-bytes"))
				default:
					http.NotFound(w, r)
				}
			},
		),
	)
	t.Cleanup(srv.Close)

	f := NewEmojiFetcher(srv.Client())
	f.baseURL = srv.URL + "/"
	ctx := context.Background()

	data, err := f.Fetch(ctx, customEmoji{ID: "12345"})
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	data, err = f.Fetch(ctx, customEmoji{ID: "67890", Animated: true})
	require.NoError(t, err)
	assert.Equal(t, "gif-bytes", string(data))

	_, err = f.Fetch(ctx, customEmoji{ID: "404"})
	require.ErrorIs(t, err, ErrExternalService)
	assert.Equal(t, msgEmojiFetchFail, userMessage(err))
}
