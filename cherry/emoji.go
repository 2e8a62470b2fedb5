package cherry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

const (
	discordEmojiCDN   = "https://cdn.discordapp.com/emojis/"
	emojiMaxBytes     = 8 << 20
	msgEmojiSent      = "Here is the emoji you requested:"
	msgEmojiInvalid   = "Please provide a valid custom emoji!"
	msgEmojiFetchFail = "An error occurred while processing the emoji."
)

var customEmojiPattern = regexp.MustCompile(`<a?:\w+:(\d+)>`)

// customEmoji is a parsed `<:name:id>` / `<a:name:id>` reference
type customEmoji struct {
	ID       string
	Animated bool
}

func parseCustomEmoji(s string) (customEmoji, bool) {
	s = strings.TrimSpace(s)
	m := customEmojiPattern.FindStringSubmatch(s)
	if m == nil {
		return customEmoji{}, false
	}
	return customEmoji{ID: m[1], Animated: strings.HasPrefix(s, "<a:")}, true
}

func (e customEmoji) ext() string {
	if e.Animated {
		return "gif"
	}
	return "png"
}

func (e customEmoji) URL() string {
	return discordEmojiCDN + e.ID + "." + e.ext()
}

func (e customEmoji) Filename() string {
	return fmt.Sprintf("emoji_%s.%s", e.ID, e.ext())
}

// EmojiFetcher downloads custom emoji images from the discord CDN
type EmojiFetcher struct {
	client  *http.Client
	baseURL string
}

func NewEmojiFetcher(client *http.Client) *EmojiFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &EmojiFetcher{client: client, baseURL: discordEmojiCDN}
}

// Fetch returns the image bytes for e
func (f *EmojiFetcher) Fetch(ctx context.Context, e customEmoji) ([]byte, error) {
	url := f.baseURL + e.ID + "." + e.ext()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, externalFailure(msgEmojiFetchFail, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, externalFailure(
			msgEmojiFetchFail,
			fmt.Errorf("unexpected status fetching %s: %s", url, resp.Status),
		)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, emojiMaxBytes))
	if err != nil {
		return nil, externalFailure(msgEmojiFetchFail, err)
	}
	return data, nil
}
