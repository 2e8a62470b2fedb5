package cherry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/klauspost/compress/gzip"
	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Transcript is the archived history of a ticket channel
type Transcript struct {
	ChannelID   string              `json:"channel_id"`
	ChannelName string              `json:"channel_name"`
	OwnerID     string              `json:"owner_id"`
	OwnerName   string              `json:"owner_name"`
	Category    TicketCategory      `json:"category"`
	OpenedAt    time.Time           `json:"opened_at"`
	ClosedAt    time.Time           `json:"closed_at"`
	Messages    []TranscriptMessage `json:"messages"`
}

type TranscriptMessage struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Author      string    `json:"author"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	Attachments []string  `json:"attachments,omitempty"`
}

// transcriptMessages converts discord messages into transcript entries,
// oldest first
func transcriptMessages(messages []*discordgo.Message) []TranscriptMessage {
	rv := make([]TranscriptMessage, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		tm := TranscriptMessage{
			ID:        m.ID,
			Content:   m.Content,
			Timestamp: m.Timestamp,
		}
		if m.Author != nil {
			tm.AuthorID = m.Author.ID
			tm.Author = m.Author.Username
		}
		for _, a := range m.Attachments {
			if a != nil {
				tm.Attachments = append(tm.Attachments, a.URL)
			}
		}
		rv = append(rv, tm)
	}
	sort.SliceStable(
		rv, func(i, j int) bool {
			return rv[i].Timestamp.Before(rv[j].Timestamp)
		},
	)
	return rv
}

// Name is the base artifact name: open and close dates, owner, category
func (t Transcript) Name() string {
	owner := t.OwnerName
	if owner == "" {
		owner = t.OwnerID
	}
	return fmt.Sprintf(
		"ticket-%s-%s-%s-%s",
		t.OpenedAt.Format("20060102"),
		t.ClosedAt.Format("20060102"),
		strings.ReplaceAll(owner, " ", "_"),
		t.Category,
	)
}

// TranscriptRenderer produces the archive artifacts for a transcript
type TranscriptRenderer struct {
	HTML     bool
	Compress bool

	markdown  goldmark.Markdown
	sanitizer *bluemonday.Policy
}

func NewTranscriptRenderer(renderHTML, compress bool) *TranscriptRenderer {
	return &TranscriptRenderer{
		HTML:      renderHTML,
		Compress:  compress,
		markdown:  goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Linkify)),
		sanitizer: bluemonday.UGCPolicy(),
	}
}

// Render returns the files to upload: the JSON transcript, plus an HTML
// rendition if enabled. Each is gzipped if compression is enabled.
func (r *TranscriptRenderer) Render(t Transcript) ([]*discordgo.File, error) {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("error encoding transcript: %w", err)
	}
	files := []*discordgo.File{
		{Name: t.Name() + ".json", ContentType: "application/json", Reader: bytes.NewReader(data)},
	}

	if r.HTML {
		var buf bytes.Buffer
		if err = r.writeHTML(&buf, t); err != nil {
			return nil, fmt.Errorf("error rendering transcript: %w", err)
		}
		files = append(
			files,
			&discordgo.File{
				Name:        t.Name() + ".html",
				ContentType: "text/html",
				Reader:      &buf,
			},
		)
	}

	if !r.Compress {
		return files, nil
	}
	for i, f := range files {
		compressed, gzErr := gzipFile(f)
		if gzErr != nil {
			return nil, gzErr
		}
		files[i] = compressed
	}
	return files, nil
}

func (r *TranscriptRenderer) writeHTML(w io.Writer, t Transcript) error {
	var body bytes.Buffer
	for _, m := range t.Messages {
		var md bytes.Buffer
		fmt.Fprintf(
			&md,
			"**%s** _%s_\n\n%s\n",
			m.Author,
			m.Timestamp.UTC().Format(time.DateTime),
			m.Content,
		)
		for _, a := range m.Attachments {
			fmt.Fprintf(&md, "\n- <%s>\n", a)
		}
		body.WriteString(`<div class="message">`)
		if err := r.markdown.Convert(md.Bytes(), &body); err != nil {
			return err
		}
		body.WriteString("</div>\n")
	}

	_, err := fmt.Fprintf(
		w,
		"<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n"+
			"<body><h1>%s</h1>\n%s</body></html>\n",
		html.EscapeString(t.ChannelName),
		html.EscapeString(t.ChannelName),
		r.sanitizer.SanitizeBytes(body.Bytes()),
	)
	return err
}

func gzipFile(f *discordgo.File) (*discordgo.File, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Name = f.Name
	if _, err := io.Copy(zw, f.Reader); err != nil {
		return nil, fmt.Errorf("error compressing %s: %w", f.Name, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("error compressing %s: %w", f.Name, err)
	}
	return &discordgo.File{
		Name:        f.Name + ".gz",
		ContentType: "application/gzip",
		Reader:      &buf,
	}, nil
}
