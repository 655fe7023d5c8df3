package media

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"soundvault/model"
)

// Cover is artwork embedded in an audio file.
type Cover struct {
	Data []byte
	MIME string
}

// Extraction is everything Extract recovered from the file bytes. Meta is
// nil when the file carries no tags and no readable frames.
type Extraction struct {
	Meta  *model.AudioMetadata
	Cover *Cover
}

// Extractor pulls embedded metadata out of uploaded file bytes.
type Extractor interface {
	Extract(data []byte) (*Extraction, error)
}

// TagExtractor reads ID3 tags and walks MP3 frame headers for duration.
type TagExtractor struct{}

// NewTagExtractor returns the production extractor.
func NewTagExtractor() *TagExtractor {
	return &TagExtractor{}
}

// Extract parses tags and duration from data. A file without tags is not an
// error; any other tag-parse failure is, and the caller must not persist
// anything from such a file.
func (e *TagExtractor) Extract(data []byte) (*Extraction, error) {
	out := &Extraction{}

	m, err := tag.ReadFrom(bytes.NewReader(data))
	switch {
	case errors.Is(err, tag.ErrNoTagsFound):
		// Untagged files are fine; fall through to the duration scan.
	case err != nil:
		return nil, fmt.Errorf("failed to parse tags: %w", err)
	default:
		out.Meta = &model.AudioMetadata{
			Title:  m.Title(),
			Artist: m.Artist(),
			Album:  m.Album(),
			Year:   m.Year(),
			Genre:  splitGenres(m.Genre()),
		}

		if pic := m.Picture(); pic != nil && len(pic.Data) > 0 {
			out.Cover = &Cover{Data: pic.Data, MIME: pictureMIME(pic)}
		}
	}

	if duration := frameDuration(data); duration > 0 {
		if out.Meta == nil {
			out.Meta = &model.AudioMetadata{}
		}
		out.Meta.Duration = duration
	}

	return out, nil
}

// splitGenres turns the single ID3 genre string into a list. Multi-genre
// tags use ";" separators in the wild.
func splitGenres(genre string) []string {
	if strings.TrimSpace(genre) == "" {
		return nil
	}

	parts := strings.Split(genre, ";")
	genres := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			genres = append(genres, p)
		}
	}
	return genres
}

// pictureMIME normalizes the picture's declared type to a MIME string.
// ID3v2.2 frames carry bare format names like "JPG" instead of a MIME type.
func pictureMIME(pic *tag.Picture) string {
	if strings.Contains(pic.MIMEType, "/") {
		return pic.MIMEType
	}

	ext := strings.ToLower(pic.Ext)
	if ext == "" {
		ext = strings.ToLower(pic.MIMEType)
	}
	if ext == "jpg" {
		ext = "jpeg"
	}
	if ext == "" {
		return "application/octet-stream"
	}
	return "image/" + ext
}

// frameDuration sums MP3 frame durations across the whole file. Decoding
// stops at the first error, keeping whatever was accumulated, so a
// truncated file still reports its playable length.
func frameDuration(data []byte) float64 {
	dec := mp3.NewDecoder(bytes.NewReader(data))

	var (
		frame   mp3.Frame
		skipped int
		total   float64
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			break
		}
		total += frame.Duration().Seconds()
	}
	return total
}
