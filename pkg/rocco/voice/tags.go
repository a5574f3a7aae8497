package voice

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// Unknown is shown in place of a missing title or artist.
const Unknown = "Unknown"

// TrackMetadata is read from a track's embedded tag block.
type TrackMetadata struct {
	Title  string
	Artist string
}

// TitleOrUnknown returns the title, or Unknown when the tag has none.
func (m TrackMetadata) TitleOrUnknown() string {
	if m.Title == "" {
		return Unknown
	}
	return m.Title
}

// ArtistOrUnknown returns the artist, or Unknown when the tag has none.
func (m TrackMetadata) ArtistOrUnknown() string {
	if m.Artist == "" {
		return Unknown
	}
	return m.Artist
}

// TagReader reads track metadata from a file.
type TagReader interface {
	Read(path string) (TrackMetadata, error)
}

// FileTagReader reads ID3/MP4/FLAC/OGG tags without decoding audio.
type FileTagReader struct{}

// Read returns the title and artist of the track at path. A file without a
// tag block yields empty metadata and no error.
func (FileTagReader) Read(path string) (TrackMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return TrackMetadata{}, fmt.Errorf("opening track: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if errors.Is(err, tag.ErrNoTagsFound) {
		return TrackMetadata{}, nil
	}
	if err != nil {
		return TrackMetadata{}, fmt.Errorf("reading tags: %w", err)
	}
	return TrackMetadata{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
	}, nil
}
