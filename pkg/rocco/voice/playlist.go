package voice

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jholhewres/rocco/pkg/rocco/media"
)

// PlaylistReader enumerates the tracks of a playlist directory.
type PlaylistReader interface {
	List(dir string) ([]string, error)
}

// DirPlaylist lists a directory on every call, keeping the order in which
// the filesystem returns entries. Sub-directories and files that are not
// audio tracks are skipped.
type DirPlaylist struct{}

// List returns the track paths found in dir.
func (DirPlaylist) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("opening playlist: %w", err)
	}
	defer f.Close()

	// Readdir keeps directory order; os.ReadDir would sort by name.
	entries, err := f.Readdir(-1)
	if err != nil {
		return nil, fmt.Errorf("reading playlist: %w", err)
	}

	tracks := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !media.IsAudioFile(e.Name()) {
			continue
		}
		tracks = append(tracks, filepath.Join(dir, e.Name()))
	}
	return tracks, nil
}
