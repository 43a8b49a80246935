// Package state persists what the last runs downloaded: the time of the last full
// sync, where maps come from, where they go, and the version marker of every map.
package state

import (
	"fmt"
	"maps"
	"path/filepath"
	"time"

	"github.com/openmined/reflexmaps/internal/utils"
	"github.com/spf13/afero"
)

// NeverSynced is the LastFullSync of a fresh install.
var NeverSynced = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// SyncState is the on-disk sync document.
type SyncState struct {
	LastFullSync time.Time            `json:"lastUpdate"`
	SourceURL    string               `json:"sourceUrl"`
	MapPath      string               `json:"mapPath"`
	MapVersions  map[string]time.Time `json:"mapVersions"`
}

// New returns a first-run state for the given source and map directory.
func New(sourceURL, mapPath string) SyncState {
	return SyncState{
		LastFullSync: NeverSynced,
		SourceURL:    sourceURL,
		MapPath:      mapPath,
		MapVersions:  make(map[string]time.Time),
	}
}

// Clone returns a deep copy so callers can mutate markers freely.
func (s SyncState) Clone() SyncState {
	c := s
	c.MapVersions = maps.Clone(s.MapVersions)
	if c.MapVersions == nil {
		c.MapVersions = make(map[string]time.Time)
	}
	return c
}

// Version returns the stored marker for url.
func (s SyncState) Version(url string) (time.Time, bool) {
	v, ok := s.MapVersions[url]
	return v, ok
}

// SetVersion records that url was downloaded at version v. Markers are only ever
// added or refreshed.
func (s *SyncState) SetVersion(url string, v time.Time) {
	if s.MapVersions == nil {
		s.MapVersions = make(map[string]time.Time)
	}
	s.MapVersions[url] = v
}

// Load reads the state document at path. A missing, unreadable or malformed file
// yields a copy of defaults, never an error. Keys absent from the document keep
// their default value.
func Load(fs afero.Fs, path string, defaults SyncState) SyncState {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return defaults.Clone()
	}

	st := defaults.Clone()
	if err := utils.JSONUnmarshal(data, &st); err != nil {
		return defaults.Clone()
	}
	if st.MapVersions == nil {
		st.MapVersions = make(map[string]time.Time)
	}
	return st
}

// Save overwrites the state document at path. The document is written to a temp
// file next to it and renamed into place.
func Save(fs afero.Fs, path string, st SyncState) error {
	if st.MapVersions == nil {
		st.MapVersions = make(map[string]time.Time)
	}

	data, err := utils.JSONMarshalIndent(st)
	if err != nil {
		return fmt.Errorf("state: encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: mkdir %q: %w", dir, err)
	}

	tmp, err := afero.TempFile(fs, dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		fs.Remove(tmpName)
		return fmt.Errorf("state: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("state: write: %w", err)
	}
	if err := fs.Rename(tmpName, path); err != nil {
		fs.Remove(tmpName)
		return fmt.Errorf("state: replace %q: %w", path, err)
	}
	return nil
}
