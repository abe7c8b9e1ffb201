package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const maxRecent = 10

type RecentEntry struct {
	Path     string    `json:"path"`
	OpenedAt time.Time `json:"openedAt"`
}

// RecentStore persists the most recently opened result files, newest first.
type RecentStore struct {
	path string
	now  func() time.Time
}

func NewRecentStore(path string) *RecentStore {
	return &RecentStore{path: path, now: time.Now}
}

// DefaultRecentStore keeps its list under the user config directory.
func DefaultRecentStore() *RecentStore {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return NewRecentStore(filepath.Join(dir, "mapsift", "recent.json"))
}

// Load returns the stored entries. A missing or unreadable list is empty.
func (s *RecentStore) Load() []RecentEntry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var entries []RecentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// Add moves file to the front of the list.
func (s *RecentStore) Add(file string) error {
	abs, err := filepath.Abs(file)
	if err != nil {
		abs = file
	}

	entries := slices.DeleteFunc(s.Load(), func(e RecentEntry) bool { return e.Path == abs })
	entries = slices.Insert(entries, 0, RecentEntry{Path: abs, OpenedAt: s.now()})
	if len(entries) > maxRecent {
		entries = entries[:maxRecent]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}
