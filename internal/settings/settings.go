// Package settings keeps the user-adjustable cutting settings and persists
// them to a TOML file in the data directory.
package settings

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

const (
	// ModeBackward ends the clip at the playhead.
	ModeBackward = "backward"
	// ModeCentered centres the clip on the playhead.
	ModeCentered = "centered"
	// ModeRange uses the mark-in/mark-out pair.
	ModeRange = "range"

	DefaultClipDuration = 2.0
)

// ValidMode reports whether m is a known clip mode.
func ValidMode(m string) bool {
	switch m {
	case ModeBackward, ModeCentered, ModeRange:
		return true
	}
	return false
}

type Settings struct {
	DatasetRoot  string  `toml:"dataset_root" json:"dataset_root"`
	ClipDuration float64 `toml:"clip_duration" json:"clip_duration"` // seconds
	ClipMode     string  `toml:"clip_mode" json:"clip_mode"`
}

// TrainingDir is where label folders live.
func (s Settings) TrainingDir() string {
	return filepath.Join(s.DatasetRoot, "Training")
}

// Patch carries optional updates; zero values mean "leave unchanged".
type Patch struct {
	DatasetRoot  string
	ClipDuration float64
	ClipMode     string
}

// Store guards the current settings.
type Store struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// Load reads settings from path without touching the filesystem
// otherwise. A missing file yields the defaults rooted at defaultRoot.
func Load(path, defaultRoot string) (Settings, error) {
	cur := Settings{
		DatasetRoot:  defaultRoot,
		ClipDuration: DefaultClipDuration,
		ClipMode:     ModeBackward,
	}
	if path == "" {
		return cur, nil
	}
	var loaded Settings
	if _, err := toml.DecodeFile(path, &loaded); err != nil {
		if os.IsNotExist(err) {
			return cur, nil
		}
		return cur, fmt.Errorf("failed to read settings %s: %w", path, err)
	}
	return merge(cur, Patch(loaded)), nil
}

// Open loads settings and makes sure the Training directory exists.
func Open(path, defaultRoot string) (*Store, error) {
	cur, err := Load(path, defaultRoot)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cur.TrainingDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create training dir: %w", err)
	}
	return &Store{path: path, current: cur}, nil
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies p, creates the Training directory of a new dataset root
// and persists the result.
func (s *Store) Update(p Patch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := merge(s.current, p)
	if next.DatasetRoot != s.current.DatasetRoot {
		if err := os.MkdirAll(next.TrainingDir(), 0755); err != nil {
			return s.current, fmt.Errorf("failed to create training dir: %w", err)
		}
	}
	if err := s.save(next); err != nil {
		return s.current, err
	}
	s.current = next
	return next, nil
}

func (s *Store) save(v Settings) error {
	if s.path == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create settings dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return os.Rename(tmp, s.path)
}

func merge(cur Settings, p Patch) Settings {
	if root := strings.TrimSpace(p.DatasetRoot); root != "" {
		cur.DatasetRoot = root
	}
	if p.ClipDuration > 0 {
		cur.ClipDuration = p.ClipDuration
	}
	if ValidMode(p.ClipMode) {
		cur.ClipMode = p.ClipMode
	}
	return cur
}
