// Package library stores the source videos a user uploads for cutting.
package library

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/dustin/go-humanize"
	"github.com/h2non/filetype"
)

var (
	ErrUnsupportedType = errors.New("only MP4/MOV/M4V videos are allowed")
	ErrInvalidName     = errors.New("invalid video name")
	ErrNotFound        = errors.New("video not found")
)

// AllowedExtensions is shared with the dataset scanner.
var AllowedExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
	".m4v": true,
}

// OS metadata files that should never show up as videos.
var excludedNames = map[string]bool{
	".ds_store":   true,
	"thumbs.db":   true,
	"ehthumbs.db": true,
	"desktop.ini": true,
}

// sniffLen covers every magic number filetype knows about.
const sniffLen = 262

type StoredVideo struct {
	Name string `json:"filename"`
	Size int64  `json:"size"`
}

type Library struct {
	dir    string
	logger *slog.Logger
}

func New(dir string, logger *slog.Logger) (*Library, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create videos dir: %w", err)
	}
	return &Library{dir: dir, logger: logger}, nil
}

func (l *Library) Dir() string {
	return l.dir
}

// Save streams r into the library under a sanitised version of name.
// An existing video with the same name is replaced.
func (l *Library) Save(ctx context.Context, name string, r io.Reader) (*StoredVideo, error) {
	if !HasAllowedExtension(name) {
		return nil, ErrUnsupportedType
	}
	safe := SanitizeFilename(filepath.Base(name))
	if !HasAllowedExtension(safe) {
		return nil, ErrInvalidName
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrUnsupportedType)
	}
	// Only reject content we can positively identify as something else;
	// some valid QuickTime variants have no registered magic number.
	if kind, _ := filetype.Match(head); kind != filetype.Unknown && !filetype.IsVideo(head) {
		return nil, fmt.Errorf("%w: content is %s", ErrUnsupportedType, kind.MIME.Value)
	}

	tmp, err := os.CreateTemp(l.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	size, err := io.Copy(tmp, io.MultiReader(bytes.NewReader(head), contextReader{ctx: ctx, r: r}))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write upload: %w", err)
	}

	dest := filepath.Join(l.dir, safe)
	if err := os.Rename(tmpName, dest); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	if l.logger != nil {
		l.logger.Info("video uploaded", "filename", safe, "size", humanize.Bytes(uint64(size)))
	}
	return &StoredVideo{Name: safe, Size: size}, nil
}

// List returns the sorted names of user videos, skipping OS metadata.
func (l *Library) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read videos dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !IsListable(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Resolve maps a video name to its path. Only bare file names are accepted.
func (l *Library) Resolve(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidName
	}
	path := filepath.Join(l.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", ErrNotFound
	}
	return path, nil
}

// HasAllowedExtension reports whether name ends in a supported video extension.
func HasAllowedExtension(name string) bool {
	return AllowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsListable reports whether a file name is a normal user video and not
// a dotfile, AppleDouble fork or OS metadata file.
func IsListable(name string) bool {
	low := strings.ToLower(name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(low, "._") || excludedNames[low] {
		return false
	}
	return HasAllowedExtension(name)
}

// SanitizeFilename keeps letters, digits, '-', '_' and '.', replaces
// everything else with '_' and trims leading/trailing dots and
// underscores. An empty result becomes "clip".
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	safe := strings.Trim(b.String(), "._")
	if safe == "" {
		return "clip"
	}
	return safe
}

// contextReader stops a long upload copy once the request is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
