// Package playback streams uploaded videos to the browser player with
// byte-range support so scrubbing works.
package playback

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/datasetcutter/datasetcutter/internal/library"
)

var contentTypes = map[string]string{
	".mp4": "video/mp4",
	".m4v": "video/x-m4v",
	".mov": "video/quicktime",
}

// Resolver maps a video name to a file path.
type Resolver interface {
	Resolve(name string) (string, error)
}

type Server struct {
	videos Resolver
	logger *slog.Logger
}

func NewServer(videos Resolver, logger *slog.Logger) *Server {
	return &Server{videos: videos, logger: logger}
}

// ServeVideo writes the named video, honouring a single Range request.
// Responses are marked no-cache so a re-uploaded file is picked up.
func (s *Server) ServeVideo(w http.ResponseWriter, r *http.Request, name string) {
	path, err := s.videos.Resolve(name)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, library.ErrNotFound) || errors.Is(err, library.ErrInvalidName) {
			status = http.StatusNotFound
		}
		http.Error(w, "Video not found", status)
		return
	}
	if err := s.serveFile(w, r, path); err != nil && s.logger != nil {
		s.logger.Warn("video stream interrupted", "video", name, "error", err)
	}
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "Video not found", http.StatusNotFound)
			return nil
		}
		return fmt.Errorf("failed to open video: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat video: %w", err)
	}
	size := stat.Size()

	h := w.Header()
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", "no-cache")
	h.Set("Content-Type", ContentType(path))

	br, err := ParseRange(r.Header.Get("Range"), size)
	switch {
	case errors.Is(err, ErrUnsatisfiable):
		h.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return nil
	case err != nil:
		// A malformed header is ignored and the whole file is sent.
		br = nil
	}

	if br == nil {
		h.Set("Content-Length", strconv.FormatInt(size, 10))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodHead {
			return nil
		}
		_, err := io.Copy(w, file)
		return err
	}

	h.Set("Content-Length", strconv.FormatInt(br.Length(), 10))
	h.Set("Content-Range", br.ContentRange(size))
	w.WriteHeader(http.StatusPartialContent)
	if r.Method == http.MethodHead {
		return nil
	}
	if _, err := file.Seek(br.Start, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek: %w", err)
	}
	_, err = io.CopyN(w, file, br.Length())
	return err
}

// ContentType picks the video MIME type from the file extension.
func ContentType(path string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return ct
	}
	return "application/octet-stream"
}
