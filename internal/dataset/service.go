package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/datasetcutter/datasetcutter/internal/encoder"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/logging"
	"github.com/datasetcutter/datasetcutter/internal/settings"
)

// Encoder cuts a segment out of a source video.
type Encoder interface {
	Trim(ctx context.Context, seg encoder.Segment) (*encoder.TrimResult, error)
}

// VideoResolver maps an uploaded video name to its path on disk.
type VideoResolver interface {
	Resolve(name string) (string, error)
}

// SettingsSource provides the current cutting settings.
type SettingsSource interface {
	Get() settings.Settings
}

type ServiceConfig struct {
	Repo      Repository
	Videos    VideoResolver
	Settings  SettingsSource
	Encoder   Encoder
	TrashDir  string
	UndoDepth int
	Logger    *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

type Service struct {
	repo      Repository
	videos    VideoResolver
	settings  SettingsSource
	enc       Encoder
	trashDir  string
	undoDepth int
	logger    *slog.Logger
	now       func() time.Time

	// mu serialises exports and undos so the stack order matches disk.
	mu sync.Mutex
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Service{
		repo:      cfg.Repo,
		videos:    cfg.Videos,
		settings:  cfg.Settings,
		enc:       cfg.Encoder,
		trashDir:  cfg.TrashDir,
		undoDepth: cfg.UndoDepth,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
}

// SanitizeLabel turns user input into a safe directory name.
func SanitizeLabel(label string) string {
	return library.SanitizeFilename(strings.TrimSpace(label))
}

// ExportClip cuts the requested window into <root>/Training/<label>/ and
// records it on the undo stack.
func (s *Service) ExportClip(ctx context.Context, req ClipRequest) (*Export, error) {
	src, err := s.videos.Resolve(req.VideoFilename)
	if err != nil {
		if errors.Is(err, library.ErrNotFound) || errors.Is(err, library.ErrInvalidName) {
			return nil, ErrVideoNotFound
		}
		return nil, err
	}

	cur := s.settings.Get()
	win, err := ComputeWindow(cur.ClipMode, cur.ClipDuration, req.CurrentTime, req.InMark, req.OutMark)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	label := SanitizeLabel(req.Label)
	if err := s.repo.RecordLabel(ctx, label, now); err != nil {
		return nil, fmt.Errorf("failed to record label: %w", err)
	}

	outDir := filepath.Join(cur.TrainingDir(), label)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create label dir: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	outPath := filepath.Join(outDir, fmt.Sprintf("%s_%d_%d_%d.mp4", stem, win.StartMs(), win.EndMs(), now.UnixMilli()))

	start, length := win.Offsets()
	result, err := s.enc.Trim(ctx, encoder.Segment{Input: src, Output: outPath, Start: start, Duration: length})
	if err != nil {
		s.logFailedAttempts(req.VideoFilename, result)
		return nil, fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return nil, ErrEmptyOutput
	}

	winner, _ := result.Succeeded()
	export := &Export{
		ID:             NewID(),
		VideoFilename:  req.VideoFilename,
		Label:          label,
		StartMs:        win.StartMs(),
		EndMs:          win.EndMs(),
		Mode:           cur.ClipMode,
		Path:           outPath,
		Size:           info.Size(),
		EncoderAttempt: string(winner.Strategy),
		CreatedAt:      now,
	}
	if err := s.repo.CreateExport(ctx, export); err != nil {
		return nil, fmt.Errorf("failed to save export: %w", err)
	}
	if err := s.repo.PushUndo(ctx, export.ID, s.undoDepth); err != nil {
		return nil, fmt.Errorf("failed to push undo: %w", err)
	}

	s.logger.Info("clip exported",
		"export_id", export.ID,
		"label", label,
		"path", logging.SanitizePath(outPath),
		"start_ms", export.StartMs,
		"end_ms", export.EndMs,
		"strategy", export.EncoderAttempt,
	)
	return export, nil
}

func (s *Service) logFailedAttempts(video string, result *encoder.TrimResult) {
	if result == nil {
		return
	}
	for _, a := range result.Attempts {
		s.logger.Error("ffmpeg attempt failed",
			"video", video,
			"strategy", a.Strategy,
			"cmd", a.CommandLine(),
			"exit_code", a.ExitCode,
			"stderr", a.StderrTail,
		)
	}
}

// Undo moves the most recent export to the trash and pops it off the
// stack. A clip already missing from disk is popped all the same.
func (s *Service) Undo(ctx context.Context) (*UndoResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.repo.PeekUndo(ctx)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, ErrNothingToUndo
	}

	now := s.now()
	res := &UndoResult{Export: entry.Export}

	if _, err := os.Stat(entry.Path); os.IsNotExist(err) {
		res.Missing = true
	} else {
		dest := filepath.Join(s.trashDir, fmt.Sprintf("%d_%s", now.UnixMilli(), filepath.Base(entry.Path)))
		if err := moveFile(entry.Path, dest); err != nil {
			return nil, fmt.Errorf("failed to move clip to trash: %w", err)
		}
		res.TrashPath = dest
	}

	if err := s.repo.PopUndo(ctx, entry.Seq, entry.ID, now); err != nil {
		return nil, fmt.Errorf("failed to pop undo entry: %w", err)
	}
	undone := now
	res.Export.UndoneAt = &undone

	s.logger.Info("export undone", "export_id", entry.ID, "path", logging.SanitizePath(entry.Path), "missing", res.Missing)
	return res, nil
}

// History returns up to n undo entries, newest first. n <= 0 means all.
func (s *Service) History(ctx context.Context, n int) ([]*UndoEntry, error) {
	entries, err := s.repo.ListUndo(ctx, n)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []*UndoEntry{}
	}
	return entries, nil
}

// Labels returns known label names in first-use order.
func (s *Service) Labels(ctx context.Context) ([]string, error) {
	labels, err := s.repo.ListLabels(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.Name)
	}
	return names, nil
}

// LabelStats reports clip counts for the current dataset root.
func (s *Service) LabelStats(ctx context.Context, threshold int) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return BuildReport(s.settings.Get().TrainingDir(), library.AllowedExtensions, threshold)
}

func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	// Rename fails across volumes; the dataset root may live elsewhere.
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return err
	}
	in.Close()
	return os.Remove(src)
}
