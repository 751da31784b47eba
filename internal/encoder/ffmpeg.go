package encoder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/datasetcutter/datasetcutter/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
)

var ErrAllAttemptsFailed = errors.New("all ffmpeg attempts failed")

// Config holds the encoder's configuration.
type Config struct {
	FFmpegPath   string     // resolved ffmpeg binary
	FFprobePath  string     // empty = derived from FFmpegPath
	Strategies   []Strategy // trim fallback chain; empty = DefaultStrategies
	TrimTimeout  time.Duration
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(ffmpegPath string, logger *slog.Logger) Config {
	return Config{
		FFmpegPath:   ffmpegPath,
		FFprobePath:  ProbePath(ffmpegPath),
		Strategies:   DefaultStrategies,
		TrimTimeout:  2 * time.Minute,
		ProbeTimeout: 30 * time.Second,
		Logger:       logger,
	}
}

// FFmpeg is the subprocess implementation used by the dataset service and
// the repair tool.
type FFmpeg struct {
	cfg Config
}

func New(cfg Config) *FFmpeg {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = ProbePath(cfg.FFmpegPath)
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}
	if cfg.TrimTimeout <= 0 {
		cfg.TrimTimeout = 2 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &FFmpeg{cfg: cfg}
}

// Path returns the ffmpeg binary in use.
func (f *FFmpeg) Path() string {
	return f.cfg.FFmpegPath
}

// Trim cuts seg.Output out of seg.Input, walking the strategy chain until
// one attempt exits cleanly. On failure the partial output is removed and
// the returned result still lists every attempt.
func (f *FFmpeg) Trim(ctx context.Context, seg Segment) (*TrimResult, error) {
	if seg.Duration <= 0 {
		return nil, fmt.Errorf("invalid segment duration %s", seg.Duration)
	}
	if err := os.MkdirAll(filepath.Dir(seg.Output), 0755); err != nil {
		return nil, fmt.Errorf("cannot create output dir: %w", err)
	}

	result := &TrimResult{}
	for _, strategy := range f.cfg.Strategies {
		attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.TrimTimeout)
		attempt := f.exec(attemptCtx, f.cfg.FFmpegPath, nil, TrimArgs(strategy, seg)...)
		cancel()

		attempt.Strategy = strategy
		result.Attempts = append(result.Attempts, attempt)

		if attempt.IsSuccess() {
			f.cfg.Logger.Info("clip encoded",
				"strategy", strategy,
				"start", fmtSeconds(seg.Start),
				"duration", fmtSeconds(seg.Duration),
				"elapsed_ms", attempt.Duration.Milliseconds(),
			)
			return result, nil
		}

		if ctx.Err() != nil {
			os.Remove(seg.Output)
			return result, ctx.Err()
		}

		f.cfg.Logger.Warn("trim attempt failed, trying next strategy",
			"strategy", strategy,
			"exit_code", attempt.ExitCode,
			"stderr_tail", truncate(attempt.StderrTail, 512),
		)
	}

	os.Remove(seg.Output)
	return result, ErrAllAttemptsFailed
}

// Probe runs ffprobe and decodes its JSON report.
func (f *FFmpeg) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	attempt := f.exec(ctx, f.cfg.FFprobePath, &stdout, ProbeArgs(path)...)
	if !attempt.IsSuccess() {
		return nil, fmt.Errorf("ffprobe exited %d: %s", attempt.ExitCode, truncate(attempt.StderrTail, 512))
	}

	var probe ProbeResult
	if err := json.Unmarshal(stdout.Bytes(), &probe); err != nil {
		return nil, fmt.Errorf("cannot parse ffprobe JSON: %w", err)
	}
	return &probe, nil
}

// DecodeCheck decodes the file end to end and reports any decoder error.
func (f *FFmpeg) DecodeCheck(ctx context.Context, path string) error {
	attempt := f.Run(ctx, DecodeCheckArgs(path)...)
	if !attempt.IsSuccess() {
		return fmt.Errorf("decode check exited %d: %s", attempt.ExitCode, truncate(attempt.StderrTail, 512))
	}
	return nil
}

// Version returns the first line of `ffmpeg -version`.
func (f *FFmpeg) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var stdout bytes.Buffer
	attempt := f.exec(ctx, f.cfg.FFmpegPath, &stdout, "-version")
	if !attempt.IsSuccess() {
		return "", fmt.Errorf("ffmpeg -version exited %d: %s", attempt.ExitCode, truncate(attempt.StderrTail, 256))
	}
	line, _ := bufio.NewReader(&stdout).ReadString('\n')
	return strings.TrimSpace(line), nil
}

// Run executes ffmpeg with arbitrary arguments under the trim timeout.
func (f *FFmpeg) Run(ctx context.Context, args ...string) Attempt {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.TrimTimeout)
	defer cancel()
	return f.exec(ctx, f.cfg.FFmpegPath, nil, args...)
}

// exec is the core subprocess execution helper.
func (f *FFmpeg) exec(ctx context.Context, bin string, stdout io.Writer, args ...string) Attempt {
	start := time.Now()

	cmd := exec.CommandContext(ctx, bin, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		cmd.Stdout = io.Discard
	}

	f.cfg.Logger.Debug("executing command", "bin", filepath.Base(bin), "args", args)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	stderrTail := stderrBuf.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrTail == "" {
				stderrTail = err.Error()
			}
		}
		// A killed process reports -1 as well; keep it non-zero either way.
		if exitCode == 0 {
			exitCode = -1
		}
	}

	return Attempt{
		Args:       append([]string{bin}, args...),
		ExitCode:   exitCode,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
