// Package repair rewrites Training clips into H.264/yuv420p MP4s with
// even dimensions and faststart, which is what Create ML accepts.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/datasetcutter/datasetcutter/internal/encoder"
	"github.com/datasetcutter/datasetcutter/internal/logging"
)

var ErrRootMissing = errors.New("root not found or not a directory")

// Tools is the ffmpeg surface the repairer needs.
type Tools interface {
	Probe(ctx context.Context, path string) (*encoder.ProbeResult, error)
	Run(ctx context.Context, args ...string) encoder.Attempt
	DecodeCheck(ctx context.Context, path string) error
}

type Options struct {
	Exts map[string]bool
	// CFR forces a constant frame rate when positive.
	CFR    int
	DryRun bool
	// BackupExt is appended to originals; empty deletes them instead.
	BackupExt string
	// OnResult, when set, is called after each clip.
	OnResult func(FileResult)
}

type FileResult struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	DryRun bool   `json:"dry_run,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Report struct {
	Processed int          `json:"processed"`
	Repaired  int          `json:"repaired"`
	Failed    int          `json:"failed"`
	Results   []FileResult `json:"results"`
}

type Repairer struct {
	tools  Tools
	opts   Options
	logger *slog.Logger
}

func New(tools Tools, opts Options, logger *slog.Logger) *Repairer {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Repairer{tools: tools, opts: opts, logger: logger}
}

// Run repairs every matching clip in each label directory under root.
func (r *Repairer) Run(ctx context.Context, root string) (*Report, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRootMissing, root)
	}

	clips, err := r.collect(root)
	if err != nil {
		return nil, err
	}

	report := &Report{Results: []FileResult{}}
	for _, clip := range clips {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res := r.repairFile(ctx, clip)
		report.Processed++
		if res.OK {
			report.Repaired++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, res)
		if r.opts.OnResult != nil {
			r.opts.OnResult(res)
		}
	}

	r.logger.Info("repair finished",
		"root", logging.SanitizePath(root),
		"processed", report.Processed,
		"repaired", report.Repaired,
		"failed", report.Failed,
	)
	return report, nil
}

func (r *Repairer) collect(root string) ([]string, error) {
	labels, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var clips []string
	for _, label := range labels {
		if !label.IsDir() {
			continue
		}
		dir := filepath.Join(root, label.Name())
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			name := e.Name()
			if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.Contains(name, ".tmp.") {
				continue
			}
			if r.opts.Exts[strings.ToLower(filepath.Ext(name))] {
				clips = append(clips, filepath.Join(dir, name))
			}
		}
	}
	sort.Strings(clips)
	return clips, nil
}

func (r *Repairer) repairFile(ctx context.Context, path string) FileResult {
	probe, err := r.tools.Probe(ctx, path)
	if err != nil {
		r.logger.Warn("probe failed, forcing re-encode", "path", logging.SanitizePath(path), "error", err)
		probe = nil
	}
	plan := NeedsReencode(probe)
	res := FileResult{Path: path, Action: plan.Action()}

	if r.opts.DryRun {
		res.OK, res.DryRun = true, true
		return res
	}

	tmp := path + ".tmp.mp4"
	fail := func(err error) FileResult {
		os.Remove(tmp)
		res.Error = err.Error()
		r.logger.Error("repair failed", "path", logging.SanitizePath(path), "action", res.Action, "error", err)
		return res
	}

	if err := r.transcode(ctx, path, tmp, plan); err != nil {
		return fail(err)
	}
	if err := r.tools.DecodeCheck(ctx, tmp); err != nil {
		return fail(fmt.Errorf("post-repair decode check failed: %w", err))
	}
	if err := r.replace(path, tmp); err != nil {
		return fail(fmt.Errorf("could not replace original: %w", err))
	}

	res.OK = true
	return res
}

func (r *Repairer) transcode(ctx context.Context, in, out string, plan Plan) error {
	if !plan.Reencode() {
		a := r.tools.Run(ctx, RemuxArgs(in, out, plan.HasAudio)...)
		if !a.IsSuccess() {
			return fmt.Errorf("remux exited %d: %s", a.ExitCode, a.StderrTail)
		}
		return nil
	}

	first := r.tools.Run(ctx, ReencodeArgs(in, out, plan, r.opts.CFR, false)...)
	if first.IsSuccess() {
		return nil
	}
	r.logger.Warn("libx264 re-encode failed, trying videotoolbox", "path", logging.SanitizePath(in), "exit_code", first.ExitCode)

	second := r.tools.Run(ctx, ReencodeArgs(in, out, plan, r.opts.CFR, true)...)
	if !second.IsSuccess() {
		return fmt.Errorf("re-encode failed (libx264 exit %d, videotoolbox exit %d): %s",
			first.ExitCode, second.ExitCode, second.StderrTail)
	}
	return nil
}

func (r *Repairer) replace(path, tmp string) error {
	if r.opts.BackupExt == "" {
		if err := os.Remove(path); err != nil {
			return err
		}
	} else {
		backup := path + r.opts.BackupExt
		if err := os.Remove(backup); err != nil && !os.IsNotExist(err) {
			return err
		}
		if err := os.Rename(path, backup); err != nil {
			return err
		}
	}
	return os.Rename(tmp, path)
}
