package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/datasetcutter/datasetcutter/internal/config"
	"github.com/datasetcutter/datasetcutter/internal/dataset"
	"github.com/datasetcutter/datasetcutter/internal/encoder"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/logging"
	"github.com/datasetcutter/datasetcutter/internal/repair"
	"github.com/datasetcutter/datasetcutter/internal/settings"
)

func newRepairCmd() *cobra.Command {
	var (
		root      string
		exts      string
		cfr       int
		dryRun    bool
		backupExt string
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Re-encode or remux Training clips into a uniform H.264/AAC MP4 layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if root == "" {
				root, err = defaultTrainingDir(cfg)
				if err != nil {
					return err
				}
			}
			if info, err := os.Stat(root); err != nil || !info.IsDir() {
				return &exitError{code: 2, msg: "[ERR] Root not found or not a directory: " + root}
			}

			ffmpegPath, err := encoder.Resolve(cfg.FFmpegBinary(), cfg.UserBinDir())
			if err != nil {
				return fmt.Errorf("ffmpeg not found: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Using ffmpeg: %s\n", ffmpegPath)

			logger := logging.NewLogger(cfg.LogLevel(), os.Stderr)
			ff := encoder.New(encoder.DefaultConfig(ffmpegPath, logging.WithComponent(logger, "encoder")))

			r := repair.New(ff, repair.Options{
				Exts:      parseExtList(exts),
				CFR:       cfr,
				DryRun:    dryRun,
				BackupExt: backupExt,
				OnResult:  func(res repair.FileResult) { printRepairResult(out, res) },
			}, logging.WithComponent(logger, "repair"))

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := r.Run(ctx, root)
			if errors.Is(err, repair.ErrRootMissing) {
				return &exitError{code: 2, msg: "[ERR] Root not found or not a directory: " + root}
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(out, "\nDone. processed=%d repaired=%d failed=%d\n", report.Processed, report.Repaired, report.Failed)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Training directory containing label folders (default: from settings)")
	cmd.Flags().StringVar(&exts, "exts", ".m4v,.mov,.mp4", "Comma-separated list of extensions to include")
	cmd.Flags().IntVar(&cfr, "cfr", 30, "Force a constant frame rate; 0 keeps the source rate")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only print actions, do not modify files")
	cmd.Flags().StringVar(&backupExt, "backup-ext", ".bak", "Backup extension for originals (empty deletes them)")
	return cmd
}

// parseExtList falls back to the library extensions when list is empty.
func parseExtList(list string) map[string]bool {
	var parts []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return dataset.Extensions(library.AllowedExtensions)
	}
	return dataset.Extensions(nil, parts...)
}

func printRepairResult(w io.Writer, res repair.FileResult) {
	switch {
	case res.DryRun:
		fmt.Fprintf(w, "[DRY] Would %s: %s\n", res.Action, res.Path)
	case res.OK:
		fmt.Fprintf(w, "[OK] Repaired %s\n", res.Path)
	default:
		fmt.Fprintf(w, "[ERR] Failed to repair %s\n%s\n", res.Path, res.Error)
	}
}

// defaultTrainingDir reads the saved dataset root without creating anything.
func defaultTrainingDir(cfg config.Config) (string, error) {
	s, err := settings.Load(cfg.SettingsPath(), cfg.DefaultDatasetRoot())
	if err != nil {
		return "", err
	}
	return s.TrainingDir(), nil
}
