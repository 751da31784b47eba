package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datasetcutter/datasetcutter/internal/config"
	"github.com/datasetcutter/datasetcutter/internal/dataset"
	"github.com/datasetcutter/datasetcutter/internal/library"
)

func newFocusCmd() *cobra.Command {
	var (
		root      string
		threshold int
		top       int
		exts      []string
	)

	cmd := &cobra.Command{
		Use:   "focus",
		Short: "Report labels below a clip-count threshold",
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
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.LabelThreshold()
			}

			report, err := dataset.BuildReport(root, dataset.Extensions(library.AllowedExtensions, exts...), threshold)
			if errors.Is(err, dataset.ErrDatasetMissing) {
				return &exitError{code: 2, msg: "Dataset path not found: " + root}
			}
			if err != nil {
				return err
			}
			printFocus(cmd.OutOrStdout(), report, top)
			return nil
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "Dataset Training root (default: from settings)")
	cmd.Flags().IntVar(&threshold, "threshold", 50, "Minimum desired clips per label")
	cmd.Flags().IntVar(&top, "top", 0, "Only show the first N under-threshold labels (0 = all)")
	cmd.Flags().StringArrayVar(&exts, "ext", nil, "Extra file extension to include, e.g. --ext .avi (repeatable)")
	return cmd
}

func printFocus(w io.Writer, r *dataset.Report, top int) {
	s := r.Summary
	fmt.Fprintf(w, "Dataset: %s\n", r.Root)
	fmt.Fprintf(w, "Classes: %d  Total clips: %s  Mean/cls: %.1f  Min: %d  Max: %d\n\n",
		s.Classes, humanize.Comma(int64(s.Total)), s.Mean, s.Min, s.Max)

	if len(r.Under) == 0 {
		fmt.Fprintf(w, "All labels meet the threshold (>= %d). Nice!\n", r.Threshold)
		return
	}

	fmt.Fprintf(w, "Labels below threshold (< %d), focus suggestions:\n\n", r.Threshold)
	header := fmt.Sprintf("%-30s  %6s  %6s", "label", "count", "need")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("-", len(header)))

	for i, d := range r.Under {
		if top > 0 && i >= top {
			break
		}
		fmt.Fprintf(w, "%-30s  %6d  %6d\n", d.Label, d.Count, d.Deficit)
	}

	fmt.Fprintf(w, "\nTotal clips needed to lift all under-threshold labels to %d: %s\n",
		r.Threshold, humanize.Comma(int64(r.TotalNeeded)))
}
