package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScanDataset counts clips per label directory directly under root.
// Labels come back sorted by name.
func ScanDataset(root string, exts map[string]bool) ([]LabelCount, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrDatasetMissing, root)
		}
		return nil, err
	}

	counts := []LabelCount{}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		if !resolveMode(dir, e).IsDir() {
			continue
		}
		n, err := countClips(dir, exts)
		if err != nil {
			return nil, err
		}
		counts = append(counts, LabelCount{Label: e.Name(), Count: n})
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].Label < counts[j].Label })
	return counts, nil
}

func countClips(dir string, exts map[string]bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !resolveMode(filepath.Join(dir, name), e).IsRegular() {
			continue
		}
		if exts[strings.ToLower(filepath.Ext(name))] {
			n++
		}
	}
	return n, nil
}

// resolveMode follows symlinks; a dangling link reports an irregular mode.
func resolveMode(path string, e os.DirEntry) os.FileMode {
	if e.Type()&os.ModeSymlink == 0 {
		return e.Type()
	}
	info, err := os.Stat(path)
	if err != nil {
		return os.ModeIrregular
	}
	return info.Mode()
}

func Summarize(counts []LabelCount) Summary {
	if len(counts) == 0 {
		return Summary{}
	}
	s := Summary{Classes: len(counts), Min: counts[0].Count, Max: counts[0].Count}
	for _, c := range counts {
		s.Total += c.Count
		s.Min = min(s.Min, c.Count)
		s.Max = max(s.Max, c.Count)
	}
	s.Mean = float64(s.Total) / float64(s.Classes)
	return s
}

// UnderThreshold lists labels with fewer than threshold clips, fewest
// first, ties broken by name, along with the total clips still needed.
func UnderThreshold(counts []LabelCount, threshold int) ([]Deficit, int) {
	under := []Deficit{}
	total := 0
	for _, c := range counts {
		if c.Count < threshold {
			d := threshold - c.Count
			under = append(under, Deficit{Label: c.Label, Count: c.Count, Deficit: d})
			total += d
		}
	}
	sort.Slice(under, func(i, j int) bool {
		if under[i].Count != under[j].Count {
			return under[i].Count < under[j].Count
		}
		return under[i].Label < under[j].Label
	})
	return under, total
}

// BuildReport scans root and assembles the balancing report.
func BuildReport(root string, exts map[string]bool, threshold int) (*Report, error) {
	counts, err := ScanDataset(root, exts)
	if err != nil {
		return nil, err
	}
	under, needed := UnderThreshold(counts, threshold)
	return &Report{
		Root:        root,
		Threshold:   threshold,
		Summary:     Summarize(counts),
		Counts:      counts,
		Under:       under,
		TotalNeeded: needed,
	}, nil
}

// Extensions returns a copy of base with each extra extension added,
// normalised to a lower-case ".ext" form.
func Extensions(base map[string]bool, extra ...string) map[string]bool {
	out := make(map[string]bool, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for _, e := range extra {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out[e] = true
	}
	return out
}
