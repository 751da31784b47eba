package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"

	"github.com/datasetcutter/datasetcutter/internal/library"
)

func writeClips(t *testing.T, root, label string, names ...string) {
	t.Helper()
	dir := filepath.Join(root, label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestScanDataset(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "walk", "a.mp4", "b.MOV", "c.m4v", ".hidden.mp4", "._a.mp4", "notes.txt")
	writeClips(t, root, "jump", "a.mp4")
	writeClips(t, root, "empty")
	if err := os.WriteFile(filepath.Join(root, "stray.mp4"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := ScanDataset(root, library.AllowedExtensions)
	if err != nil {
		t.Fatalf("ScanDataset() error = %v", err)
	}
	want := []LabelCount{{"empty", 0}, {"jump", 1}, {"walk", 3}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScanDataset() = %v, want %v", got, want)
	}
}

func TestScanDataset_ExtraExtension(t *testing.T) {
	root := t.TempDir()
	writeClips(t, root, "walk", "a.mp4", "b.avi")

	got, err := ScanDataset(root, Extensions(library.AllowedExtensions, "avi"))
	if err != nil {
		t.Fatalf("ScanDataset() error = %v", err)
	}
	if len(got) != 1 || got[0].Count != 2 {
		t.Errorf("ScanDataset() = %v, want walk=2", got)
	}
	if library.AllowedExtensions[".avi"] {
		t.Error("Extensions() mutated the base set")
	}
}

func TestScanDataset_MissingRoot(t *testing.T) {
	_, err := ScanDataset(filepath.Join(t.TempDir(), "nope"), library.AllowedExtensions)
	if !errors.Is(err, ErrDatasetMissing) {
		t.Errorf("error = %v, want ErrDatasetMissing", err)
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != (Summary{}) {
		t.Errorf("Summarize(nil) = %+v, want zero", got)
	}
	got := Summarize([]LabelCount{{"a", 2}, {"b", 7}, {"c", 3}})
	want := Summary{Classes: 3, Total: 12, Mean: 4, Min: 2, Max: 7}
	if got != want {
		t.Errorf("Summarize() = %+v, want %+v", got, want)
	}
}

func TestUnderThreshold(t *testing.T) {
	counts := []LabelCount{{"walk", 60}, {"run", 10}, {"jump", 10}, {"sit", 49}, {"wave", 50}}

	under, needed := UnderThreshold(counts, 50)
	want := []Deficit{
		{Label: "jump", Count: 10, Deficit: 40},
		{Label: "run", Count: 10, Deficit: 40},
		{Label: "sit", Count: 49, Deficit: 1},
	}
	if !reflect.DeepEqual(under, want) {
		t.Errorf("UnderThreshold() = %v, want %v", under, want)
	}
	if needed != 81 {
		t.Errorf("total needed = %d, want 81", needed)
	}

	if under, needed := UnderThreshold(counts, 0); len(under) != 0 || needed != 0 {
		t.Errorf("threshold 0 should report nothing, got %v %d", under, needed)
	}
}

func TestScanDataset_FollowsSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	elsewhere := t.TempDir()
	writeClips(t, elsewhere, "wave", "a.mp4", "b.mp4")
	writeClips(t, root, "jump", "a.mp4")

	if err := os.Symlink(filepath.Join(elsewhere, "wave"), filepath.Join(root, "wave")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(elsewhere, "wave", "a.mp4"), filepath.Join(root, "jump", "linked.mp4")); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(elsewhere, "gone.mp4"), filepath.Join(root, "jump", "dangling.mp4")); err != nil {
		t.Fatal(err)
	}

	got, err := ScanDataset(root, library.AllowedExtensions)
	if err != nil {
		t.Fatalf("ScanDataset() error = %v", err)
	}
	want := []LabelCount{{"jump", 2}, {"wave", 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ScanDataset() = %v, want %v", got, want)
	}
}
