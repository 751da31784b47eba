package encoder

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestTrimArgs(t *testing.T) {
	seg := Segment{
		Input:    "/videos/in.mp4",
		Output:   "/dataset/Training/jump/out.mp4",
		Start:    1234 * time.Millisecond,
		Duration: 2 * time.Second,
	}

	tests := []struct {
		strategy Strategy
		want     []string
	}{
		{StrategyCopy, []string{
			"-hide_banner", "-nostdin", "-ss", "1.234", "-i", "/videos/in.mp4", "-t", "2.000",
			"-c", "copy",
			"-movflags", "+faststart", "-y", "/dataset/Training/jump/out.mp4",
		}},
		{StrategyX264, []string{
			"-hide_banner", "-nostdin", "-ss", "1.234", "-i", "/videos/in.mp4", "-t", "2.000",
			"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
			"-c:v", "libx264", "-preset", "veryfast", "-crf", "20", "-c:a", "aac",
			"-movflags", "+faststart", "-y", "/dataset/Training/jump/out.mp4",
		}},
		{StrategyVideoToolbox, []string{
			"-hide_banner", "-nostdin", "-ss", "1.234", "-i", "/videos/in.mp4", "-t", "2.000",
			"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
			"-c:v", "h264_videotoolbox", "-b:v", "2M", "-c:a", "aac",
			"-movflags", "+faststart", "-y", "/dataset/Training/jump/out.mp4",
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			got := TrimArgs(tt.strategy, seg)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("TrimArgs(%s) =\n  %v\nwant\n  %v", tt.strategy, got, tt.want)
			}
		})
	}
}

func TestFmtSeconds(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0.000"},
		{500 * time.Millisecond, "0.500"},
		{90 * time.Second, "90.000"},
		{1001 * time.Millisecond, "1.001"},
	}
	for _, tt := range tests {
		if got := fmtSeconds(tt.in); got != tt.want {
			t.Errorf("fmtSeconds(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCandidates_OrderAndDedup(t *testing.T) {
	got := Candidates("/usr/local/bin/ffmpeg", "/home/u/DatasetCutter/bin")
	if got[0] != "/usr/local/bin/ffmpeg" {
		t.Errorf("first candidate = %q, want override", got[0])
	}
	if !strings.HasPrefix(got[1], "/home/u/DatasetCutter/bin") {
		t.Errorf("second candidate = %q, want user bin", got[1])
	}
	seen := map[string]bool{}
	for _, c := range got {
		if seen[c] {
			t.Errorf("duplicate candidate %q in %v", c, got)
		}
		seen[c] = true
	}
}

func TestResolve_PrefersUserBin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bit semantics differ on windows")
	}
	binDir := t.TempDir()
	bin := filepath.Join(binDir, "ffmpeg")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", "/nonexistent")

	got, err := Resolve("", binDir)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got != bin {
		t.Errorf("Resolve() = %q, want %q", got, bin)
	}
	if !strings.HasPrefix(os.Getenv("PATH"), binDir) {
		t.Errorf("PATH = %q, want %q prepended", os.Getenv("PATH"), binDir)
	}
}

func TestResolve_SkipsNonExecutable(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bit semantics differ on windows")
	}
	dir := t.TempDir()
	plain := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(plain, []byte("not a program"), 0o644); err != nil {
		t.Fatal(err)
	}
	if isExecutable(plain) {
		t.Errorf("isExecutable(%q) = true for 0644 file", plain)
	}
	if isExecutable(dir) {
		t.Errorf("isExecutable(%q) = true for a directory", dir)
	}
}

func TestProbePath_Sibling(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("exec bit semantics differ on windows")
	}
	dir := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffprobe"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("#!/bin/sh\n"), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	want := filepath.Join(dir, "ffprobe")
	if got := ProbePath(filepath.Join(dir, "ffmpeg")); got != want {
		t.Errorf("ProbePath() = %q, want %q", got, want)
	}
}
