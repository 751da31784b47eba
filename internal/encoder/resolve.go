package encoder

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// wellKnownLocations are checked because apps started from a GUI launcher
// often inherit a PATH without the package manager's bin directory.
var wellKnownLocations = []string{
	"/usr/local/bin/ffmpeg",
	"/opt/homebrew/bin/ffmpeg",
}

// Candidates lists ffmpeg locations in preference order, deduplicated.
func Candidates(override, userBinDir string) []string {
	var list []string
	if override != "" {
		list = append(list, override)
	}
	if userBinDir != "" {
		list = append(list, filepath.Join(userBinDir, binaryName("ffmpeg")))
	}
	list = append(list, wellKnownLocations...)
	if p, err := exec.LookPath("ffmpeg"); err == nil {
		list = append(list, p)
	}

	seen := make(map[string]bool, len(list))
	out := list[:0]
	for _, p := range list {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

// Resolve returns the first executable ffmpeg among the candidates and
// prepends its directory to PATH so child processes find its siblings.
func Resolve(override, userBinDir string) (string, error) {
	for _, p := range Candidates(override, userBinDir) {
		if !isExecutable(p) {
			continue
		}
		prependPath(filepath.Dir(p))
		return p, nil
	}
	return "", fmt.Errorf("ffmpeg not found (set FFMPEG_BINARY or install ffmpeg)")
}

// ProbePath finds the ffprobe that ships next to ffmpeg, falling back
// to PATH and finally the bare name.
func ProbePath(ffmpegPath string) string {
	if ffmpegPath != "" {
		dir := filepath.Dir(ffmpegPath)
		base := strings.Replace(filepath.Base(ffmpegPath), "ffmpeg", "ffprobe", 1)
		if sibling := filepath.Join(dir, base); sibling != ffmpegPath && isExecutable(sibling) {
			return sibling
		}
	}
	if p, err := exec.LookPath("ffprobe"); err == nil {
		return p
	}
	return "ffprobe"
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0111 != 0
}

func prependPath(dir string) {
	current := os.Getenv("PATH")
	for _, p := range filepath.SplitList(current) {
		if p == dir {
			return
		}
	}
	if current == "" {
		os.Setenv("PATH", dir)
		return
	}
	os.Setenv("PATH", dir+string(os.PathListSeparator)+current)
}

func binaryName(name string) string {
	if runtime.GOOS == "windows" {
		return name + ".exe"
	}
	return name
}
