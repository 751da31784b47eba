package encoder

import (
	"strconv"
	"time"
)

// evenDimensions rounds odd widths/heights down; libx264 with yuv420p
// rejects odd frame sizes.
const evenDimensions = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// TrimArgs builds the ffmpeg arguments (without the binary) for one strategy.
// -ss before -i seeks the input, -t bounds the output length.
func TrimArgs(strategy Strategy, seg Segment) []string {
	args := []string{
		"-hide_banner", "-nostdin",
		"-ss", fmtSeconds(seg.Start),
		"-i", seg.Input,
		"-t", fmtSeconds(seg.Duration),
	}

	switch strategy {
	case StrategyCopy:
		args = append(args, "-c", "copy")
	case StrategyX264:
		args = append(args,
			"-vf", evenDimensions,
			"-c:v", "libx264", "-preset", "veryfast", "-crf", "20",
			"-c:a", "aac",
		)
	case StrategyVideoToolbox:
		args = append(args,
			"-vf", evenDimensions,
			"-c:v", "h264_videotoolbox", "-b:v", "2M",
			"-c:a", "aac",
		)
	}

	return append(args, "-movflags", "+faststart", "-y", seg.Output)
}

// ProbeArgs builds the ffprobe arguments for a JSON stream/format dump.
func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		path,
	}
}

// DecodeCheckArgs decodes the whole file to the null muxer; any decode
// error makes ffmpeg exit non-zero.
func DecodeCheckArgs(path string) []string {
	return []string{"-v", "error", "-i", path, "-f", "null", "-"}
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}
