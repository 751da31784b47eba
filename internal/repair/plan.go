package repair

import (
	"strconv"
	"strings"

	"github.com/datasetcutter/datasetcutter/internal/encoder"
)

const evenScale = "scale=trunc(iw/2)*2:trunc(ih/2)*2"

// Plan is what a clip needs to become a compliant H.264/AAC MP4.
type Plan struct {
	ReencodeVideo bool
	ReencodeAudio bool
	HasAudio      bool
}

func (p Plan) Reencode() bool {
	return p.ReencodeVideo || p.ReencodeAudio
}

func (p Plan) Action() string {
	if p.Reencode() {
		return "re-encode"
	}
	return "remux"
}

// NeedsReencode inspects probe output. A clip without a readable video
// stream always gets re-encoded; missing audio is left alone.
func NeedsReencode(probe *encoder.ProbeResult) Plan {
	var p Plan
	if probe == nil {
		return Plan{ReencodeVideo: true}
	}

	if v := probe.VideoStream(); v != nil {
		p.ReencodeVideo = !strings.EqualFold(v.CodecName, "h264") ||
			!strings.EqualFold(v.PixFmt, "yuv420p") ||
			v.Width%2 != 0 || v.Height%2 != 0
	} else {
		p.ReencodeVideo = true
	}

	if a := probe.AudioStream(); a != nil {
		p.HasAudio = true
		p.ReencodeAudio = !strings.EqualFold(a.CodecName, "aac")
	}
	return p
}

// RemuxArgs rewrites the container with the moov atom up front.
func RemuxArgs(in, out string, hasAudio bool) []string {
	args := []string{"-hide_banner", "-nostdin", "-i", in, "-map", "0:v:0"}
	if hasAudio {
		args = append(args, "-map", "0:a:0")
	}
	return append(args, "-c", "copy", "-movflags", "+faststart", "-y", out)
}

// ReencodeArgs builds the libx264 command, or the VideoToolbox one when
// hardware is set. cfr <= 0 keeps the source frame rate.
func ReencodeArgs(in, out string, p Plan, cfr int, hardware bool) []string {
	args := []string{"-hide_banner", "-nostdin", "-i", in, "-vf", evenScale}
	if hardware {
		args = append(args, "-c:v", "h264_videotoolbox", "-b:v", "2M", "-pix_fmt", "yuv420p")
	} else {
		args = append(args,
			"-c:v", "libx264", "-preset", "veryfast", "-crf", "20",
			"-profile:v", "main", "-level", "4.1", "-pix_fmt", "yuv420p",
		)
	}
	if cfr > 0 {
		args = append(args, "-r", strconv.Itoa(cfr))
	}
	if p.ReencodeAudio {
		args = append(args, "-c:a", "aac", "-b:a", "128k")
	} else {
		args = append(args, "-c:a", "copy")
	}
	return append(args, "-movflags", "+faststart", "-y", out)
}
