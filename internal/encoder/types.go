// Package encoder runs ffmpeg and ffprobe as subprocesses for trimming,
// probing and verifying clips.
package encoder

import (
	"strconv"
	"strings"
	"time"
)

// Strategy names one way of producing a clip. Trim tries them in order.
type Strategy string

const (
	// StrategyCopy remuxes without re-encoding. Fast, but the cut snaps to
	// keyframes and fails outright on some inputs.
	StrategyCopy Strategy = "copy"
	// StrategyX264 re-encodes with libx264 and AAC.
	StrategyX264 Strategy = "libx264"
	// StrategyVideoToolbox re-encodes with the macOS hardware encoder for
	// builds of ffmpeg that lack libx264.
	StrategyVideoToolbox Strategy = "videotoolbox"
)

// DefaultStrategies is the trim fallback chain.
var DefaultStrategies = []Strategy{StrategyCopy, StrategyX264, StrategyVideoToolbox}

// Segment describes one clip to cut out of an input video.
type Segment struct {
	Input    string
	Output   string
	Start    time.Duration
	Duration time.Duration
}

// Attempt is the structured outcome of one ffmpeg invocation.
type Attempt struct {
	Strategy   Strategy      `json:"strategy,omitempty"`
	Args       []string      `json:"args"`
	ExitCode   int           `json:"exit_code"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (a Attempt) IsSuccess() bool { return a.ExitCode == 0 }

// CommandLine renders the attempt for logs.
func (a Attempt) CommandLine() string {
	return strings.Join(a.Args, " ")
}

// TrimResult lists every attempt made for a segment.
type TrimResult struct {
	Attempts []Attempt `json:"attempts"`
}

// Succeeded returns the winning attempt, if any.
func (r *TrimResult) Succeeded() (Attempt, bool) {
	if r == nil {
		return Attempt{}, false
	}
	for _, a := range r.Attempts {
		if a.IsSuccess() {
			return a, true
		}
	}
	return Attempt{}, false
}

// ProbeResult is the subset of `ffprobe -print_format json` output we use.
type ProbeResult struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

type Stream struct {
	Index      int    `json:"index"`
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	PixFmt     string `json:"pix_fmt,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
	RFrameRate string `json:"r_frame_rate,omitempty"`
}

type Format struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
}

// VideoStream returns the first video stream or nil.
func (p *ProbeResult) VideoStream() *Stream {
	return p.firstOfType("video")
}

// AudioStream returns the first audio stream or nil.
func (p *ProbeResult) AudioStream() *Stream {
	return p.firstOfType("audio")
}

func (p *ProbeResult) firstOfType(kind string) *Stream {
	if p == nil {
		return nil
	}
	for i := range p.Streams {
		if p.Streams[i].CodecType == kind {
			return &p.Streams[i]
		}
	}
	return nil
}

// DurationSeconds parses the container duration; 0 when unknown.
func (p *ProbeResult) DurationSeconds() float64 {
	if p == nil {
		return 0
	}
	d, err := strconv.ParseFloat(p.Format.Duration, 64)
	if err != nil {
		return 0
	}
	return d
}
