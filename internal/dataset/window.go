package dataset

import (
	"math"
	"time"

	"github.com/datasetcutter/datasetcutter/internal/settings"
)

// Window is a clip interval in seconds.
type Window struct {
	Start float64
	End   float64
}

func (w Window) Duration() float64 {
	return w.End - w.Start
}

func (w Window) StartMs() int64 { return int64(w.Start * 1000) }
func (w Window) EndMs() int64   { return int64(w.End * 1000) }

// Offsets converts the window to the durations ffmpeg takes.
func (w Window) Offsets() (start, length time.Duration) {
	start = time.Duration(math.Round(w.Start * float64(time.Second)))
	length = time.Duration(math.Round(w.Duration() * float64(time.Second)))
	return start, length
}

// ComputeWindow places a clip around the playhead. Range mode needs both
// marks with out > in and otherwise behaves like backward mode.
func ComputeWindow(mode string, duration, current float64, in, out *float64) (Window, error) {
	var w Window
	switch {
	case mode == settings.ModeRange && in != nil && out != nil && *out > *in:
		w = Window{Start: math.Max(0, *in), End: *out}
	case mode == settings.ModeCentered:
		w.Start = math.Max(0, current-duration/2)
		w.End = w.Start + duration
	default:
		w = Window{Start: math.Max(0, current-duration), End: current}
	}
	if w.Duration() <= 0 {
		return w, ErrInvalidSegment
	}
	return w, nil
}
