package dataset

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrVideoNotFound  = errors.New("source video not found")
	ErrInvalidSegment = errors.New("invalid segment duration")
	ErrEncodeFailed   = errors.New("ffmpeg failed to export clip")
	ErrEmptyOutput    = errors.New("clip export produced no file")
	ErrNothingToUndo  = errors.New("nothing to undo")
	ErrDatasetMissing = errors.New("dataset path not found")
)

// ClipRequest is one export action from the UI. Times are in seconds.
type ClipRequest struct {
	VideoFilename string   `json:"video_filename"`
	CurrentTime   float64  `json:"current_time"`
	Label         string   `json:"label"`
	InMark        *float64 `json:"in_mark,omitempty"`
	OutMark       *float64 `json:"out_mark,omitempty"`
}

type Export struct {
	ID             string     `json:"id"`
	VideoFilename  string     `json:"video_filename"`
	Label          string     `json:"label"`
	StartMs        int64      `json:"start_ms"`
	EndMs          int64      `json:"end_ms"`
	Mode           string     `json:"mode"`
	Path           string     `json:"path"`
	Size           int64      `json:"size"`
	EncoderAttempt string     `json:"encoder_attempt"`
	CreatedAt      time.Time  `json:"created_at"`
	UndoneAt       *time.Time `json:"undone_at,omitempty"`
}

// UndoEntry is an export still reachable from the undo stack.
type UndoEntry struct {
	Seq int64 `json:"seq"`
	*Export
}

type Label struct {
	Name        string    `json:"name"`
	UseCount    int       `json:"use_count"`
	FirstUsedAt time.Time `json:"first_used_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
}

// UndoResult describes what an undo did on disk.
type UndoResult struct {
	Export    *Export `json:"export"`
	TrashPath string  `json:"trash_path,omitempty"`
	// Missing is set when the clip had already been removed by hand.
	Missing bool `json:"missing"`
}

type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Deficit struct {
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Deficit int    `json:"need"`
}

type Summary struct {
	Classes int     `json:"classes"`
	Total   int     `json:"total"`
	Mean    float64 `json:"mean"`
	Min     int     `json:"min"`
	Max     int     `json:"max"`
}

// Report is the label balancing view of a Training directory.
type Report struct {
	Root        string       `json:"root"`
	Threshold   int          `json:"threshold"`
	Summary     Summary      `json:"summary"`
	Counts      []LabelCount `json:"counts"`
	Under       []Deficit    `json:"under"`
	TotalNeeded int          `json:"total_needed"`
}

func NewID() string {
	return uuid.NewString()
}
