package api

import (
	"github.com/datasetcutter/datasetcutter/internal/dataset"
)

type OKResponse struct {
	OK bool `json:"ok"`
}

type LabelsResponse struct {
	Labels []string `json:"labels"`
}

type VideosResponse struct {
	Videos []string `json:"videos"`
}

type UploadResponse struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type ClipResponse struct {
	OK       bool   `json:"ok"`
	Path     string `json:"path"`
	ExportID string `json:"export_id"`
	Label    string `json:"label"`
	StartMs  int64  `json:"start_ms"`
	EndMs    int64  `json:"end_ms"`
	Encoder  string `json:"encoder"`
}

type UndoResponse struct {
	OK        bool   `json:"ok"`
	Path      string `json:"path,omitempty"`
	TrashPath string `json:"trash_path,omitempty"`
	Missing   bool   `json:"missing,omitempty"`
}

type HistoryEntryResponse struct {
	ExportID      string `json:"export_id"`
	VideoFilename string `json:"video_filename"`
	Label         string `json:"label"`
	Path          string `json:"path"`
	StartMs       int64  `json:"start_ms"`
	EndMs         int64  `json:"end_ms"`
	CreatedAt     string `json:"created_at"`
}

type HistoryResponse struct {
	Entries []HistoryEntryResponse `json:"entries"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func ClipToResponse(e *dataset.Export) ClipResponse {
	return ClipResponse{
		OK:       true,
		Path:     e.Path,
		ExportID: e.ID,
		Label:    e.Label,
		StartMs:  e.StartMs,
		EndMs:    e.EndMs,
		Encoder:  e.EncoderAttempt,
	}
}

func HistoryToResponse(entries []*dataset.UndoEntry) HistoryResponse {
	resp := HistoryResponse{Entries: make([]HistoryEntryResponse, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, HistoryEntryResponse{
			ExportID:      e.ID,
			VideoFilename: e.VideoFilename,
			Label:         e.Label,
			Path:          e.Path,
			StartMs:       e.StartMs,
			EndMs:         e.EndMs,
			CreatedAt:     e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}
	return resp
}
