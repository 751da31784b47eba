package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/datasetcutter/datasetcutter/internal/dataset"
)

func clipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dataset.ClipRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if strings.TrimSpace(req.VideoFilename) == "" {
			WriteError(w, http.StatusBadRequest, "video_filename is required", "BAD_REQUEST")
			return
		}

		export, err := cfg.Dataset.ExportClip(r.Context(), req)
		if err != nil {
			status, code := clipErrorStatus(err)
			if status == http.StatusInternalServerError {
				cfg.Logger.Error("clip export failed", "video", req.VideoFilename, "error", err)
			}
			WriteError(w, status, publicMessage(err), code)
			return
		}
		WriteJSON(w, http.StatusOK, ClipToResponse(export))
	}
}

func clipErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, dataset.ErrVideoNotFound):
		return http.StatusNotFound, "VIDEO_NOT_FOUND"
	case errors.Is(err, dataset.ErrInvalidSegment):
		return http.StatusBadRequest, "INVALID_SEGMENT"
	case errors.Is(err, dataset.ErrEncodeFailed):
		return http.StatusInternalServerError, "ENCODE_FAILED"
	case errors.Is(err, dataset.ErrEmptyOutput):
		return http.StatusInternalServerError, "EMPTY_OUTPUT"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// publicMessage strips wrapped ffmpeg details; those go to the log.
func publicMessage(err error) string {
	for _, sentinel := range []error{
		dataset.ErrVideoNotFound, dataset.ErrInvalidSegment, dataset.ErrEncodeFailed, dataset.ErrEmptyOutput,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "internal server error"
}

func undoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := cfg.Dataset.Undo(r.Context())
		if errors.Is(err, dataset.ErrNothingToUndo) {
			WriteJSON(w, http.StatusOK, UndoResponse{OK: false})
			return
		}
		if err != nil {
			cfg.Logger.Error("undo failed", "error", err)
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, UndoResponse{
			OK:        true,
			Path:      res.Export.Path,
			TrashPath: res.TrashPath,
			Missing:   res.Missing,
		})
	}
}

func historyHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := intQuery(w, r, "limit", 0)
		if !ok {
			return
		}
		entries, err := cfg.Dataset.History(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, HistoryToResponse(entries))
	}
}

func statsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threshold, ok := intQuery(w, r, "threshold", cfg.LabelThreshold)
		if !ok {
			return
		}
		report, err := cfg.Dataset.LabelStats(r.Context(), threshold)
		if errors.Is(err, dataset.ErrDatasetMissing) {
			WriteError(w, http.StatusNotFound, err.Error(), "DATASET_NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, report)
	}
}

// intQuery reads a non-negative integer query parameter, writing a 400
// and returning false when it is malformed.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		WriteError(w, http.StatusBadRequest, name+" must be a non-negative integer", "BAD_REQUEST")
		return 0, false
	}
	return n, true
}
