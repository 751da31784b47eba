package api

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/settings"
	"github.com/datasetcutter/datasetcutter/internal/web"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(LocalOnlyMiddleware(cfg.Logger))

	r.Get("/", web.IndexHandler(cfg.Settings.Get))
	r.Handle("/static/*", web.StaticHandler())
	r.Get("/videos/{name}", videoHandler(cfg))
	r.Head("/videos/{name}", videoHandler(cfg))

	r.Route("/api", func(r chi.Router) {
		r.Get("/ping", pingHandler())
		r.Get("/settings", getSettingsHandler(cfg))
		r.Post("/settings", updateSettingsHandler(cfg))
		r.Get("/labels", labelsHandler(cfg))
		r.Post("/upload", uploadHandler(cfg))
		r.Get("/videos", listVideosHandler(cfg))
		r.Get("/video/{name}", videoHandler(cfg))
		r.Head("/video/{name}", videoHandler(cfg))
		r.Post("/clip", clipHandler(cfg))
		r.Post("/undo", undoHandler(cfg))
		r.Get("/history", historyHandler(cfg))
		r.Get("/stats", statsHandler(cfg))
		r.Post("/quit", quitHandler(cfg))
	})

	return r
}

func pingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func getSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, cfg.Settings.Get())
	}
}

// updateSettingsHandler takes form fields; empty fields are left unchanged.
func updateSettingsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		if ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type")); ct == "multipart/form-data" {
			err = r.ParseMultipartForm(1 << 20)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid form body", "BAD_REQUEST")
			return
		}

		patch := settings.Patch{
			DatasetRoot: r.PostFormValue("dataset_root"),
			ClipMode:    r.PostFormValue("clip_mode"),
		}
		if raw := strings.TrimSpace(r.PostFormValue("clip_duration")); raw != "" {
			d, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				WriteError(w, http.StatusBadRequest, "clip_duration must be a number", "BAD_REQUEST")
				return
			}
			patch.ClipDuration = d
		}

		updated, err := cfg.Settings.Update(patch)
		if err != nil {
			cfg.Logger.Error("failed to update settings", "error", err)
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, updated)
	}
}

func labelsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		labels, err := cfg.Dataset.Labels(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, LabelsResponse{Labels: labels})
	}
}

// uploadHandler streams the "file" part straight into the library
// without buffering the whole video.
func uploadHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes)
		}
		mr, err := r.MultipartReader()
		if err != nil {
			WriteError(w, http.StatusBadRequest, "expected multipart form", "BAD_REQUEST")
			return
		}

		for {
			part, err := mr.NextPart()
			if err != nil {
				WriteError(w, http.StatusBadRequest, "missing file field", "BAD_REQUEST")
				return
			}
			if part.FormName() != "file" {
				part.Close()
				continue
			}

			stored, err := cfg.Library.Save(r.Context(), part.FileName(), part)
			part.Close()
			switch {
			case errors.Is(err, library.ErrUnsupportedType):
				WriteError(w, http.StatusBadRequest, err.Error(), "UNSUPPORTED_TYPE")
			case errors.Is(err, library.ErrInvalidName):
				WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_NAME")
			case err != nil:
				var maxErr *http.MaxBytesError
				if errors.As(err, &maxErr) {
					WriteError(w, http.StatusRequestEntityTooLarge, "upload too large", "TOO_LARGE")
					return
				}
				cfg.Logger.Error("upload failed", "error", err)
				WriteError(w, http.StatusInternalServerError, "failed to store upload", "INTERNAL_ERROR")
			default:
				WriteJSON(w, http.StatusOK, UploadResponse{Filename: stored.Name, Size: stored.Size})
			}
			return
		}
	}
}

func listVideosHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		videos, err := cfg.Library.List()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusOK, VideosResponse{Videos: videos})
	}
}

func videoHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Videos.ServeVideo(w, r, chi.URLParam(r, "name"))
	}
}

func quitHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, OKResponse{OK: true})
		http.NewResponseController(w).Flush()
		cfg.Logger.Info("quit requested from UI")
		if cfg.OnQuit != nil {
			go cfg.OnQuit()
		}
	}
}
