package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/datasetcutter/datasetcutter/internal/dataset"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/playback"
	"github.com/datasetcutter/datasetcutter/internal/settings"
)

type fakeDataset struct {
	exportErr error
	undoErr   error
	lastReq   dataset.ClipRequest
	threshold int
	history   []*dataset.UndoEntry
	labels    []string
}

func (f *fakeDataset) ExportClip(ctx context.Context, req dataset.ClipRequest) (*dataset.Export, error) {
	f.lastReq = req
	if f.exportErr != nil {
		return nil, f.exportErr
	}
	return &dataset.Export{
		ID: "exp-1", Label: dataset.SanitizeLabel(req.Label), Path: "/ds/Training/jump/a.mp4",
		StartMs: 1000, EndMs: 3000, EncoderAttempt: "copy",
	}, nil
}

func (f *fakeDataset) Undo(ctx context.Context) (*dataset.UndoResult, error) {
	if f.undoErr != nil {
		return nil, f.undoErr
	}
	return &dataset.UndoResult{Export: &dataset.Export{Path: "/ds/Training/jump/a.mp4"}, TrashPath: "/trash/1_a.mp4"}, nil
}

func (f *fakeDataset) History(ctx context.Context, n int) ([]*dataset.UndoEntry, error) {
	if n > 0 && n < len(f.history) {
		return f.history[:n], nil
	}
	return f.history, nil
}

func (f *fakeDataset) Labels(ctx context.Context) ([]string, error) {
	return f.labels, nil
}

func (f *fakeDataset) LabelStats(ctx context.Context, threshold int) (*dataset.Report, error) {
	f.threshold = threshold
	return &dataset.Report{Threshold: threshold, Counts: []dataset.LabelCount{}, Under: []dataset.Deficit{}}, nil
}

type testEnv struct {
	router   *chi.Mux
	dataset  *fakeDataset
	library  *library.Library
	settings *settings.Store
	quit     chan struct{}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	tmp := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	lib, err := library.New(filepath.Join(tmp, "videos"), logger)
	if err != nil {
		t.Fatal(err)
	}
	store, err := settings.Open(filepath.Join(tmp, "settings.toml"), filepath.Join(tmp, "dataset"))
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		dataset:  &fakeDataset{labels: []string{"walk", "jump"}},
		library:  lib,
		settings: store,
		quit:     make(chan struct{}, 1),
	}
	env.router = NewRouter(ServerConfig{
		Dataset:        env.dataset,
		Library:        lib,
		Settings:       store,
		Videos:         playback.NewServer(lib, logger),
		LabelThreshold: 50,
		OnQuit:         func() { env.quit <- struct{}{} },
		Logger:         logger,
	})
	return env
}

// localRequest builds a request as the browser on this machine sends it.
func localRequest(method, target string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = "127.0.0.1:51234"
	req.Host = "127.0.0.1:8000"
	return req
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return body
}

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
