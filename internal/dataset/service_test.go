package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/datasetcutter/datasetcutter/internal/db"
	"github.com/datasetcutter/datasetcutter/internal/encoder"
	"github.com/datasetcutter/datasetcutter/internal/library"
	"github.com/datasetcutter/datasetcutter/internal/settings"
)

type fakeEncoder struct {
	mu       sync.Mutex
	segments []encoder.Segment
	fail     bool
	empty    bool
}

func (f *fakeEncoder) Trim(ctx context.Context, seg encoder.Segment) (*encoder.TrimResult, error) {
	f.mu.Lock()
	f.segments = append(f.segments, seg)
	f.mu.Unlock()

	if f.fail {
		return &encoder.TrimResult{Attempts: []encoder.Attempt{{Strategy: encoder.StrategyCopy, ExitCode: 1}}}, encoder.ErrAllAttemptsFailed
	}
	body := []byte("clip-bytes")
	if f.empty {
		body = nil
	}
	if err := os.WriteFile(seg.Output, body, 0o644); err != nil {
		return nil, err
	}
	return &encoder.TrimResult{Attempts: []encoder.Attempt{{Strategy: encoder.StrategyCopy}}}, nil
}

type testEnv struct {
	svc      *Service
	repo     Repository
	enc      *fakeEncoder
	settings *settings.Store
	trash    string
}

func setupService(t *testing.T, depth int) *testEnv {
	t.Helper()
	tmp := t.TempDir()

	database, err := db.New(filepath.Join(tmp, "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	lib, err := library.New(filepath.Join(tmp, "videos"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(lib.Dir(), "match.mp4"), []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := settings.Open("", filepath.Join(tmp, "dataset"))
	if err != nil {
		t.Fatal(err)
	}

	clock := time.UnixMilli(1700000000000)
	var clockMu sync.Mutex
	now := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Millisecond)
		return clock
	}

	repo := NewRepository(database.Conn())
	enc := &fakeEncoder{}
	trash := filepath.Join(tmp, "trash")
	svc := NewService(ServiceConfig{
		Repo:      repo,
		Videos:    lib,
		Settings:  store,
		Encoder:   enc,
		TrashDir:  trash,
		UndoDepth: depth,
		Now:       now,
	})
	return &testEnv{svc: svc, repo: repo, enc: enc, settings: store, trash: trash}
}

func TestService_ExportClip(t *testing.T) {
	env := setupService(t, 20)
	ctx := context.Background()

	export, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 12.5, Label: "high five"})
	if err != nil {
		t.Fatalf("ExportClip() error = %v", err)
	}

	if export.Label != "high_five" {
		t.Errorf("Label = %q, want high_five", export.Label)
	}
	wantDir := filepath.Join(env.settings.Get().TrainingDir(), "high_five")
	if filepath.Dir(export.Path) != wantDir {
		t.Errorf("clip dir = %s, want %s", filepath.Dir(export.Path), wantDir)
	}
	if ok, _ := regexp.MatchString(`^match_10500_12500_\d+\.mp4$`, filepath.Base(export.Path)); !ok {
		t.Errorf("clip name = %s, want match_10500_12500_<ts>.mp4", filepath.Base(export.Path))
	}
	if export.Size == 0 || export.EncoderAttempt != string(encoder.StrategyCopy) {
		t.Errorf("export = %+v", export)
	}

	seg := env.enc.segments[0]
	if seg.Start != 10500*time.Millisecond || seg.Duration != 2*time.Second {
		t.Errorf("segment = %+v", seg)
	}

	stored, err := env.repo.GetExport(ctx, export.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetExport() = %v, %v", stored, err)
	}
	if stored.Path != export.Path || stored.UndoneAt != nil {
		t.Errorf("stored export = %+v", stored)
	}

	history, err := env.svc.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].ID != export.ID {
		t.Errorf("History() = %v", history)
	}
}

func TestService_ExportClip_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     ClipRequest
		fail    bool
		empty   bool
		wantErr error
	}{
		{"missing video", ClipRequest{VideoFilename: "nope.mp4", CurrentTime: 5, Label: "a"}, false, false, ErrVideoNotFound},
		{"traversal", ClipRequest{VideoFilename: "../test.db", CurrentTime: 5, Label: "a"}, false, false, ErrVideoNotFound},
		{"empty window", ClipRequest{VideoFilename: "match.mp4", CurrentTime: 0, Label: "a"}, false, false, ErrInvalidSegment},
		{"encoder failure", ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: "a"}, true, false, ErrEncodeFailed},
		{"empty output", ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: "a"}, false, true, ErrEmptyOutput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupService(t, 20)
			env.enc.fail = tt.fail
			env.enc.empty = tt.empty

			_, err := env.svc.ExportClip(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ExportClip() error = %v, want %v", err, tt.wantErr)
			}
			history, _ := env.svc.History(context.Background(), 0)
			if len(history) != 0 {
				t.Errorf("failed export left %d undo entries", len(history))
			}
		})
	}
}

func TestService_ExportClip_RangeMode(t *testing.T) {
	env := setupService(t, 20)
	if _, err := env.settings.Update(settings.Patch{ClipMode: settings.ModeRange}); err != nil {
		t.Fatal(err)
	}

	in, out := 3.0, 7.25
	export, err := env.svc.ExportClip(context.Background(), ClipRequest{
		VideoFilename: "match.mp4", CurrentTime: 40, Label: "run", InMark: &in, OutMark: &out,
	})
	if err != nil {
		t.Fatalf("ExportClip() error = %v", err)
	}
	if export.StartMs != 3000 || export.EndMs != 7250 || export.Mode != settings.ModeRange {
		t.Errorf("export = %+v", export)
	}
}

func TestService_Undo(t *testing.T) {
	env := setupService(t, 20)
	ctx := context.Background()

	export, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: "jump"})
	if err != nil {
		t.Fatal(err)
	}

	res, err := env.svc.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if res.Missing || res.Export.ID != export.ID {
		t.Errorf("Undo() = %+v", res)
	}
	if _, err := os.Stat(export.Path); !os.IsNotExist(err) {
		t.Error("clip still in dataset after undo")
	}
	if data, err := os.ReadFile(res.TrashPath); err != nil || string(data) != "clip-bytes" {
		t.Errorf("trash copy = %q, %v", data, err)
	}
	if filepath.Dir(res.TrashPath) != env.trash {
		t.Errorf("trash path = %s, want inside %s", res.TrashPath, env.trash)
	}

	stored, _ := env.repo.GetExport(ctx, export.ID)
	if stored.UndoneAt == nil {
		t.Error("export not marked undone")
	}

	if _, err := env.svc.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("second Undo() error = %v, want ErrNothingToUndo", err)
	}
}

func TestService_Undo_MissingFile(t *testing.T) {
	env := setupService(t, 20)
	ctx := context.Background()

	export, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: "jump"})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(export.Path); err != nil {
		t.Fatal(err)
	}

	res, err := env.svc.Undo(ctx)
	if err != nil {
		t.Fatalf("Undo() error = %v", err)
	}
	if !res.Missing || res.TrashPath != "" {
		t.Errorf("Undo() = %+v, want missing", res)
	}
	if history, _ := env.svc.History(ctx, 0); len(history) != 0 {
		t.Errorf("entry not popped, history = %v", history)
	}
}

func TestService_UndoDepth(t *testing.T) {
	env := setupService(t, 2)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		e, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: float64(5 + i), Label: "walk"})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, e.ID)
	}

	history, err := env.svc.History(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 2 {
		t.Fatalf("History() len = %d, want 2", len(history))
	}
	if history[0].ID != ids[3] || history[1].ID != ids[2] {
		t.Errorf("History() order = [%s %s], want newest first", history[0].ID, history[1].ID)
	}

	for i := 0; i < 2; i++ {
		if _, err := env.svc.Undo(ctx); err != nil {
			t.Fatalf("Undo() #%d error = %v", i, err)
		}
	}
	if _, err := env.svc.Undo(ctx); !errors.Is(err, ErrNothingToUndo) {
		t.Errorf("Undo() past depth error = %v, want ErrNothingToUndo", err)
	}

	// Clips that fell off the stack stay in the dataset.
	oldest, _ := env.repo.GetExport(ctx, ids[0])
	if _, err := os.Stat(oldest.Path); err != nil {
		t.Errorf("trimmed export was removed from disk: %v", err)
	}
}

func TestService_Labels(t *testing.T) {
	env := setupService(t, 20)
	ctx := context.Background()

	for _, l := range []string{"walk", "jump", "walk", "sit down"} {
		if _, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: l}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := env.svc.Labels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"walk", "jump", "sit_down"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("Labels() = %v, want %v", got, want)
	}

	labels, _ := env.repo.ListLabels(ctx)
	if labels[0].UseCount != 2 {
		t.Errorf("walk use_count = %d, want 2", labels[0].UseCount)
	}
}

func TestService_LabelStats(t *testing.T) {
	env := setupService(t, 20)
	ctx := context.Background()

	for _, l := range []string{"walk", "walk", "jump"} {
		if _, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: l}); err != nil {
			t.Fatal(err)
		}
	}

	report, err := env.svc.LabelStats(ctx, 2)
	if err != nil {
		t.Fatalf("LabelStats() error = %v", err)
	}
	if report.Summary.Classes != 2 || report.Summary.Total != 3 {
		t.Errorf("summary = %+v", report.Summary)
	}
	if len(report.Under) != 1 || report.Under[0].Label != "jump" || report.TotalNeeded != 1 {
		t.Errorf("under = %v, needed %d", report.Under, report.TotalNeeded)
	}
}

func TestService_LogsMaskHomeDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("home dir comes from USERPROFILE on windows")
	}
	env := setupService(t, 20)
	home := filepath.Dir(env.trash)
	t.Setenv("HOME", home)

	var buf bytes.Buffer
	env.svc.logger = slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := context.Background()
	export, err := env.svc.ExportClip(ctx, ClipRequest{VideoFilename: "match.mp4", CurrentTime: 5, Label: "jump"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.Undo(ctx); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if strings.Contains(out, home) {
		t.Errorf("log contains home dir %q:\n%s", home, out)
	}
	rel, _ := filepath.Rel(home, export.Path)
	if !strings.Contains(out, `"path":"~/`+filepath.ToSlash(rel)+`"`) {
		t.Errorf("log missing masked clip path:\n%s", out)
	}
}
