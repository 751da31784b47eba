package dataset

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	RecordLabel(ctx context.Context, name string, at time.Time) error
	ListLabels(ctx context.Context) ([]*Label, error)

	CreateExport(ctx context.Context, e *Export) error
	GetExport(ctx context.Context, id string) (*Export, error)

	PushUndo(ctx context.Context, exportID string, depth int) error
	PeekUndo(ctx context.Context) (*UndoEntry, error)
	PopUndo(ctx context.Context, seq int64, exportID string, at time.Time) error
	ListUndo(ctx context.Context, limit int) ([]*UndoEntry, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) RecordLabel(ctx context.Context, name string, at time.Time) error {
	ts := at.UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO labels (name, use_count, first_used_at, last_used_at)
		VALUES (?, 1, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			use_count = use_count + 1,
			last_used_at = excluded.last_used_at
	`, name, ts, ts)
	return err
}

func (r *SQLiteRepository) ListLabels(ctx context.Context) ([]*Label, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT name, use_count, first_used_at, last_used_at
		FROM labels ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		var l Label
		var first, last string
		if err := rows.Scan(&l.Name, &l.UseCount, &first, &last); err != nil {
			return nil, err
		}
		l.FirstUsedAt, _ = time.Parse(time.RFC3339Nano, first)
		l.LastUsedAt, _ = time.Parse(time.RFC3339Nano, last)
		labels = append(labels, &l)
	}
	return labels, rows.Err()
}

func (r *SQLiteRepository) CreateExport(ctx context.Context, e *Export) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO exports (id, video_filename, label, start_ms, end_ms, mode, path, size, encoder_attempt, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.VideoFilename, e.Label, e.StartMs, e.EndMs, e.Mode, e.Path, e.Size, e.EncoderAttempt, e.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

const exportColumns = `e.id, e.video_filename, e.label, e.start_ms, e.end_ms, e.mode, e.path, e.size, e.encoder_attempt, e.created_at, e.undone_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanExport(row scanner, extra ...any) (*Export, error) {
	var e Export
	var createdAt string
	var undoneAt sql.NullString

	dest := append([]any{&e.ID, &e.VideoFilename, &e.Label, &e.StartMs, &e.EndMs, &e.Mode, &e.Path, &e.Size, &e.EncoderAttempt, &createdAt, &undoneAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	if undoneAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, undoneAt.String)
		e.UndoneAt = &t
	}
	return &e, nil
}

func (r *SQLiteRepository) GetExport(ctx context.Context, id string) (*Export, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+exportColumns+` FROM exports e WHERE e.id = ?`, id)
	e, err := scanExport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// PushUndo adds exportID on top of the stack and drops the oldest entries
// beyond depth.
func (r *SQLiteRepository) PushUndo(ctx context.Context, exportID string, depth int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO undo_stack (export_id) VALUES (?)", exportID); err != nil {
		return err
	}
	if depth > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM undo_stack WHERE seq NOT IN (
				SELECT seq FROM undo_stack ORDER BY seq DESC LIMIT ?
			)
		`, depth); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRepository) PeekUndo(ctx context.Context) (*UndoEntry, error) {
	entries, err := r.ListUndo(ctx, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// PopUndo removes stack entry seq and marks its export undone in one
// transaction.
func (r *SQLiteRepository) PopUndo(ctx context.Context, seq int64, exportID string, at time.Time) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM undo_stack WHERE seq = ?", seq); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "UPDATE exports SET undone_at = ? WHERE id = ?", at.UTC().Format(time.RFC3339Nano), exportID); err != nil {
		return err
	}
	return tx.Commit()
}

// ListUndo returns the stack newest first.
func (r *SQLiteRepository) ListUndo(ctx context.Context, limit int) ([]*UndoEntry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+exportColumns+`, u.seq
		FROM undo_stack u JOIN exports e ON e.id = u.export_id
		ORDER BY u.seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*UndoEntry
	for rows.Next() {
		var seq int64
		e, err := scanExport(rows, &seq)
		if err != nil {
			return nil, err
		}
		entries = append(entries, &UndoEntry{Seq: seq, Export: e})
	}
	return entries, rows.Err()
}
