package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/mobiodiv/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	place      TEXT NOT NULL,
	buffer_km  REAL NOT NULL DEFAULT 0,
	status     TEXT NOT NULL DEFAULT 'running',
	bbox       TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	artifacts   TEXT NOT NULL DEFAULT '[]',
	count       INTEGER NOT NULL DEFAULT 0,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms INTEGER NOT NULL DEFAULT 0,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_place ON runs(place);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, place string, bufferKM float64) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, place, buffer_km, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, place, bufferKM, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Place:     place,
		BufferKM:  bufferKM,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, bbox *model.BBox) error {
	bboxJSON, err := marshalBBox(bbox)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, bbox = ?, updated_at = ? WHERE id = ?`,
		string(status), bboxJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, place, buffer_km, status, bbox, created_at, updated_at FROM runs WHERE id = ?`,
		runID,
	)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, stage, status, artifacts, count, error, duration_ms, created_at
		 FROM run_stages WHERE run_id = ? ORDER BY created_at, rowid`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list stages")
	}
	defer rows.Close()

	for rows.Next() {
		st, err := scanStage(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan stage")
		}
		r.Stages = append(r.Stages, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: list stages iterate")
	}
	return r, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, place, buffer_km, status, bbox, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Place != "" {
		query += ` AND place = ?`
		args = append(args, filter.Place)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) RecordStage(ctx context.Context, runID string, rec model.StageRecord) (*model.StageRecord, error) {
	artifactsJSON, err := marshalArtifacts(rec.Artifacts)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `UPDATE runs SET updated_at = ? WHERE id = ?`, now, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: touch run %s", runID)
	}
	if err := checkRowsAffected(res, "run", runID); err != nil {
		return nil, err
	}

	rec.ID = uuid.New().String()
	rec.RunID = runID
	rec.CreatedAt = now
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, stage, status, artifacts, count, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, runID, string(rec.Stage), string(rec.Status), artifactsJSON, rec.Count, rec.Error, rec.DurationMs, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert stage for run %s", runID)
	}
	return &rec, nil
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*model.Run, error) {
	var (
		r      model.Run
		status string
		bbox   sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Place, &r.BufferKM, &status, &bbox, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if bbox.Valid && bbox.String != "" {
		r.BBox = &model.BBox{}
		if err := json.Unmarshal([]byte(bbox.String), r.BBox); err != nil {
			return nil, eris.Wrap(err, "unmarshal bbox")
		}
	}
	return &r, nil
}

func scanStage(row scannable) (*model.StageRecord, error) {
	var (
		st            model.StageRecord
		stage, status string
		artifactsJSON string
	)
	err := row.Scan(&st.ID, &st.RunID, &stage, &status, &artifactsJSON, &st.Count, &st.Error, &st.DurationMs, &st.CreatedAt)
	if err != nil {
		return nil, err
	}
	st.Stage = model.Stage(stage)
	st.Status = model.StageStatus(status)
	if err := json.Unmarshal([]byte(artifactsJSON), &st.Artifacts); err != nil {
		return nil, eris.Wrap(err, "unmarshal artifacts")
	}
	return &st, nil
}

func marshalBBox(b *model.BBox) (any, error) {
	if b == nil {
		return nil, nil
	}
	data, err := json.Marshal(b)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal bbox")
	}
	return string(data), nil
}

func marshalArtifacts(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return "", eris.Wrap(err, "store: marshal artifacts")
	}
	return string(data), nil
}
