package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/legislation-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. One database file
// holds one session.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path, creating parent
// directories, and configures WAL mode with full synchronous commits so a
// returned update survives a crash.
func NewSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "sqlite: create dir %s", dir)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Single writer; pragmas below apply per connection.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS documents (
	id         TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	session     TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	report      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

// Migrate creates the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the record for id, creating it with defaults when absent.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.update(ctx, id, nil)
}

// Update merges u into the record for id inside one transaction.
func (s *SQLiteStore) Update(ctx context.Context, id string, u model.DocumentUpdate) (*model.Document, error) {
	if err := u.Validate(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: update %s", id)
	}
	return s.update(ctx, id, &u)
}

// MarkDirty sets the flag of stage and every later stage.
func (s *SQLiteStore) MarkDirty(ctx context.Context, id string, stage model.Stage) (*model.Document, error) {
	return markDirty(ctx, s, id, stage)
}

func (s *SQLiteStore) update(ctx context.Context, id string, u *model.DocumentUpdate) (*model.Document, error) {
	if id == "" {
		return nil, eris.New("sqlite: empty document id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	doc, found, err := s.load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if found && u == nil {
		return doc, nil
	}
	if u != nil {
		doc.Apply(*u, s.now())
	}

	if err := s.save(ctx, tx, doc); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit %s", id)
	}
	return doc, nil
}

func (s *SQLiteStore) load(ctx context.Context, tx *sql.Tx, id string) (*model.Document, bool, error) {
	row := tx.QueryRowContext(ctx, `SELECT record FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.NewDocument(id, s.now()), false, nil
	}
	if err != nil {
		return nil, false, eris.Wrapf(err, "sqlite: load %s", id)
	}
	return doc, true, nil
}

func (s *SQLiteStore) save(ctx context.Context, tx *sql.Tx, doc *model.Document) error {
	recordJSON, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal document")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, record, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		doc.ID, string(recordJSON), doc.LastUpdatedLocal,
	)
	return eris.Wrapf(err, "sqlite: save %s", doc.ID)
}

// List returns every record ordered by id.
func (s *SQLiteStore) List(ctx context.Context) ([]model.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT record FROM documents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list documents")
	}
	defer rows.Close() //nolint:errcheck

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan document")
		}
		docs = append(docs, *d)
	}
	return docs, eris.Wrap(rows.Err(), "sqlite: list documents iterate")
}

// RecordRun persists a finished run report.
func (s *SQLiteStore) RecordRun(ctx context.Context, report *model.RunReport) error {
	if report == nil || report.ID == "" {
		return eris.New("sqlite: run report has no id")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run report")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, session, started_at, finished_at, report) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET finished_at = excluded.finished_at, report = excluded.report`,
		report.ID, report.Session, report.StartedAt.UTC(), report.FinishedAt.UTC(), string(reportJSON),
	)
	return eris.Wrapf(err, "sqlite: record run %s", report.ID)
}

// ListRuns returns run reports, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`,
		limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.RunReport
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		var r model.RunReport
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal run report")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanDocument(row scannable) (*model.Document, error) {
	var raw string
	if err := row.Scan(&raw); err != nil {
		return nil, err
	}
	var d model.Document
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		return nil, eris.Wrap(err, "unmarshal document")
	}
	return &d, nil
}
