package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/legislation-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock's pool
// satisfies it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool. Records of many sessions
// share one table, keyed by (session, id).
type PostgresStore struct {
	pool    Pool
	session string
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore for one session with a connection pool.
func NewPostgres(ctx context.Context, connString, session string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, session: session, closeFn: pool.Close, now: time.Now}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS documents (
	session    TEXT NOT NULL,
	id         TEXT NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (session, id)
);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	session     TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	report      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_session_started ON runs(session, started_at DESC);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Get returns the record for id, creating it with defaults when absent.
func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.update(ctx, id, nil)
}

// Update merges u into the record for id under a row lock.
func (s *PostgresStore) Update(ctx context.Context, id string, u model.DocumentUpdate) (*model.Document, error) {
	if err := u.Validate(); err != nil {
		return nil, eris.Wrapf(err, "postgres: update %s", id)
	}
	return s.update(ctx, id, &u)
}

// MarkDirty sets the flag of stage and every later stage.
func (s *PostgresStore) MarkDirty(ctx context.Context, id string, stage model.Stage) (*model.Document, error) {
	return markDirty(ctx, s, id, stage)
}

func (s *PostgresStore) update(ctx context.Context, id string, u *model.DocumentUpdate) (*model.Document, error) {
	if id == "" {
		return nil, eris.New("postgres: empty document id")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var raw []byte
	found := true
	err = tx.QueryRow(ctx,
		`SELECT record FROM documents WHERE session = $1 AND id = $2 FOR UPDATE`,
		s.session, id,
	).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		found = false
	case err != nil:
		return nil, eris.Wrapf(err, "postgres: load %s", id)
	}

	doc := model.NewDocument(id, s.now())
	if found {
		doc = &model.Document{}
		if err := json.Unmarshal(raw, doc); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal %s", id)
		}
		if u == nil {
			return doc, nil
		}
	}
	if u != nil {
		doc.Apply(*u, s.now())
	}

	recordJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal document")
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO documents (session, id, record, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (session, id) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		s.session, id, recordJSON, doc.LastUpdatedLocal,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save %s", id)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit %s", id)
	}
	return doc, nil
}

// List returns every record of the session ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]model.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM documents WHERE session = $1 ORDER BY id`, s.session)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list documents")
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan document")
		}
		var d model.Document
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal document")
		}
		docs = append(docs, d)
	}
	return docs, eris.Wrap(rows.Err(), "postgres: list documents iterate")
}

// RecordRun persists a finished run report.
func (s *PostgresStore) RecordRun(ctx context.Context, report *model.RunReport) error {
	if report == nil || report.ID == "" {
		return eris.New("postgres: run report has no id")
	}
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run report")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, session, started_at, finished_at, report) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET finished_at = EXCLUDED.finished_at, report = EXCLUDED.report`,
		report.ID, s.session, report.StartedAt.UTC(), report.FinishedAt.UTC(), reportJSON,
	)
	return eris.Wrapf(err, "postgres: record run %s", report.ID)
}

// ListRuns returns the session's run reports, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.RunReport, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM runs WHERE session = $1 ORDER BY started_at DESC LIMIT $2 OFFSET $3`,
		s.session, limit, filter.Offset,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.RunReport
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		var r model.RunReport
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal run report")
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
