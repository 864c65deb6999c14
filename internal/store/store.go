package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS suite_runs (
    run_id       TEXT PRIMARY KEY,
    started_at   TIMESTAMPTZ NOT NULL,
    finished_at  TIMESTAMPTZ NOT NULL,
    duration_ms  DOUBLE PRECISION NOT NULL,
    base_url     TEXT NOT NULL,
    driver       TEXT NOT NULL,
    commit       TEXT,
    branch       TEXT,
    dirty        BOOLEAN NOT NULL DEFAULT FALSE,
    total        INTEGER NOT NULL,
    passed       INTEGER NOT NULL,
    failed       INTEGER NOT NULL,
    skipped      INTEGER NOT NULL,
    flaky        INTEGER NOT NULL,
    config       JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS scenario_results (
    run_id       TEXT NOT NULL REFERENCES suite_runs (run_id) ON DELETE CASCADE,
    scenario_id  TEXT NOT NULL,
    title        TEXT NOT NULL,
    feature      TEXT NOT NULL,
    status       TEXT NOT NULL,
    attempts     INTEGER NOT NULL,
    started_at   TIMESTAMPTZ,
    duration_ms  DOUBLE PRECISION NOT NULL,
    error_type   TEXT,
    message      TEXT,
    PRIMARY KEY (run_id, scenario_id)
);
CREATE INDEX IF NOT EXISTS suite_runs_started_at_idx ON suite_runs (started_at DESC);
`

const sqlInsertRun = `
    INSERT INTO suite_runs (run_id, started_at, finished_at, duration_ms, base_url, driver, commit, branch, dirty,
        total, passed, failed, skipped, flaky, config)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
`

const sqlRecentRuns = `
    SELECT run_id, started_at, duration_ms, base_url, driver, COALESCE(commit, ''), total, passed, failed, skipped, flaky
    FROM suite_runs
    ORDER BY started_at DESC
    LIMIT $1;
`

var resultColumns = []string{"run_id", "scenario_id", "title", "feature", "status", "attempts", "started_at", "duration_ms", "error_type", "message"}

// Store persists suite runs in PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// Open connects a pool to url. The caller closes the returned pool.
func Open(ctx context.Context, url string, logger *zap.Logger) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	s, err := New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate creates the tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SaveReport writes one suite_runs row and all scenario results in a single
// transaction.
func (s *Store) SaveReport(ctx context.Context, report *schemas.SuiteReport) error {
	cfg, err := json.Marshal(report.Config)
	if err != nil {
		return fmt.Errorf("failed to encode run config: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a commit reports ErrTxClosed, which is expected.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var commit, branch *string
	dirty := false
	if rev := report.Revision; rev != nil {
		commit, branch, dirty = &rev.Commit, &rev.Branch, rev.Dirty
	}
	st := report.Stats
	_, err = tx.Exec(ctx, sqlInsertRun,
		report.RunID, report.StartedAt.UTC(), report.FinishedAt.UTC(), report.DurationMS,
		report.Config.BaseURL, report.Config.Driver, commit, branch, dirty,
		st.Total, st.Passed, st.Failed, st.Skipped, st.Flaky, cfg,
	)
	if err != nil {
		return fmt.Errorf("failed to insert suite run: %w", err)
	}

	if len(report.Results) > 0 {
		if err := s.copyResults(ctx, tx, report); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("Saved suite run.", zap.String("run_id", report.RunID), zap.Int("results", len(report.Results)))
	return nil
}

func (s *Store) copyResults(ctx context.Context, tx pgx.Tx, report *schemas.SuiteReport) error {
	rows := make([][]interface{}, len(report.Results))
	for i, res := range report.Results {
		var errType, message *string
		if f := res.Failure; f != nil {
			errType, message = &f.ErrorType, &f.Message
		}
		var started *time.Time
		if !res.StartedAt.IsZero() {
			t := res.StartedAt.UTC()
			started = &t
		}
		rows[i] = []interface{}{
			report.RunID, res.ID, res.Title, res.Feature, string(res.Status),
			res.Attempts, started, res.DurationMS, errType, message,
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"scenario_results"}, resultColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy scenario results: %w", err)
	}
	if int(copyCount) != len(rows) {
		return fmt.Errorf("mismatch in copied results count: expected %d, got %d", len(rows), copyCount)
	}
	return nil
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	DurationMS float64
	BaseURL    string
	Driver     string
	Commit     string
	Stats      schemas.Stats
}

// RecentRuns lists the latest runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query suite runs: %w", err)
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		var r RunSummary
		err := rows.Scan(
			&r.RunID, &r.StartedAt, &r.DurationMS, &r.BaseURL, &r.Driver, &r.Commit,
			&r.Stats.Total, &r.Stats.Passed, &r.Stats.Failed, &r.Stats.Skipped, &r.Stats.Flaky,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan suite run row: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return runs, nil
}
