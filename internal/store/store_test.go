package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/flowcheck/api/schemas"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing()
	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func sampleReport() *schemas.SuiteReport {
	started := time.Date(2025, 11, 20, 10, 0, 0, 0, time.FixedZone("BRT", -3*3600))
	r := &schemas.SuiteReport{
		RunID:      "run-42",
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Second),
		DurationMS: 3000,
		Config:     schemas.RunConfig{BaseURL: "http://bank.test/parabank", Driver: "http", Concurrency: 4},
		Revision:   &schemas.Revision{Commit: "abc123", Branch: "main"},
		Results: []schemas.ScenarioResult{
			{ID: "login/valid#1", Title: "Valid login", Feature: "Login", Status: schemas.StatusPassed, Attempts: 1, StartedAt: started, DurationMS: 800},
			{
				ID: "loans/loan#2", Title: "Loan", Feature: "Loans", Status: schemas.StatusFailed, Attempts: 2, StartedAt: started, DurationMS: 1200,
				Failure: &schemas.Failure{ErrorType: "AssertionFailure", Message: "expected Approved"},
			},
		},
	}
	r.Tally()
	return r
}

func TestNewStore(t *testing.T) {
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestMigrate(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS suite_runs").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveReport(t *testing.T) {
	ctx := context.Background()

	t.Run("writes the run and copies results in one transaction", func(t *testing.T) {
		core, logs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(core))
		report := sampleReport()
		commit, branch := "abc123", "main"

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				"run-42", report.StartedAt.UTC(), report.FinishedAt.UTC(), 3000.0,
				"http://bank.test/parabank", "http", &commit, &branch, false,
				2, 1, 1, 0, 0, pgxmock.AnyArg(),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, s.SaveReport(ctx, report))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, logs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("rolls back when the copy fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).WillReturnError(errors.New("disk full"))
		mockPool.ExpectRollback()

		err := s.SaveReport(ctx, sampleReport())
		assert.ErrorContains(t, err, "failed to copy scenario results: disk full")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("reports a short copy", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())
		report := sampleReport()
		report.Revision = nil

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"scenario_results"}, resultColumns).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveReport(ctx, report)
		assert.ErrorContains(t, err, "expected 2, got 1")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecentRuns(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	started := time.Date(2025, 11, 20, 13, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"run_id", "started_at", "duration_ms", "base_url", "driver", "commit", "total", "passed", "failed", "skipped", "flaky"}).
		AddRow("run-2", started, 2500.0, "http://bank.test", "chromedp", "def456", 26, 25, 1, 0, 2).
		AddRow("run-1", started.Add(-time.Hour), 3000.0, "http://bank.test", "http", "", 26, 26, 0, 0, 0)
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).WithArgs(20).WillReturnRows(rows)

	runs, err := s.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.Equal(t, schemas.Stats{Total: 26, Passed: 25, Failed: 1, Flaky: 2}, runs[0].Stats)
	assert.Equal(t, "", runs[1].Commit)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestRecentRunsQueryError(t *testing.T) {
	s, mockPool := newMockStore(t, zap.NewNop())
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).WithArgs(5).WillReturnError(errors.New("relation does not exist"))

	_, err := s.RecentRuns(context.Background(), 5)
	assert.ErrorContains(t, err, "failed to query suite runs")
}
