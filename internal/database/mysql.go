package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"

	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/config"
	"github.com/innovation-pello/pello-data-sync-dashboard/pkg/models"
)

// MySQLClient stores durable run history for the dashboard.
type MySQLClient struct {
	db     *sql.DB
	logger *logrus.Entry
	cfg    *config.MySQLConfig
}

// NewMySQLClient creates a new MySQL client
func NewMySQLClient(cfg *config.MySQLConfig, logger *logrus.Logger) (*MySQLClient, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	logger.WithField("dsn", fmt.Sprintf("%s:***@tcp(%s:%d)/%s", cfg.User, cfg.Host, cfg.Port, cfg.Database)).Debug("Connecting to MySQL")

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	return &MySQLClient{
		db:     db,
		logger: logger.WithField("component", "mysql"),
		cfg:    cfg,
	}, nil
}

// Close closes the database connection
func (mc *MySQLClient) Close() error {
	return mc.db.Close()
}

// Health checks database health
func (mc *MySQLClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	return mc.db.PingContext(ctx)
}

// Migrate creates the run-history schema when missing.
func (mc *MySQLClient) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id            VARCHAR(36)  NOT NULL PRIMARY KEY,
			source        VARCHAR(32)  NOT NULL,
			status        VARCHAR(24)  NOT NULL,
			success_count INT          NOT NULL DEFAULT 0,
			failed_count  INT          NOT NULL DEFAULT 0,
			error         TEXT,
			started_at    DATETIME(3)  NOT NULL,
			finished_at   DATETIME(3)  NULL,
			INDEX idx_sync_runs_source (source, started_at)
		)
	`

	if _, err := mc.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create sync_runs table: %w", err)
	}

	return nil
}

// Run history operations

// CreateSyncRun inserts a new run in syncing state.
func (mc *MySQLClient) CreateSyncRun(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_runs (id, source, status, success_count, failed_count, error, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := mc.db.ExecContext(ctx, query,
		run.ID,
		run.Source,
		string(run.Status),
		run.SuccessCount,
		run.FailedCount,
		run.Error,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sync run: %w", err)
	}

	return nil
}

// FinishSyncRun records a run's terminal status and counts.
func (mc *MySQLClient) FinishSyncRun(ctx context.Context, runID string, status models.RunStatus, successCount, failedCount int, errMsg string) error {
	query := `
		UPDATE sync_runs
		SET status = ?, success_count = ?, failed_count = ?, error = ?, finished_at = ?
		WHERE id = ?
	`

	_, err := mc.db.ExecContext(ctx, query,
		string(status),
		successCount,
		failedCount,
		errMsg,
		time.Now().UTC(),
		runID,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync run: %w", err)
	}

	return nil
}

// GetRecentRuns returns the most recent runs across all sources.
func (mc *MySQLClient) GetRecentRuns(ctx context.Context, limit int) ([]*models.SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, source, status, success_count, failed_count, COALESCE(error, ''), started_at, finished_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := mc.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.SyncRun
	for rows.Next() {
		run := &models.SyncRun{}
		var status string
		var finishedAt sql.NullTime

		err := rows.Scan(
			&run.ID,
			&run.Source,
			&status,
			&run.SuccessCount,
			&run.FailedCount,
			&run.Error,
			&run.StartedAt,
			&finishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}

		run.Status = models.RunStatus(status)
		if finishedAt.Valid {
			t := finishedAt.Time
			run.FinishedAt = &t
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// GetLastCompletedRun returns the most recent non-failed run for a source, or
// nil when the source has never completed.
func (mc *MySQLClient) GetLastCompletedRun(ctx context.Context, source string) (*models.SyncRun, error) {
	query := `
		SELECT id, source, status, success_count, failed_count, COALESCE(error, ''), started_at, finished_at
		FROM sync_runs
		WHERE source = ? AND status IN (?, ?)
		ORDER BY started_at DESC
		LIMIT 1
	`

	run := &models.SyncRun{}
	var status string
	var finishedAt sql.NullTime

	err := mc.db.QueryRowContext(ctx, query, source, string(models.RunCompleted), string(models.RunPartial)).Scan(
		&run.ID,
		&run.Source,
		&status,
		&run.SuccessCount,
		&run.FailedCount,
		&run.Error,
		&run.StartedAt,
		&finishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last completed run: %w", err)
	}

	run.Status = models.RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}

	return run, nil
}
