// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brightkite/channelpull/internal/pull"
	"github.com/brightkite/channelpull/internal/store"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type dbPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// NewPool builds a pgx pool from Config. Both stores share one pool.
func NewPool(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("storage.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// JobStore persists pull job records in the pull_jobs table.
//
// Schema:
//
//	CREATE TABLE pull_jobs (
//	    id               TEXT PRIMARY KEY,
//	    channel_id       TEXT NOT NULL,
//	    channel_name     TEXT NOT NULL DEFAULT '',
//	    status           TEXT NOT NULL,
//	    progress         INT  NOT NULL DEFAULT 0,
//	    messages_fetched INT  NOT NULL DEFAULT 0,
//	    threads_expanded INT  NOT NULL DEFAULT 0,
//	    threads_failed   INT  NOT NULL DEFAULT 0,
//	    cursor           TEXT NOT NULL DEFAULT '',
//	    created_at       TIMESTAMPTZ NOT NULL,
//	    updated_at       TIMESTAMPTZ NOT NULL,
//	    started_at       TIMESTAMPTZ,
//	    completed_at     TIMESTAMPTZ,
//	    error_text       TEXT NOT NULL DEFAULT '',
//	    config           JSONB NOT NULL
//	);
type JobStore struct {
	pool dbPool
}

// NewJobStore constructs a JobStore on an existing pool.
func NewJobStore(pool dbPool) *JobStore {
	return &JobStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies database connectivity, for readiness checks.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `id, channel_id, channel_name, status, progress, messages_fetched,
threads_expanded, threads_failed, cursor, created_at, updated_at, started_at,
completed_at, error_text, config`

// SaveJob inserts or fully replaces the record keyed by job.ID.
func (s *JobStore) SaveJob(ctx context.Context, job pull.Job) error {
	cfgJSON, err := json.Marshal(job.Config)
	if err != nil {
		return fmt.Errorf("marshal pull config: %w", err)
	}
	query := `
		INSERT INTO pull_jobs (` + jobColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			progress = EXCLUDED.progress,
			messages_fetched = EXCLUDED.messages_fetched,
			threads_expanded = EXCLUDED.threads_expanded,
			threads_failed = EXCLUDED.threads_failed,
			cursor = EXCLUDED.cursor,
			updated_at = EXCLUDED.updated_at,
			started_at = EXCLUDED.started_at,
			completed_at = EXCLUDED.completed_at,
			error_text = EXCLUDED.error_text;
	`
	_, err = s.pool.Exec(ctx, query,
		job.ID,
		job.ChannelID,
		job.ChannelName,
		job.Status,
		job.Progress,
		job.MessagesFetched,
		job.ThreadsExpanded,
		job.ThreadsFailed,
		job.Cursor,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
		job.Error,
		cfgJSON,
	)
	if err != nil {
		return fmt.Errorf("upsert pull job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (pull.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM pull_jobs WHERE id = $1;`
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return pull.Job{}, store.ErrNotFound
		}
		return pull.Job{}, fmt.Errorf("get pull job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs newest first with limit/offset paging.
func (s *JobStore) ListJobs(ctx context.Context, limit, offset int) ([]pull.Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM pull_jobs
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2;`
	rows, err := s.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pull jobs: %w", err)
	}
	defer rows.Close()

	var jobs []pull.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pull job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pull jobs: %w", err)
	}
	return jobs, nil
}

// FailRunning marks every QUEUED/RUNNING row FAILED with the given reason.
func (s *JobStore) FailRunning(ctx context.Context, reason string) (int, error) {
	query := `
		UPDATE pull_jobs
		SET status = $1, error_text = $2, completed_at = updated_at
		WHERE status IN ($3, $4);
	`
	tag, err := s.pool.Exec(ctx, query, pull.StatusFailed, reason, pull.StatusQueued, pull.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("fail running pull jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func scanJob(row pgx.Row) (pull.Job, error) {
	var (
		job     pull.Job
		cfgJSON []byte
	)
	err := row.Scan(
		&job.ID,
		&job.ChannelID,
		&job.ChannelName,
		&job.Status,
		&job.Progress,
		&job.MessagesFetched,
		&job.ThreadsExpanded,
		&job.ThreadsFailed,
		&job.Cursor,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.Error,
		&cfgJSON,
	)
	if err != nil {
		return pull.Job{}, err
	}
	if len(cfgJSON) > 0 {
		if err := json.Unmarshal(cfgJSON, &job.Config); err != nil {
			return pull.Job{}, fmt.Errorf("unmarshal pull config: %w", err)
		}
	}
	return job, nil
}
