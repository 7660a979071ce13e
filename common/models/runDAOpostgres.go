package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"log"
	"time"
)

const runsSchema = `
CREATE TABLE IF NOT EXISTS test_runs (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	image TEXT NOT NULL,
	commands JSONB NOT NULL DEFAULT '[]',
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	pod_scheduled TIMESTAMPTZ,
	container_created TIMESTAMPTZ,
	container_started TIMESTAMPTZ,
	completed TIMESTAMPTZ,
	failed TIMESTAMPTZ,
	duration INTEGER,
	retries INTEGER,
	logs JSONB,
	k8s_job_name TEXT NOT NULL
)`

const selectRunColumns = `SELECT id, name, image, commands::text, status, created_at, pod_scheduled, container_created,
	container_started, completed, failed, duration, retries, logs::text, k8s_job_name FROM test_runs`

type PostgresRunStore struct {
	db *sql.DB
}

/**
open a pooled connection to postgres through the pgx driver and make sure the runs table exists
*/
func OpenPostgresRunStore(ctx context.Context, url string, maxOpenConns int) (*PostgresRunStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxOpenConns)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, runsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema: %w", err)
	}
	return NewPostgresRunStore(db), nil
}

func NewPostgresRunStore(db *sql.DB) *PostgresRunStore {
	return &PostgresRunStore{db: db}
}

func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRunStore) CreateRun(ctx context.Context, run *Run) error {
	commandsJson, marshalErr := json.Marshal(run.Commands)
	if marshalErr != nil {
		return marshalErr
	}
	var logsJson *string
	if run.Logs != nil {
		encoded, logsErr := json.Marshal(run.Logs)
		if logsErr != nil {
			return logsErr
		}
		logsString := string(encoded)
		logsJson = &logsString
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO test_runs (id, name, image, commands, status, created_at, duration, retries, logs, k8s_job_name)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9::jsonb, $10)`,
		run.Id, run.Name, run.Image, string(commandsJson), string(run.Status), run.CreatedAt,
		run.Duration, run.Retries, logsJson, run.K8sJobName,
	)
	if err != nil {
		log.Printf("ERROR PostgresRunStore.CreateRun could not insert run %s: %s", run.Id, err)
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var run Run
	var commandsJson string
	var logsJson sql.NullString
	var status string
	var podScheduled, containerCreated, containerStarted, completed, failed sql.NullTime
	var duration, retries sql.NullInt32

	err := row.Scan(&run.Id, &run.Name, &run.Image, &commandsJson, &status, &run.CreatedAt, &podScheduled,
		&containerCreated, &containerStarted, &completed, &failed, &duration, &retries, &logsJson, &run.K8sJobName)
	if err != nil {
		return nil, err
	}
	run.Status = RunStatus(status)

	if err := json.Unmarshal([]byte(commandsJson), &run.Commands); err != nil {
		return nil, err
	}
	if logsJson.Valid {
		if err := json.Unmarshal([]byte(logsJson.String), &run.Logs); err != nil {
			return nil, err
		}
	}
	run.PodScheduled = nullTimePtr(podScheduled)
	run.ContainerCreated = nullTimePtr(containerCreated)
	run.ContainerStarted = nullTimePtr(containerStarted)
	run.Completed = nullTimePtr(completed)
	run.Failed = nullTimePtr(failed)
	run.Duration = nullIntPtr(duration)
	run.Retries = nullIntPtr(retries)
	return &run, nil
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullIntPtr(i sql.NullInt32) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int32)
	return &v
}

func (s *PostgresRunStore) GetRunById(ctx context.Context, runId uuid.UUID) (*Run, error) {
	run, err := scanRun(s.db.QueryRowContext(ctx, selectRunColumns+" WHERE id = $1", runId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		log.Printf("ERROR PostgresRunStore.GetRunById could not get run %s: %s", runId, err)
		return nil, err
	}
	return run, nil
}

/**
the terminal-status guard is part of the WHERE clause, so the check and the write are a single statement
*/
func (s *PostgresRunStore) UpdateRunStatus(ctx context.Context, runId uuid.UUID, status RunStatus, durationSeconds *int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE test_runs SET status = $1::text,
			duration = COALESCE($2, duration),
			completed = CASE WHEN $1::text = 'succeeded' THEN now() ELSE completed END,
			failed = CASE WHEN $1::text = 'failed' THEN now() ELSE failed END
		WHERE id = $3 AND status NOT IN ('succeeded', 'failed')`,
		string(status), durationSeconds, runId,
	)
	if err != nil {
		log.Printf("ERROR PostgresRunStore.UpdateRunStatus could not update run %s: %s", runId, err)
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	var exists bool
	existsErr := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM test_runs WHERE id = $1)", runId).Scan(&exists)
	if existsErr != nil {
		return existsErr
	}
	if !exists {
		return ErrRunNotFound
	}
	return ErrTerminalStatus
}

func (s *PostgresRunStore) ListRuns(ctx context.Context, limit int64) ([]*Run, error) {
	query := selectRunColumns + " ORDER BY created_at DESC"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Printf("ERROR PostgresRunStore.ListRuns could not query runs: %s", err)
		return nil, err
	}
	defer rows.Close()

	rtn := make([]*Run, 0)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		rtn = append(rtn, run)
	}
	return rtn, rows.Err()
}

func (s *PostgresRunStore) DeleteRun(ctx context.Context, runId uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM test_runs WHERE id = $1", runId)
	return err
}

func (s *PostgresRunStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
