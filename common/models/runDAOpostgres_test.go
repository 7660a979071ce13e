package models

import (
	"context"
	"database/sql"
	"errors"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"regexp"
	"testing"
	"time"
)

/**
stands in for a *sql.Row, filling the destinations the way the pgx driver would
*/
type fakeRow struct {
	id        uuid.UUID
	commands  string
	logs      sql.NullString
	completed sql.NullTime
	duration  sql.NullInt32
	err       error
}

func (r fakeRow) Scan(dest ...interface{}) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*uuid.UUID) = r.id
	*dest[1].(*string) = "from postgres"
	*dest[2].(*string) = "alpine:3"
	*dest[3].(*string) = r.commands
	*dest[4].(*string) = "succeeded"
	*dest[5].(*time.Time) = time.Date(2024, 2, 2, 12, 0, 0, 0, time.UTC)
	*dest[9].(*sql.NullTime) = r.completed
	*dest[11].(*sql.NullInt32) = r.duration
	*dest[13].(*sql.NullString) = r.logs
	*dest[14].(*string) = WorkloadNameForRun(r.id)
	return nil
}

func TestScanRun(t *testing.T) {
	id := uuid.New()
	completedAt := time.Date(2024, 2, 2, 12, 0, 30, 0, time.UTC)
	run, err := scanRun(fakeRow{
		id:        id,
		commands:  `["sh","-c","echo ok"]`,
		logs:      sql.NullString{String: `["line one","line two"]`, Valid: true},
		completed: sql.NullTime{Time: completedAt, Valid: true},
		duration:  sql.NullInt32{Int32: 30, Valid: true},
	})
	if err != nil {
		t.Fatalf("scanRun unexpectedly failed: %s", err)
	}

	if run.Id != id || run.Status != RUN_SUCCEEDED || run.Image != "alpine:3" {
		t.Errorf("basic fields wrong: %s", spew.Sdump(run))
	}
	if len(run.Commands) != 3 || run.Commands[2] != "echo ok" {
		t.Errorf("commands not decoded: %v", run.Commands)
	}
	if len(run.Logs) != 2 {
		t.Errorf("logs not decoded: %v", run.Logs)
	}
	if run.Completed == nil || !run.Completed.Equal(completedAt) {
		t.Errorf("completed time wrong: %v", run.Completed)
	}
	if run.Duration == nil || *run.Duration != 30 {
		t.Errorf("duration wrong: %v", run.Duration)
	}
	if run.Failed != nil || run.Retries != nil || run.PodScheduled != nil {
		t.Error("null columns should come back as nil")
	}
}

func TestScanRun_Errors(t *testing.T) {
	if _, err := scanRun(fakeRow{err: sql.ErrNoRows}); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected the scan error to be returned, got %v", err)
	}
	if _, err := scanRun(fakeRow{id: uuid.New(), commands: "not json"}); err == nil {
		t.Error("expected bad commands json to fail")
	}
}

func newMockPostgresStore(t *testing.T) (*PostgresRunStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("could not set up sqlmock: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPostgresRunStore(db), mock
}

func checkExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

var runColumns = []string{"id", "name", "image", "commands", "status", "created_at", "pod_scheduled", "container_created",
	"container_started", "completed", "failed", "duration", "retries", "logs", "k8s_job_name"}

func TestPostgresRunStore_CreateRun(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	run := NewRun("pg create", "alpine:3", []string{"echo", "hi"})

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO test_runs")).
		WithArgs(run.Id, "pg create", "alpine:3", `["echo","hi"]`, "pending", run.CreatedAt, nil, nil, nil, run.K8sJobName).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Errorf("CreateRun unexpectedly failed: %s", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_UpdateRunStatus(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()
	duration := 42

	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_runs SET status = $1::text") + ".*" + regexp.QuoteMeta("WHERE id = $3 AND status NOT IN ('succeeded', 'failed')")).
		WithArgs("succeeded", duration, runId).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.UpdateRunStatus(context.Background(), runId, RUN_SUCCEEDED, &duration); err != nil {
		t.Errorf("UpdateRunStatus unexpectedly failed: %s", err)
	}
	checkExpectations(t, mock)
}

/**
no row updated but the run exists means it was already terminal
*/
func TestPostgresRunStore_UpdateRunStatus_Terminal(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_runs")).
		WithArgs("failed", nil, runId).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM test_runs WHERE id = $1)")).
		WithArgs(runId).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err := store.UpdateRunStatus(context.Background(), runId, RUN_FAILED, nil)
	if err != ErrTerminalStatus {
		t.Errorf("expected ErrTerminalStatus, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_UpdateRunStatus_NotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_runs")).
		WithArgs("running", nil, runId).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM test_runs WHERE id = $1)")).
		WithArgs(runId).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := store.UpdateRunStatus(context.Background(), runId, RUN_RUNNING, nil)
	if err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_UpdateRunStatus_ExecFails(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("UPDATE test_runs")).
		WithArgs("succeeded", nil, runId).
		WillReturnError(errors.New("connection reset by peer"))

	err := store.UpdateRunStatus(context.Background(), runId, RUN_SUCCEEDED, nil)
	if err == nil || err == ErrTerminalStatus || err == ErrRunNotFound {
		t.Errorf("expected the driver error to be returned, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_ListRuns(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	newer, older := uuid.New(), uuid.New()
	newerTime := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows(runColumns).
		AddRow(newer.String(), "newer", "alpine:3", `["true"]`, "running", newerTime, nil, nil, nil, nil, nil, nil, nil, nil, WorkloadNameForRun(newer)).
		AddRow(older.String(), "older", "alpine:3", `[]`, "failed", newerTime.Add(-time.Hour), nil, nil, nil, nil, newerTime, int64(12), nil, nil, WorkloadNameForRun(older))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC LIMIT $1")).
		WithArgs(int64(2)).
		WillReturnRows(rows)

	runs, err := store.ListRuns(context.Background(), 2)
	if err != nil {
		t.Fatalf("ListRuns unexpectedly failed: %s", err)
	}
	if len(runs) != 2 || runs[0].Id != newer || runs[1].Id != older {
		t.Errorf("unexpected runs %s", spew.Sdump(runs))
	}
	if len(runs) == 2 && (runs[1].Status != RUN_FAILED || runs[1].Duration == nil || *runs[1].Duration != 12 || runs[1].Failed == nil) {
		t.Errorf("terminal fields not read: %s", spew.Sdump(runs[1]))
	}
	checkExpectations(t, mock)
}

/**
a limit of zero lists everything, so there must be no LIMIT clause
*/
func TestPostgresRunStore_ListRuns_NoLimit(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY created_at DESC") + "$").
		WithArgs().
		WillReturnRows(sqlmock.NewRows(runColumns))

	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil || len(runs) != 0 {
		t.Errorf("expected an empty list, got %v %v", runs, err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_GetRunById_Missing(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta("FROM test_runs WHERE id = $1")).
		WithArgs(runId).
		WillReturnRows(sqlmock.NewRows(runColumns))

	if _, err := store.GetRunById(context.Background(), runId); err != ErrRunNotFound {
		t.Errorf("expected ErrRunNotFound, got %v", err)
	}
	checkExpectations(t, mock)
}

func TestPostgresRunStore_DeleteRun(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	runId := uuid.New()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM test_runs WHERE id = $1")).
		WithArgs(runId).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.DeleteRun(context.Background(), runId); err != nil {
		t.Errorf("DeleteRun unexpectedly failed: %s", err)
	}
	checkExpectations(t, mock)
}
