package models

import (
	"context"
	"errors"
	mapset "github.com/deckarep/golang-set"
	"github.com/google/uuid"
	"strings"
	"time"
)

type RunStatus string

const (
	RUN_PENDING   RunStatus = "pending"
	RUN_RUNNING   RunStatus = "running"
	RUN_SUCCEEDED RunStatus = "succeeded"
	RUN_FAILED    RunStatus = "failed"
)

//every workload name is this prefix plus the 32-character hex form of the run id
const WORKLOAD_PREFIX = "sparktest-job-"

var terminalStatuses = mapset.NewSet(RUN_SUCCEEDED, RUN_FAILED)

var (
	ErrRunNotFound    = errors.New("run not found")
	ErrTerminalStatus = errors.New("run already has a terminal status")
)

func (s RunStatus) IsTerminal() bool {
	return terminalStatuses.Contains(s)
}

func (s RunStatus) IsValid() bool {
	switch s {
	case RUN_PENDING, RUN_RUNNING, RUN_SUCCEEDED, RUN_FAILED:
		return true
	default:
		return false
	}
}

type Run struct {
	Id               uuid.UUID  `json:"id" mapstructure:"id"`
	Name             string     `json:"name" mapstructure:"name"`
	Image            string     `json:"image" mapstructure:"image"`
	Commands         []string   `json:"commands" mapstructure:"commands"`
	Status           RunStatus  `json:"status" mapstructure:"status"`
	CreatedAt        time.Time  `json:"created_at" mapstructure:"created_at"`
	PodScheduled     *time.Time `json:"pod_scheduled,omitempty" mapstructure:"pod_scheduled"`
	ContainerCreated *time.Time `json:"container_created,omitempty" mapstructure:"container_created"`
	ContainerStarted *time.Time `json:"container_started,omitempty" mapstructure:"container_started"`
	Completed        *time.Time `json:"completed,omitempty" mapstructure:"completed"`
	Failed           *time.Time `json:"failed,omitempty" mapstructure:"failed"`
	Duration         *int       `json:"duration,omitempty" mapstructure:"duration"`
	Retries          *int       `json:"retries,omitempty" mapstructure:"retries"`
	Logs             []string   `json:"logs,omitempty" mapstructure:"logs"`
	K8sJobName       string     `json:"k8s_job_name" mapstructure:"k8s_job_name"`
}

/**
build a new pending run with a fresh id. The workload name is derived from the id.
*/
func NewRun(name string, image string, commands []string) *Run {
	runId := uuid.New()
	return &Run{
		Id:         runId,
		Name:       name,
		Image:      image,
		Commands:   commands,
		Status:     RUN_PENDING,
		CreatedAt:  time.Now().UTC(),
		K8sJobName: WorkloadNameForRun(runId),
	}
}

/**
returns the name of the Kubernetes job that backs the given run.
This is a pure function of the id, so there is nothing to allocate and no collisions to handle.
*/
func WorkloadNameForRun(runId uuid.UUID) string {
	return WORKLOAD_PREFIX + strings.ReplaceAll(runId.String(), "-", "")
}

/**
persistence interface for run records. The orchestration code only relies on UpdateRunStatus and GetRunById,
the rest is here for the HTTP layer and the reaper.
*/
type RunStore interface {
	CreateRun(ctx context.Context, run *Run) error
	GetRunById(ctx context.Context, runId uuid.UUID) (*Run, error)
	//UpdateRunStatus sets the status and (optionally) the duration in seconds. Returns ErrTerminalStatus
	//if the stored run is already succeeded or failed and ErrRunNotFound if there is no such run
	UpdateRunStatus(ctx context.Context, runId uuid.UUID, status RunStatus, durationSeconds *int) error
	ListRuns(ctx context.Context, limit int64) ([]*Run, error)
	DeleteRun(ctx context.Context, runId uuid.UUID) error
	Ping(ctx context.Context) error
}
