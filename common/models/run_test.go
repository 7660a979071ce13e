package models

import (
	"github.com/google/uuid"
	"strings"
	"testing"
)

/**
WorkloadNameForRun should always give the same name for the same id
*/
func TestWorkloadNameForRun_Deterministic(t *testing.T) {
	runId := uuid.MustParse("3f2b8c4e-5d6a-4b7c-8e9f-0a1b2c3d4e5f")

	first := WorkloadNameForRun(runId)
	second := WorkloadNameForRun(runId)
	if first != second {
		t.Errorf("expected the same name twice, got %s and %s", first, second)
	}
	if first != "sparktest-job-3f2b8c4e5d6a4b7c8e9f0a1b2c3d4e5f" {
		t.Errorf("unexpected workload name %s", first)
	}
}

/**
distinct ids must give distinct names, and every name must have the same length
*/
func TestWorkloadNameForRun_Injective(t *testing.T) {
	seen := make(map[string]uuid.UUID, 1000)
	for i := 0; i < 1000; i++ {
		runId := uuid.New()
		name := WorkloadNameForRun(runId)
		if len(name) != 46 {
			t.Errorf("expected name length 46, got %d for %s", len(name), name)
		}
		if !strings.HasPrefix(name, WORKLOAD_PREFIX) {
			t.Errorf("name %s is missing prefix %s", name, WORKLOAD_PREFIX)
		}
		if previous, haveIt := seen[name]; haveIt {
			t.Errorf("ids %s and %s both mapped to %s", previous, runId, name)
		}
		seen[name] = runId
	}
}

func TestNewRun(t *testing.T) {
	run := NewRun("smoke", "ubuntu:latest", []string{"echo", "hi"})

	if run.Status != RUN_PENDING {
		t.Errorf("expected new run to be pending, got %s", run.Status)
	}
	if run.K8sJobName != WorkloadNameForRun(run.Id) {
		t.Errorf("job name %s does not match the id %s", run.K8sJobName, run.Id)
	}
	if run.CreatedAt.IsZero() {
		t.Error("expected created time to be set")
	}
	if run.Duration != nil {
		t.Errorf("expected no duration on a new run, got %d", *run.Duration)
	}
}

func TestRunStatus_IsTerminal(t *testing.T) {
	expected := map[RunStatus]bool{
		RUN_PENDING:   false,
		RUN_RUNNING:   false,
		RUN_SUCCEEDED: true,
		RUN_FAILED:    true,
	}
	for status, terminal := range expected {
		if status.IsTerminal() != terminal {
			t.Errorf("IsTerminal for %s gave %t, expected %t", status, status.IsTerminal(), terminal)
		}
		if !status.IsValid() {
			t.Errorf("expected %s to be valid", status)
		}
	}
	if RunStatus("timed-out").IsValid() {
		t.Error("timed-out is not a stored run status")
	}
}
