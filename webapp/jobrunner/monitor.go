package jobrunner

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/sparktest/orchestrator/common/backoff"
	"github.com/sparktest/orchestrator/common/models"
	"k8s.io/client-go/kubernetes"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

type MonitorOutcome string

const (
	OUTCOME_SUCCEEDED MonitorOutcome = "succeeded"
	OUTCOME_FAILED    MonitorOutcome = "failed"
	OUTCOME_TIMED_OUT MonitorOutcome = "timed-out"
	OUTCOME_CANCELLED MonitorOutcome = "cancelled"
	OUTCOME_LOST      MonitorOutcome = "lost" //the job disappeared while we were watching it
)

type MonitorResult struct {
	Outcome  MonitorOutcome
	Attempts int
	Duration int //whole seconds since the monitor started
	Written  bool
	Err      error
}

/**
watches one job until it reaches a terminal condition, then writes the outcome to the run record.
At most one write happens per Watch; if the job never finishes, disappears or the context ends first
nothing is written and the record keeps whatever status it had.
*/
type RunMonitor struct {
	client       kubernetes.Interface
	store        models.RunStore
	reader       *JobReader
	config       MonitorConfig
	callTimeout  time.Duration
	storeTimeout time.Duration
	recorder     Recorder
}

func NewRunMonitor(client kubernetes.Interface, store models.RunStore, reader *JobReader, config MonitorConfig, recorder Recorder) *RunMonitor {
	return &RunMonitor{
		client:       client,
		store:        store,
		reader:       reader,
		config:       config,
		callTimeout:  reader.opts.Timeout,
		storeTimeout: 30 * time.Second,
		recorder:     recorderOrNoop(recorder),
	}
}

func (m *RunMonitor) Watch(ctx context.Context, runId uuid.UUID, workloadName string) MonitorResult {
	startTime := time.Now()
	m.recorder.MonitorStarted()

	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}

	result := m.poll(ctx, workloadName)
	result.Duration = elapsedSeconds(startTime)

	switch result.Outcome {
	case OUTCOME_SUCCEEDED:
		m.write(ctx, runId, models.RUN_SUCCEEDED, &result)
	case OUTCOME_FAILED:
		m.write(ctx, runId, models.RUN_FAILED, &result)
	case OUTCOME_LOST:
		log.Printf("WARNING RunMonitor job %s for run %s disappeared after %d attempts, leaving run status as it is", workloadName, runId, result.Attempts)
	default:
		log.Printf("WARNING RunMonitor gave up on job %s for run %s after %d attempts (%s), status is indeterminate", workloadName, runId, result.Attempts, result.Outcome)
	}

	m.recorder.MonitorFinished(result.Outcome, time.Since(startTime))
	return result
}

func (m *RunMonitor) poll(ctx context.Context, workloadName string) MonitorResult {
	backoffConfig := &backoff.Config{Initial: m.config.PollInterval, Max: m.config.MaxInterval}

	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		callCtx, cancel := withCallTimeout(ctx, m.callTimeout)
		status, err := m.reader.GetJobStatus(callCtx, m.client, workloadName)
		cancel()

		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return MonitorResult{Outcome: OUTCOME_LOST, Attempts: attempt}
			}
			log.Printf("WARNING RunMonitor attempt %d could not read job %s: %s", attempt, workloadName, err)
		} else {
			switch status {
			case JOB_COMPLETED:
				return MonitorResult{Outcome: OUTCOME_SUCCEEDED, Attempts: attempt}
			case JOB_FAILED:
				return MonitorResult{Outcome: OUTCOME_FAILED, Attempts: attempt}
			}
		}

		if attempt == m.config.MaxAttempts {
			return MonitorResult{Outcome: OUTCOME_TIMED_OUT, Attempts: attempt}
		}

		timer := time.NewTimer(backoff.Exponential(attempt, backoffConfig))
		select {
		case <-ctx.Done():
			timer.Stop()
			return MonitorResult{Outcome: outcomeForContext(ctx), Attempts: attempt}
		case <-timer.C:
		}
	}
	return MonitorResult{Outcome: OUTCOME_TIMED_OUT, Attempts: m.config.MaxAttempts}
}

/**
the write uses its own deadline rather than the polling context, a run that finished just as the
monitor deadline expired should still be recorded
*/
func (m *RunMonitor) write(ctx context.Context, runId uuid.UUID, status models.RunStatus, result *MonitorResult) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.storeTimeout)
	defer cancel()

	duration := result.Duration
	err := m.store.UpdateRunStatus(writeCtx, runId, status, &duration)
	if err != nil {
		result.Err = newError(ErrStoreWrite, "RunMonitor.write", runId.String(), err)
		log.Printf("ERROR RunMonitor %s", result.Err)
		return
	}
	result.Written = true
	log.Printf("INFO RunMonitor run %s is %s after %ds", runId, status, duration)
}

func outcomeForContext(ctx context.Context) MonitorOutcome {
	if errors.Is(ctx.Err(), context.Canceled) {
		return OUTCOME_CANCELLED
	}
	return OUTCOME_TIMED_OUT
}

func elapsedSeconds(since time.Time) int {
	elapsed := int(time.Since(since) / time.Second)
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func withCallTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

/**
keeps track of monitors running in the background so that shutdown can wait for them
*/
type MonitorRegistry struct {
	wg     sync.WaitGroup
	active int64
}

func (r *MonitorRegistry) Go(task func()) {
	r.wg.Add(1)
	atomic.AddInt64(&r.active, 1)
	go func() {
		defer r.wg.Done()
		defer atomic.AddInt64(&r.active, -1)
		task()
	}()
}

func (r *MonitorRegistry) Active() int {
	return int(atomic.LoadInt64(&r.active))
}

func (r *MonitorRegistry) Wait() {
	r.wg.Wait()
}
