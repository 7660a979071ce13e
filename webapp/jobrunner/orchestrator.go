package jobrunner

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/sparktest/orchestrator/common/models"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"log"
	"time"
)

type HealthResult struct {
	Healthy   bool      `json:"kubernetes_connected"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type RunRequest struct {
	Name     string   `json:"name"`
	Image    string   `json:"image"`
	Commands []string `json:"commands"`
}

/**
Orchestrator is what the http handlers and the reaper talk to. It owns nothing but references: the
client provider, the run store and the background monitors it has started.
Every error it returns is an *Error.
*/
type Orchestrator struct {
	clients       ClientProvider
	store         models.RunStore
	opts          KubeOptions
	monitorConfig MonitorConfig
	reader        *JobReader
	recorder      Recorder
	monitors      MonitorRegistry

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewOrchestrator(clients ClientProvider, store models.RunStore, opts KubeOptions, monitorConfig MonitorConfig, recorder Recorder) *Orchestrator {
	return NewOrchestratorWithReader(clients, store, NewJobReader(opts), monitorConfig, recorder)
}

func NewOrchestratorWithReader(clients ClientProvider, store models.RunStore, reader *JobReader, monitorConfig MonitorConfig, recorder Recorder) *Orchestrator {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		clients:       clients,
		store:         store,
		opts:          reader.opts,
		monitorConfig: monitorConfig,
		reader:        reader,
		recorder:      recorderOrNoop(recorder),
		baseCtx:       baseCtx,
		cancel:        cancel,
	}
}

/**
cheapest call we can make that proves the api server is there and we are allowed to talk to it.
Never returns an error, an unusable cluster is just unhealthy. Reason only ever carries the classified
detail; the underlying error is logged
*/
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthResult {
	result := HealthResult{Timestamp: time.Now().UTC()}

	client, clientErr := o.clients.Client()
	if clientErr != nil {
		log.Printf("WARNING HealthCheck has no kubernetes client: %s", clientErr)
		result.Reason = errorDetail(clientErr)
		return result
	}

	callCtx, cancel := withCallTimeout(ctx, o.opts.Timeout)
	defer cancel()
	_, listErr := client.CoreV1().Pods(o.opts.Namespace).List(callCtx, metav1.ListOptions{Limit: 1})
	if listErr != nil {
		log.Printf("WARNING HealthCheck could not list pods in %s: %s", o.opts.Namespace, listErr)
		result.Reason = errorDetail(newError(ErrTransientRead, "HealthCheck", o.opts.Namespace, listErr))
		return result
	}
	result.Healthy = true
	return result
}

/**
create a run record, submit its job and start a monitor for it. The monitor runs on the orchestrator's
own context, so it outlives the request that started it.
If the job can't be submitted the run record stays pending.
*/
func (o *Orchestrator) SubmitRun(ctx context.Context, req RunRequest) (*models.Run, error) {
	run, err := o.submitRun(ctx, req)
	if err != nil {
		o.recorder.SubmitFailed(Indicator(err))
		return nil, err
	}
	o.recorder.RunSubmitted()
	return run, nil
}

func (o *Orchestrator) submitRun(ctx context.Context, req RunRequest) (*models.Run, error) {
	if req.Image == "" {
		return nil, newError(ErrSubmitRejected, "SubmitRun", req.Name, errors.New("no image specified"))
	}

	client, clientErr := o.clients.Client()
	if clientErr != nil {
		return nil, clientErr
	}

	run := models.NewRun(req.Name, req.Image, req.Commands)
	if createErr := o.store.CreateRun(ctx, run); createErr != nil {
		log.Printf("ERROR SubmitRun could not save new run %s: %s", run.Id, createErr)
		return nil, newError(ErrStoreWrite, "SubmitRun", run.Id.String(), createErr)
	}

	job, buildErr := BuildJobManifest(run.K8sJobName, run.Image, run.Commands, o.opts)
	if buildErr != nil {
		return nil, newError(ErrSubmitRejected, "SubmitRun", run.K8sJobName, buildErr)
	}

	callCtx, cancel := withCallTimeout(ctx, o.opts.Timeout)
	defer cancel()
	if submitErr := SubmitJob(callCtx, client.BatchV1().Jobs(o.opts.Namespace), job); submitErr != nil {
		return nil, submitErr
	}

	if updateErr := o.store.UpdateRunStatus(ctx, run.Id, models.RUN_RUNNING, nil); updateErr != nil {
		//the monitor can still record the outcome, so carry on
		log.Printf("ERROR SubmitRun could not mark run %s as running: %s", run.Id, updateErr)
	} else {
		run.Status = models.RUN_RUNNING
	}

	monitor := NewRunMonitor(client, o.store, o.reader, o.monitorConfig, o.recorder)
	runId, workloadName := run.Id, run.K8sJobName
	o.monitors.Go(func() {
		monitor.Watch(o.baseCtx, runId, workloadName)
	})

	log.Printf("INFO SubmitRun started run %s as job %s", run.Id, run.K8sJobName)
	return run, nil
}

func (o *Orchestrator) GetLogs(ctx context.Context, workloadName string) (*JobLogs, error) {
	client, clientErr := o.clients.Client()
	if clientErr != nil {
		return nil, clientErr
	}
	callCtx, cancel := withCallTimeout(ctx, o.opts.Timeout)
	defer cancel()
	return o.reader.GetJobLogs(callCtx, client, workloadName)
}

func (o *Orchestrator) GetRunLogs(ctx context.Context, runId uuid.UUID) (*JobLogs, error) {
	run, getErr := o.GetRun(ctx, runId)
	if getErr != nil {
		return nil, getErr
	}
	return o.GetLogs(ctx, run.K8sJobName)
}

func (o *Orchestrator) GetRun(ctx context.Context, runId uuid.UUID) (*models.Run, error) {
	run, getErr := o.store.GetRunById(ctx, runId)
	if getErr == models.ErrRunNotFound {
		return nil, newError(ErrNotFound, "GetRun", runId.String(), getErr)
	} else if getErr != nil {
		log.Printf("ERROR GetRun could not read run %s: %s", runId, getErr)
		return nil, newError(ErrTransientRead, "GetRun", runId.String(), getErr)
	}
	return run, nil
}

func (o *Orchestrator) ListRuns(ctx context.Context, limit int64) ([]*models.Run, error) {
	runs, listErr := o.store.ListRuns(ctx, limit)
	if listErr != nil {
		log.Printf("ERROR ListRuns could not list runs: %s", listErr)
		return nil, newError(ErrTransientRead, "ListRuns", "", listErr)
	}
	return runs, nil
}

func (o *Orchestrator) GetStatus(ctx context.Context, workloadName string) (JobStatus, error) {
	client, clientErr := o.clients.Client()
	if clientErr != nil {
		return JOB_UNKNOWN, clientErr
	}
	callCtx, cancel := withCallTimeout(ctx, o.opts.Timeout)
	defer cancel()
	return o.reader.GetJobStatus(callCtx, client, workloadName)
}

/**
delete the job and its pods. A monitor that is still watching the job will see it disappear and
stop without touching the run record
*/
func (o *Orchestrator) DeleteJob(ctx context.Context, workloadName string) error {
	client, clientErr := o.clients.Client()
	if clientErr != nil {
		return clientErr
	}
	callCtx, cancel := withCallTimeout(ctx, o.opts.Timeout)
	defer cancel()
	return o.reader.DeleteWorkload(callCtx, client, workloadName)
}

func (o *Orchestrator) ActiveMonitors() int {
	return o.monitors.Active()
}

// Wait blocks until every monitor started so far has finished.
func (o *Orchestrator) Wait() {
	o.monitors.Wait()
}

/**
stop all monitors and wait for them, or for ctx to expire. Monitors that are stopped this way do not
write anything
*/
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.cancel()
	done := make(chan struct{})
	go func() {
		o.monitors.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
