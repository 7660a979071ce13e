package jobrunner

import (
	"context"
	"errors"
	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"github.com/sparktest/orchestrator/common/models"
	v1batch "k8s.io/api/batch/v1"
	v12 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
	k8stesting "k8s.io/client-go/testing"
	"strings"
	"testing"
	"time"
)

func unreachableCluster() ClientProvider {
	var calls []string
	return NewClientFactoryWithSources(DefaultKubeOptions(), []ConfigSource{
		failingSource("in-cluster", &calls),
		failingSource("kubeconfig", &calls),
		failingSource("service-account", &calls),
		failingSource("default", &calls),
	})
}

func TestOrchestrator_UnreachableCluster(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()

	o := NewOrchestrator(unreachableCluster(), store, DefaultKubeOptions(), fastMonitorConfig(5), nil)

	health := o.HealthCheck(context.Background())
	if health.Healthy {
		t.Error("expected an unreachable cluster to be unhealthy")
	}
	if health.Reason == "" {
		t.Error("expected a reason for being unhealthy")
	}

	logs, logsErr := o.GetLogs(context.Background(), "sparktest-job-anything")
	if logs != nil || !errors.Is(logsErr, ErrClientUnavailable) {
		t.Errorf("expected ClientUnavailable from GetLogs, got %v %v", logs, logsErr)
	}
	if HTTPStatus(logsErr) != 503 || Indicator(logsErr) != "client_unavailable" {
		t.Errorf("wrong mapping for ClientUnavailable: %d %s", HTTPStatus(logsErr), Indicator(logsErr))
	}

	_, statusErr := o.GetStatus(context.Background(), "sparktest-job-anything")
	if !errors.Is(statusErr, ErrClientUnavailable) {
		t.Errorf("expected ClientUnavailable from GetStatus, got %v", statusErr)
	}
	if deleteErr := o.DeleteJob(context.Background(), "sparktest-job-anything"); !errors.Is(deleteErr, ErrClientUnavailable) {
		t.Errorf("expected ClientUnavailable from DeleteJob, got %v", deleteErr)
	}

	run, submitErr := o.SubmitRun(context.Background(), RunRequest{Name: "x", Image: "ubuntu:latest", Commands: []string{"true"}})
	if run != nil || !errors.Is(submitErr, ErrClientUnavailable) {
		t.Errorf("expected ClientUnavailable from SubmitRun, got %v", submitErr)
	}
	if all, _ := store.ListRuns(context.Background(), 0); len(all) != 0 {
		t.Errorf("no run record should be created when the cluster is unavailable, got %d", len(all))
	}
}

func TestOrchestrator_HealthCheck(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, nil, DefaultKubeOptions(), fastMonitorConfig(5), nil)

	health := o.HealthCheck(context.Background())
	if !health.Healthy || health.Reason != "" {
		t.Errorf("expected healthy, got %s", spew.Sdump(health))
	}

	listedPods := false
	for _, action := range clientset.Actions() {
		if action.GetVerb() == "list" && action.GetResource().Resource == "pods" {
			listedPods = true
		}
	}
	if !listedPods {
		t.Error("health check did not list pods")
	}

	clientset.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("forbidden")
	})
	unhealthy := o.HealthCheck(context.Background())
	if unhealthy.Healthy || unhealthy.Reason != "HealthCheck default: transient read failure" {
		t.Errorf("expected unhealthy when the list fails, got %s", spew.Sdump(unhealthy))
	}
	if strings.Contains(unhealthy.Reason, "forbidden") {
		t.Errorf("raw list error leaked into the health reason: %s", unhealthy.Reason)
	}
}

/**
the reason for an unavailable client is the classified detail, not the connection error behind it
*/
func TestOrchestrator_HealthCheckHidesClientError(t *testing.T) {
	factory := NewClientFactoryWithSources(DefaultKubeOptions(), []ConfigSource{
		{Name: "in-cluster", Load: func() (*rest.Config, error) {
			return nil, errors.New("dial tcp 10.0.0.1:443: secret-internal-host refused")
		}},
	})
	o := NewOrchestrator(factory, nil, DefaultKubeOptions(), fastMonitorConfig(5), nil)

	health := o.HealthCheck(context.Background())
	if health.Healthy {
		t.Error("expected an unavailable client to be unhealthy")
	}
	if health.Reason != "ClientFactory.Client: kubernetes client unavailable" {
		t.Errorf("unexpected reason %q", health.Reason)
	}
	if strings.Contains(health.Reason, "10.0.0.1") || strings.Contains(health.Reason, "secret-internal-host") {
		t.Errorf("connection details leaked into the health reason: %s", health.Reason)
	}
}

/**
submit ubuntu:latest, mark the job Complete while the monitor is polling, expect a succeeded run
with a duration
*/
func TestOrchestrator_SubmitRunSucceeds(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()
	clientset := fake.NewSimpleClientset()
	config := MonitorConfig{PollInterval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxAttempts: 1000}
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, store, DefaultKubeOptions(), config, nil)

	run, err := o.SubmitRun(context.Background(), RunRequest{Name: "hello", Image: "ubuntu:latest", Commands: []string{"echo", "hi"}})
	if err != nil {
		t.Fatalf("SubmitRun unexpectedly failed: %s", err)
	}
	if run.Status != models.RUN_RUNNING {
		t.Errorf("expected returned run to be running, got %s", run.Status)
	}
	if run.K8sJobName != models.WorkloadNameForRun(run.Id) || len(run.K8sJobName) != 46 {
		t.Errorf("unexpected job name %s", run.K8sJobName)
	}

	jobs := clientset.BatchV1().Jobs("default")
	job, getErr := jobs.Get(context.Background(), run.K8sJobName, metav1.GetOptions{})
	if getErr != nil {
		t.Fatalf("submitted job not found: %s", getErr)
	}
	job.Status.Conditions = append(job.Status.Conditions, v1batch.JobCondition{Type: v1batch.JobComplete, Status: v12.ConditionTrue})
	if _, updateErr := jobs.Update(context.Background(), job, metav1.UpdateOptions{}); updateErr != nil {
		t.Fatalf("could not complete the job: %s", updateErr)
	}

	o.Wait()

	stored, _ := store.GetRunById(context.Background(), run.Id)
	if stored.Status != models.RUN_SUCCEEDED {
		t.Errorf("expected stored status succeeded, got %s", stored.Status)
	}
	if stored.Duration == nil || *stored.Duration < 0 {
		t.Errorf("expected a non-negative duration, got %s", spew.Sdump(stored.Duration))
	}
	if writes := store.Writes(); len(writes) != 2 || writes[0] != models.RUN_RUNNING || writes[1] != models.RUN_SUCCEEDED {
		t.Errorf("expected running then one terminal write, got %v", writes)
	}
	if o.ActiveMonitors() != 0 {
		t.Errorf("expected no active monitors, got %d", o.ActiveMonitors())
	}
}

/**
submit, check what landed in the cluster, delete it, then status must be NotFound
*/
func TestOrchestrator_RoundTrip(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()
	clientset := fake.NewSimpleClientset()
	config := MonitorConfig{PollInterval: 5 * time.Millisecond, MaxInterval: 5 * time.Millisecond, MaxAttempts: 1000}
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, store, DefaultKubeOptions(), config, nil)

	run, err := o.SubmitRun(context.Background(), RunRequest{Name: "round trip", Image: "busybox", Commands: []string{"sleep", "10"}})
	if err != nil {
		t.Fatalf("SubmitRun unexpectedly failed: %s", err)
	}

	job, getErr := clientset.BatchV1().Jobs("default").Get(context.Background(), run.K8sJobName, metav1.GetOptions{})
	if getErr != nil {
		t.Fatalf("submitted job not found: %s", getErr)
	}
	if job.Labels["app"] != "sparktest" || job.Labels["component"] != "test-runner" {
		t.Errorf("wrong labels on submitted job: %s", spew.Sdump(job.Labels))
	}
	if job.Spec.BackoffLimit == nil || *job.Spec.BackoffLimit != 0 {
		t.Errorf("expected backoffLimit 0, got %s", spew.Sdump(job.Spec.BackoffLimit))
	}

	status, statusErr := o.GetStatus(context.Background(), run.K8sJobName)
	if statusErr != nil || status != JOB_RUNNING {
		t.Errorf("expected running, got %s %v", status, statusErr)
	}

	if deleteErr := o.DeleteJob(context.Background(), run.K8sJobName); deleteErr != nil {
		t.Fatalf("DeleteJob unexpectedly failed: %s", deleteErr)
	}

	afterStatus, afterErr := o.GetStatus(context.Background(), run.K8sJobName)
	if afterStatus != JOB_UNKNOWN || !errors.Is(afterErr, ErrNotFound) {
		t.Errorf("expected NotFound after delete, got %s %v", afterStatus, afterErr)
	}

	//the monitor notices the job has gone and leaves the record alone
	o.Wait()
	stored, _ := store.GetRunById(context.Background(), run.Id)
	if stored.Status != models.RUN_RUNNING {
		t.Errorf("expected run to stay running after its job was deleted, got %s", stored.Status)
	}
}

func TestOrchestrator_SubmitRejected(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()
	clientset := fake.NewSimpleClientset()
	clientset.PrependReactor("create", "jobs", func(action k8stesting.Action) (bool, runtime.Object, error) {
		return true, nil, errors.New("quota exceeded")
	})
	recorder := &fakeRecorder{}
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, store, DefaultKubeOptions(), fastMonitorConfig(5), recorder)

	_, err := o.SubmitRun(context.Background(), RunRequest{Name: "nope", Image: "busybox", Commands: []string{"true"}})
	if !errors.Is(err, ErrSubmitRejected) {
		t.Errorf("expected ErrSubmitRejected, got %v", err)
	}
	if o.ActiveMonitors() != 0 || len(recorder.outcomes) != 0 {
		t.Error("no monitor should be started for a rejected job")
	}

	all, _ := store.ListRuns(context.Background(), 0)
	if len(all) != 1 || all[0].Status != models.RUN_PENDING {
		t.Errorf("expected the run record to stay pending, got %s", spew.Sdump(all))
	}

	_, noImageErr := o.SubmitRun(context.Background(), RunRequest{Name: "no image"})
	if !errors.Is(noImageErr, ErrSubmitRejected) {
		t.Errorf("expected ErrSubmitRejected without an image, got %v", noImageErr)
	}
}

func TestOrchestrator_GetRunLogs(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()
	run := createRunningRun(t, store)
	clientset := fake.NewSimpleClientset(
		testJob(run.K8sJobName, v1batch.JobComplete),
		testPod("pod-for-run", run.K8sJobName, v12.PodSucceeded),
	)
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, store, DefaultKubeOptions(), fastMonitorConfig(5), nil)

	logs, err := o.GetRunLogs(context.Background(), run.Id)
	if err != nil {
		t.Fatalf("GetRunLogs unexpectedly failed: %s", err)
	}
	if logs.PodName != "pod-for-run" || logs.Status != JOB_COMPLETED {
		t.Errorf("unexpected logs %s", spew.Sdump(logs))
	}

	_, missingErr := o.GetRunLogs(context.Background(), uuid.New())
	if !errors.Is(missingErr, ErrNotFound) {
		t.Errorf("expected NotFound for an unknown run, got %v", missingErr)
	}
}

func TestOrchestrator_Shutdown(t *testing.T) {
	s, store := newMonitorTestStore(t)
	defer s.Close()
	clientset := fake.NewSimpleClientset()
	config := MonitorConfig{PollInterval: time.Hour, MaxInterval: time.Hour, MaxAttempts: 30}
	o := NewOrchestrator(StaticClientProvider{Clientset: clientset}, store, DefaultKubeOptions(), config, nil)

	run, err := o.SubmitRun(context.Background(), RunRequest{Name: "long", Image: "busybox", Commands: []string{"sleep", "3600"}})
	if err != nil {
		t.Fatalf("SubmitRun unexpectedly failed: %s", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if shutdownErr := o.Shutdown(ctx); shutdownErr != nil {
		t.Errorf("Shutdown did not finish: %s", shutdownErr)
	}
	stored, _ := store.GetRunById(context.Background(), run.Id)
	if stored.Status != models.RUN_RUNNING {
		t.Errorf("a cancelled monitor must not write, got %s", stored.Status)
	}
}
