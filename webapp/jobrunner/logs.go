package jobrunner

import (
	"context"
	"fmt"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"io/ioutil"
	v1batch "k8s.io/api/batch/v1"
	v12 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"log"
	"time"
)

const NO_LOGS_PLACEHOLDER = "No logs available yet"

type JobStatus string

const (
	JOB_COMPLETED JobStatus = "completed"
	JOB_FAILED    JobStatus = "failed"
	JOB_RUNNING   JobStatus = "running"
	JOB_UNKNOWN   JobStatus = "unknown"
)

/**
where the text in JobLogs.Logs came from. Only LOGS_CONTAINER means it is real container output,
the other two are placeholders
*/
type LogSource string

const (
	LOGS_CONTAINER   LogSource = "container"
	LOGS_POD_PENDING LogSource = "pending"
	LOGS_UNAVAILABLE LogSource = "unavailable"
)

type JobLogs struct {
	JobName   string    `json:"job_name"`
	PodName   string    `json:"pod_name"`
	Logs      string    `json:"logs"`
	Source    LogSource `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Status    JobStatus `json:"status"`
}

type LogFetcher func(ctx context.Context, client kubernetes.Interface, namespace string, podName string, opts *v12.PodLogOptions) (string, error)

type JobReader struct {
	opts      KubeOptions
	fetchLogs LogFetcher
}

func NewJobReader(opts KubeOptions) *JobReader {
	return &JobReader{opts: opts, fetchLogs: streamPodLogs}
}

func NewJobReaderWithFetcher(opts KubeOptions, fetcher LogFetcher) *JobReader {
	return &JobReader{opts: opts, fetchLogs: fetcher}
}

/**
coarse status of a job from its conditions. Complete wins over Failed if (somehow) both are set
*/
func JobStatusFromConditions(job *v1batch.Job) JobStatus {
	if hasCondition(job, v1batch.JobComplete) {
		return JOB_COMPLETED
	} else if hasCondition(job, v1batch.JobFailed) {
		return JOB_FAILED
	}
	return JOB_RUNNING
}

func hasCondition(job *v1batch.Job, condType v1batch.JobConditionType) bool {
	for _, c := range job.Status.Conditions {
		if c.Type == condType && c.Status == v12.ConditionTrue {
			return true
		}
	}
	return false
}

func (r *JobReader) GetJobStatus(ctx context.Context, client kubernetes.Interface, workloadName string) (JobStatus, error) {
	job, getErr := client.BatchV1().Jobs(r.opts.Namespace).Get(ctx, workloadName, metav1.GetOptions{})
	if getErr != nil {
		return JOB_UNKNOWN, classifyK8sError("GetJobStatus", workloadName, getErr, ErrTransientRead)
	}
	return JobStatusFromConditions(job), nil
}

/**
status and the tail of the logs for a job. A missing job or pod is an error; anything that goes wrong
after the pod has been found is turned into placeholder text so the caller always gets a JobLogs back
*/
func (r *JobReader) GetJobLogs(ctx context.Context, client kubernetes.Interface, workloadName string) (*JobLogs, error) {
	job, podName, resolveErr := resolveJobPod(ctx, client, r.opts.Namespace, workloadName)
	if resolveErr != nil {
		return nil, resolveErr
	}

	rtn := &JobLogs{
		JobName:   workloadName,
		PodName:   podName,
		Timestamp: time.Now().UTC(),
		Status:    JobStatusFromConditions(job),
	}

	pod, phase := readPod(ctx, client, r.opts.Namespace, podName)
	if phase == POD_PENDING {
		rtn.Logs = fmt.Sprintf("Pod is pending: %s", PendingReason(pod))
		rtn.Source = LOGS_POD_PENDING
		return rtn, nil
	}

	tailLines := r.opts.MaxLogLines
	text, fetchErr := r.fetchLogs(ctx, client, r.opts.Namespace, podName, &v12.PodLogOptions{
		TailLines:  &tailLines,
		Timestamps: true,
	})
	if fetchErr != nil {
		log.Printf("WARNING GetJobLogs %s", newError(ErrTransientRead, "GetJobLogs", podName, fetchErr))
		rtn.Logs = NO_LOGS_PLACEHOLDER
		rtn.Source = LOGS_UNAVAILABLE
		return rtn, nil
	}

	rtn.Logs = sanitiseLogText(text)
	rtn.Source = LOGS_CONTAINER
	return rtn, nil
}

/**
delete the job and, through background propagation, its pods. Only the delete call's own failure is returned
*/
func (r *JobReader) DeleteWorkload(ctx context.Context, client kubernetes.Interface, workloadName string) error {
	propagation := metav1.DeletePropagationBackground
	err := client.BatchV1().Jobs(r.opts.Namespace).Delete(ctx, workloadName, metav1.DeleteOptions{
		PropagationPolicy: &propagation,
	})
	if err != nil {
		log.Printf("ERROR DeleteWorkload could not delete %s: %s", workloadName, err)
		return classifyK8sError("DeleteWorkload", workloadName, err, ErrRequestFailed)
	}
	log.Printf("INFO DeleteWorkload deleted job %s", workloadName)
	return nil
}

func streamPodLogs(ctx context.Context, client kubernetes.Interface, namespace string, podName string, opts *v12.PodLogOptions) (string, error) {
	stream, streamErr := client.CoreV1().Pods(namespace).GetLogs(podName, opts).Stream(ctx)
	if streamErr != nil {
		return "", streamErr
	}
	defer stream.Close()

	content, readErr := ioutil.ReadAll(stream)
	if readErr != nil {
		return "", readErr
	}
	return string(content), nil
}

/**
container output can be anything; make sure what we hand to the json encoder is valid utf-8
*/
func sanitiseLogText(text string) string {
	result, _, err := transform.String(runes.ReplaceIllFormed(), text)
	if err != nil {
		return text
	}
	return result
}
