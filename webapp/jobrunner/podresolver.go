package jobrunner

import (
	"context"
	"errors"
	"fmt"
	v1batch "k8s.io/api/batch/v1"
	v12 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"log"
)

const UNKNOWN_PENDING_REASON = "Unknown reason"

type PodPhase string

const (
	POD_PENDING   PodPhase = "Pending"
	POD_RUNNING   PodPhase = "Running"
	POD_SUCCEEDED PodPhase = "Succeeded"
	POD_FAILED    PodPhase = "Failed"
	POD_UNKNOWN   PodPhase = "Unknown"
)

/**
find the pod backing the given job. The job itself is fetched first so that a query for a job that
does not exist comes back as NotFound rather than as an empty pod list
*/
func ResolvePod(ctx context.Context, client kubernetes.Interface, namespace string, workloadName string) (string, error) {
	_, podName, err := resolveJobPod(ctx, client, namespace, workloadName)
	return podName, err
}

/**
the job and the name of its pod, for callers that also need the job's conditions
*/
func resolveJobPod(ctx context.Context, client kubernetes.Interface, namespace string, workloadName string) (*v1batch.Job, string, error) {
	job, getErr := client.BatchV1().Jobs(namespace).Get(ctx, workloadName, metav1.GetOptions{})
	if getErr != nil {
		return nil, "", classifyK8sError("ResolvePod", workloadName, getErr, ErrTransientRead)
	}
	podName, podErr := podForJob(ctx, client, namespace, workloadName)
	if podErr != nil {
		return nil, "", podErr
	}
	return job, podName, nil
}

/**
first pod carrying the job-name label for the given job. The list order is whatever the api server
gives us; with backoffLimit 0 there is only ever one pod anyway
*/
func podForJob(ctx context.Context, client kubernetes.Interface, namespace string, workloadName string) (string, error) {
	podList, listErr := client.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: fmt.Sprintf("%s=%s", LABEL_JOB_NAME, workloadName),
	})
	if listErr != nil {
		log.Printf("ERROR podForJob could not list pods for %s: %s", workloadName, listErr)
		return "", classifyK8sError("ResolvePod", workloadName, listErr, ErrTransientRead)
	}
	if len(podList.Items) == 0 {
		return "", newError(ErrNotFound, "ResolvePod", workloadName, errors.New("no pods found for job"))
	}
	return podList.Items[0].Name, nil
}

/**
current phase of the named pod. Anything we can't read comes back as Unknown
*/
func ReadPodPhase(ctx context.Context, client kubernetes.Interface, namespace string, podName string) PodPhase {
	_, phase := readPod(ctx, client, namespace, podName)
	return phase
}

//the pod is nil whenever the phase is Unknown because of a read failure
func readPod(ctx context.Context, client kubernetes.Interface, namespace string, podName string) (*v12.Pod, PodPhase) {
	pod, getErr := client.CoreV1().Pods(namespace).Get(ctx, podName, metav1.GetOptions{})
	if getErr != nil {
		log.Printf("WARNING ReadPodPhase could not get pod %s: %s", podName, getErr)
		return nil, POD_UNKNOWN
	}
	return pod, phaseOf(pod)
}

func phaseOf(pod *v12.Pod) PodPhase {
	switch pod.Status.Phase {
	case v12.PodPending:
		return POD_PENDING
	case v12.PodRunning:
		return POD_RUNNING
	case v12.PodSucceeded:
		return POD_SUCCEEDED
	case v12.PodFailed:
		return POD_FAILED
	default:
		return POD_UNKNOWN
	}
}

/**
why a pending pod is pending, taken from the reason on its PodScheduled=False condition
*/
func PendingReason(pod *v12.Pod) string {
	for _, c := range pod.Status.Conditions {
		if c.Type == v12.PodScheduled && c.Status == v12.ConditionFalse && c.Reason != "" {
			return c.Reason
		}
	}
	return UNKNOWN_PENDING_REASON
}
