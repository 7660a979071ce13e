package jobrunner

import (
	"context"
	"errors"
	"io/ioutil"
	v1batch "k8s.io/api/batch/v1"
	v12 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
	v1 "k8s.io/client-go/kubernetes/typed/batch/v1"
	"log"
	"reflect"
)

const (
	LABEL_APP       = "app"
	LABEL_COMPONENT = "component"
	LABEL_JOB_NAME  = "job-name"
	COMPONENT_NAME  = "test-runner"
)

/**
Loads up a job manifest to use as the starting point for test run jobs
*/
func LoadFromTemplate(fileName string) (*v1batch.Job, error) {
	bytes, readErr := ioutil.ReadFile(fileName)
	if readErr != nil {
		return nil, readErr
	}
	//THIS is the right way to read k8s manifests.... https://github.com/kubernetes/client-go/issues/193
	decode := scheme.Codecs.UniversalDeserializer()

	obj, _, err := decode.Decode(bytes, nil, nil)
	if err != nil {
		return nil, err
	}

	switch obj.(type) {
	case *v1batch.Job:
		return obj.(*v1batch.Job), nil
	default:
		log.Printf("ERROR LoadFromTemplate expected to get a job from template %s but got %s instead", fileName, reflect.TypeOf(obj).String())
		return nil, errors.New("Wrong manifest type")
	}
}

/**
builds the Job for a test run. If opts.JobTemplate is set the manifest is loaded from there and then
the fields we rely on are forced onto it, so whatever the template says the job is still found by the
pod resolver, never retried and cleaned up by the cluster an hour after finishing.
*/
func BuildJobManifest(name string, image string, command []string, opts KubeOptions) (*v1batch.Job, error) {
	var job *v1batch.Job
	if opts.JobTemplate != "" {
		loaded, loadErr := LoadFromTemplate(opts.JobTemplate)
		if loadErr != nil {
			log.Printf("ERROR BuildJobManifest could not load job template %s: %s", opts.JobTemplate, loadErr)
			return nil, loadErr
		}
		job = loaded
	} else {
		job = &v1batch.Job{}
	}

	backoffLimit := int32(0)
	ttl := opts.TTLAfterFinished

	job.ObjectMeta.Name = name
	job.ObjectMeta.GenerateName = ""
	job.ObjectMeta.Namespace = opts.Namespace
	job.ObjectMeta.Labels = mergeLabels(job.ObjectMeta.Labels, map[string]string{
		LABEL_APP:       opts.ProductLabel,
		LABEL_COMPONENT: COMPONENT_NAME,
	})

	job.Spec.BackoffLimit = &backoffLimit
	job.Spec.TTLSecondsAfterFinished = &ttl
	job.Spec.Template.ObjectMeta.Labels = mergeLabels(job.Spec.Template.ObjectMeta.Labels, map[string]string{
		LABEL_JOB_NAME: name,
		LABEL_APP:      opts.ProductLabel,
	})

	var container v12.Container
	if len(job.Spec.Template.Spec.Containers) > 0 {
		//keep env, resources etc. from the template
		container = job.Spec.Template.Spec.Containers[0]
	}
	container.Name = name
	container.Image = image
	container.Command = command
	container.Args = nil

	job.Spec.Template.Spec.Containers = []v12.Container{container}
	job.Spec.Template.Spec.RestartPolicy = v12.RestartPolicyNever
	return job, nil
}

func mergeLabels(existing map[string]string, forced map[string]string) map[string]string {
	rtn := make(map[string]string, len(existing)+len(forced))
	for k, v := range existing {
		rtn[k] = v
	}
	for k, v := range forced {
		rtn[k] = v
	}
	return rtn
}

/**
create the job and return. We don't wait for it to start, that is what the run monitor is for.
Any failure from the api server is a SubmitRejected.
*/
func SubmitJob(ctx context.Context, jobClient v1.JobInterface, job *v1batch.Job) error {
	_, err := jobClient.Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		log.Printf("ERROR SubmitJob can't create job %s: %s", job.Name, err)
		return newError(ErrSubmitRejected, "SubmitJob", job.Name, err)
	}
	log.Printf("INFO SubmitJob created job %s in %s", job.Name, job.Namespace)
	return nil
}
