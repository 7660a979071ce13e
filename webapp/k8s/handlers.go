package k8s

import (
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"net/http"
	"time"
)

type HealthHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return //error is already output
	}

	result := h.orchestrator.HealthCheck(r.Context())
	if result.Healthy {
		helpers.WriteJsonContent(result, w, 200)
	} else {
		helpers.WriteJsonContent(result, w, 503)
	}
}

type LogsHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h LogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return
	}

	jobName, paramErr := helpers.GetStringFromQuerystring(r.RequestURI, "jobName")
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}

	logs, err := h.orchestrator.GetLogs(r.Context(), jobName)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJsonContent(logs, w, 200)
}

type JobStatusResponse struct {
	JobName   string              `json:"job_name"`
	Status    jobrunner.JobStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
}

type StatusHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return
	}

	jobName, paramErr := helpers.GetStringFromQuerystring(r.RequestURI, "jobName")
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}

	status, err := h.orchestrator.GetStatus(r.Context(), jobName)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJsonContent(JobStatusResponse{
		JobName:   jobName,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}, w, 200)
}

type DeleteResponse struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type DeleteHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "DELETE") {
		return
	}

	jobName, paramErr := helpers.GetStringFromQuerystring(r.RequestURI, "jobName")
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}

	err := h.orchestrator.DeleteJob(r.Context(), jobName)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJsonContent(DeleteResponse{
		Message:   "Job " + jobName + " deleted",
		Timestamp: time.Now().UTC(),
	}, w, 200)
}
