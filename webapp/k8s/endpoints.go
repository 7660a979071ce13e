package k8s

import (
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"github.com/sparktest/orchestrator/webapp/observability"
	"net/http"
)

type K8sEndpoints struct {
	HealthHandler HealthHandler
	LogsHandler   LogsHandler
	StatusHandler StatusHandler
	DeleteHandler DeleteHandler
}

func NewK8sEndpoints(orchestrator *jobrunner.Orchestrator) K8sEndpoints {
	return K8sEndpoints{
		HealthHandler: HealthHandler{orchestrator},
		LogsHandler:   LogsHandler{orchestrator},
		StatusHandler: StatusHandler{orchestrator},
		DeleteHandler: DeleteHandler{orchestrator},
	}
}

func (e K8sEndpoints) WireUp(baseUrlPath string, metrics *observability.Metrics) {
	http.Handle(baseUrlPath+"/health", metrics.Instrument(baseUrlPath+"/health", e.HealthHandler))
	http.Handle(baseUrlPath+"/logs", metrics.Instrument(baseUrlPath+"/logs", e.LogsHandler))
	http.Handle(baseUrlPath+"/status", metrics.Instrument(baseUrlPath+"/status", e.StatusHandler))
	http.Handle(baseUrlPath+"/job", metrics.Instrument(baseUrlPath+"/job", e.DeleteHandler))
}
