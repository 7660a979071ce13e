package runs

import (
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"github.com/sparktest/orchestrator/webapp/observability"
	"net/http"
)

type RunsEndpoints struct {
	CreateListHandler CreateListHandler
	GetHandler        GetRunHandler
	LogsHandler       RunLogsHandler
}

func NewRunsEndpoints(orchestrator *jobrunner.Orchestrator) RunsEndpoints {
	return RunsEndpoints{
		CreateListHandler: CreateListHandler{orchestrator},
		GetHandler:        GetRunHandler{orchestrator},
		LogsHandler:       RunLogsHandler{orchestrator},
	}
}

func (e RunsEndpoints) WireUp(baseUrlPath string, metrics *observability.Metrics) {
	http.Handle(baseUrlPath+"/get", metrics.Instrument(baseUrlPath+"/get", e.GetHandler))
	http.Handle(baseUrlPath+"/logs", metrics.Instrument(baseUrlPath+"/logs", e.LogsHandler))
	http.Handle(baseUrlPath, metrics.Instrument(baseUrlPath, e.CreateListHandler))
}
