package runs

import (
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"log"
	"net/http"
)

const DEFAULT_LIST_LIMIT = 100

/**
POST creates a run and starts its job, GET lists runs newest first (?limit=n, 0 for everything)
*/
type CreateListHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h CreateListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "POST":
		h.create(w, r)
	case "GET":
		h.list(w, r)
	default:
		helpers.AssertHttpMethod(r, w, "GET", "POST")
	}
}

func (h CreateListHandler) create(w http.ResponseWriter, r *http.Request) {
	var rq jobrunner.RunRequest
	readErr := helpers.ReadJsonBody(r.Body, &rq)
	if readErr != nil {
		log.Print("ERROR CreateListHandler could not read request body: ", readErr)
		helpers.WriteJsonContent(helpers.GenericErrorResponse{Status: "error", Detail: "Invalid json request body"}, w, 400)
		return
	}

	run, err := h.orchestrator.SubmitRun(r.Context(), rq)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}

	view, viewErr := NewRunView(run)
	if viewErr != nil {
		log.Printf("ERROR CreateListHandler could not build view of run %s: %s", run.Id, viewErr)
		helpers.WriteJsonContent(helpers.GenericErrorResponse{Status: "error", Detail: "Could not output run"}, w, 500)
		return
	}
	helpers.WriteJsonContent(view, w, 201)
}

func (h CreateListHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, paramErr := helpers.GetNonNegativeIntFromQuerystring(r.RequestURI, "limit", DEFAULT_LIST_LIMIT)
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}
	runs, err := h.orchestrator.ListRuns(r.Context(), limit)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	views, viewErr := NewRunViews(runs)
	if viewErr != nil {
		log.Printf("ERROR CreateListHandler could not build run views: %s", viewErr)
		helpers.WriteJsonContent(helpers.GenericErrorResponse{Status: "error", Detail: "Could not output runs"}, w, 500)
		return
	}
	helpers.WriteJsonContent(map[string]interface{}{"status": "ok", "entries": views}, w, 200)
}

type GetRunHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h GetRunHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return //error is already output
	}

	runId, paramErr := helpers.GetUuidFromQuerystring(r.RequestURI, "runId")
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}

	run, err := h.orchestrator.GetRun(r.Context(), *runId)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	view, viewErr := NewRunView(run)
	if viewErr != nil {
		log.Printf("ERROR GetRunHandler could not build view of run %s: %s", run.Id, viewErr)
		helpers.WriteJsonContent(helpers.GenericErrorResponse{Status: "error", Detail: "Could not output run"}, w, 500)
		return
	}
	helpers.WriteJsonContent(map[string]interface{}{"status": "ok", "entry": view}, w, 200)
}

type RunLogsHandler struct {
	orchestrator *jobrunner.Orchestrator
}

func (h RunLogsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !helpers.AssertHttpMethod(r, w, "GET") {
		return
	}

	runId, paramErr := helpers.GetUuidFromQuerystring(r.RequestURI, "runId")
	if paramErr != nil {
		helpers.WriteJsonContent(paramErr, w, 400)
		return
	}

	logs, err := h.orchestrator.GetRunLogs(r.Context(), *runId)
	if err != nil {
		jobrunner.WriteErrorResponse(w, err)
		return
	}
	helpers.WriteJsonContent(logs, w, 200)
}
