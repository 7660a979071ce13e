package main

import (
	"context"
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/common/models"
	"log"
	"net/http"
	"time"
)

type HealthcheckHandler struct {
	store models.RunStore
}

func (h HealthcheckHandler) ServeHTTP(w http.ResponseWriter, request *http.Request) {
	ctx, cancel := context.WithTimeout(request.Context(), 5*time.Second)
	defer cancel()
	err := h.store.Ping(ctx)

	if err == nil {
		w.WriteHeader(200)
	} else {
		log.Printf("HEALTHCHECK FAILED: %s connecting to the run store", err)
		response := helpers.GenericErrorResponse{
			Status: "error",
			Detail: "could not contact run store",
		}
		helpers.WriteJsonContent(response, w, 500)
	}
}
