package main

import (
	"context"
	"errors"
	"flag"
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/common/models"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"github.com/sparktest/orchestrator/webapp/k8s"
	"github.com/sparktest/orchestrator/webapp/observability"
	"github.com/sparktest/orchestrator/webapp/runs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

type MyHttpApp struct {
	healthcheck HealthcheckHandler
	k8s         k8s.K8sEndpoints
	runs        runs.RunsEndpoints
}

func main() {
	var app MyHttpApp
	configFile := flag.String("config", "config/serverconfig.yaml", "server configuration file")
	flag.Parse()

	/*
		read in config and establish connection to persistence layer
	*/
	log.Printf("Reading config from %s", *configFile)
	config, configReadErr := helpers.ReadConfig(*configFile)
	log.Print("Done.")

	if configReadErr != nil {
		log.Fatal("No configuration, can't continue")
	}

	ctx := context.Background()
	store, closeStore, storeErr := models.OpenRunStore(ctx, config)
	if storeErr != nil {
		log.Fatal("Could not connect to the run store: ", storeErr)
	}
	defer closeStore()

	metrics, metricsHandler, metricsErr := observability.NewMetrics(ctx)
	if metricsErr != nil {
		log.Fatal("Could not set up metrics: ", metricsErr)
	}

	//the client itself is built on first use, so a cluster that isn't there yet doesn't stop startup
	kubeOptions := jobrunner.KubeOptionsFromConfig(config)
	clientFactory := jobrunner.NewClientFactory(kubeOptions)
	orchestrator := jobrunner.NewOrchestrator(
		clientFactory,
		store,
		kubeOptions,
		jobrunner.MonitorConfigFromConfig(config),
		metrics,
	)

	health := orchestrator.HealthCheck(ctx)
	if health.Healthy {
		log.Print("INFO Kubernetes cluster is reachable")
	} else {
		log.Printf("WARNING Kubernetes cluster is not reachable (%s). Job-running functionality won't work until it is.", health.Reason)
	}

	app.healthcheck.store = store
	app.k8s = k8s.NewK8sEndpoints(orchestrator)
	app.runs = runs.NewRunsEndpoints(orchestrator)

	http.Handle("/default", http.NotFoundHandler())
	http.Handle("/healthcheck", app.healthcheck)

	app.k8s.WireUp("/api/k8s", metrics)
	app.runs.WireUp("/api/test-runs", metrics)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metricsHandler)
	go func() {
		log.Printf("Starting metrics server on %s", config.MetricsAddress)
		if err := http.ListenAndServe(config.MetricsAddress, metricsMux); err != nil {
			log.Printf("ERROR metrics server stopped: %s", err)
		}
	}()

	server := &http.Server{Addr: config.ListenAddress}
	shutdownComplete := make(chan struct{})
	go func() {
		defer close(shutdownComplete)
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigs
		log.Printf("Received %s, shutting down", sig)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		shutdownServices(shutdownCtx, server, orchestrator)
	}()

	log.Printf("Starting server on %s", config.ListenAddress)
	startServerErr := server.ListenAndServe()

	if startServerErr != nil && startServerErr != http.ErrServerClosed {
		log.Fatal(startServerErr)
	}
	<-shutdownComplete
}

/**
stop taking requests, then stop the run monitors. Both get the same deadline; anything that did not
finish in time is logged and returned
*/
func shutdownServices(ctx context.Context, server *http.Server, orchestrator *jobrunner.Orchestrator) error {
	serverErr := server.Shutdown(ctx)
	if serverErr != nil {
		log.Printf("WARNING http server did not shut down cleanly: %s", serverErr)
	}
	monitorsErr := orchestrator.Shutdown(ctx)
	if monitorsErr != nil {
		log.Printf("WARNING %d run monitors were still active at shutdown", orchestrator.ActiveMonitors())
	}
	return errors.Join(serverErr, monitorsErr)
}
