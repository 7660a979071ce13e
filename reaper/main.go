package main

import (
	"context"
	"flag"
	"github.com/sparktest/orchestrator/common/helpers"
	"github.com/sparktest/orchestrator/common/models"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"log"
	"time"
)

func main() {
	maxAgeHours := flag.Int64("maxage", 36, "remove jobs for test runs that were created longer than this many hours ago")
	dryRun := flag.Bool("dryrun", true, "don't actually delete anything")
	purge := flag.Bool("purge", false, "remove the run records as well as their jobs")
	kubeConfigPath := flag.String("kubeconfig", "", ".kubeconfig file for running out of cluster. If not specified then the config file setting and then the usual fallbacks are tried")
	configFile := flag.String("config", "config/serverconfig.yaml", "server configuration file")

	flag.Parse()

	log.Printf("Reading config from %s", *configFile)
	config, configReadErr := helpers.ReadConfig(*configFile)
	log.Print("Done.")

	if configReadErr != nil {
		log.Fatal("No configuration, can't continue")
	}
	if *kubeConfigPath != "" {
		config.Kubernetes.KubeConfig = *kubeConfigPath
	}

	log.Printf("Dryrun is %t", *dryRun)
	ctx := context.Background()
	store, closeStore, storeErr := models.OpenRunStore(ctx, config)
	if storeErr != nil {
		log.Fatal("Could not connect to the run store: ", storeErr)
	}
	defer closeStore()

	opts := jobrunner.KubeOptionsFromConfig(config)
	clientFactory := jobrunner.NewClientFactory(opts)
	if _, cliErr := clientFactory.Client(); cliErr != nil {
		log.Fatalf("ERROR: Can't establish communication with Kubernetes: %s", cliErr)
	}
	orchestrator := jobrunner.NewOrchestrator(clientFactory, store, opts, jobrunner.MonitorConfigFromConfig(config), nil)

	startTime := time.Now()
	log.Printf("Reaping of old test runs starting at %s", startTime)

	cutoffTime := time.Now().Add(-time.Duration(*maxAgeHours) * time.Hour)
	log.Printf("Cutoff time is %s", cutoffTime)

	runs, listErr := orchestrator.ListRuns(ctx, 0)
	if listErr != nil {
		log.Fatalf("ERROR: Could not retrieve runs: %s", listErr)
	}

	result := ReapRuns(ctx, runs, cutoffTime, *dryRun, *purge, orchestrator, store)

	endTime := time.Now()
	log.Printf("Reaping run completed at %s and took %d seconds. %d runs considered, %d jobs deleted, %d already gone, %d failed, %d records purged",
		endTime, endTime.Unix()-startTime.Unix(), result.Considered, result.Deleted, result.AlreadyGone, result.Failed, result.Purged)
}
