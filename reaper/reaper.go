package main

import (
	"context"
	"errors"
	mapset "github.com/deckarep/golang-set"
	"github.com/sparktest/orchestrator/common/models"
	"github.com/sparktest/orchestrator/webapp/jobrunner"
	"log"
	"time"
)

type JobDeleter interface {
	DeleteJob(ctx context.Context, workloadName string) error
}

type ReapResult struct {
	Considered  int
	Deleted     int
	AlreadyGone int
	Failed      int
	Purged      int
}

/**
should this run's job be removed? Only runs older than the cutoff that either finished or have been
"running" for so long that their monitor must have given up
*/
func ShouldReap(run *models.Run, cutoffTime time.Time) bool {
	if !run.CreatedAt.Before(cutoffTime) {
		return false
	}
	return run.Status.IsTerminal() || run.Status == models.RUN_RUNNING
}

/**
delete the cluster jobs of every run that ShouldReap picks out. A job that is already gone (e.g. removed
by its TTL) is not an error. With purge set the run records themselves are removed as well
*/
func ReapRuns(ctx context.Context, runs []*models.Run, cutoffTime time.Time, dryRun bool, purge bool, jobs JobDeleter, store models.RunStore) ReapResult {
	var result ReapResult
	seen := mapset.NewSet()

	for _, run := range runs {
		if !ShouldReap(run, cutoffTime) {
			continue
		}
		if seen.Contains(run.K8sJobName) {
			log.Printf("WARNING ReapRuns job %s is claimed by more than one run, skipping run %s", run.K8sJobName, run.Id)
			continue
		}
		seen.Add(run.K8sJobName)
		result.Considered++

		if dryRun {
			log.Printf("INFO ReapRuns would remove job %s for %s run %s created at %s", run.K8sJobName, run.Status, run.Id, run.CreatedAt)
			continue
		}

		err := jobs.DeleteJob(ctx, run.K8sJobName)
		if errors.Is(err, jobrunner.ErrNotFound) {
			result.AlreadyGone++
		} else if err != nil {
			log.Printf("ERROR ReapRuns could not delete job %s for run %s: %s", run.K8sJobName, run.Id, err)
			result.Failed++
			//not a fatal error
			continue
		} else {
			log.Printf("INFO ReapRuns removed job %s for run %s", run.K8sJobName, run.Id)
			result.Deleted++
		}

		if purge {
			if purgeErr := store.DeleteRun(ctx, run.Id); purgeErr != nil {
				log.Printf("ERROR ReapRuns could not remove run record %s: %s", run.Id, purgeErr)
			} else {
				result.Purged++
			}
		}
	}
	return result
}
