package runs

import (
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
	"github.com/sparktest/orchestrator/common/models"
	"time"
)

/**
what the api hands back for a run. Copied field-by-field from models.Run, with Finished worked out
from the status
*/
type RunView struct {
	Id               uuid.UUID        `json:"id"`
	Name             string           `json:"name"`
	Image            string           `json:"image"`
	Commands         []string         `json:"commands"`
	Status           models.RunStatus `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	PodScheduled     *time.Time       `json:"pod_scheduled,omitempty"`
	ContainerCreated *time.Time       `json:"container_created,omitempty"`
	ContainerStarted *time.Time       `json:"container_started,omitempty"`
	Completed        *time.Time       `json:"completed,omitempty"`
	Failed           *time.Time       `json:"failed,omitempty"`
	Duration         *int             `json:"duration,omitempty"`
	K8sJobName       string           `json:"k8s_job_name"`
	Finished         bool             `json:"finished"`
}

func NewRunView(run *models.Run) (*RunView, error) {
	var view RunView
	if err := copier.Copy(&view, run); err != nil {
		return nil, err
	}
	view.Finished = run.Status.IsTerminal()
	if view.Commands == nil {
		view.Commands = []string{}
	}
	return &view, nil
}

func NewRunViews(runs []*models.Run) ([]*RunView, error) {
	rtn := make([]*RunView, 0, len(runs))
	for _, run := range runs {
		view, err := NewRunView(run)
		if err != nil {
			return nil, err
		}
		rtn = append(rtn, view)
	}
	return rtn, nil
}
