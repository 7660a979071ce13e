package jobrunner

import "time"

/**
receives events the metrics layer cares about. Implemented by observability.Metrics; a nil Recorder
is replaced with one that does nothing
*/
type Recorder interface {
	RunSubmitted()
	SubmitFailed(indicator string)
	MonitorStarted()
	MonitorFinished(outcome MonitorOutcome, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) RunSubmitted()                                {}
func (noopRecorder) SubmitFailed(string)                          {}
func (noopRecorder) MonitorStarted()                              {}
func (noopRecorder) MonitorFinished(MonitorOutcome, time.Duration) {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}
