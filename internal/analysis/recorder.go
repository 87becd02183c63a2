package analysis

import (
	"time"

	"github.com/tphakala/livesound/internal/myaudio"
	"github.com/tphakala/livesound/internal/results"
)

// Recorder receives pipeline measurements from every stage a session runs.
// *metrics.PipelineMetrics implements it, including on a nil receiver.
type Recorder interface {
	myaudio.CaptureRecorder
	results.Recorder
	RecordInference(model string, d time.Duration, err error)
	RecordSilentWindow()
	RecordSessionStart(outcome string)
	SetSessionState(state string)
}

type noopRecorder struct{}

func (noopRecorder) RecordCaptureRead(int)                        {}
func (noopRecorder) RecordCaptureError(string)                    {}
func (noopRecorder) RecordResultPublished()                       {}
func (noopRecorder) RecordResultDropped()                         {}
func (noopRecorder) RecordInference(string, time.Duration, error) {}
func (noopRecorder) RecordSilentWindow()                          {}
func (noopRecorder) RecordSessionStart(string)                    {}
func (noopRecorder) SetSessionState(string)                       {}
