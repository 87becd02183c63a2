// Package metrics provides Prometheus collectors for the capture and
// inference pipeline and its publishers.
package metrics

// Label values shared across collectors.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSuccess = "success"

	// session start outcomes
	OutcomeStarted      = "started"
	OutcomeModelLoad    = "model_load_failed"
	OutcomeDeviceInit   = "device_init_failed"
	OutcomeOtherFailure = "failed"
)

// SessionStates lists the values of the session state gauge label, in
// lifecycle order.
var SessionStates = []string{"idle", "initializing", "running", "stopped"}
