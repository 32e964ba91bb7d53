package models

import (
	"time"
)

// RunnerActiveWindow is the derived-activeness window. A runner is active
// iff now - last_seen is inside this window. Activeness is computed on
// read and never stored.
const RunnerActiveWindow = 5 * time.Minute

// Runner represents a registered worker process. Runners hold no durable
// state; the record exists so the coordinator can verify ids, match
// capabilities, and report activity.
type Runner struct {
	ID   string `json:"runner_id"`
	Name string `json:"name"`

	// Capabilities is the set of job types this runner will accept.
	// The available-jobs query filters on this set.
	Capabilities []string `json:"capabilities"`

	RegisteredAt int64 `json:"registered_at"`
	LastSeen     int64 `json:"last_seen" badgerhold:"index"`
}

// IsActive reports whether the runner has been seen within the activeness
// window, evaluated against nowMs (Unix milliseconds).
func (r *Runner) IsActive(nowMs int64) bool {
	return nowMs-r.LastSeen < RunnerActiveWindow.Milliseconds()
}

// CanRun reports whether the runner declares the given job type as a
// capability.
func (r *Runner) CanRun(jobType string) bool {
	for _, c := range r.Capabilities {
		if c == jobType {
			return true
		}
	}
	return false
}
