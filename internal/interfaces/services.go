package interfaces

import (
	"context"
	"encoding/json"

	"github.com/ternarybob/runpack/internal/models"
)

// NotifyService publishes fire-and-forget events about new jobs. Failures
// are logged and discarded; the submission path never waits on delivery.
type NotifyService interface {
	NotifyNewJob(job *models.Job)
}

// FreshnessChecker decides whether a cached completed result still
// references live external data. Probe failures of any kind are reported
// as not fresh, never as errors; the caller treats a stale result as
// expired and removes it.
type FreshnessChecker interface {
	IsFresh(ctx context.Context, outputData json.RawMessage) bool
}
