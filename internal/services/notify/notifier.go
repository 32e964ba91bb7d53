// -----------------------------------------------------------------------
// Package notify publishes best-effort new-job events to an external relay
// -----------------------------------------------------------------------

package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/httpclient"
	"github.com/ternarybob/runpack/internal/interfaces"
	"github.com/ternarybob/runpack/internal/models"
)

// Notifier posts a new-job event to the configured relay. Delivery is
// fire-and-forget: the submit path never waits on it, and failures are
// logged and dropped. An empty relay URL disables notification.
type Notifier struct {
	config common.NotifyConfig
	client *http.Client
	logger arbor.ILogger
}

// NewNotifier creates a new notify service
func NewNotifier(logger arbor.ILogger, config *common.Config) interfaces.NotifyService {
	return &Notifier{
		config: config.Notify,
		client: httpclient.NewDefaultHTTPClient(config.NotifyTimeout()),
		logger: logger,
	}
}

// notifyPayload is the relay wire format.
type notifyPayload struct {
	Topic   string        `json:"topic"`
	Message notifyMessage `json:"message"`
}

type notifyMessage struct {
	Type      string `json:"type"`
	JobID     string `json:"job_id"`
	JobHash   string `json:"job_hash"`
	JobType   string `json:"job_type"`
	Timestamp int64  `json:"timestamp"`
}

// NotifyNewJob announces a freshly created job in the background.
func (n *Notifier) NotifyNewJob(job *models.Job) {
	if n.config.URL == "" {
		return
	}

	payload := notifyPayload{
		Topic: n.config.Topic,
		Message: notifyMessage{
			Type:      "new_job",
			JobID:     job.ID,
			JobHash:   job.Hash,
			JobType:   job.Type,
			Timestamp: time.Now().UnixMilli(),
		},
	}

	go n.send(payload)
}

func (n *Notifier) send(payload notifyPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to serialize notify payload")
		return
	}

	req, err := http.NewRequest(http.MethodPost, n.config.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Warn().Err(err).Msg("Failed to build notify request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if n.config.PublishKey != "" {
		req.Header.Set("Authorization", "Bearer "+n.config.PublishKey)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		n.logger.Warn().Err(err).Str("job_id", payload.Message.JobID).Msg("Notify delivery failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.logger.Warn().Int("status", resp.StatusCode).Str("job_id", payload.Message.JobID).Msg("Notify relay rejected event")
		return
	}

	n.logger.Debug().Str("job_id", payload.Message.JobID).Msg("New job event published")
}
