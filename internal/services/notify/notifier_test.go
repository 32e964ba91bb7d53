package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/models"
)

type receivedEvent struct {
	auth    string
	payload notifyPayload
}

func newRelay(t *testing.T) (*httptest.Server, chan receivedEvent) {
	t.Helper()
	events := make(chan receivedEvent, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload notifyPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		events <- receivedEvent{auth: r.Header.Get("Authorization"), payload: payload}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, events
}

func testJob() *models.Job {
	return &models.Job{
		ID:     "job-1",
		Hash:   "abc123",
		Type:   "render",
		Status: models.JobStatusPending,
	}
}

func TestNotifyNewJob_PublishesEvent(t *testing.T) {
	srv, events := newRelay(t)

	config := common.NewDefaultConfig()
	config.Notify.URL = srv.URL
	config.Notify.Topic = "runpack-jobs"
	config.Notify.PublishKey = "relay-key"

	notifier := NewNotifier(arbor.NewLogger(), config)
	notifier.NotifyNewJob(testJob())

	select {
	case got := <-events:
		assert.Equal(t, "Bearer relay-key", got.auth)
		assert.Equal(t, "runpack-jobs", got.payload.Topic)
		assert.Equal(t, "new_job", got.payload.Message.Type)
		assert.Equal(t, "job-1", got.payload.Message.JobID)
		assert.Equal(t, "abc123", got.payload.Message.JobHash)
		assert.Equal(t, "render", got.payload.Message.JobType)
		assert.NotZero(t, got.payload.Message.Timestamp)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNotifyNewJob_NoKeyOmitsAuthorization(t *testing.T) {
	srv, events := newRelay(t)

	config := common.NewDefaultConfig()
	config.Notify.URL = srv.URL
	config.Notify.Topic = "runpack-jobs"

	notifier := NewNotifier(arbor.NewLogger(), config)
	notifier.NotifyNewJob(testJob())

	select {
	case got := <-events:
		assert.Empty(t, got.auth)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestNotifyNewJob_DisabledWithoutURL(t *testing.T) {
	_, events := newRelay(t)

	config := common.NewDefaultConfig()
	config.Notify.Topic = "runpack-jobs"

	notifier := NewNotifier(arbor.NewLogger(), config)
	notifier.NotifyNewJob(testJob())

	select {
	case <-events:
		t.Fatal("event delivered despite empty relay URL")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyNewJob_RelayFailureIsDropped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	config := common.NewDefaultConfig()
	config.Notify.URL = srv.URL

	notifier := NewNotifier(arbor.NewLogger(), config)

	// Must not panic or block the caller.
	notifier.NotifyNewJob(testJob())
	time.Sleep(50 * time.Millisecond)
}
