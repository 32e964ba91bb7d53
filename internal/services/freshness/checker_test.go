package freshness

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
)

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	c := NewChecker(arbor.NewLogger(), &common.FreshnessConfig{
		Timeout:           "2s",
		MaxConcurrent:     4,
		RequestsPerSecond: 1000,
	})
	return c.(*Checker)
}

// manifestServer serves a figpack.json body for every request.
func manifestServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fig/figpack.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func outputWith(url string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"result": {"figpack_url": %q}}`, url))
}

func TestIsFresh_NoURLs(t *testing.T) {
	checker := newTestChecker(t)

	tests := []struct {
		name   string
		output json.RawMessage
	}{
		{"empty output", nil},
		{"null output", json.RawMessage(`null`)},
		{"no figpack fields", json.RawMessage(`{"value": 42, "items": [1, 2]}`)},
		{"figpack_url is not a string", json.RawMessage(`{"figpack_url": 7}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, checker.IsFresh(context.Background(), tt.output))
		})
	}
}

func TestIsFresh_ManifestStates(t *testing.T) {
	future := float64(time.Now().Add(time.Hour).UnixMilli()) / 1000.0
	past := float64(time.Now().Add(-time.Hour).UnixMilli()) / 1000.0

	tests := []struct {
		name     string
		manifest string
		fresh    bool
	}{
		{"pinned", `{"pinned": true}`, true},
		{"future expiration", fmt.Sprintf(`{"expiration": %f}`, future), true},
		{"past expiration unpinned", fmt.Sprintf(`{"expiration": %f}`, past), false},
		{"past expiration but pinned", fmt.Sprintf(`{"pinned": true, "expiration": %f}`, past), true},
		{"deleted true", `{"deleted": true, "pinned": true}`, false},
		{"deleted truthy string", `{"deleted": "yes", "pinned": true}`, false},
		{"deleted false with future expiration", fmt.Sprintf(`{"deleted": false, "expiration": %f}`, future), true},
		{"no markers at all", `{}`, false},
		{"expiration wrong type", `{"expiration": "tomorrow"}`, false},
		{"pinned wrong type", `{"pinned": "true"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := manifestServer(t, tt.manifest)
			checker := newTestChecker(t)

			output := outputWith(srv.URL + "/fig/index.html")
			assert.Equal(t, tt.fresh, checker.IsFresh(context.Background(), output))
		})
	}
}

func TestIsFresh_FetchFailures(t *testing.T) {
	checker := newTestChecker(t)

	t.Run("url without index suffix", func(t *testing.T) {
		output := outputWith("http://example.invalid/fig/")
		assert.False(t, checker.IsFresh(context.Background(), output))
	})

	t.Run("non-2xx response", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusNotFound)
		}))
		defer srv.Close()

		output := outputWith(srv.URL + "/fig/index.html")
		assert.False(t, checker.IsFresh(context.Background(), output))
	})

	t.Run("unreachable host", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		output := outputWith(srv.URL + "/fig/index.html")
		assert.False(t, checker.IsFresh(context.Background(), output))
	})

	t.Run("malformed manifest", func(t *testing.T) {
		srv := manifestServer(t, `{not json`)
		output := outputWith(srv.URL + "/fig/index.html")
		assert.False(t, checker.IsFresh(context.Background(), output))
	})
}

func TestIsFresh_MultipleURLs(t *testing.T) {
	good := manifestServer(t, `{"pinned": true}`)
	bad := manifestServer(t, `{"deleted": true}`)
	checker := newTestChecker(t)

	output := json.RawMessage(fmt.Sprintf(`{
		"figures": [
			{"figpack_url": %q},
			{"nested": {"figpack_url": %q}}
		]
	}`, good.URL+"/fig/index.html", bad.URL+"/fig/index.html"))

	// One stale figure spoils the whole result.
	assert.False(t, checker.IsFresh(context.Background(), output))

	allGood := json.RawMessage(fmt.Sprintf(`{
		"figures": [
			{"figpack_url": %q},
			{"nested": {"figpack_url": %q}}
		]
	}`, good.URL+"/fig/index.html", good.URL+"/fig/index.html"))
	assert.True(t, checker.IsFresh(context.Background(), allGood))
}

func TestCollectFigpackURLs(t *testing.T) {
	output := json.RawMessage(`{
		"figpack_url": "http://a/index.html",
		"nested": {"figpack_url": "http://b/index.html"},
		"list": [{"figpack_url": "http://c/index.html"}],
		"other": "http://d/index.html"
	}`)

	urls := collectFigpackURLs(output)
	assert.ElementsMatch(t, []string{
		"http://a/index.html",
		"http://b/index.html",
		"http://c/index.html",
	}, urls)
}

func TestTruthy(t *testing.T) {
	assert.False(t, truthy(nil))
	assert.False(t, truthy(false))
	assert.False(t, truthy(float64(0)))
	assert.False(t, truthy(""))
	assert.True(t, truthy(true))
	assert.True(t, truthy(float64(1)))
	assert.True(t, truthy("x"))
}
