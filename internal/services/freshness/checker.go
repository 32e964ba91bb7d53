// -----------------------------------------------------------------------
// Package freshness probes cached results for deleted or expired
// external figure data
// -----------------------------------------------------------------------

package freshness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/runpack/internal/common"
	"github.com/ternarybob/runpack/internal/httpclient"
	"github.com/ternarybob/runpack/internal/interfaces"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// indexSuffix is the required tail of every probed URL.
	indexSuffix = "/index.html"

	// manifestName replaces the index page to locate the figure manifest.
	manifestName = "figpack.json"
)

// errStale aborts the probe group as soon as any URL fails its check.
var errStale = errors.New("cached figure is no longer valid")

// Checker probes figpack URLs referenced by a completed job's output.
// A result stays fresh only while every referenced figure still exists
// and is either pinned or not yet expired. Probe failures of any kind
// count as stale; the checker never surfaces them as errors.
type Checker struct {
	client        *http.Client
	limiter       *rate.Limiter
	maxConcurrent int
	logger        arbor.ILogger
}

// Option configures the Checker.
type Option func(*Checker)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.client = client
	}
}

// WithRateLimit sets a custom outbound request rate.
func WithRateLimit(requestsPerSecond float64) Option {
	return func(c *Checker) {
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// NewChecker creates a freshness checker from config.
func NewChecker(logger arbor.ILogger, config *common.FreshnessConfig, opts ...Option) interfaces.FreshnessChecker {
	timeout := 10 * time.Second
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}

	maxConcurrent := config.MaxConcurrent
	if maxConcurrent < 1 {
		maxConcurrent = 4
	}

	rps := config.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	c := &Checker{
		client:        httpclient.NewDefaultHTTPClient(timeout),
		maxConcurrent: maxConcurrent,
		logger:        logger,
	}
	WithRateLimit(rps)(c)

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// IsFresh reports whether every figpack_url referenced by outputData still
// points at live figure data. Results referencing no figpack URLs are
// always fresh.
func (c *Checker) IsFresh(ctx context.Context, outputData json.RawMessage) bool {
	urls := collectFigpackURLs(outputData)
	if len(urls) == 0 {
		return true
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)

	for _, u := range urls {
		url := u
		g.Go(func() error {
			return c.probe(gctx, url)
		})
	}

	if err := g.Wait(); err != nil {
		c.logger.Debug().Err(err).Int("urls", len(urls)).Msg("Cached result failed freshness probe")
		return false
	}
	return true
}

// probe fetches the figpack.json manifest behind one figure URL and
// checks its deletion and expiration markers.
func (c *Checker) probe(ctx context.Context, figURL string) error {
	if !strings.HasSuffix(figURL, indexSuffix) {
		return fmt.Errorf("unexpected figure url shape %q: %w", figURL, errStale)
	}
	manifestURL := strings.TrimSuffix(figURL, "index.html") + manifestName

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("manifest fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("manifest fetch returned status %d: %w", resp.StatusCode, errStale)
	}

	var manifest struct {
		Deleted    interface{} `json:"deleted"`
		Pinned     interface{} `json:"pinned"`
		Expiration interface{} `json:"expiration"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&manifest); err != nil {
		return fmt.Errorf("manifest parse failed: %w", err)
	}

	if truthy(manifest.Deleted) {
		return fmt.Errorf("figure deleted: %w", errStale)
	}
	if pinned, ok := manifest.Pinned.(bool); ok && pinned {
		return nil
	}
	if exp, ok := manifest.Expiration.(float64); ok {
		nowSec := float64(time.Now().UnixMilli()) / 1000.0
		if exp > nowSec {
			return nil
		}
	}
	return fmt.Errorf("figure expired and not pinned: %w", errStale)
}

// collectFigpackURLs walks the decoded output recursively, gathering every
// string value stored under a "figpack_url" key at any depth. Output that
// does not decode yields no URLs.
func collectFigpackURLs(outputData json.RawMessage) []string {
	if len(outputData) == 0 {
		return nil
	}

	var decoded interface{}
	if err := json.Unmarshal(outputData, &decoded); err != nil {
		return nil
	}

	var urls []string
	var walk func(v interface{})
	walk = func(v interface{}) {
		switch val := v.(type) {
		case map[string]interface{}:
			for k, child := range val {
				if k == "figpack_url" {
					if s, ok := child.(string); ok {
						urls = append(urls, s)
						continue
					}
				}
				walk(child)
			}
		case []interface{}:
			for _, child := range val {
				walk(child)
			}
		}
	}
	walk(decoded)
	return urls
}

// truthy mirrors loose boolean coercion over decoded JSON values: nil,
// false, zero numbers, and empty strings are falsy.
func truthy(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	default:
		return true
	}
}
