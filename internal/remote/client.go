// Package remote fetches experiment catalogs and component payloads from
// the CDN, with caching, bounded retries, and typed errors.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nubrick/nubrick-go/internal/cache"
	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/internal/retry"
	"github.com/nubrick/nubrick-go/pkg/models"
)

const maxResponseBody = 4 << 20

// ClientConfig configures the CDN client.
type ClientConfig struct {
	// BaseURL is the CDN origin, without a trailing slash.
	BaseURL string

	// ProjectID scopes every request path.
	ProjectID string

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration

	// Retry is the policy for transient failures.
	Retry retry.Config

	// Cache stores responses keyed by request URL. Nil disables caching.
	Cache *cache.Store

	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// Client fetches catalogs and components from the CDN.
type Client struct {
	httpClient *http.Client
	baseURL    string
	projectID  string
	retryCfg   retry.Config
	cache      *cache.Store
	log        *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates a CDN client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retryCfg := cfg.Retry
	if retryCfg.MaxAttempts <= 0 {
		retryCfg = retry.DefaultConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		projectID:  cfg.ProjectID,
		retryCfg:   retryCfg,
		cache:      cfg.Cache,
		log:        log.Component("remote"),
		metrics:    cfg.Metrics,
	}
}

// Experiment fetches the catalog registered under an experiment id.
func (c *Client) Experiment(ctx context.Context, experimentID string) (*models.ExperimentConfigs, error) {
	u := fmt.Sprintf("%s/projects/%s/experiments/id/%s",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(experimentID))
	return c.fetchCatalog(ctx, u)
}

// Trigger fetches the catalog of configs listening on a trigger event.
func (c *Client) Trigger(ctx context.Context, triggerName string) (*models.ExperimentConfigs, error) {
	u := fmt.Sprintf("%s/projects/%s/experiments/trigger/%s",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(triggerName))
	return c.fetchCatalog(ctx, u)
}

// Component fetches a variant's renderable component payload. The payload
// is opaque to the SDK and handed to the embedding host as-is.
func (c *Client) Component(ctx context.Context, experimentID, componentID string) (json.RawMessage, error) {
	u := fmt.Sprintf("%s/projects/%s/experiments/components/%s/%s",
		c.baseURL, url.PathEscape(c.projectID), url.PathEscape(experimentID), url.PathEscape(componentID))
	body, err := c.fetch(ctx, u, "component")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &DecodeError{Cause: fmt.Errorf("component %s/%s: invalid json", experimentID, componentID)}
	}
	return json.RawMessage(body), nil
}

func (c *Client) fetchCatalog(ctx context.Context, u string) (*models.ExperimentConfigs, error) {
	body, err := c.fetch(ctx, u, "catalog")
	if err != nil {
		return nil, err
	}
	if err := validateCatalog(body); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	var catalog models.ExperimentConfigs
	if err := json.Unmarshal(body, &catalog); err != nil {
		return nil, &DecodeError{Cause: err}
	}
	return &catalog, nil
}

// fetch returns the response body for a GET of u, serving fresh cache hits
// without touching the network and falling back to a stale entry when the
// network fails.
func (c *Client) fetch(ctx context.Context, u, resource string) ([]byte, error) {
	var staleBody []byte
	if c.cache != nil {
		body, stale, ok := c.cache.Get(u)
		if ok && !stale {
			return body, nil
		}
		if ok {
			staleBody = body
		}
	}

	start := time.Now()
	body, result := retry.DoWithValue(ctx, c.retryCfg, func() ([]byte, error) {
		return c.get(ctx, u)
	})
	if c.metrics != nil {
		status := "success"
		if result.Err != nil {
			status = "error"
		}
		c.metrics.FetchDuration.WithLabelValues(resource, status).Observe(time.Since(start).Seconds())
	}
	if result.Err != nil {
		if staleBody != nil && !retry.IsPermanent(result.Err) {
			c.log.Warn(ctx, "fetch failed, serving stale cache", "url", u, "error", result.Err)
			return staleBody, nil
		}
		return nil, result.Err
	}

	if c.cache != nil {
		c.cache.Set(u, body)
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Permanent(&TransportError{URL: u, Cause: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{URL: u, Cause: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, retry.Permanent(ErrNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &TransportError{URL: u, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, retry.Permanent(&TransportError{URL: u, Cause: fmt.Errorf("status %d", resp.StatusCode)})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &TransportError{URL: u, Cause: err}
	}
	return body, nil
}
