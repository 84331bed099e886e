// Package container orchestrates content delivery: fetch catalog, resolve
// a config, select a variant, record the exposure, fetch the component.
package container

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nubrick/nubrick-go/internal/experiment"
	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/internal/remote"
	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/internal/user"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// ErrNotFound is returned when no eligible config, variant, or component
// exists for a request. A normal, silent outcome.
var ErrNotFound = remote.ErrNotFound

// Fetcher is the CDN collaborator. *remote.Client implements it.
type Fetcher interface {
	Experiment(ctx context.Context, experimentID string) (*models.ExperimentConfigs, error)
	Trigger(ctx context.Context, triggerName string) (*models.ExperimentConfigs, error)
	Component(ctx context.Context, experimentID, componentID string) (json.RawMessage, error)
}

// Tracker is the telemetry collaborator. *track.Pipeline implements it.
type Tracker interface {
	Enqueue(ev models.TrackEvent)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Fetcher Fetcher
	Tracker Tracker
	History storage.HistoryStore
	User    *user.User
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Container sequences fetch, resolve, select, track, and component fetch
// for one project. Safe for concurrent use.
type Container struct {
	fetcher Fetcher
	tracker Tracker
	history storage.HistoryStore
	user    *user.User
	log     *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// Content is a delivered piece of content: the winning experiment, the
// selected variant, and its renderable component payload.
type Content struct {
	ExperimentID string
	Kind         models.ExperimentKind
	Variant      *models.ExperimentVariant
	Component    json.RawMessage
}

// New creates a container.
func New(cfg Config) *Container {
	log := cfg.Logger
	if log == nil {
		log = observability.NewNopLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Container{
		fetcher: cfg.Fetcher,
		tracker: cfg.Tracker,
		history: cfg.History,
		user:    cfg.User,
		log:     log.Component("container"),
		metrics: cfg.Metrics,
		now:     now,
	}
}

// FetchEmbedding delivers EMBED content registered under an experiment id.
// A non-empty componentID bypasses resolution and fetches that component
// directly, the path previews use.
func (c *Container) FetchEmbedding(ctx context.Context, experimentID, componentID string) (*Content, error) {
	if componentID != "" {
		component, err := c.fetcher.Component(ctx, experimentID, componentID)
		if err != nil {
			return nil, err
		}
		return &Content{ExperimentID: experimentID, Kind: models.ExperimentKindEmbed, Component: component}, nil
	}

	catalog, err := c.fetcher.Experiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	return c.deliver(ctx, catalog, []models.ExperimentKind{models.ExperimentKindEmbed})
}

// FetchTriggerContent records the triggering user event, then delivers the
// first eligible content across the requested kinds.
func (c *Container) FetchTriggerContent(ctx context.Context, trigger string, kinds []models.ExperimentKind) (*Content, error) {
	c.tracker.Enqueue(models.NewUserEvent(trigger, c.now()))
	if err := c.history.AppendUserEvent(ctx, trigger); err != nil {
		c.log.Warn(ctx, "append user event history", "event", trigger, "error", err)
	}

	catalog, err := c.fetcher.Trigger(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return c.deliver(ctx, catalog, kinds)
}

// FetchRemoteConfig resolves a CONFIG experiment and returns the selected
// variant, whose key/value entries are the remote configuration. No
// component fetch happens.
func (c *Container) FetchRemoteConfig(ctx context.Context, experimentID string) (*models.ExperimentVariant, error) {
	catalog, err := c.fetcher.Experiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	cfg, variant, err := c.resolveVariant(ctx, catalog, []models.ExperimentKind{models.ExperimentKindConfig})
	if err != nil {
		return nil, err
	}
	c.recordExposure(cfg.ID, variant.ID)
	return variant, nil
}

// deliver resolves a variant out of the catalog, records the exposure, and
// fetches the variant's component.
func (c *Container) deliver(ctx context.Context, catalog *models.ExperimentConfigs, kinds []models.ExperimentKind) (*Content, error) {
	cfg, variant, err := c.resolveVariant(ctx, catalog, kinds)
	if err != nil {
		return nil, err
	}

	componentID := variant.ComponentID()
	if componentID == "" {
		c.countResolution(cfg.Kind, "not_found")
		return nil, ErrNotFound
	}

	c.recordExposure(cfg.ID, variant.ID)

	component, err := c.fetcher.Component(ctx, cfg.ID, componentID)
	if err != nil {
		return nil, err
	}
	c.countResolution(cfg.Kind, "selected")
	return &Content{
		ExperimentID: cfg.ID,
		Kind:         cfg.Kind,
		Variant:      variant,
		Component:    component,
	}, nil
}

func (c *Container) resolveVariant(ctx context.Context, catalog *models.ExperimentConfigs, kinds []models.ExperimentKind) (*models.ExperimentConfig, *models.ExperimentVariant, error) {
	now := c.now()
	cfg := experiment.Resolve(catalog, kinds, now, experiment.Predicates{
		Properties: c.user.Properties,
		IsNotInFrequency: func(experimentID string, freq *models.ExperimentFrequency) bool {
			ok, err := storage.IsNotInFrequency(ctx, c.history, experimentID, freq, now)
			if err != nil {
				c.log.Warn(ctx, "frequency lookup failed", "experiment", experimentID, "error", err)
				return false
			}
			return ok
		},
		MatchedEventFrequency: func(conds []models.UserEventFrequencyCondition) bool {
			ok, err := storage.MatchedEventFrequency(ctx, c.history, conds, now)
			if err != nil {
				c.log.Warn(ctx, "event frequency lookup failed", "error", err)
				return false
			}
			return ok
		},
	})
	if cfg == nil {
		c.countKindsResolution(kinds, "not_found")
		return nil, nil, ErrNotFound
	}

	variant := experiment.SelectVariant(cfg, c.user.NormalizedRnd(cfg.Seed))
	if variant == nil {
		c.countResolution(cfg.Kind, "not_found")
		return nil, nil, ErrNotFound
	}
	return cfg, variant, nil
}

// recordExposure enqueues the exposure event and appends delivery history.
// Fire-and-forget: the caller's result never waits on it.
func (c *Container) recordExposure(experimentID, variantID string) {
	now := c.now()
	c.tracker.Enqueue(models.NewExperimentEvent(experimentID, variantID, now))
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.history.AppendExperimentHistory(ctx, experimentID); err != nil {
			c.log.Warn(ctx, "append experiment history", "experiment", experimentID, "error", err)
		}
	}()
}

func (c *Container) countResolution(kind models.ExperimentKind, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.ResolutionCounter.WithLabelValues(string(kind), outcome).Inc()
}

func (c *Container) countKindsResolution(kinds []models.ExperimentKind, outcome string) {
	for _, k := range kinds {
		c.countResolution(k, outcome)
	}
}
