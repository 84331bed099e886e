// Package nubrick is the client-side experimentation and content delivery
// SDK: it resolves which variant a user sees, sequences popup and embed
// content, and ships exposure telemetry.
package nubrick

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nubrick/nubrick-go/internal/cache"
	"github.com/nubrick/nubrick-go/internal/config"
	"github.com/nubrick/nubrick-go/internal/container"
	"github.com/nubrick/nubrick-go/internal/dispatch"
	"github.com/nubrick/nubrick-go/internal/navigation"
	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/internal/remote"
	"github.com/nubrick/nubrick-go/internal/retry"
	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/internal/track"
	"github.com/nubrick/nubrick-go/internal/user"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// Version is the SDK version string.
const Version = config.Version

// Config is the SDK configuration. Build one with DefaultConfig or load a
// yaml file with LoadConfig.
type Config = config.Config

// DefaultConfig returns the stock configuration; set ProjectID before use.
func DefaultConfig() Config {
	return config.Default()
}

// LoadConfig reads a yaml configuration file with ${ENV_VAR} expansion.
func LoadConfig(path string) (Config, error) {
	return config.Load(path)
}

// ErrNotFound is returned by content requests with no eligible config,
// variant, or component. A normal outcome, not a failure.
var ErrNotFound = container.ErrNotFound

// Content is a delivered piece of content.
type Content = container.Content

// Option customizes a Client beyond its file configuration.
type Option func(*options)

type options struct {
	registry prometheus.Registerer
	meta     models.TrackMeta
	observer navigation.Observer
	collab   navigation.Collaborators
	tooltip  dispatch.TooltipSink
}

// WithMetricsRegistry registers the SDK metrics on reg.
func WithMetricsRegistry(reg prometheus.Registerer) Option {
	return func(o *options) { o.registry = reg }
}

// WithAppInfo sets the host application identity reported in telemetry.
func WithAppInfo(appID, appVersion string) Option {
	return func(o *options) {
		o.meta.AppID = appID
		o.meta.AppVersion = appVersion
	}
}

// WithObserver registers a callback for navigation state snapshots.
func WithObserver(obs navigation.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithCollaborators sets the host-specific navigation sinks: tooltip
// anchors, component resizing, deep-link opening.
func WithCollaborators(c navigation.Collaborators) Option {
	return func(o *options) { o.collab = c }
}

// WithTooltipSink enables tooltip delivery and routes payloads to sink.
func WithTooltipSink(sink dispatch.TooltipSink) Option {
	return func(o *options) { o.tooltip = sink }
}

// Client is the SDK entry point. Create one per project with New and keep
// it for the process lifetime.
type Client struct {
	cfg        config.Config
	log        *observability.Logger
	stores     storage.StoreSet
	user       *user.User
	pipeline   *track.Pipeline
	crashes    *track.CrashStore
	container  *container.Container
	dispatcher *dispatch.Dispatcher
}

// New builds a Client from cfg. It opens local storage, restores the user
// identity, recovers any crash record from the previous run, and leaves
// the client ready to dispatch.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Client, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	log := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics(o.registry)

	stores, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	u, err := user.New(ctx, stores.KV)
	if err != nil {
		stores.Close()
		return nil, err
	}

	cdn := remote.NewClient(remote.ClientConfig{
		BaseURL:   cfg.Endpoint.CDN,
		ProjectID: cfg.ProjectID,
		Timeout:   cfg.HTTP.Timeout,
		Retry: retry.Config{
			MaxAttempts:  cfg.HTTP.MaxAttempts,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Factor:       2,
			Jitter:       true,
		},
		Cache: cache.New(cache.Options{
			TTL:   cfg.Cache.CacheTime,
			Stale: cfg.Cache.StaleTime,
		}),
		Logger:  log,
		Metrics: metrics,
	})

	meta := o.meta
	meta.OSName = runtime.GOOS
	meta.SDKVersion = Version
	meta.Platform = "go"

	pipeline := track.NewPipeline(track.Config{
		ProjectID:    cfg.ProjectID,
		UserID:       u.ID(),
		Meta:         meta,
		FlushPeriod:  cfg.Track.FlushPeriod,
		BatchSize:    cfg.Track.BatchSize,
		MaxQueueSize: cfg.Track.MaxQueueSize,
		Sender:       track.NewHTTPSender(cfg.Endpoint.Track, cfg.HTTP.Timeout),
		Logger:       log,
		Metrics:      metrics,
	})

	crashes := track.NewCrashStore(stores.KV)
	if cfg.Track.Crashes {
		pipeline.RecoverCrash(ctx, crashes)
	}

	cont := container.New(container.Config{
		Fetcher: cdn,
		Tracker: pipeline,
		History: stores.History,
		User:    u,
		Logger:  log,
		Metrics: metrics,
	})

	dispatcher := dispatch.New(dispatch.Config{
		Orchestrator:  cont,
		User:          u,
		Observer:      o.observer,
		Collaborators: o.collab,
		Tooltip:       o.tooltip,
		Logger:        log,
	})

	return &Client{
		cfg:        cfg,
		log:        log.Component("client"),
		stores:     stores,
		user:       u,
		pipeline:   pipeline,
		crashes:    crashes,
		container:  cont,
		dispatcher: dispatcher,
	}, nil
}

// UserID returns the stable per-device user id.
func (c *Client) UserID() string {
	return c.user.ID()
}

// SetUserProperty records a custom targeting property for this session.
func (c *Client) SetUserProperty(name, value string, typ models.UserPropertyType) {
	c.user.SetProperty(name, value, typ)
}

// Embedding delivers EMBED content registered under experimentID. Pass a
// componentID to preview that component without resolution.
func (c *Client) Embedding(ctx context.Context, experimentID, componentID string) (*Content, error) {
	return c.container.FetchEmbedding(ctx, experimentID, componentID)
}

// RemoteConfig resolves a CONFIG experiment and returns the selected
// variant holding the key/value configuration.
func (c *Client) RemoteConfig(ctx context.Context, experimentID string) (*models.ExperimentVariant, error) {
	return c.container.FetchRemoteConfig(ctx, experimentID)
}

// Dispatch fires a named trigger event end to end: record, resolve,
// deliver, open.
func (c *Client) Dispatch(ctx context.Context, name string) error {
	return c.dispatcher.Dispatch(ctx, name)
}

// Boot fires the SDK-start lifecycle events. Call once after New.
func (c *Client) Boot(ctx context.Context) error {
	return c.dispatcher.Boot(ctx)
}

// Foreground notifies the SDK that the app returned to the foreground.
func (c *Client) Foreground(ctx context.Context) error {
	return c.dispatcher.Foreground(ctx)
}

// Root returns the open navigation root with the given id.
func (c *Client) Root(id string) (*navigation.Root, bool) {
	return c.dispatcher.Root(id)
}

// TrackEvent enqueues a custom telemetry event without triggering any
// content delivery.
func (c *Client) TrackEvent(name string) {
	c.pipeline.Enqueue(models.NewUserEvent(name, time.Now()))
}

// RecordCrash persists err's cause chain durably so the next run can
// report it. Safe to call from a dying process; never fails loudly.
func (c *Client) RecordCrash(ctx context.Context, err error) {
	if !c.cfg.Track.Crashes {
		return
	}
	c.crashes.Record(ctx, err)
}

// Flush posts buffered telemetry immediately.
func (c *Client) Flush(ctx context.Context) error {
	return c.pipeline.Flush(ctx)
}

// Close dismisses open roots, flushes telemetry, and closes storage.
func (c *Client) Close(ctx context.Context) error {
	c.dispatcher.Close()
	flushErr := c.pipeline.Close(ctx)
	if err := c.stores.Close(); err != nil {
		return err
	}
	return flushErr
}
