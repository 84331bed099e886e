// Package config defines the SDK configuration and its file loader.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Version is the SDK version reported in telemetry batch metadata.
const Version = "0.1.0"

// Config is the main configuration structure for the SDK.
type Config struct {
	// ProjectID identifies the project on the delivery backend.
	ProjectID string `yaml:"project_id"`

	Endpoint EndpointConfig `yaml:"endpoint"`
	Cache    CacheConfig    `yaml:"cache"`
	HTTP     HTTPConfig     `yaml:"http"`
	Track    TrackConfig    `yaml:"track"`
	Logging  LoggingConfig  `yaml:"logging"`
	Storage  StorageConfig  `yaml:"storage"`
}

// EndpointConfig holds the backend endpoints.
type EndpointConfig struct {
	// CDN serves experiment catalogs and components.
	CDN string `yaml:"cdn"`
	// Track receives telemetry batches.
	Track string `yaml:"track"`
}

// CacheConfig controls the in-memory catalog cache.
type CacheConfig struct {
	// CacheTime is how long a fetched payload stays usable.
	CacheTime time.Duration `yaml:"cache_time"`
	// StaleTime is the window after CacheTime during which a stale payload
	// is still returned while a background refresh runs. Zero disables
	// stale serving.
	StaleTime time.Duration `yaml:"stale_time"`
}

// HTTPConfig bounds outbound requests.
type HTTPConfig struct {
	Timeout     time.Duration `yaml:"timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// TrackConfig controls the telemetry pipeline.
type TrackConfig struct {
	// FlushPeriod is the periodic flush interval, armed on first enqueue.
	FlushPeriod time.Duration `yaml:"flush_period"`
	// BatchSize triggers an immediate flush when the buffer reaches it.
	BatchSize int `yaml:"batch_size"`
	// MaxQueueSize is the hard cap; oldest events beyond it are dropped.
	MaxQueueSize int `yaml:"max_queue_size"`
	// Crashes enables durable crash recording.
	Crashes bool `yaml:"crashes"`
}

// LoggingConfig controls SDK logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StorageConfig locates the on-device database.
type StorageConfig struct {
	// Path to the sqlite database file; ":memory:" for ephemeral state.
	Path string `yaml:"path"`
}

// Default returns the configuration used when the host app overrides
// nothing but the project id.
func Default() Config {
	return Config{
		Endpoint: EndpointConfig{
			CDN:   "https://cdn.nubrick.dev",
			Track: "https://track.nubrick.dev/track/v1",
		},
		Cache: CacheConfig{
			CacheTime: 24 * time.Hour,
			StaleTime: 0,
		},
		HTTP: HTTPConfig{
			Timeout:     10 * time.Second,
			MaxAttempts: 3,
		},
		Track: TrackConfig{
			FlushPeriod:  4 * time.Second,
			BatchSize:    50,
			MaxQueueSize: 300,
			Crashes:      true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Storage: StorageConfig{
			Path: ":memory:",
		},
	}
}

// Normalize fills zero-valued fields from Default so partially specified
// configs behave predictably.
func (c *Config) Normalize() {
	def := Default()
	if c.Endpoint.CDN == "" {
		c.Endpoint.CDN = def.Endpoint.CDN
	}
	if c.Endpoint.Track == "" {
		c.Endpoint.Track = def.Endpoint.Track
	}
	if c.Cache.CacheTime <= 0 {
		c.Cache.CacheTime = def.Cache.CacheTime
	}
	if c.Cache.StaleTime < 0 {
		c.Cache.StaleTime = 0
	}
	if c.HTTP.Timeout <= 0 {
		c.HTTP.Timeout = def.HTTP.Timeout
	}
	if c.HTTP.MaxAttempts <= 0 {
		c.HTTP.MaxAttempts = def.HTTP.MaxAttempts
	}
	if c.Track.FlushPeriod <= 0 {
		c.Track.FlushPeriod = def.Track.FlushPeriod
	}
	if c.Track.BatchSize <= 0 {
		c.Track.BatchSize = def.Track.BatchSize
	}
	if c.Track.MaxQueueSize <= 0 {
		c.Track.MaxQueueSize = def.Track.MaxQueueSize
	}
	if c.Track.MaxQueueSize < c.Track.BatchSize {
		c.Track.MaxQueueSize = c.Track.BatchSize
	}
	if c.Storage.Path == "" {
		c.Storage.Path = def.Storage.Path
	}
}

// Validate reports configuration problems a host app must fix.
func (c *Config) Validate() error {
	var issues []string
	if strings.TrimSpace(c.ProjectID) == "" {
		issues = append(issues, "project_id is required")
	}
	if !strings.HasPrefix(c.Endpoint.CDN, "http") {
		issues = append(issues, fmt.Sprintf("endpoint.cdn %q is not a URL", c.Endpoint.CDN))
	}
	if !strings.HasPrefix(c.Endpoint.Track, "http") {
		issues = append(issues, fmt.Sprintf("endpoint.track %q is not a URL", c.Endpoint.Track))
	}
	if len(issues) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(issues, "; "))
	}
	return nil
}
