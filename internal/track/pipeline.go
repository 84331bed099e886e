// Package track implements the telemetry pipeline: a bounded in-memory
// event queue flushed on a lazy timer or a batch threshold, with durable
// crash-record persistence and recovery.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/pkg/models"
)

const (
	defaultFlushPeriod  = 4 * time.Second
	defaultBatchSize    = 50
	defaultMaxQueueSize = 300
)

// Config configures the pipeline.
type Config struct {
	ProjectID string
	UserID    string
	Meta      models.TrackMeta

	// FlushPeriod is the lazy timer interval, armed on the first enqueue
	// after an idle flush.
	FlushPeriod time.Duration

	// BatchSize triggers an immediate flush when the queue reaches it.
	BatchSize int

	// MaxQueueSize caps the queue; oldest entries are dropped beyond it.
	MaxQueueSize int

	Sender  Sender
	Logger  *observability.Logger
	Metrics *observability.Metrics

	// Now overrides the clock in tests.
	Now func() time.Time
}

// Pipeline is the buffered telemetry queue. All methods are safe for
// concurrent use.
type Pipeline struct {
	mu       sync.Mutex
	buffer   []models.TrackEvent
	timer    *time.Timer
	inFlight bool

	projectID string
	userID    string
	meta      models.TrackMeta
	period    time.Duration
	batchSize int
	maxQueue  int
	sender    Sender
	log       *observability.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

// NewPipeline creates a pipeline. Nothing flushes until the first enqueue.
func NewPipeline(cfg Config) *Pipeline {
	if cfg.FlushPeriod <= 0 {
		cfg.FlushPeriod = defaultFlushPeriod
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = defaultMaxQueueSize
	}
	log := cfg.Logger
	if log == nil {
		log = observability.NewNopLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		projectID: cfg.ProjectID,
		userID:    cfg.UserID,
		meta:      cfg.Meta,
		period:    cfg.FlushPeriod,
		batchSize: cfg.BatchSize,
		maxQueue:  cfg.MaxQueueSize,
		sender:    cfg.Sender,
		log:       log.Component("track"),
		metrics:   cfg.Metrics,
		now:       now,
	}
}

// Enqueue appends an event. Arms the flush timer if idle; when the queue
// reaches the batch threshold the batch is flushed out of band immediately.
func (p *Pipeline) Enqueue(ev models.TrackEvent) {
	p.mu.Lock()
	p.buffer = append(p.buffer, ev)
	p.trimLocked()
	flushNow := len(p.buffer) >= p.batchSize && !p.inFlight
	if flushNow {
		p.inFlight = true
	} else if p.timer == nil {
		p.timer = time.AfterFunc(p.period, p.onTimer)
	}
	p.mu.Unlock()

	if flushNow {
		go func() {
			p.flushOnce(context.Background())
			p.mu.Lock()
			p.inFlight = false
			// Events enqueued during the flush still need a timer.
			if len(p.buffer) > 0 && p.timer == nil {
				p.timer = time.AfterFunc(p.period, p.onTimer)
			}
			p.mu.Unlock()
		}()
	}
}

// Flush posts everything buffered right now. Failed batches are re-merged
// into the queue in original order; the error is returned for callers that
// care but is never fatal to the pipeline.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.flushOnce(ctx)
}

// QueueLen reports the number of buffered events.
func (p *Pipeline) QueueLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.buffer)
}

// Close stops the timer and performs a final flush.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	p.stopTimerLocked()
	p.mu.Unlock()
	return p.flushOnce(ctx)
}

func (p *Pipeline) onTimer() {
	p.flushOnce(context.Background())
}

func (p *Pipeline) flushOnce(ctx context.Context) error {
	p.mu.Lock()
	p.stopTimerLocked()
	if len(p.buffer) == 0 {
		p.mu.Unlock()
		return nil
	}
	batch := p.buffer
	p.buffer = nil
	p.mu.Unlock()

	req := models.TrackRequest{
		ProjectID: p.projectID,
		UserID:    p.userID,
		Timestamp: p.now(),
		Events:    batch,
		Meta:      p.meta,
	}
	err := p.sender.Send(ctx, req)
	if err != nil {
		// Put the batch back ahead of anything enqueued while we were
		// posting, so relative order survives the retry.
		p.mu.Lock()
		p.buffer = append(batch, p.buffer...)
		p.trimLocked()
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.FlushCounter.WithLabelValues("error").Inc()
		}
		p.log.Warn(ctx, "telemetry flush failed, re-queued batch", "events", len(batch), "error", err)
		return err
	}

	if p.metrics != nil {
		p.metrics.FlushCounter.WithLabelValues("success").Inc()
		p.metrics.FlushBatchSize.Observe(float64(len(batch)))
	}
	p.log.Debug(ctx, "telemetry flushed", "events", len(batch))
	return nil
}

// trimLocked enforces the hard cap, dropping the oldest entries first.
func (p *Pipeline) trimLocked() {
	if over := len(p.buffer) - p.maxQueue; over > 0 {
		p.buffer = append(p.buffer[:0:0], p.buffer[over:]...)
	}
}

func (p *Pipeline) stopTimerLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}
