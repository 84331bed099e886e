package track

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/nubrick/nubrick-go/pkg/models"
)

// captureSender records every batch it is handed and can be told to fail.
type captureSender struct {
	mu      sync.Mutex
	batches [][]models.TrackEvent
	fail    bool
	sent    chan struct{}
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(chan struct{}, 16)}
}

func (s *captureSender) Send(_ context.Context, req models.TrackRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		select {
		case s.sent <- struct{}{}:
		default:
		}
		return errors.New("sender down")
	}
	batch := make([]models.TrackEvent, len(req.Events))
	copy(batch, req.Events)
	s.batches = append(s.batches, batch)
	select {
	case s.sent <- struct{}{}:
	default:
	}
	return nil
}

func (s *captureSender) setFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

func (s *captureSender) batchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *captureSender) batch(i int) []models.TrackEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches[i]
}

func newTestPipeline(sender Sender, batchSize, maxQueue int) *Pipeline {
	return NewPipeline(Config{
		ProjectID:    "proj",
		UserID:       "user",
		FlushPeriod:  time.Hour, // tests flush explicitly or via threshold
		BatchSize:    batchSize,
		MaxQueueSize: maxQueue,
		Sender:       sender,
	})
}

func userEvent(i int) models.TrackEvent {
	return models.NewUserEvent(fmt.Sprintf("event-%03d", i), time.Now())
}

func TestBatchThresholdTriggersOneFlush(t *testing.T) {
	sender := newCaptureSender()
	p := newTestPipeline(sender, 50, 300)

	for i := 0; i < 51; i++ {
		p.Enqueue(userEvent(i))
	}

	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("threshold flush never happened")
	}

	if got := sender.batchCount(); got != 1 {
		t.Fatalf("flush attempts = %d, want 1", got)
	}
	flushed := len(sender.batch(0))
	if remaining := p.QueueLen(); flushed+remaining != 51 {
		t.Errorf("flushed %d + queued %d != 51", flushed, remaining)
	}
	if flushed < 50 {
		t.Errorf("flushed %d events, want at least the threshold batch", flushed)
	}
}

func TestHardCapDropsOldest(t *testing.T) {
	sender := newCaptureSender()
	p := newTestPipeline(sender, 1000, 300) // threshold above cap, no auto flush

	for i := 0; i < 320; i++ {
		p.Enqueue(userEvent(i))
	}
	if got := p.QueueLen(); got != 300 {
		t.Fatalf("queue len = %d, want 300", got)
	}

	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	batch := sender.batch(0)
	if got := batch[0].User.Name; got != "event-020" {
		t.Errorf("oldest surviving event = %s, want event-020", got)
	}
	if got := batch[len(batch)-1].User.Name; got != "event-319" {
		t.Errorf("newest event = %s, want event-319", got)
	}
}

func TestFlushFailureRequeuesInOrder(t *testing.T) {
	sender := newCaptureSender()
	p := newTestPipeline(sender, 1000, 300)

	for i := 0; i < 3; i++ {
		p.Enqueue(userEvent(i))
	}

	sender.setFail(true)
	if err := p.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}
	if got := p.QueueLen(); got != 3 {
		t.Fatalf("queue len after failure = %d, want 3", got)
	}

	// New events land behind the re-queued batch.
	p.Enqueue(userEvent(3))
	p.Enqueue(userEvent(4))

	sender.setFail(false)
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	batch := sender.batch(0)
	if len(batch) != 5 {
		t.Fatalf("batch len = %d, want 5", len(batch))
	}
	for i, ev := range batch {
		want := fmt.Sprintf("event-%03d", i)
		if ev.User == nil || ev.User.Name != want {
			t.Errorf("batch[%d] = %+v, want %s", i, ev, want)
		}
	}
}

func TestTimerFlush(t *testing.T) {
	sender := newCaptureSender()
	p := NewPipeline(Config{
		ProjectID:   "proj",
		UserID:      "user",
		FlushPeriod: 20 * time.Millisecond,
		Sender:      sender,
	})

	p.Enqueue(userEvent(0))
	select {
	case <-sender.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("timer flush never happened")
	}
	if got := p.QueueLen(); got != 0 {
		t.Errorf("queue len = %d, want 0", got)
	}
}

func TestFlushEmptyQueueIsNoop(t *testing.T) {
	sender := newCaptureSender()
	p := newTestPipeline(sender, 50, 300)
	if err := p.Flush(context.Background()); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := sender.batchCount(); got != 0 {
		t.Errorf("batches = %d, want 0", got)
	}
}

func TestCloseFlushesRemainder(t *testing.T) {
	sender := newCaptureSender()
	p := newTestPipeline(sender, 50, 300)
	p.Enqueue(userEvent(0))
	if err := p.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got := sender.batchCount(); got != 1 {
		t.Fatalf("batches = %d, want 1", got)
	}
}
