// Package dispatch routes named trigger events to the delivery
// orchestrator and manages the navigation roots and lifecycle events that
// come out of them.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nubrick/nubrick-go/internal/container"
	"github.com/nubrick/nubrick-go/internal/navigation"
	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/internal/remote"
	"github.com/nubrick/nubrick-go/internal/user"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// Orchestrator is the dispatcher's view of the delivery container.
type Orchestrator interface {
	FetchTriggerContent(ctx context.Context, trigger string, kinds []models.ExperimentKind) (*container.Content, error)
}

// TooltipSink receives tooltip content for host-specific placement.
type TooltipSink func(content *container.Content)

// Config wires the dispatcher.
type Config struct {
	Orchestrator Orchestrator
	User         *user.User

	// Observer sees every navigation snapshot of every root.
	Observer navigation.Observer

	// Collaborators are forwarded to every root the dispatcher opens.
	// The Dispatch field is always overridden to loop back here.
	Collaborators navigation.Collaborators

	// Tooltip, when set, adds TOOLTIP to the requested kinds and
	// receives tooltip payloads.
	Tooltip TooltipSink

	Logger *observability.Logger
}

// Dispatcher opens one navigation root per delivered popup and keeps them
// deduplicated by root id. Safe for concurrent use.
type Dispatcher struct {
	mu    sync.Mutex
	roots map[string]*navigation.Root
	// foregroundSeen suppresses the first foreground notification, which
	// duplicates the boot dispatch.
	foregroundSeen bool

	orchestrator Orchestrator
	user         *user.User
	observer     navigation.Observer
	collab       navigation.Collaborators
	tooltip      TooltipSink
	log          *observability.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	log := cfg.Logger
	if log == nil {
		log = observability.NewNopLogger()
	}
	return &Dispatcher{
		roots:        map[string]*navigation.Root{},
		orchestrator: cfg.Orchestrator,
		user:         cfg.User,
		observer:     cfg.Observer,
		collab:       cfg.Collaborators,
		tooltip:      cfg.Tooltip,
		log:          log.Component("dispatch"),
	}
}

// Dispatch delivers content listening on a named trigger event. NotFound
// is a silent success; transport and decode failures are returned.
func (d *Dispatcher) Dispatch(ctx context.Context, name string) error {
	kinds := []models.ExperimentKind{models.ExperimentKindPopup}
	if d.tooltip != nil {
		kinds = append(kinds, models.ExperimentKindTooltip)
	}

	content, err := d.orchestrator.FetchTriggerContent(ctx, name, kinds)
	if errors.Is(err, container.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch content.Kind {
	case models.ExperimentKindTooltip:
		d.tooltip(content)
	case models.ExperimentKindPopup:
		return d.openRoot(content)
	}
	return nil
}

// openRoot decodes the popup's content tree and starts a navigation root
// for it, unless one with the same id is already open.
func (d *Dispatcher) openRoot(content *container.Content) error {
	var root models.RootBlock
	if err := json.Unmarshal(content.Component, &root); err != nil {
		return &remote.DecodeError{Cause: err}
	}

	d.mu.Lock()
	if existing, ok := d.roots[root.ID]; ok && existing.Snapshot().Phase != navigation.PhaseDismissed {
		d.mu.Unlock()
		d.log.Debug(context.Background(), "root already open", "root", root.ID)
		return nil
	}
	collab := d.collab
	collab.Dispatch = d.loopback
	r := navigation.NewRoot(root, d.observer, collab, d.log)
	d.roots[root.ID] = r
	d.mu.Unlock()

	r.Start()
	return nil
}

// loopback re-enters Dispatch from inside a navigation transition. Runs
// async so a dispatch fired under the root lock cannot deadlock.
func (d *Dispatcher) loopback(name string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := d.Dispatch(ctx, name); err != nil {
			d.log.Warn(ctx, "dispatch from navigation failed", "event", name, "error", err)
		}
	}()
}

// Root returns an open root by id.
func (d *Dispatcher) Root(id string) (*navigation.Root, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.roots[id]
	return r, ok
}

// DismissRoot tears down one root.
func (d *Dispatcher) DismissRoot(id string) {
	d.mu.Lock()
	r, ok := d.roots[id]
	if ok {
		delete(d.roots, id)
	}
	d.mu.Unlock()
	if ok {
		r.Dismiss()
	}
}

// Close dismisses every open root.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	roots := d.roots
	d.roots = map[string]*navigation.Root{}
	d.mu.Unlock()
	for _, r := range roots {
		r.Dismiss()
	}
}

// Boot fires the SDK-start lifecycle events: the boot marker, the
// first-run marker when the durable init counter is still zero, the
// enter-app event, and the retention bucket.
func (d *Dispatcher) Boot(ctx context.Context) error {
	count, err := d.user.BootCount(ctx)
	if err != nil {
		d.log.Warn(ctx, "boot counter unavailable", "error", err)
		count = 1 // unknown counter never re-fires the first-run event
	}

	var firstErr error
	record := func(name string) {
		if err := d.Dispatch(ctx, name); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(models.TriggerUserBootApp)
	if count == 0 {
		record(models.TriggerUserEnterFirstly)
	}
	record(models.TriggerUserEnterToApp)
	if name := retentionEvent(d.user.ComeBack(ctx)); name != "" {
		record(name)
	}
	return firstErr
}

// Foreground fires the come-back lifecycle events. The first call after
// boot is ignored: the boot path already dispatched them.
func (d *Dispatcher) Foreground(ctx context.Context) error {
	d.mu.Lock()
	first := !d.foregroundSeen
	d.foregroundSeen = true
	d.mu.Unlock()
	if first {
		return nil
	}

	if err := d.Dispatch(ctx, models.TriggerUserEnterForeground); err != nil {
		return err
	}
	if err := d.Dispatch(ctx, models.TriggerUserEnterToApp); err != nil {
		return err
	}
	if name := retentionEvent(d.user.ComeBack(ctx)); name != "" {
		return d.Dispatch(ctx, name)
	}
	return nil
}

// retentionEvent buckets days-since-first-seen into the built-in
// retention trigger names. Day zero has no bucket.
func retentionEvent(days int) string {
	switch {
	case days <= 0:
		return ""
	case days == 1:
		return models.TriggerRetention1
	case days <= 3:
		return models.TriggerRetention2To3
	case days <= 7:
		return models.TriggerRetention4To7
	case days <= 14:
		return models.TriggerRetention8To14
	default:
		return models.TriggerRetention15
	}
}
