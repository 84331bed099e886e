package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/nubrick/nubrick-go/internal/container"
	"github.com/nubrick/nubrick-go/internal/navigation"
	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/internal/user"
	"github.com/nubrick/nubrick-go/pkg/models"
)

type fakeOrchestrator struct {
	mu       sync.Mutex
	fetched  []string
	byName   map[string]*container.Content
	fetchErr error
}

func newFakeOrchestrator() *fakeOrchestrator {
	return &fakeOrchestrator{byName: map[string]*container.Content{}}
}

func (f *fakeOrchestrator) FetchTriggerContent(_ context.Context, trigger string, _ []models.ExperimentKind) (*container.Content, error) {
	f.mu.Lock()
	f.fetched = append(f.fetched, trigger)
	f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	content, ok := f.byName[trigger]
	if !ok {
		return nil, container.ErrNotFound
	}
	return content, nil
}

func (f *fakeOrchestrator) triggers() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

type memKV struct {
	values map[string]string
}

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memKV) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func popupContent(t *testing.T, rootID string) *container.Content {
	t.Helper()
	tree := models.RootBlock{
		ID: rootID,
		Pages: []models.PageBlock{
			{ID: "trigger", Kind: models.PageKindTrigger,
				TriggerSetting: &models.TriggerSetting{OnTrigger: &models.BlockEvent{DestinationPageID: "home"}}},
			{ID: "home", Kind: models.PageKindPage},
		},
	}
	raw, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal tree: %v", err)
	}
	return &container.Content{ExperimentID: "exp-1", Kind: models.ExperimentKindPopup, Component: raw}
}

func newTestDispatcher(t *testing.T, orch Orchestrator, cfg Config) *Dispatcher {
	t.Helper()
	kv := &memKV{values: map[string]string{}}
	u, err := user.New(context.Background(), kv)
	if err != nil {
		t.Fatalf("user.New: %v", err)
	}
	cfg.Orchestrator = orch
	cfg.User = u
	return New(cfg)
}

func TestDispatchOpensPopupRoot(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = popupContent(t, "root-1")
	d := newTestDispatcher(t, orch, Config{})

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	r, ok := d.Root("root-1")
	if !ok {
		t.Fatal("root not registered")
	}
	s := r.Snapshot()
	if s.Phase != navigation.PhaseDisplaying || s.Page.ID != "home" {
		t.Fatalf("snapshot = %+v", s)
	}
}

func TestDispatchNotFoundIsSilent(t *testing.T) {
	orch := newFakeOrchestrator()
	d := newTestDispatcher(t, orch, Config{})
	if err := d.Dispatch(context.Background(), "nothing-listens"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
}

func TestDispatchPropagatesTransportError(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.fetchErr = errors.New("network down")
	d := newTestDispatcher(t, orch, Config{})
	if err := d.Dispatch(context.Background(), "custom"); err == nil {
		t.Fatal("expected error")
	}
}

func TestDuplicateRootNotReopened(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = popupContent(t, "root-1")
	d := newTestDispatcher(t, orch, Config{})

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	first, _ := d.Root("root-1")

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("second Dispatch: %v", err)
	}
	second, _ := d.Root("root-1")
	if first != second {
		t.Fatal("open root replaced by duplicate dispatch")
	}
}

func TestDismissedRootCanReopen(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = popupContent(t, "root-1")
	d := newTestDispatcher(t, orch, Config{})

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	first, _ := d.Root("root-1")
	first.Dismiss()

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("re-Dispatch: %v", err)
	}
	second, _ := d.Root("root-1")
	if first == second {
		t.Fatal("dismissed root not replaced")
	}
}

func TestTooltipContentGoesToSink(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = &container.Content{
		ExperimentID: "exp-1",
		Kind:         models.ExperimentKindTooltip,
		Component:    json.RawMessage(`{"anchor":"cta"}`),
	}
	var got *container.Content
	d := newTestDispatcher(t, orch, Config{Tooltip: func(c *container.Content) { got = c }})

	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got == nil || got.ExperimentID != "exp-1" {
		t.Fatalf("sink got %+v", got)
	}
	if _, ok := d.Root("exp-1"); ok {
		t.Error("tooltip must not open a root")
	}
}

func TestMalformedPopupTreeIsDecodeError(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = &container.Content{
		Kind:      models.ExperimentKindPopup,
		Component: json.RawMessage(`{"id":`),
	}
	d := newTestDispatcher(t, orch, Config{})
	if err := d.Dispatch(context.Background(), "custom"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestBootDispatchesLifecycleEvents(t *testing.T) {
	orch := newFakeOrchestrator()
	d := newTestDispatcher(t, orch, Config{})

	if err := d.Boot(context.Background()); err != nil {
		t.Fatalf("Boot: %v", err)
	}
	got := orch.triggers()
	want := []string{models.TriggerUserBootApp, models.TriggerUserEnterFirstly, models.TriggerUserEnterToApp}
	if len(got) != len(want) {
		t.Fatalf("triggers = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("triggers = %v, want %v", got, want)
		}
	}
}

func TestSecondBootSkipsFirstRunEvent(t *testing.T) {
	orch := newFakeOrchestrator()
	kv := &memKV{values: map[string]string{}}
	u, err := user.New(context.Background(), kv)
	if err != nil {
		t.Fatalf("user.New: %v", err)
	}
	d := New(Config{Orchestrator: orch, User: u})

	if err := d.Boot(context.Background()); err != nil {
		t.Fatalf("first Boot: %v", err)
	}

	u2, err := user.New(context.Background(), kv) // same durable store, new session
	if err != nil {
		t.Fatalf("user.New: %v", err)
	}
	orch2 := newFakeOrchestrator()
	d2 := New(Config{Orchestrator: orch2, User: u2})
	if err := d2.Boot(context.Background()); err != nil {
		t.Fatalf("second Boot: %v", err)
	}
	for _, name := range orch2.triggers() {
		if name == models.TriggerUserEnterFirstly {
			t.Fatal("first-run event fired on second boot")
		}
	}
}

func TestFirstForegroundIgnored(t *testing.T) {
	orch := newFakeOrchestrator()
	d := newTestDispatcher(t, orch, Config{})

	if err := d.Foreground(context.Background()); err != nil {
		t.Fatalf("Foreground: %v", err)
	}
	if got := orch.triggers(); len(got) != 0 {
		t.Fatalf("first foreground dispatched %v", got)
	}

	if err := d.Foreground(context.Background()); err != nil {
		t.Fatalf("second Foreground: %v", err)
	}
	got := orch.triggers()
	if len(got) < 2 || got[0] != models.TriggerUserEnterForeground || got[1] != models.TriggerUserEnterToApp {
		t.Fatalf("second foreground dispatched %v", got)
	}
}

func TestRetentionBuckets(t *testing.T) {
	tests := []struct {
		days int
		want string
	}{
		{0, ""},
		{1, models.TriggerRetention1},
		{2, models.TriggerRetention2To3},
		{3, models.TriggerRetention2To3},
		{4, models.TriggerRetention4To7},
		{7, models.TriggerRetention4To7},
		{8, models.TriggerRetention8To14},
		{14, models.TriggerRetention8To14},
		{15, models.TriggerRetention15},
		{120, models.TriggerRetention15},
	}
	for _, tt := range tests {
		if got := retentionEvent(tt.days); got != tt.want {
			t.Errorf("retentionEvent(%d) = %q, want %q", tt.days, got, tt.want)
		}
	}
}

func TestCloseDismissesRoots(t *testing.T) {
	orch := newFakeOrchestrator()
	orch.byName["custom"] = popupContent(t, "root-1")
	d := newTestDispatcher(t, orch, Config{})
	if err := d.Dispatch(context.Background(), "custom"); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	r, _ := d.Root("root-1")

	d.Close()
	if r.Snapshot().Phase != navigation.PhaseDismissed {
		t.Error("root not dismissed on Close")
	}
	if _, ok := d.Root("root-1"); ok {
		t.Error("root still registered after Close")
	}
}
