package container

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nubrick/nubrick-go/internal/storage"
	"github.com/nubrick/nubrick-go/internal/user"
	"github.com/nubrick/nubrick-go/pkg/models"
)

type fakeFetcher struct {
	catalog        *models.ExperimentConfigs
	triggerCatalog *models.ExperimentConfigs
	component      json.RawMessage
	componentErr   error

	mu             sync.Mutex
	componentCalls []string
	triggerCalls   []string
}

func (f *fakeFetcher) Experiment(_ context.Context, _ string) (*models.ExperimentConfigs, error) {
	if f.catalog == nil {
		return nil, ErrNotFound
	}
	return f.catalog, nil
}

func (f *fakeFetcher) Trigger(_ context.Context, name string) (*models.ExperimentConfigs, error) {
	f.mu.Lock()
	f.triggerCalls = append(f.triggerCalls, name)
	f.mu.Unlock()
	if f.triggerCatalog == nil {
		return nil, ErrNotFound
	}
	return f.triggerCatalog, nil
}

func (f *fakeFetcher) Component(_ context.Context, experimentID, componentID string) (json.RawMessage, error) {
	f.mu.Lock()
	f.componentCalls = append(f.componentCalls, experimentID+"/"+componentID)
	f.mu.Unlock()
	if f.componentErr != nil {
		return nil, f.componentErr
	}
	return f.component, nil
}

type fakeTracker struct {
	mu     sync.Mutex
	events []models.TrackEvent
}

func (t *fakeTracker) Enqueue(ev models.TrackEvent) {
	t.mu.Lock()
	t.events = append(t.events, ev)
	t.mu.Unlock()
}

func (t *fakeTracker) all() []models.TrackEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]models.TrackEvent(nil), t.events...)
}

// fakeHistory records appends and answers frequency lookups from memory.
type fakeHistory struct {
	mu          sync.Mutex
	experiments []string
	userEvents  []string
	lastSeen    map[string]time.Time
	appended    chan string
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{lastSeen: map[string]time.Time{}, appended: make(chan string, 16)}
}

func (h *fakeHistory) AppendExperimentHistory(_ context.Context, experimentID string) error {
	h.mu.Lock()
	h.experiments = append(h.experiments, experimentID)
	h.mu.Unlock()
	h.appended <- experimentID
	return nil
}

func (h *fakeHistory) AppendUserEvent(_ context.Context, name string) error {
	h.mu.Lock()
	h.userEvents = append(h.userEvents, name)
	h.mu.Unlock()
	return nil
}

func (h *fakeHistory) LastExperimentSeen(_ context.Context, experimentID string) (time.Time, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.lastSeen[experimentID]
	return t, ok, nil
}

func (h *fakeHistory) CountUserEvents(_ context.Context, name string, _ time.Time) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.userEvents {
		if ev == name {
			n++
		}
	}
	return n, nil
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

func testCatalog(kind models.ExperimentKind) *models.ExperimentConfigs {
	return &models.ExperimentConfigs{Configs: []models.ExperimentConfig{{
		ID:   "exp-1",
		Kind: kind,
		Baseline: &models.ExperimentVariant{
			ID:      "v0",
			Configs: []models.VariantConfig{{Key: "componentId", Value: "cmp-1"}},
		},
	}}}
}

func newTestContainer(t *testing.T, fetcher *fakeFetcher, tracker *fakeTracker, history *fakeHistory) *Container {
	t.Helper()
	u, err := user.New(context.Background(), &memKV{values: map[string]string{}})
	if err != nil {
		t.Fatalf("user.New: %v", err)
	}
	return New(Config{
		Fetcher: fetcher,
		Tracker: tracker,
		History: history,
		User:    u,
	})
}

func waitAppend(t *testing.T, h *fakeHistory, want string) {
	t.Helper()
	select {
	case got := <-h.appended:
		if got != want {
			t.Fatalf("appended %s, want %s", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("history append for %s never happened", want)
	}
}

func TestFetchEmbeddingDeliversContent(t *testing.T) {
	fetcher := &fakeFetcher{catalog: testCatalog(models.ExperimentKindEmbed), component: json.RawMessage(`{"view":1}`)}
	tracker := &fakeTracker{}
	history := newFakeHistory()
	c := newTestContainer(t, fetcher, tracker, history)

	content, err := c.FetchEmbedding(context.Background(), "exp-1", "")
	if err != nil {
		t.Fatalf("FetchEmbedding: %v", err)
	}
	if content.ExperimentID != "exp-1" || content.Kind != models.ExperimentKindEmbed {
		t.Errorf("content = %+v", content)
	}
	if string(content.Component) != `{"view":1}` {
		t.Errorf("component = %s", content.Component)
	}
	if len(fetcher.componentCalls) != 1 || fetcher.componentCalls[0] != "exp-1/cmp-1" {
		t.Errorf("component calls = %v", fetcher.componentCalls)
	}

	events := tracker.all()
	if len(events) != 1 || events[0].Experiment == nil {
		t.Fatalf("events = %+v, want one exposure", events)
	}
	if events[0].Experiment.ExperimentID != "exp-1" || events[0].Experiment.VariantID != "v0" {
		t.Errorf("exposure = %+v", events[0].Experiment)
	}
	waitAppend(t, history, "exp-1")
}

func TestFetchEmbeddingDirectComponentSkipsResolution(t *testing.T) {
	fetcher := &fakeFetcher{component: json.RawMessage(`{}`)}
	tracker := &fakeTracker{}
	c := newTestContainer(t, fetcher, tracker, newFakeHistory())

	content, err := c.FetchEmbedding(context.Background(), "exp-1", "cmp-9")
	if err != nil {
		t.Fatalf("FetchEmbedding: %v", err)
	}
	if content.ExperimentID != "exp-1" {
		t.Errorf("content = %+v", content)
	}
	if len(fetcher.componentCalls) != 1 || fetcher.componentCalls[0] != "exp-1/cmp-9" {
		t.Errorf("component calls = %v", fetcher.componentCalls)
	}
	if len(tracker.all()) != 0 {
		t.Error("preview path must not record an exposure")
	}
}

func TestFetchEmbeddingNotFound(t *testing.T) {
	tests := []struct {
		name    string
		catalog *models.ExperimentConfigs
	}{
		{"empty catalog", &models.ExperimentConfigs{}},
		{"wrong kind", testCatalog(models.ExperimentKindPopup)},
		{"variant without component", &models.ExperimentConfigs{Configs: []models.ExperimentConfig{{
			ID: "exp-1", Kind: models.ExperimentKindEmbed, Baseline: &models.ExperimentVariant{ID: "v0"},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fetcher := &fakeFetcher{catalog: tt.catalog}
			tracker := &fakeTracker{}
			c := newTestContainer(t, fetcher, tracker, newFakeHistory())
			_, err := c.FetchEmbedding(context.Background(), "exp-1", "")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestFetchTriggerContentRecordsEvent(t *testing.T) {
	fetcher := &fakeFetcher{triggerCatalog: testCatalog(models.ExperimentKindPopup), component: json.RawMessage(`{}`)}
	tracker := &fakeTracker{}
	history := newFakeHistory()
	c := newTestContainer(t, fetcher, tracker, history)

	content, err := c.FetchTriggerContent(context.Background(), models.TriggerUserBootApp, []models.ExperimentKind{models.ExperimentKindPopup})
	if err != nil {
		t.Fatalf("FetchTriggerContent: %v", err)
	}
	if content.Kind != models.ExperimentKindPopup {
		t.Errorf("kind = %s", content.Kind)
	}

	events := tracker.all()
	if len(events) != 2 {
		t.Fatalf("events = %d, want trigger event + exposure", len(events))
	}
	if events[0].User == nil || events[0].User.Name != models.TriggerUserBootApp {
		t.Errorf("events[0] = %+v, want trigger user event first", events[0])
	}
	if len(history.userEvents) != 1 || history.userEvents[0] != models.TriggerUserBootApp {
		t.Errorf("user event history = %v", history.userEvents)
	}
}

func TestFetchTriggerContentNotFoundStillRecordsEvent(t *testing.T) {
	fetcher := &fakeFetcher{triggerCatalog: &models.ExperimentConfigs{}}
	tracker := &fakeTracker{}
	history := newFakeHistory()
	c := newTestContainer(t, fetcher, tracker, history)

	_, err := c.FetchTriggerContent(context.Background(), models.TriggerUserEnterToApp, []models.ExperimentKind{models.ExperimentKindPopup})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(tracker.all()) != 1 {
		t.Error("trigger event must be recorded even when nothing resolves")
	}
	if len(history.userEvents) != 1 {
		t.Error("event history must be appended even when nothing resolves")
	}
}

func TestFetchRemoteConfig(t *testing.T) {
	catalog := &models.ExperimentConfigs{Configs: []models.ExperimentConfig{{
		ID:   "cfg-1",
		Kind: models.ExperimentKindConfig,
		Baseline: &models.ExperimentVariant{
			ID: "v0",
			Configs: []models.VariantConfig{
				{Key: "welcomeTitle", Value: "hello"},
				{Key: "showBanner", Value: "true"},
			},
		},
	}}}
	fetcher := &fakeFetcher{catalog: catalog}
	tracker := &fakeTracker{}
	history := newFakeHistory()
	c := newTestContainer(t, fetcher, tracker, history)

	variant, err := c.FetchRemoteConfig(context.Background(), "cfg-1")
	if err != nil {
		t.Fatalf("FetchRemoteConfig: %v", err)
	}
	if v, ok := variant.ConfigValue("welcomeTitle"); !ok || v != "hello" {
		t.Errorf("welcomeTitle = %q, %v", v, ok)
	}
	if len(fetcher.componentCalls) != 0 {
		t.Error("remote config must not fetch a component")
	}
	if len(tracker.all()) != 1 {
		t.Error("remote config resolution records an exposure")
	}
	waitAppend(t, history, "cfg-1")
}

func TestFrequencyCapExcludesConfig(t *testing.T) {
	period := 3600
	catalog := &models.ExperimentConfigs{Configs: []models.ExperimentConfig{{
		ID:        "exp-1",
		Kind:      models.ExperimentKindEmbed,
		Frequency: &models.ExperimentFrequency{Period: &period, Unit: "MINUTE"},
		Baseline: &models.ExperimentVariant{
			ID:      "v0",
			Configs: []models.VariantConfig{{Key: "componentId", Value: "cmp-1"}},
		},
	}}}
	fetcher := &fakeFetcher{catalog: catalog, component: json.RawMessage(`{}`)}
	tracker := &fakeTracker{}
	history := newFakeHistory()
	history.lastSeen["exp-1"] = time.Now().Add(-time.Minute)
	c := newTestContainer(t, fetcher, tracker, history)

	_, err := c.FetchEmbedding(context.Background(), "exp-1", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound under frequency cap", err)
	}
}

func TestMultiKindFirstEligibleWins(t *testing.T) {
	catalog := &models.ExperimentConfigs{Configs: []models.ExperimentConfig{
		{
			ID: "tooltip", Kind: models.ExperimentKindTooltip, Priority: intPtr(5),
			Baseline: &models.ExperimentVariant{ID: "t0", Configs: []models.VariantConfig{{Value: "cmp-t"}}},
		},
		{
			ID: "popup", Kind: models.ExperimentKindPopup, Priority: intPtr(1),
			Baseline: &models.ExperimentVariant{ID: "p0", Configs: []models.VariantConfig{{Value: "cmp-p"}}},
		},
	}}
	fetcher := &fakeFetcher{triggerCatalog: catalog, component: json.RawMessage(`{}`)}
	tracker := &fakeTracker{}
	c := newTestContainer(t, fetcher, tracker, newFakeHistory())

	content, err := c.FetchTriggerContent(context.Background(), "custom_event",
		[]models.ExperimentKind{models.ExperimentKindPopup, models.ExperimentKindTooltip})
	if err != nil {
		t.Fatalf("FetchTriggerContent: %v", err)
	}
	if content.ExperimentID != "tooltip" {
		t.Errorf("winner = %s, want the higher-priority tooltip", content.ExperimentID)
	}
}

func intPtr(v int) *int { return &v }
