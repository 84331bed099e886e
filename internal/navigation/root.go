// Package navigation turns a resolved content tree into a sequence of
// displayed surfaces: a base page plus modal and webview overlays, driven
// by block events. Transitions per root are strictly sequential.
package navigation

import (
	"context"
	"sync"

	"github.com/nubrick/nubrick-go/internal/observability"
	"github.com/nubrick/nubrick-go/pkg/models"
)

// Phase is the lifecycle of one root instance.
type Phase string

const (
	// PhaseIdle is the initial state, nothing shown yet.
	PhaseIdle Phase = "idle"
	// PhaseDisplaying has a base page on screen.
	PhaseDisplaying Phase = "displaying"
	// PhaseDismissed is terminal; the root never shows anything again.
	PhaseDismissed Phase = "dismissed"
)

// Snapshot is an immutable view of a root's display state, handed to the
// observer after every transition.
type Snapshot struct {
	RootID     string
	Phase      Phase
	Page       *models.PageBlock
	ModalStack []*models.PageBlock
	WebviewURL string
}

// Observer receives state snapshots. Called with the root lock held, so it
// must not call back into the root.
type Observer func(Snapshot)

// Collaborators are the host-specific sinks the state machine notifies.
// Nil fields are skipped.
type Collaborators struct {
	// Tooltip receives the anchor id of a tooltip page.
	Tooltip func(anchorID string)

	// Resize receives a component page's intrinsic frame size.
	Resize func(width, height *int)

	// OpenLink opens a compiled deep link.
	OpenLink func(link string)

	// Compile renders a deep-link template against the current data.
	// Defaults to returning the template untouched.
	Compile func(template string, data map[string]string) string

	// Dispatch re-enters the trigger dispatcher with a named event.
	Dispatch func(name string)
}

// Root drives display state for one content tree.
type Root struct {
	mu      sync.Mutex
	gen     int
	content models.RootBlock

	phase      Phase
	basePage   *models.PageBlock
	modalStack []*models.PageBlock
	webviewURL string
	// webviewOnClose fires when the webview overlay is closed.
	webviewOnClose *models.BlockEvent

	data map[string]string

	observer Observer
	collab   Collaborators
	log      *observability.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRoot creates a root in Idle over the given content tree.
func NewRoot(content models.RootBlock, observer Observer, collab Collaborators, log *observability.Logger) *Root {
	if log == nil {
		log = observability.NewNopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Root{
		content:  content,
		phase:    PhaseIdle,
		data:     map[string]string{},
		observer: observer,
		collab:   collab,
		log:      log.Component("navigation"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ID returns the content tree's root id.
func (r *Root) ID() string {
	return r.content.ID
}

// Context is canceled when the root is dismissed; in-flight fetches for
// this root must hang off it.
func (r *Root) Context() context.Context {
	return r.ctx
}

// Start resolves the root's TRIGGER page and follows its on-trigger event.
// A tree without a trigger page dismisses immediately.
func (r *Root) Start() {
	trigger := r.content.TriggerPage()
	if trigger == nil || trigger.TriggerSetting == nil || trigger.TriggerSetting.OnTrigger == nil {
		r.Dismiss()
		return
	}
	r.Navigate(*trigger.TriggerSetting.OnTrigger, nil)
}

// Navigate applies one block event to the display state. Unknown
// destination ids are no-ops. Safe for concurrent use; transitions are
// serialized on the root lock.
func (r *Root) Navigate(event models.BlockEvent, data map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.phase == PhaseDismissed {
		return
	}
	r.gen++
	for k, v := range data {
		r.data[k] = v
	}

	if event.DeepLink != "" {
		r.openDeepLinkLocked(event.DeepLink)
	}
	if event.Name != "" && r.collab.Dispatch != nil {
		r.collab.Dispatch(event.Name)
	}
	if event.DestinationPageID == "" {
		return
	}

	page := r.content.Page(event.DestinationPageID)
	if page == nil {
		r.log.Debug(r.ctx, "navigate to unknown page", "root", r.content.ID, "page", event.DestinationPageID)
		return
	}

	switch page.Kind {
	case models.PageKindDismissed:
		r.closeModalsLocked()
		r.dismissLocked()
	case models.PageKindWebviewModal:
		r.webviewURL = page.WebviewURL
		r.webviewOnClose = triggerEvent(page)
		r.notifyLocked()
	case models.PageKindTooltip:
		if r.collab.Tooltip != nil {
			r.collab.Tooltip(page.TooltipAnchor)
		}
	case models.PageKindModal:
		if i := r.modalIndexLocked(page.ID); i >= 0 {
			r.modalStack = r.modalStack[:i+1]
		} else {
			r.modalStack = append(r.modalStack, page)
		}
		r.notifyLocked()
	case models.PageKindComponent:
		if r.collab.Resize != nil {
			r.collab.Resize(page.FrameWidth, page.FrameHeight)
		}
	default:
		r.closeModalsLocked()
		r.basePage = page
		r.phase = PhaseDisplaying
		r.notifyLocked()
	}
}

// Back pops one modal; with nothing left underneath the stack closes.
func (r *Root) Back() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.modalStack) <= 1 {
		r.closeModalsLocked()
	} else {
		r.modalStack = r.modalStack[:len(r.modalStack)-1]
	}
	r.notifyLocked()
}

// BackTo jumps directly to a stack index, discarding entries above it.
func (r *Root) BackTo(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.modalStack) {
		return
	}
	r.modalStack = r.modalStack[:index+1]
	r.notifyLocked()
}

// CloseModals clears the whole modal stack. emitDispatch fires the
// dismissal through the dispatcher; silent content replacement passes
// false.
func (r *Root) CloseModals(emitDispatch bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeModalsLocked()
	if emitDispatch && r.collab.Dispatch != nil {
		r.collab.Dispatch(models.TriggerUserDismissModal)
	}
	r.notifyLocked()
}

// CloseWebview closes the webview overlay and fires its close trigger.
func (r *Root) CloseWebview() {
	r.mu.Lock()
	if r.webviewURL == "" {
		r.mu.Unlock()
		return
	}
	r.webviewURL = ""
	onClose := r.webviewOnClose
	r.webviewOnClose = nil
	r.notifyLocked()
	r.mu.Unlock()

	if onClose != nil {
		r.Navigate(*onClose, nil)
	}
}

// Dismiss terminates the root and cancels its in-flight work.
func (r *Root) Dismiss() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeModalsLocked()
	r.dismissLocked()
}

// Generation returns the current transition counter. Async work snapshots
// it before starting and calls Apply with it; a mismatch means the result
// is stale.
func (r *Root) Generation() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen
}

// Apply runs fn under the root lock unless the root was dismissed or
// another transition happened since gen was taken. Reports whether fn ran.
func (r *Root) Apply(gen int, fn func()) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.phase == PhaseDismissed || gen != r.gen {
		return false
	}
	fn()
	r.notifyLocked()
	return true
}

// Snapshot returns the current display state.
func (r *Root) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Root) snapshotLocked() Snapshot {
	stack := make([]*models.PageBlock, len(r.modalStack))
	copy(stack, r.modalStack)
	return Snapshot{
		RootID:     r.content.ID,
		Phase:      r.phase,
		Page:       r.basePage,
		ModalStack: stack,
		WebviewURL: r.webviewURL,
	}
}

func (r *Root) notifyLocked() {
	if r.observer != nil {
		r.observer(r.snapshotLocked())
	}
}

// closeModalsLocked clears the stack without emitting any dismiss event.
func (r *Root) closeModalsLocked() {
	r.modalStack = nil
}

func (r *Root) dismissLocked() {
	if r.phase == PhaseDismissed {
		return
	}
	r.phase = PhaseDismissed
	r.cancel()
	r.notifyLocked()
}

func (r *Root) modalIndexLocked(pageID string) int {
	for i, p := range r.modalStack {
		if p.ID == pageID {
			return i
		}
	}
	return -1
}

func (r *Root) openDeepLinkLocked(template string) {
	link := template
	if r.collab.Compile != nil {
		link = r.collab.Compile(template, r.data)
	}
	if link == "" || r.collab.OpenLink == nil {
		return
	}
	r.collab.OpenLink(link)
}

func triggerEvent(page *models.PageBlock) *models.BlockEvent {
	if page.TriggerSetting == nil {
		return nil
	}
	return page.TriggerSetting.OnTrigger
}
