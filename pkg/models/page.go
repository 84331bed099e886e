package models

import "encoding/json"

// PageKind identifies the role of a page inside a root content tree.
type PageKind string

const (
	// PageKindPage is an ordinary base-layer page.
	PageKindPage PageKind = "PAGE"
	// PageKindTrigger is the entry page a root starts from.
	PageKindTrigger PageKind = "TRIGGER"
	// PageKindModal is presented on the modal stack.
	PageKindModal PageKind = "MODAL"
	// PageKindWebviewModal opens an in-app webview overlay.
	PageKindWebviewModal PageKind = "WEBVIEW_MODAL"
	// PageKindTooltip anchors content to a host element.
	PageKindTooltip PageKind = "TOOLTIP"
	// PageKindComponent reports an intrinsic frame size to the host.
	PageKindComponent PageKind = "COMPONENT"
	// PageKindDismissed terminates the root.
	PageKindDismissed PageKind = "DISMISSED"
)

// ModalPresentationStyle selects how a modal page is presented.
type ModalPresentationStyle string

const (
	ModalPresentationStyleUnknown    ModalPresentationStyle = "UNKNOWN"
	ModalPresentationStyleSheet      ModalPresentationStyle = "SHEET"
	ModalPresentationStyleFullScreen ModalPresentationStyle = "DEPENDS_ON_CONTEXT_OR_FULL_SCREEN"
)

// ModalScreenSize selects the height class of a modal sheet.
type ModalScreenSize string

const (
	ModalScreenSizeUnknown ModalScreenSize = "UNKNOWN"
	ModalScreenSizeMedium  ModalScreenSize = "MEDIUM"
	ModalScreenSizeLarge   ModalScreenSize = "LARGE"
)

// RootBlock is a resolved content tree: a set of pages linked by events.
type RootBlock struct {
	ID    string      `json:"id,omitempty"`
	Pages []PageBlock `json:"pages,omitempty"`
}

// Page returns the page with the given id, or nil.
func (r *RootBlock) Page(id string) *PageBlock {
	for i := range r.Pages {
		if r.Pages[i].ID == id {
			return &r.Pages[i]
		}
	}
	return nil
}

// TriggerPage returns the root's entry page, or nil when the root has none.
func (r *RootBlock) TriggerPage() *PageBlock {
	for i := range r.Pages {
		if r.Pages[i].Kind == PageKindTrigger {
			return &r.Pages[i]
		}
	}
	return nil
}

// PageBlock is one displayable surface of a root content tree. The
// rendering payload (RenderAs) is opaque to the decision core and is
// handed to the host renderer untouched.
type PageBlock struct {
	ID   string   `json:"id,omitempty"`
	Kind PageKind `json:"kind,omitempty"`

	WebviewURL    string `json:"webviewUrl,omitempty"`
	TooltipAnchor string `json:"tooltipAnchor,omitempty"`

	ModalPresentationStyle ModalPresentationStyle `json:"modalPresentationStyle,omitempty"`
	ModalScreenSize        ModalScreenSize        `json:"modalScreenSize,omitempty"`

	FrameWidth  *int `json:"frameWidth,omitempty"`
	FrameHeight *int `json:"frameHeight,omitempty"`

	TriggerSetting *TriggerSetting `json:"triggerSetting,omitempty"`

	RenderAs json.RawMessage `json:"renderAs,omitempty"`
}

// TriggerSetting configures what a TRIGGER page fires when the root opens.
type TriggerSetting struct {
	OnTrigger *BlockEvent `json:"onTrigger,omitempty"`
}

// BlockEvent is a navigation event wired into a page's interactive parts.
type BlockEvent struct {
	Name              string          `json:"name,omitempty"`
	DestinationPageID string          `json:"destinationPageId,omitempty"`
	DeepLink          string          `json:"deepLink,omitempty"`
	Payload           []EventProperty `json:"payload,omitempty"`
}

// EventPropertyType tags an EventProperty value.
type EventPropertyType string

const (
	EventPropertyTypeInteger    EventPropertyType = "INTEGER"
	EventPropertyTypeString     EventPropertyType = "STRING"
	EventPropertyTypeTimestampz EventPropertyType = "TIMESTAMPZ"
	EventPropertyTypeUnknown    EventPropertyType = "UNKNOWN"
)

// EventProperty is one named value attached to a BlockEvent.
type EventProperty struct {
	Name  string            `json:"name,omitempty"`
	Value string            `json:"value,omitempty"`
	Type  EventPropertyType `json:"type,omitempty"`
}
