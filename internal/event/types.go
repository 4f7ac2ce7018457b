package event

import (
	"encoding/json"
	"fmt"
)

// Type is the rrweb-compatible event type code.
//
// The numeric values are part of the wire contract with the collector and
// with the recording engine; they must not be renumbered.
type Type int

const (
	// TypeDomReady fires when the document becomes interactive.
	TypeDomReady Type = 0
	// TypeLoad fires on the window load event.
	TypeLoad Type = 1
	// TypeFullSnapshot carries a complete serialized DOM snapshot.
	TypeFullSnapshot Type = 2
	// TypeIncremental carries one incremental mutation or interaction.
	// Only incremental events have a meaningful Subtype.
	TypeIncremental Type = 3
	// TypeMeta carries page metadata (href, viewport) at navigation points.
	TypeMeta Type = 4
	// TypeCustom carries application-defined payloads.
	TypeCustom Type = 5
	// TypePlugin carries recording-plugin payloads.
	TypePlugin Type = 6
)

// String returns the human-readable name for the type code.
func (t Type) String() string {
	switch t {
	case TypeDomReady:
		return "dom-ready"
	case TypeLoad:
		return "load"
	case TypeFullSnapshot:
		return "full-snapshot"
	case TypeIncremental:
		return "incremental"
	case TypeMeta:
		return "meta"
	case TypeCustom:
		return "custom"
	case TypePlugin:
		return "plugin"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// Valid reports whether t is one of the known type codes.
func (t Type) Valid() bool {
	return t >= TypeDomReady && t <= TypePlugin
}

// Source is the incremental event subtype code (rrweb "source").
type Source int

const (
	SourceMutation         Source = 0
	SourceMouseMove        Source = 1
	SourceMouseInteraction Source = 2
	SourceScroll           Source = 3
	SourceViewportResize   Source = 4
	SourceInput            Source = 5
	SourceTouchMove        Source = 6
	SourceMediaInteraction Source = 7
	SourceStyleSheetRule   Source = 8
	SourceCanvasMutation   Source = 9
	SourceFont             Source = 10
	SourceSelection        Source = 14
)

// String returns the human-readable name for the source code.
func (s Source) String() string {
	switch s {
	case SourceMutation:
		return "mutation"
	case SourceMouseMove:
		return "mouse-move"
	case SourceMouseInteraction:
		return "mouse-interaction"
	case SourceScroll:
		return "scroll"
	case SourceViewportResize:
		return "viewport-resize"
	case SourceInput:
		return "input"
	case SourceTouchMove:
		return "touch-move"
	case SourceMediaInteraction:
		return "media-interaction"
	case SourceStyleSheetRule:
		return "stylesheet-rule"
	case SourceCanvasMutation:
		return "canvas-mutation"
	case SourceFont:
		return "font"
	case SourceSelection:
		return "selection"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// Raw is one timestamped record from the recording engine.
//
// Data is opaque except for the "source" field on incremental events.
// Raw values are immutable once enqueued.
type Raw struct {
	Type      Type            `json:"type"`
	Timestamp int64           `json:"timestamp"` // epoch milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// Subtype extracts the incremental source code from the event payload.
// Returns (source, true) only for incremental events with a numeric
// "source" field; every other event has no subtype.
func (r Raw) Subtype() (Source, bool) {
	if r.Type != TypeIncremental || len(r.Data) == 0 {
		return 0, false
	}
	var payload struct {
		Source *Source `json:"source"`
	}
	if err := json.Unmarshal(r.Data, &payload); err != nil || payload.Source == nil {
		return 0, false
	}
	return *payload.Source, true
}
