// Package replay reconstructs a delivered event stream into a compact,
// navigable timeline. Capture streams are extremely bursty (hundreds of
// mouse-move records per second); grouping contiguous same-kind
// incremental events keeps the timeline reviewable while preserving full
// per-event detail on expansion.
package replay

import (
	"fmt"

	"github.com/temps-sh/replaykit/internal/event"
)

// Group is a replay-side aggregation of contiguous same-kind events.
//
// Only incremental events sharing the same source subtype merge; every
// other event stands alone even when adjacent events share its type.
// Events holds the members in their original order.
type Group struct {
	Type       event.Type   `json:"type"`
	Subtype    event.Source `json:"subtype,omitempty"`
	HasSubtype bool         `json:"-"`
	StartTime  int64        `json:"startTime"` // epoch ms of first member
	EndTime    int64        `json:"endTime"`   // epoch ms of last member
	Count      int          `json:"count"`
	Events     []event.Raw  `json:"-"`
}

// Label returns the display name for the group kind.
func (g Group) Label() string {
	if g.Type == event.TypeIncremental && g.HasSubtype {
		return g.Subtype.String()
	}
	return g.Type.String()
}

// DurationMs returns the span covered by the group's members.
func (g Group) DurationMs() int64 {
	return g.EndTime - g.StartTime
}

// BuildGroups collapses a full time-ordered event sequence into groups.
// The input must already be in delivery order; re-sorting is the caller's
// responsibility, not handled here.
func BuildGroups(events []event.Raw) []Group {
	var groups []Group
	var cur *Group

	for _, ev := range events {
		sub, hasSub := ev.Subtype()

		if cur != nil && mergeable(cur, ev, sub, hasSub) {
			cur.Events = append(cur.Events, ev)
			cur.EndTime = ev.Timestamp
			cur.Count++
			continue
		}

		groups = append(groups, Group{
			Type:       ev.Type,
			Subtype:    sub,
			HasSubtype: hasSub,
			StartTime:  ev.Timestamp,
			EndTime:    ev.Timestamp,
			Count:      1,
			Events:     []event.Raw{ev},
		})
		cur = &groups[len(groups)-1]
	}

	return groups
}

// mergeable reports whether ev extends the current group. Merging is
// restricted to incremental events whose (type, subtype) key matches.
func mergeable(cur *Group, ev event.Raw, sub event.Source, hasSub bool) bool {
	if cur.Type != event.TypeIncremental || ev.Type != event.TypeIncremental {
		return false
	}
	if cur.HasSubtype != hasSub {
		return false
	}
	return !hasSub || cur.Subtype == sub
}

// FormatRelative renders a relative offset in milliseconds as mm:ss
// (h:mm:ss past the hour) for timeline display.
func FormatRelative(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	total := ms / 1000
	m, s := total/60, total%60
	if m >= 60 {
		return fmt.Sprintf("%d:%02d:%02d", m/60, m%60, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
