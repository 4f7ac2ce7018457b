package replay

import "github.com/temps-sh/replaykit/internal/event"

// Timeline is the collapsed, navigable view of one session's event stream.
type Timeline struct {
	SessionID string  `json:"sessionId"`
	StartTime int64   `json:"startTime"` // epoch ms of the first event
	Duration  int64   `json:"duration"`  // ms between first and last event
	Groups    []Group `json:"groups"`
}

// BuildTimeline groups the session's full time-ordered event stream and
// anchors relative times at the first event's timestamp.
func BuildTimeline(sessionID string, events []event.Raw) Timeline {
	t := Timeline{SessionID: sessionID, Groups: BuildGroups(events)}
	if len(events) == 0 {
		return t
	}
	t.StartTime = events[0].Timestamp
	t.Duration = events[len(events)-1].Timestamp - t.StartTime
	return t
}

// RelativeTime returns the raw millisecond offset of a timestamp from the
// timeline start. Formatting (mm:ss) is a presentation concern; see
// FormatRelative.
func (t Timeline) RelativeTime(timestampMs int64) int64 {
	return timestampMs - t.StartTime
}
