package replay

import (
	"encoding/json"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/temps-sh/replaykit/internal/event"
)

// TestTimelineGolden pins the rendered timeline JSON for a representative
// session: snapshot, a mouse-move burst, a scroll, a navigation meta event
// and a final input exactly one minute in.
func TestTimelineGolden(t *testing.T) {
	events := []event.Raw{
		plain(event.TypeFullSnapshot, 1000),
		incremental(1500, event.SourceMouseMove),
		incremental(1750, event.SourceMouseMove),
		incremental(2000, event.SourceMouseMove),
		incremental(2400, event.SourceScroll),
		plain(event.TypeMeta, 31_000),
		incremental(61_000, event.SourceInput),
	}

	tl := BuildTimeline("11111111-2222-7333-8444-555555555555", events)

	out, err := json.MarshalIndent(tl, "", "  ")
	require.NoError(t, err)
	out = append(out, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "timeline", out)
}
