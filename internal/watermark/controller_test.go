package watermark

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mobility-ingest/internal/model"
)

func TestWindowEmpty(t *testing.T) {
	require.True(t, Window{Start: 5, End: 4}.Empty())
	require.False(t, Window{Start: 5, End: 5}.Empty())
	require.False(t, Window{Start: 1, End: 100}.Empty())
}

func TestCheckIdent(t *testing.T) {
	for _, ok := range []string{"trips", "status_changes", "trips_sequence_id_seq", "_private"} {
		require.NoError(t, checkIdent(ok), ok)
	}
	for _, bad := range []string{"", "Trips", "1trips", "trips; drop table trips", "trips\"", "trips seq"} {
		require.Error(t, checkIdent(bad), bad)
	}
}

// protocolState backs one job's watermark and source sequence in memory and
// records the order of protocol calls.
type protocolState struct {
	wm        model.Watermark
	seqLast   int64
	seqCalled bool
	events    []string
}

func newProtocolState(lastProcessed, seqLast int64, seqCalled bool) *protocolState {
	return &protocolState{
		wm: model.Watermark{
			JobName:         "route_aggregates",
			SrcTable:        "trips",
			SrcSequence:     "trips_sequence_id_seq",
			LastProcessedID: lastProcessed,
		},
		seqLast:   seqLast,
		seqCalled: seqCalled,
	}
}

func (s *protocolState) ops() ops {
	return ops{
		lock: func() (model.Watermark, error) {
			s.events = append(s.events, "lock")
			return s.wm, nil
		},
		sequence: func(name string) (int64, bool, error) {
			s.events = append(s.events, "sequence "+name)
			return s.seqLast, s.seqCalled, nil
		},
		drain: func(table string) error {
			s.events = append(s.events, "drain "+table)
			return nil
		},
		advance: func(end int64) error {
			s.events = append(s.events, fmt.Sprintf("advance %d", end))
			s.wm.LastProcessedID = end
			return nil
		},
	}
}

func testController(t *testing.T) *Controller {
	t.Helper()
	return NewController(nil, zerolog.Nop())
}

func TestRunPassFirstWindow(t *testing.T) {
	c := testController(t)
	state := newProtocolState(0, 10, true)

	var gotStart, gotEnd int64
	win, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		gotStart, gotEnd = start, end
		return nil
	})
	require.NoError(t, err)

	require.Equal(t, Window{Start: 1, End: 10}, win)
	require.Equal(t, int64(1), gotStart)
	require.Equal(t, int64(10), gotEnd)
	require.Equal(t, int64(10), state.wm.LastProcessedID)
	require.Equal(t, []string{
		"lock",
		"sequence trips_sequence_id_seq",
		"drain trips",
		"advance 10",
	}, state.events)
}

func TestRunPassSequenceNeverAdvanced(t *testing.T) {
	c := testController(t)
	state := newProtocolState(0, 0, false)

	win, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		t.Fatal("derivation must not run on an untouched source")
		return nil
	})
	require.NoError(t, err)
	require.True(t, win.Empty())
	require.Equal(t, int64(0), state.wm.LastProcessedID)
	require.NotContains(t, state.events, "drain trips")
}

func TestRunPassNothingNewSinceLastRun(t *testing.T) {
	c := testController(t)
	state := newProtocolState(10, 10, true)

	win, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		t.Fatal("empty window must short-circuit before the derivation")
		return nil
	})
	require.NoError(t, err)
	require.True(t, win.Empty())
	require.Equal(t, Window{Start: 11, End: 10}, win)
	require.Equal(t, int64(10), state.wm.LastProcessedID, "watermark must not move")
}

func TestRunPassErrorLeavesWatermarkIntact(t *testing.T) {
	c := testController(t)
	state := newProtocolState(5, 20, true)

	_, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		return fmt.Errorf("upsert failed")
	})
	require.Error(t, err)
	require.Equal(t, int64(5), state.wm.LastProcessedID)
	require.NotContains(t, state.events, "advance 20")
}

func TestRunPassConsecutiveWindowsAreAdjacent(t *testing.T) {
	c := testController(t)
	state := newProtocolState(0, 10, true)

	first, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error { return nil })
	require.NoError(t, err)

	// more rows arrive between passes
	state.seqLast = 17

	second, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error { return nil })
	require.NoError(t, err)

	require.Equal(t, Window{Start: 1, End: 10}, first)
	require.Equal(t, Window{Start: 11, End: 17}, second)
	require.Equal(t, first.End+1, second.Start, "windows must be disjoint and adjacent")
	require.Equal(t, int64(17), state.wm.LastProcessedID)
}

func TestRunPassDrainsBeforeDerivation(t *testing.T) {
	c := testController(t)
	state := newProtocolState(0, 3, true)

	_, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		require.Contains(t, state.events, "drain trips", "writers must be drained before the window is read")
		return nil
	})
	require.NoError(t, err)
}

func TestRunPassRejectsUnsafeIdentifiers(t *testing.T) {
	c := testController(t)
	state := newProtocolState(0, 10, true)
	state.wm.SrcTable = "trips; drop table trips"

	_, err := c.runPass("route_aggregates", state.ops(), func(start, end int64) error {
		t.Fatal("derivation must not run with an unsafe source identifier")
		return nil
	})
	require.Error(t, err)
	require.Equal(t, []string{"lock"}, state.events)
}
