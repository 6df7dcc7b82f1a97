package backfill

import (
	"fmt"
	"strconv"
	"time"
)

// Window is one time-bounded query range against a source. Each window is
// interchangeable with a direct single query for its range.
type Window struct {
	Start time.Time
	End   time.Time
}

func (w Window) String() string {
	return fmt.Sprintf("%s to %s", w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339))
}

// Plan steps backward from end in strides of duration/2, emitting windows of
// size duration. Adjacent windows overlap by exactly duration/2, so events
// straddling a page's time boundary are never dropped; the natural-key dedup
// in the loader absorbs the duplicates the overlap produces.
//
// Windows are emitted newest-first. The earliest window's start is clipped at
// start - duration/2.
func Plan(start, end time.Time, duration time.Duration) []Window {
	if duration <= 0 || end.Before(start) {
		return nil
	}

	offset := duration / 2
	floor := start.Add(-offset)

	var windows []Window
	for cursor := end.Add(offset); !cursor.Add(-offset).Before(start); cursor = cursor.Add(-offset) {
		ws := cursor.Add(-duration)
		if ws.Before(floor) {
			ws = floor
		}
		windows = append(windows, Window{Start: ws, End: cursor})
	}
	return windows
}

// ParseTimeRange resolves a (start, end) pair from some mix of textual start,
// textual end, and a duration in seconds. Timestamps are Unix seconds or
// RFC 3339. When both bounds are present they win (swapped if inverted) and
// duration is ignored; with a single bound, duration derives the other side.
func ParseTimeRange(start, end string, durationSec int64) (time.Time, time.Time, error) {
	var zero time.Time

	if start == "" && end == "" {
		return zero, zero, fmt.Errorf("at least one of start or end is required")
	}

	if start != "" && end != "" {
		s, err := parseTime(start)
		if err != nil {
			return zero, zero, fmt.Errorf("start time: %w", err)
		}
		e, err := parseTime(end)
		if err != nil {
			return zero, zero, fmt.Errorf("end time: %w", err)
		}
		if e.Before(s) {
			s, e = e, s
		}
		return s, e, nil
	}

	if durationSec <= 0 {
		return zero, zero, fmt.Errorf("with a single time bound, duration is required")
	}
	duration := time.Duration(durationSec) * time.Second

	if start != "" {
		s, err := parseTime(start)
		if err != nil {
			return zero, zero, fmt.Errorf("start time: %w", err)
		}
		return s, s.Add(duration), nil
	}

	e, err := parseTime(end)
	if err != nil {
		return zero, zero, fmt.Errorf("end time: %w", err)
	}
	return e.Add(-duration), e, nil
}

func parseTime(s string) (time.Time, error) {
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	// zoneless ISO-8601 is treated as UTC
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected Unix seconds or ISO-8601, got %q", s)
	}
	return t.UTC(), nil
}
