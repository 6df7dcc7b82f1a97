package backfill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func utc(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestPlanOneDaySixHourWindows(t *testing.T) {
	start := utc("2018-12-31T00:00:00Z")
	end := utc("2019-01-01T00:00:00Z")
	duration := 21600 * time.Second

	windows := Plan(start, end, duration)
	require.Len(t, windows, 9)

	// newest first, anchored half a window past each bound
	require.Equal(t, utc("2018-12-31T21:00:00Z"), windows[0].Start)
	require.Equal(t, utc("2019-01-01T03:00:00Z"), windows[0].End)
	require.Equal(t, utc("2018-12-30T21:00:00Z"), windows[8].Start)
	require.Equal(t, utc("2018-12-31T03:00:00Z"), windows[8].End)

	for i, w := range windows {
		require.Equal(t, duration, w.End.Sub(w.Start), "window %d size", i)
	}
}

func TestPlanAdjacentWindowsOverlapHalf(t *testing.T) {
	start := utc("2019-03-01T00:00:00Z")
	end := utc("2019-03-02T12:00:00Z")
	duration := 4 * time.Hour

	windows := Plan(start, end, duration)
	require.NotEmpty(t, windows)

	for i := 1; i < len(windows); i++ {
		newer, older := windows[i-1], windows[i]
		require.Equal(t, duration/2, older.End.Sub(newer.Start),
			"windows %d and %d must overlap by half a window", i-1, i)
	}

	// the union covers the requested range with slack on both ends
	require.False(t, windows[0].End.Before(end))
	require.False(t, windows[len(windows)-1].Start.After(start))
}

func TestPlanDegenerateInputs(t *testing.T) {
	start := utc("2019-01-01T00:00:00Z")
	end := utc("2019-01-02T00:00:00Z")

	require.Nil(t, Plan(start, end, 0))
	require.Nil(t, Plan(start, end, -time.Hour))
	require.Nil(t, Plan(end, start, time.Hour))
}

func TestParseTimeRange(t *testing.T) {
	cases := []struct {
		name      string
		start     string
		end       string
		duration  int64
		wantStart time.Time
		wantEnd   time.Time
		wantErr   bool
	}{
		{
			name:      "both bounds rfc3339",
			start:     "2018-12-31T00:00:00Z",
			end:       "2019-01-01T00:00:00Z",
			wantStart: utc("2018-12-31T00:00:00Z"),
			wantEnd:   utc("2019-01-01T00:00:00Z"),
		},
		{
			name:      "both bounds zoneless",
			start:     "2018-12-31T00:00:00",
			end:       "2019-01-01T00:00:00",
			wantStart: utc("2018-12-31T00:00:00Z"),
			wantEnd:   utc("2019-01-01T00:00:00Z"),
		},
		{
			name:      "inverted bounds swap",
			start:     "2019-01-01T00:00:00Z",
			end:       "2018-12-31T00:00:00Z",
			wantStart: utc("2018-12-31T00:00:00Z"),
			wantEnd:   utc("2019-01-01T00:00:00Z"),
		},
		{
			name:      "unix seconds",
			start:     "1546214400",
			end:       "1546300800",
			wantStart: utc("2018-12-31T00:00:00Z"),
			wantEnd:   utc("2019-01-01T00:00:00Z"),
		},
		{
			name:      "start plus duration",
			start:     "2019-01-01T00:00:00Z",
			duration:  3600,
			wantStart: utc("2019-01-01T00:00:00Z"),
			wantEnd:   utc("2019-01-01T01:00:00Z"),
		},
		{
			name:      "end minus duration",
			end:       "2019-01-01T00:00:00Z",
			duration:  3600,
			wantStart: utc("2018-12-31T23:00:00Z"),
			wantEnd:   utc("2019-01-01T00:00:00Z"),
		},
		{
			name:    "single bound without duration",
			start:   "2019-01-01T00:00:00Z",
			wantErr: true,
		},
		{
			name:    "no bounds",
			wantErr: true,
		},
		{
			name:    "unparseable",
			start:   "yesterday",
			end:     "today",
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gotStart, gotEnd, err := ParseTimeRange(tc.start, tc.end, tc.duration)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantStart, gotStart)
			require.Equal(t, tc.wantEnd, gotEnd)
		})
	}
}
