package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"mobility-ingest/internal/loader"
	"mobility-ingest/internal/metrics"
	"mobility-ingest/internal/model"
	"mobility-ingest/internal/provider"
	"mobility-ingest/internal/validate"
)

var statusChangeRaw = json.RawMessage(`{
	"provider_id": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
	"provider_name": "mobly",
	"device_id": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
	"vehicle_id": "SC-001",
	"vehicle_type": "scooter",
	"propulsion_type": ["electric"],
	"event_type": "available",
	"event_type_reason": "service_start",
	"event_time": 1546300800,
	"event_location": {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.4, 37.7]}}
}`)

var tripRaw = json.RawMessage(`{
	"provider_id": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
	"provider_name": "mobly",
	"device_id": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
	"vehicle_id": "SC-001",
	"vehicle_type": "scooter",
	"propulsion_type": ["electric"],
	"trip_id": "cccccccc-cccc-cccc-cccc-cccccccccccc",
	"trip_duration": 600,
	"trip_distance": 1500,
	"route": {"type": "FeatureCollection", "features": []},
	"start_time": 1546300800,
	"end_time": 1546301400
}`)

type fetchCall struct {
	kind provider.RecordKind
	q    provider.Query
}

type fakeClient struct {
	calls []fetchCall
	err   error
}

func (f *fakeClient) Fetch(_ context.Context, kind provider.RecordKind, q provider.Query) ([]provider.Page, error) {
	f.calls = append(f.calls, fetchCall{kind: kind, q: q})
	if f.err != nil {
		return nil, f.err
	}
	raw := statusChangeRaw
	if kind == provider.Trips {
		raw = tripRaw
	}
	return []provider.Page{{Version: "0.3", Records: []json.RawMessage{raw}}}, nil
}

type fakeFiles struct {
	reads []provider.RecordKind
}

func (f *fakeFiles) Read(kind provider.RecordKind, _ []string) ([]provider.Page, error) {
	f.reads = append(f.reads, kind)
	return []provider.Page{{Version: "0.3", Records: []json.RawMessage{tripRaw}}}, nil
}

type loadCall struct {
	kind provider.RecordKind
	n    int
	opts loader.Options
}

type fakeLoader struct {
	calls []loadCall
	err   error
}

func (f *fakeLoader) LoadStatusChanges(_ context.Context, recs []model.StatusChange, opts loader.Options) (loader.Result, error) {
	f.calls = append(f.calls, loadCall{kind: provider.StatusChanges, n: len(recs), opts: opts})
	return loader.Result{Received: len(recs), Unique: len(recs), Loaded: int64(len(recs))}, f.err
}

func (f *fakeLoader) LoadTrips(_ context.Context, recs []model.Trip, opts loader.Options) (loader.Result, error) {
	f.calls = append(f.calls, loadCall{kind: provider.Trips, n: len(recs), opts: opts})
	return loader.Result{Received: len(recs), Unique: len(recs), Loaded: int64(len(recs))}, f.err
}

func newTestService(client *fakeClient, files *fakeFiles, ld *fakeLoader) *IngestService {
	return NewIngestService(
		client,
		files,
		validate.NewSchemaValidator(),
		ld,
		metrics.New(prometheus.NewRegistry()),
		zerolog.Nop(),
	)
}

func TestRunRequiresRecordKind(t *testing.T) {
	svc := newTestService(&fakeClient{}, &fakeFiles{}, &fakeLoader{})
	err := svc.Run(context.Background(), RunOptions{Provider: "mobly"})
	require.ErrorIs(t, err, ErrNoRecordKind)
}

func TestRunSingleWindow(t *testing.T) {
	client := &fakeClient{}
	ld := &fakeLoader{}
	svc := newTestService(client, &fakeFiles{}, ld)

	err := svc.Run(context.Background(), RunOptions{
		Provider:  "mobly",
		Kinds:     []provider.RecordKind{provider.StatusChanges, provider.Trips},
		StartTime: "2019-01-01T00:00:00Z",
		EndTime:   "2019-01-01T06:00:00Z",
	})
	require.NoError(t, err)

	require.Len(t, client.calls, 2)
	require.True(t, client.calls[0].q.Paging, "paging defaults on")
	require.Len(t, ld.calls, 2)
	require.Equal(t, provider.StatusChanges, ld.calls[0].kind)
	require.Equal(t, provider.Trips, ld.calls[1].kind)
	require.Equal(t, 1, ld.calls[0].n)
}

func TestRunBackfillForcesPaging(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(client, &fakeFiles{}, &fakeLoader{})

	err := svc.Run(context.Background(), RunOptions{
		Provider:    "mobly",
		Kinds:       []provider.RecordKind{provider.StatusChanges},
		StartTime:   "2018-12-31T00:00:00Z",
		EndTime:     "2019-01-01T00:00:00Z",
		DurationSec: 21600,
		NoPaging:    true,
	})
	require.NoError(t, err)

	require.Len(t, client.calls, 9, "one fetch per planned window")
	for _, call := range client.calls {
		require.True(t, call.q.Paging, "backfill must always page")
	}
}

func TestRunFileSourcesBypassClient(t *testing.T) {
	client := &fakeClient{}
	files := &fakeFiles{}
	ld := &fakeLoader{}
	svc := newTestService(client, files, ld)

	err := svc.Run(context.Background(), RunOptions{
		Provider: "mobly",
		Kinds:    []provider.RecordKind{provider.Trips},
		Sources:  []string{"testdata/trips.json"},
	})
	require.NoError(t, err)
	require.Empty(t, client.calls)
	require.Equal(t, []provider.RecordKind{provider.Trips}, files.reads)
	require.Len(t, ld.calls, 1)
}

func TestRunNoLoadSkipsLoader(t *testing.T) {
	ld := &fakeLoader{}
	svc := newTestService(&fakeClient{}, &fakeFiles{}, ld)

	err := svc.Run(context.Background(), RunOptions{
		Provider:  "mobly",
		Kinds:     []provider.RecordKind{provider.Trips},
		StartTime: "2019-01-01T00:00:00Z",
		EndTime:   "2019-01-01T06:00:00Z",
		NoLoad:    true,
	})
	require.NoError(t, err)
	require.Empty(t, ld.calls)
}

func TestRunDefaultConflictUpdateResolvesPerKind(t *testing.T) {
	ld := &fakeLoader{}
	svc := newTestService(&fakeClient{}, &fakeFiles{}, ld)

	err := svc.Run(context.Background(), RunOptions{
		Provider:              "mobly",
		Kinds:                 []provider.RecordKind{provider.StatusChanges, provider.Trips},
		StartTime:             "2019-01-01T00:00:00Z",
		EndTime:               "2019-01-01T06:00:00Z",
		DefaultConflictUpdate: true,
	})
	require.NoError(t, err)

	require.Len(t, ld.calls, 2)
	require.Equal(t, loader.RulesFor(loader.DefaultStatusChangeUpdateColumns), ld.calls[0].opts.ConflictRules)
	require.Equal(t, loader.RulesFor(loader.DefaultTripUpdateColumns), ld.calls[1].opts.ConflictRules)
}

func TestRunExplicitRulesWinOverDefault(t *testing.T) {
	ld := &fakeLoader{}
	svc := newTestService(&fakeClient{}, &fakeFiles{}, ld)

	rules := []loader.ConflictRule{{Column: "route"}}
	err := svc.Run(context.Background(), RunOptions{
		Provider:              "mobly",
		Kinds:                 []provider.RecordKind{provider.Trips},
		StartTime:             "2019-01-01T00:00:00Z",
		EndTime:               "2019-01-01T06:00:00Z",
		ConflictRules:         rules,
		DefaultConflictUpdate: true,
	})
	require.NoError(t, err)
	require.Equal(t, rules, ld.calls[0].opts.ConflictRules)
}

func TestRunBadTimeRange(t *testing.T) {
	svc := newTestService(&fakeClient{}, &fakeFiles{}, &fakeLoader{})
	err := svc.Run(context.Background(), RunOptions{
		Provider: "mobly",
		Kinds:    []provider.RecordKind{provider.Trips},
	})
	require.ErrorIs(t, err, ErrTimeRange)
}

func TestRunFetchErrorWrapped(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("boom")}
	svc := newTestService(client, &fakeFiles{}, &fakeLoader{})
	err := svc.Run(context.Background(), RunOptions{
		Provider:  "mobly",
		Kinds:     []provider.RecordKind{provider.Trips},
		StartTime: "2019-01-01T00:00:00Z",
		EndTime:   "2019-01-01T06:00:00Z",
	})
	require.ErrorIs(t, err, ErrFetch)
}

func TestRunLoadErrorWrapped(t *testing.T) {
	ld := &fakeLoader{err: fmt.Errorf("merge failed")}
	svc := newTestService(&fakeClient{}, &fakeFiles{}, ld)
	err := svc.Run(context.Background(), RunOptions{
		Provider:  "mobly",
		Kinds:     []provider.RecordKind{provider.Trips},
		StartTime: "2019-01-01T00:00:00Z",
		EndTime:   "2019-01-01T06:00:00Z",
	})
	require.ErrorIs(t, err, ErrLoad)
}
