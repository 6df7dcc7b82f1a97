package derive

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobility-ingest/internal/model"
	"mobility-ingest/internal/watermark"
)

// AvailabilityJob is the watermark job name for availability derivation over
// the status-change log.
const AvailabilityJob = "availability_windows"

// AvailabilityDeriver pairs state-transition events into per-device
// availability and occupancy windows, gated by the watermark over the
// status-change log's sequence.
type AvailabilityDeriver struct {
	db  *gorm.DB
	wm  *watermark.Controller
	log zerolog.Logger
}

func NewAvailabilityDeriver(db *gorm.DB, wm *watermark.Controller, log zerolog.Logger) *AvailabilityDeriver {
	return &AvailabilityDeriver{db: db, wm: wm, log: log}
}

func (d *AvailabilityDeriver) Register(ctx context.Context) error {
	return d.wm.Register(ctx, AvailabilityJob, "status_changes", "status_changes_sequence_id_seq")
}

// Run processes the next watermark window of status changes. A new event for
// a device can close that device's previously open window, so the full
// timeline of every device touched by the window is re-paired and upserted;
// the natural-key upsert makes the recomputation idempotent.
func (d *AvailabilityDeriver) Run(ctx context.Context) (watermark.Window, Stats, error) {
	var stats Stats
	win, err := d.wm.Run(ctx, AvailabilityJob, func(tx *gorm.DB, start, end int64) error {
		var devices []struct {
			ProviderID uuid.UUID
			DeviceID   uuid.UUID
		}
		if err := tx.Model(&model.StatusChange{}).
			Select("DISTINCT provider_id, device_id").
			Where("sequence_id BETWEEN ? AND ?", start, end).
			Scan(&devices).Error; err != nil {
			return fmt.Errorf("select affected devices: %w", err)
		}
		if len(devices) == 0 {
			return nil
		}

		pairs := make([][]any, len(devices))
		for i, dev := range devices {
			pairs[i] = []any{dev.ProviderID, dev.DeviceID}
		}

		var events []model.StatusChange
		if err := tx.
			Where("(provider_id, device_id) IN ?", pairs).
			Order("provider_id, device_id, event_time, sequence_id").
			Find(&events).Error; err != nil {
			return fmt.Errorf("select device timelines: %w", err)
		}
		stats.SourceRows = len(events)

		windows := PairWindows(events)
		stats.DerivedRows = len(windows)
		if len(windows) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "provider_id"}, {Name: "device_id"},
				{Name: "start_time"}, {Name: "start_event_type"},
			},
			UpdateAll: true,
		}).CreateInBatches(windows, 200).Error
	})
	if err != nil {
		return win, stats, err
	}

	d.log.Info().
		Int64("window_start", win.Start).
		Int64("window_end", win.End).
		Int("events", stats.SourceRows).
		Int("windows", stats.DerivedRows).
		Msg("availability pass complete")
	return win, stats, nil
}

// PairWindows builds availability and occupancy windows from device event
// timelines. Input may arrive in any order; it is sorted by (provider,
// device, event_time) and adjacent repeated event types are collapsed first,
// tolerating duplicate transmissions.
//
// Every "available" event opens a window closed by the device's next event
// (after collapsing, necessarily non-available), and every user_pick_up
// event opens an occupancy window closed by the next event of any type. A
// window with no closing event stays open: the device is still available, or
// presumed lost.
func PairWindows(events []model.StatusChange) []model.AvailabilityWindow {
	sorted := make([]model.StatusChange, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ProviderID != sorted[j].ProviderID {
			return sorted[i].ProviderID.String() < sorted[j].ProviderID.String()
		}
		if sorted[i].DeviceID != sorted[j].DeviceID {
			return sorted[i].DeviceID.String() < sorted[j].DeviceID.String()
		}
		return sorted[i].EventTime.Before(sorted[j].EventTime)
	})

	var windows []model.AvailabilityWindow
	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sameDevice(&sorted[start], &sorted[end]) {
			end++
		}
		timeline := collapseDuplicates(sorted[start:end])
		windows = append(windows, pairDevice(timeline)...)
		start = end
	}
	return windows
}

func sameDevice(a, b *model.StatusChange) bool {
	return a.ProviderID == b.ProviderID && a.DeviceID == b.DeviceID
}

// collapseDuplicates drops adjacent events repeating the previous event type.
func collapseDuplicates(timeline []model.StatusChange) []model.StatusChange {
	out := make([]model.StatusChange, 0, len(timeline))
	for i := range timeline {
		if len(out) > 0 && out[len(out)-1].EventType == timeline[i].EventType {
			continue
		}
		out = append(out, timeline[i])
	}
	return out
}

func pairDevice(timeline []model.StatusChange) []model.AvailabilityWindow {
	var windows []model.AvailabilityWindow
	for i := range timeline {
		ev := &timeline[i]
		opens := ev.EventType == model.EventTypeAvailable || ev.EventTypeReason == model.ReasonUserPickUp
		if !opens {
			continue
		}

		win := model.AvailabilityWindow{
			ProviderID:     ev.ProviderID,
			ProviderName:   ev.ProviderName,
			DeviceID:       ev.DeviceID,
			VehicleType:    ev.VehicleType,
			StartEventType: ev.EventType,
			StartReason:    ev.EventTypeReason,
			StartTime:      ev.EventTime,
		}
		if i+1 < len(timeline) {
			next := &timeline[i+1]
			endType := next.EventType
			endReason := next.EventTypeReason
			endTime := next.EventTime
			duration := int64(endTime.Sub(ev.EventTime).Seconds())
			win.EndEventType = &endType
			win.EndReason = &endReason
			win.EndTime = &endTime
			win.DurationSec = &duration
		}
		windows = append(windows, win)
	}
	return windows
}
