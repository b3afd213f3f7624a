// Package scheduler owns the per-device state machine: it follows the
// schedule table on each tick, arbitrates against manual overrides, commits
// state locally, and dispatches apply-requests to the device adapter without
// waiting on them.
package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-scheduler/db"
	"github.com/thatsimonsguy/climate-scheduler/internal/clock"
	"github.com/thatsimonsguy/climate-scheduler/internal/datadog"
	"github.com/thatsimonsguy/climate-scheduler/internal/deviceadapter"
	"github.com/thatsimonsguy/climate-scheduler/internal/model"
	"github.com/thatsimonsguy/climate-scheduler/internal/notifications"
	"github.com/thatsimonsguy/climate-scheduler/internal/schedule"
	"github.com/thatsimonsguy/climate-scheduler/internal/store"
)

var (
	ErrInvalidPreset = errors.New("invalid preset")
	ErrInvalidMode   = errors.New("invalid hvac mode")
)

// Config wires one controller. Store and History are optional; a nil value
// just disables that side effect.
type Config struct {
	DeviceID       string
	Clock          clock.Clock
	Adapter        deviceadapter.Adapter
	Table          model.ScheduleTable
	Presets        model.PresetCatalog
	OverrideWindow time.Duration
	DefaultPreset  string
	DefaultMode    model.HVACMode
	Store          *store.Store
	History        *sql.DB
}

// Controller runs the resolution-and-apply cycle for a single device.
// Ticks arrive from one timer goroutine and manual commands from the API,
// so all state access goes through the mutex.
type Controller struct {
	mu sync.Mutex

	deviceID string
	clock    clock.Clock
	adapter  deviceadapter.Adapter
	table    model.ScheduleTable
	presets  model.PresetCatalog
	window   time.Duration
	store    *store.Store
	history  *sql.DB

	scheduleEnabled bool
	state           model.SchedulerState
}

func New(cfg Config) *Controller {
	if cfg.OverrideWindow <= 0 {
		cfg.OverrideWindow = schedule.DefaultOverrideWindow
	}

	c := &Controller{
		deviceID:        cfg.DeviceID,
		clock:           cfg.Clock,
		adapter:         cfg.Adapter,
		table:           cfg.Table,
		presets:         cfg.Presets,
		window:          cfg.OverrideWindow,
		store:           cfg.Store,
		history:         cfg.History,
		scheduleEnabled: true,
	}

	c.state.Mode = cfg.DefaultMode
	if !model.ValidHVACMode(c.state.Mode) {
		c.state.Mode = model.ModeHeatCool
	}
	if preset, ok := c.presets[cfg.DefaultPreset]; ok {
		c.state.ActivePreset = preset.Name
		if preset.Temperature != nil {
			v := *preset.Temperature
			c.state.TargetTemperature = &v
		}
	}

	return c
}

func (c *Controller) DeviceID() string { return c.deviceID }

// Restore seeds state from a persisted snapshot. Fields that no longer make
// sense (unknown preset, bogus mode) are ignored individually; a bad
// snapshot never prevents startup.
func (c *Controller) Restore(snap model.SchedulerState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snap.ActivePreset != "" {
		if _, ok := c.presets[snap.ActivePreset]; ok {
			c.state.ActivePreset = snap.ActivePreset
		} else {
			log.Warn().
				Str("device", c.deviceID).
				Str("preset", snap.ActivePreset).
				Msg("Ignoring restored preset not in catalog")
		}
	}
	if snap.TargetTemperature != nil {
		v := *snap.TargetTemperature
		c.state.TargetTemperature = &v
	}
	if model.ValidHVACMode(snap.Mode) {
		c.state.Mode = snap.Mode
	}
	if !snap.LastManualChange.IsZero() {
		c.state.LastManualChange = snap.LastManualChange
	}

	log.Info().
		Str("device", c.deviceID).
		Str("preset", c.state.ActivePreset).
		Str("mode", string(c.state.Mode)).
		Msg("Restored scheduler state")
}

// OnTick runs one resolution cycle. Absent schedule data, an already-active
// preset, or an armed override window all make this a no-op.
func (c *Controller) OnTick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.scheduleEnabled {
		return
	}

	day := schedule.DayTypeOf(now.Weekday())
	if len(c.table[day]) == 0 {
		return
	}

	due, ok := schedule.ActivePresetAt(c.table, day, model.TimeOfDayFrom(now))
	if !ok || due == c.state.ActivePreset {
		return
	}

	if schedule.ShouldSuppress(c.state.LastManualChange, now, c.window) {
		log.Debug().
			Str("device", c.deviceID).
			Str("preset", due).
			Time("last_manual_change", c.state.LastManualChange).
			Msg("Manual override active, skipping schedule change")
		datadog.Count("scheduler.suppressed_changes", 1, deviceTag(c.deviceID))
		return
	}

	log.Info().
		Str("device", c.deviceID).
		Str("from", c.state.ActivePreset).
		Str("to", due).
		Msg("Schedule changing preset")

	c.applyPreset(due, false, now)
}

// SetPresetMode is the manual entry point. It always applies immediately and
// re-arms the override window.
func (c *Controller) SetPresetMode(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.applyPreset(name, true, c.clock.Now())
}

// applyPreset commits a preset change and dispatches downstream. Callers
// hold the mutex. An unknown preset leaves state untouched; that is a
// rejected request, not a failure mode worth crashing over.
func (c *Controller) applyPreset(name string, manual bool, now time.Time) error {
	preset, ok := c.presets[name]
	if !ok {
		log.Warn().
			Str("device", c.deviceID).
			Str("preset", name).
			Msg("Invalid preset mode")
		return fmt.Errorf("%w: %s", ErrInvalidPreset, name)
	}

	from := c.state.ActivePreset
	c.state.ActivePreset = preset.Name
	if preset.Temperature != nil {
		v := *preset.Temperature
		c.state.TargetTemperature = &v
	}
	if manual {
		c.state.LastManualChange = now
	}

	trigger := db.TriggerSchedule
	if manual {
		trigger = db.TriggerManual
	}
	datadog.Count("scheduler.preset_changes", 1, deviceTag(c.deviceID), "trigger:"+trigger)
	if c.state.TargetTemperature != nil {
		datadog.Gauge("scheduler.target_temperature", *c.state.TargetTemperature, deviceTag(c.deviceID))
	}

	c.persist()
	c.record(trigger, from, now)
	c.dispatch()
	return nil
}

// SetTemperature is a direct setpoint edit. It deliberately does not re-arm
// the override window: the window protects preset selection, not raw
// setpoints.
func (c *Controller) SetTemperature(value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.state.TargetTemperature = &value

	log.Info().
		Str("device", c.deviceID).
		Float64("temperature", value).
		Msg("Setting target temperature")
	datadog.Gauge("scheduler.target_temperature", value, deviceTag(c.deviceID))

	c.persist()
	c.record(db.TriggerSetpoint, c.state.ActivePreset, now)
	c.dispatch()
}

// SetHVACMode is a direct mode edit; like SetTemperature it leaves the
// override window alone.
func (c *Controller) SetHVACMode(mode model.HVACMode) error {
	if !model.ValidHVACMode(mode) {
		log.Warn().
			Str("device", c.deviceID).
			Str("mode", string(mode)).
			Msg("Invalid HVAC mode")
		return fmt.Errorf("%w: %s", ErrInvalidMode, mode)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.state.Mode = mode

	log.Info().
		Str("device", c.deviceID).
		Str("mode", string(mode)).
		Msg("Setting HVAC mode")

	c.persist()
	c.record(db.TriggerMode, c.state.ActivePreset, now)
	c.dispatch()
	return nil
}

// SetScheduleEnabled turns schedule-driven changes on or off. Manual
// operations keep working while disabled.
func (c *Controller) SetScheduleEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.scheduleEnabled = enabled
	log.Info().
		Str("device", c.deviceID).
		Bool("enabled", enabled).
		Msg("Schedule enabled flag changed")
}

func (c *Controller) ScheduleEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scheduleEnabled
}

// Snapshot returns a copy of the current state for persistence or display.
func (c *Controller) Snapshot() model.SchedulerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() model.SchedulerState {
	snap := c.state
	if c.state.TargetTemperature != nil {
		v := *c.state.TargetTemperature
		snap.TargetTemperature = &v
	}
	return snap
}

func (c *Controller) ActivePreset() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.ActivePreset
}

// NextTransition reports the next scheduled slot for today's day type.
func (c *Controller) NextTransition() (model.TimeSlot, bool) {
	now := c.clock.Now()
	return schedule.NextTransitionAt(c.table, schedule.DayTypeOf(now.Weekday()), model.TimeOfDayFrom(now))
}

// NextTemperature reports the temperature the next transition would set.
func (c *Controller) NextTemperature() (float64, bool) {
	now := c.clock.Now()
	return schedule.NextTemperatureAt(c.table, c.presets, schedule.DayTypeOf(now.Weekday()), model.TimeOfDayFrom(now))
}

// persist saves a snapshot after every state change. Failures are logged
// and ignored; the in-memory state is authoritative for this process.
func (c *Controller) persist() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.deviceID, c.snapshotLocked()); err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Failed to persist scheduler state")
	}
}

func (c *Controller) record(trigger, fromPreset string, at time.Time) {
	if c.history == nil {
		return
	}
	err := db.RecordTransition(c.history, db.Transition{
		DeviceID:          c.deviceID,
		Trigger:           trigger,
		FromPreset:        fromPreset,
		ToPreset:          c.state.ActivePreset,
		TargetTemperature: c.state.TargetTemperature,
		Mode:              c.state.Mode,
		OccurredAt:        at,
	})
	if err != nil {
		log.Warn().Err(err).Str("device", c.deviceID).Msg("Failed to record transition")
	}
}

// dispatch hands the committed state to the device adapter without waiting.
// Local state is already final: a downstream failure is logged and notified,
// never rolled back or retried here. The next tick or user action retries.
func (c *Controller) dispatch() {
	req := model.ApplyRequest{DeviceID: c.deviceID}
	if c.state.TargetTemperature != nil {
		v := *c.state.TargetTemperature
		req.TargetTemperature = &v
	}
	mode := c.state.Mode
	req.Mode = &mode

	go func() {
		if err := c.adapter.Apply(context.Background(), req); err != nil {
			log.Error().
				Err(err).
				Str("device", req.DeviceID).
				Msg("Failed to apply settings to device")
			datadog.Count("scheduler.apply_failures", 1, deviceTag(req.DeviceID))
			if nerr := notifications.Send("Climate apply failed", fmt.Sprintf("device %s: %v", req.DeviceID, err)); nerr != nil {
				log.Debug().Err(nerr).Msg("Notification not sent")
			}
		}
	}()
}

func deviceTag(id string) string {
	return "device:" + id
}
