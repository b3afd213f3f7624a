package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

// Tuesday and Saturday in the same week.
var (
	tuesday  = time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)
	saturday = time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC)
)

func at(day time.Time, hhmm string) time.Time {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		panic(err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), parsed.Hour(), parsed.Minute(), 0, 0, time.UTC)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeAdapter records dispatch intent; tests never wait on downstream
// completion beyond reading the channel.
type fakeAdapter struct {
	applied chan model.ApplyRequest
	err     error
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{applied: make(chan model.ApplyRequest, 16)}
}

func (a *fakeAdapter) Apply(_ context.Context, req model.ApplyRequest) error {
	a.applied <- req
	return a.err
}

func (a *fakeAdapter) waitForApply(t *testing.T) model.ApplyRequest {
	t.Helper()
	select {
	case req := <-a.applied:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("expected an apply request to be dispatched")
		return model.ApplyRequest{}
	}
}

func (a *fakeAdapter) assertNoApply(t *testing.T) {
	t.Helper()
	select {
	case req := <-a.applied:
		t.Fatalf("unexpected apply request dispatched: %+v", req)
	case <-time.After(100 * time.Millisecond):
	}
}

func f(v float64) *float64 { return &v }

func tod(t *testing.T, s string) model.TimeOfDay {
	t.Helper()
	parsed, err := model.ParseTimeOfDay(s)
	require.NoError(t, err)
	return parsed
}

func testPresets() model.PresetCatalog {
	return model.PresetCatalog{
		"home":     {Name: "home", Temperature: f(21)},
		"away":     {Name: "away", Temperature: f(18)},
		"sleep":    {Name: "sleep", Temperature: f(19)},
		"vacation": {Name: "vacation", Temperature: f(16)},
	}
}

func testTable(t *testing.T) model.ScheduleTable {
	t.Helper()
	return model.ScheduleTable{
		model.DayTypeWeekday: {
			{Time: tod(t, "06:00"), Preset: "home"},
			{Time: tod(t, "08:00"), Preset: "away"},
			{Time: tod(t, "17:00"), Preset: "home"},
			{Time: tod(t, "22:00"), Preset: "sleep"},
		},
	}
}

func newTestController(t *testing.T, clk *fakeClock, adapter *fakeAdapter) *Controller {
	t.Helper()
	return New(Config{
		DeviceID: "living_room",
		Clock:    clk,
		Adapter:  adapter,
		Table:    testTable(t),
		Presets:  testPresets(),
	})
}

func TestOnTick_AppliesDuePreset(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.OnTick(clk.Now())

	snap := ctrl.Snapshot()
	assert.Equal(t, "home", snap.ActivePreset)
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 21.0, *snap.TargetTemperature)
	assert.True(t, snap.LastManualChange.IsZero(), "schedule changes must not arm the override window")

	req := adapter.waitForApply(t)
	assert.Equal(t, "living_room", req.DeviceID)
	require.NotNil(t, req.TargetTemperature)
	assert.Equal(t, 21.0, *req.TargetTemperature)
	require.NotNil(t, req.Mode)
	assert.Equal(t, model.ModeHeatCool, *req.Mode)
}

func TestOnTick_Idempotent(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.OnTick(clk.Now())
	adapter.waitForApply(t)
	first := ctrl.Snapshot()

	// Same moment, same table: repeated ticks must do nothing more.
	ctrl.OnTick(clk.Now())
	ctrl.OnTick(clk.Now())

	adapter.assertNoApply(t)
	assert.Equal(t, first, ctrl.Snapshot())
}

func TestOnTick_BeforeFirstSlot(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "05:00")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.OnTick(clk.Now())

	assert.Equal(t, "", ctrl.ActivePreset())
	adapter.assertNoApply(t)
}

func TestOnTick_NoScheduleForDayType(t *testing.T) {
	clk := &fakeClock{now: at(saturday, "12:00")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter) // table has weekday slots only

	ctrl.OnTick(clk.Now())

	assert.Equal(t, "", ctrl.ActivePreset())
	adapter.assertNoApply(t)
}

func TestManualOverrideSuppressesScheduleFor30Minutes(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "10:00")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	// Manual override at 10:00.
	require.NoError(t, ctrl.SetPresetMode("vacation"))
	req := adapter.waitForApply(t)
	require.NotNil(t, req.TargetTemperature)
	assert.Equal(t, 16.0, *req.TargetTemperature)

	// Tick at 10:20: schedule resolves "away" but the window is armed.
	clk.Set(at(tuesday, "10:20"))
	ctrl.OnTick(clk.Now())
	assert.Equal(t, "vacation", ctrl.ActivePreset())
	adapter.assertNoApply(t)

	// Tick at 10:31: the window lapsed, the schedule change applies.
	clk.Set(at(tuesday, "10:31"))
	ctrl.OnTick(clk.Now())
	snap := ctrl.Snapshot()
	assert.Equal(t, "away", snap.ActivePreset)
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 18.0, *snap.TargetTemperature)
	adapter.waitForApply(t)
}

func TestManualCommandAppliesWhileWindowArmed(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "10:00")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	require.NoError(t, ctrl.SetPresetMode("vacation"))
	adapter.waitForApply(t)

	// A second manual command inside the window still applies and re-arms.
	clk.Set(at(tuesday, "10:10"))
	require.NoError(t, ctrl.SetPresetMode("sleep"))
	adapter.waitForApply(t)
	assert.Equal(t, "sleep", ctrl.ActivePreset())
	assert.Equal(t, at(tuesday, "10:10"), ctrl.Snapshot().LastManualChange)
}

func TestSetPresetMode_InvalidPreset(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.OnTick(clk.Now())
	adapter.waitForApply(t)
	before := ctrl.Snapshot()

	err := ctrl.SetPresetMode("bogus")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPreset)

	assert.Equal(t, before, ctrl.Snapshot())
	adapter.assertNoApply(t)
}

func TestSetTemperature_DoesNotArmOverrideWindow(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.SetTemperature(25)
	req := adapter.waitForApply(t)
	require.NotNil(t, req.TargetTemperature)
	assert.Equal(t, 25.0, *req.TargetTemperature)
	assert.True(t, ctrl.Snapshot().LastManualChange.IsZero())

	// The next tick is free to apply the schedule: setpoint edits protect
	// nothing.
	clk.Set(at(tuesday, "07:35"))
	ctrl.OnTick(clk.Now())
	snap := ctrl.Snapshot()
	assert.Equal(t, "home", snap.ActivePreset)
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 21.0, *snap.TargetTemperature)
	adapter.waitForApply(t)
}

func TestSetHVACMode(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	require.NoError(t, ctrl.SetHVACMode(model.ModeHeat))
	req := adapter.waitForApply(t)
	require.NotNil(t, req.Mode)
	assert.Equal(t, model.ModeHeat, *req.Mode)
	assert.True(t, ctrl.Snapshot().LastManualChange.IsZero())

	err := ctrl.SetHVACMode(model.HVACMode("tepid"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, model.ModeHeat, ctrl.Snapshot().Mode)
	adapter.assertNoApply(t)
}

func TestPresetWithoutTemperatureLeavesSetpointAlone(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	presets := testPresets()
	presets["eco"] = model.Preset{Name: "eco"}

	ctrl := New(Config{
		DeviceID: "living_room",
		Clock:    clk,
		Adapter:  adapter,
		Table:    testTable(t),
		Presets:  presets,
	})

	ctrl.SetTemperature(22)
	adapter.waitForApply(t)

	require.NoError(t, ctrl.SetPresetMode("eco"))
	adapter.waitForApply(t)

	snap := ctrl.Snapshot()
	assert.Equal(t, "eco", snap.ActivePreset)
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 22.0, *snap.TargetTemperature)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "10:00")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	require.NoError(t, ctrl.SetPresetMode("sleep"))
	adapter.waitForApply(t)
	snap := ctrl.Snapshot()

	restored := newTestController(t, clk, adapter)
	restored.Restore(snap)

	got := restored.Snapshot()
	assert.Equal(t, snap.ActivePreset, got.ActivePreset)
	require.NotNil(t, got.TargetTemperature)
	assert.Equal(t, *snap.TargetTemperature, *got.TargetTemperature)
	assert.Equal(t, snap.Mode, got.Mode)
}

func TestRestore_IgnoresMalformedFields(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "10:00")}
	adapter := newFakeAdapter()
	ctrl := New(Config{
		DeviceID:      "living_room",
		Clock:         clk,
		Adapter:       adapter,
		Table:         testTable(t),
		Presets:       testPresets(),
		DefaultPreset: "home",
		DefaultMode:   model.ModeHeat,
	})

	ctrl.Restore(model.SchedulerState{
		ActivePreset:      "retired_preset",
		TargetTemperature: f(19.5),
		Mode:              model.HVACMode("lukewarm"),
	})

	snap := ctrl.Snapshot()
	assert.Equal(t, "home", snap.ActivePreset, "unknown restored preset falls back to default")
	assert.Equal(t, model.ModeHeat, snap.Mode, "invalid restored mode falls back to default")
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 19.5, *snap.TargetTemperature, "valid fields are still taken")
}

func TestScheduleDisabled(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	ctrl.SetScheduleEnabled(false)
	ctrl.OnTick(clk.Now())
	assert.Equal(t, "", ctrl.ActivePreset())
	adapter.assertNoApply(t)

	// Manual operations keep working while the schedule is off.
	require.NoError(t, ctrl.SetPresetMode("away"))
	adapter.waitForApply(t)
	assert.Equal(t, "away", ctrl.ActivePreset())

	// Re-enabled: the due preset at 11:00 is "away", which is already
	// active, so the tick is a no-op rather than a re-apply.
	ctrl.SetScheduleEnabled(true)
	clk.Set(at(tuesday, "11:00"))
	ctrl.OnTick(clk.Now())
	adapter.assertNoApply(t)
	assert.Equal(t, "away", ctrl.ActivePreset())
}

func TestDispatchFailureDoesNotRollBackState(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "10:00")}
	adapter := newFakeAdapter()
	adapter.err = errors.New("bridge unreachable")
	ctrl := newTestController(t, clk, adapter)

	require.NoError(t, ctrl.SetPresetMode("vacation"))
	adapter.waitForApply(t)

	snap := ctrl.Snapshot()
	assert.Equal(t, "vacation", snap.ActivePreset)
	require.NotNil(t, snap.TargetTemperature)
	assert.Equal(t, 16.0, *snap.TargetTemperature)
}

func TestNextTransitionAttributes(t *testing.T) {
	clk := &fakeClock{now: at(tuesday, "07:30")}
	adapter := newFakeAdapter()
	ctrl := newTestController(t, clk, adapter)

	slot, ok := ctrl.NextTransition()
	require.True(t, ok)
	assert.Equal(t, "08:00", slot.Time.String())
	assert.Equal(t, "away", slot.Preset)

	temp, ok := ctrl.NextTemperature()
	require.True(t, ok)
	assert.Equal(t, 18.0, temp)

	clk.Set(at(tuesday, "23:00"))
	_, ok = ctrl.NextTransition()
	assert.False(t, ok)
	_, ok = ctrl.NextTemperature()
	assert.False(t, ok)
}
