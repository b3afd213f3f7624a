// Package schedule holds the pure decision logic of the scheduler: resolving
// which preset a day-typed time table makes active at a given moment, and the
// manual-override suppression window.
package schedule

import (
	"sort"
	"time"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

// DayTypeOf buckets a calendar weekday into the two schedule day types.
// Mon-Fri is weekday, Sat-Sun is weekend. Not configurable.
func DayTypeOf(d time.Weekday) model.DayType {
	if d == time.Saturday || d == time.Sunday {
		return model.DayTypeWeekend
	}
	return model.DayTypeWeekday
}

// sortedSlots returns the day's slots in ascending time order without
// mutating the table. The sort is stable so that slots sharing a time keep
// their declared order.
func sortedSlots(table model.ScheduleTable, day model.DayType) []model.TimeSlot {
	slots := make([]model.TimeSlot, len(table[day]))
	copy(slots, table[day])
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Time < slots[j].Time })
	return slots
}

// ActivePresetAt returns the preset of the latest slot at or before now.
// When two slots share that time, the last-declared one wins. Returns false
// when now precedes every slot for the day type.
func ActivePresetAt(table model.ScheduleTable, day model.DayType, now model.TimeOfDay) (string, bool) {
	var (
		preset string
		found  bool
	)
	for _, slot := range sortedSlots(table, day) {
		if slot.Time > now {
			break
		}
		preset = slot.Preset
		found = true
	}
	return preset, found
}

// NextTransitionAt returns the earliest slot strictly after now. Returns
// false at or after the day's last slot; there is no wraparound into the
// next day type.
func NextTransitionAt(table model.ScheduleTable, day model.DayType, now model.TimeOfDay) (model.TimeSlot, bool) {
	for _, slot := range sortedSlots(table, day) {
		if slot.Time > now {
			return slot, true
		}
	}
	return model.TimeSlot{}, false
}

// NextTemperatureAt resolves the next transition's preset through the
// catalog. Absence of the transition, the preset, or the preset's
// temperature all propagate as false.
func NextTemperatureAt(table model.ScheduleTable, presets model.PresetCatalog, day model.DayType, now model.TimeOfDay) (float64, bool) {
	slot, ok := NextTransitionAt(table, day, now)
	if !ok {
		return 0, false
	}
	preset, ok := presets[slot.Preset]
	if !ok || preset.Temperature == nil {
		return 0, false
	}
	return *preset.Temperature, true
}
