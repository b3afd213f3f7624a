package model

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

type DayType string

const (
	DayTypeWeekday DayType = "weekday"
	DayTypeWeekend DayType = "weekend"
)

type HVACMode string

const (
	ModeHeat     HVACMode = "heat"
	ModeCool     HVACMode = "cool"
	ModeHeatCool HVACMode = "heat_cool"
	ModeOff      HVACMode = "off"
)

func ValidHVACMode(m HVACMode) bool {
	switch m {
	case ModeHeat, ModeCool, ModeHeatCool, ModeOff:
		return true
	}
	return false
}

// TimeOfDay is minutes past midnight. Config and wire format is "HH:MM".
type TimeOfDay int

func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%2d:%2d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// TimeOfDayFrom truncates a wall-clock moment to its minute of the day.
func TimeOfDayFrom(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*60 + t.Minute())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("time of day must be an HH:MM string")
	}
	parsed, err := ParseTimeOfDay(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

func (t TimeOfDay) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *TimeOfDay) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TimeSlot is one schedule entry: at Time, the named preset becomes due.
type TimeSlot struct {
	Time   TimeOfDay `json:"time" yaml:"time"`
	Preset string    `json:"preset" yaml:"preset"`
}

// ScheduleTable maps a day type to its transitions. Slots are not required
// to be stored in time order; the resolver sorts at evaluation time.
type ScheduleTable map[DayType][]TimeSlot

// Preset is a named operating profile. Temperature is optional: a preset
// without one changes the active preset but leaves the setpoint alone.
type Preset struct {
	Name        string   `json:"name" yaml:"name"`
	Temperature *float64 `json:"temperature" yaml:"temperature"`
}

type PresetCatalog map[string]Preset

// ApplyRequest is the fire-and-forget command handed to a device adapter.
// Nil fields mean "no change".
type ApplyRequest struct {
	DeviceID          string    `json:"device_id"`
	TargetTemperature *float64  `json:"target_temperature,omitempty"`
	Mode              *HVACMode `json:"hvac_mode,omitempty"`
}

// SchedulerState is the controller's persisted view of one device.
// A zero LastManualChange means no manual preset change has happened yet.
type SchedulerState struct {
	ActivePreset      string    `json:"active_preset"`
	TargetTemperature *float64  `json:"target_temperature"`
	Mode              HVACMode  `json:"hvac_mode"`
	LastManualChange  time.Time `json:"last_manual_change"`
}
