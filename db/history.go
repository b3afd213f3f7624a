package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

// Transition triggers.
const (
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerSetpoint = "setpoint"
	TriggerMode     = "mode"
)

type Transition struct {
	ID                int64          `json:"id"`
	DeviceID          string         `json:"device_id"`
	Trigger           string         `json:"trigger"`
	FromPreset        string         `json:"from_preset"`
	ToPreset          string         `json:"to_preset"`
	TargetTemperature *float64       `json:"target_temperature"`
	Mode              model.HVACMode `json:"hvac_mode"`
	OccurredAt        time.Time      `json:"occurred_at"`
}

// RecordTransition appends one transition row.
func RecordTransition(db *sql.DB, t Transition) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}
	_, err = tx.Exec(
		`INSERT INTO transitions (device_id, trigger_type, from_preset, to_preset, target_temperature, hvac_mode, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.DeviceID, t.Trigger, t.FromPreset, t.ToPreset, t.TargetTemperature, string(t.Mode), t.OccurredAt.Format(time.RFC3339),
	)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert transition: %w", err)
	}
	return tx.Commit()
}

// GetRecentTransitions returns up to limit transitions for a device, newest
// first.
func GetRecentTransitions(db *sql.DB, deviceID string, limit int) ([]Transition, error) {
	rows, err := db.Query(
		`SELECT id, device_id, trigger_type, from_preset, to_preset, target_temperature, hvac_mode, occurred_at
		 FROM transitions WHERE device_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`,
		deviceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var transitions []Transition
	for rows.Next() {
		var t Transition
		var temp sql.NullFloat64
		var mode string
		var occurredAt string

		err = rows.Scan(&t.ID, &t.DeviceID, &t.Trigger, &t.FromPreset, &t.ToPreset, &temp, &mode, &occurredAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		if temp.Valid {
			t.TargetTemperature = &temp.Float64
		}
		t.Mode = model.HVACMode(mode)
		t.OccurredAt, _ = time.Parse(time.RFC3339, occurredAt)
		transitions = append(transitions, t)
	}
	return transitions, rows.Err()
}
