// Package db records every preset, setpoint, and mode transition to sqlite
// so the API can answer "what changed and when" after the fact.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS transitions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	device_id TEXT NOT NULL,
	trigger_type TEXT NOT NULL,
	from_preset TEXT,
	to_preset TEXT,
	target_temperature REAL,
	hvac_mode TEXT,
	occurred_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_device ON transitions (device_id, occurred_at);
`

// Open opens (creating if needed) the history database and applies the schema.
func Open(path string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return database, nil
}
