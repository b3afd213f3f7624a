package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/thatsimonsguy/climate-scheduler/internal/model"
)

type PresetConfig struct {
	Name        string   `json:"name" yaml:"name"`
	Temperature *float64 `json:"temperature" yaml:"temperature"`
}

type SlotConfig struct {
	Time   string `json:"time" yaml:"time"`
	Preset string `json:"preset" yaml:"preset"`
}

type DeviceConfig struct {
	ID          string `json:"id" yaml:"id"`
	Adapter     string `json:"adapter" yaml:"adapter"` // "http" or "mqtt"
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	BrokerURL   string `json:"broker_url" yaml:"broker_url"`
	TopicPrefix string `json:"topic_prefix" yaml:"topic_prefix"`

	DefaultPreset         string         `json:"default_preset" yaml:"default_preset"`
	DefaultMode           model.HVACMode `json:"default_mode" yaml:"default_mode"`
	OverrideWindowMinutes int            `json:"override_window_minutes" yaml:"override_window_minutes"`
	ScheduleEnabled       *bool          `json:"schedule_enabled" yaml:"schedule_enabled"`

	Presets   []PresetConfig          `json:"presets" yaml:"presets"`
	Schedules map[string][]SlotConfig `json:"schedules" yaml:"schedules"`
}

type Config struct {
	ConfigFile string
	LogLevel   zerolog.Level
	LogFile    string

	APIPort             int    `json:"api_port" yaml:"api_port"`
	TickIntervalMinutes int    `json:"tick_interval_minutes" yaml:"tick_interval_minutes"`
	StateDir            string `json:"state_dir" yaml:"state_dir"`
	HistoryDBPath       string `json:"history_db_path" yaml:"history_db_path"`

	EnableDatadog bool     `json:"enable_datadog" yaml:"enable_datadog"`
	DDAgentAddr   string   `json:"dd_agent_addr" yaml:"dd_agent_addr"`
	DDNamespace   string   `json:"dd_namespace" yaml:"dd_namespace"`
	DDTags        []string `json:"dd_tags" yaml:"dd_tags"`

	NtfyTopic string `json:"ntfy_topic" yaml:"ntfy_topic"`

	Devices []DeviceConfig `json:"devices" yaml:"devices"`
}

func Load() Config {
	var configFile string
	var logLevel string
	var logFile string

	flag.StringVar(&configFile, "config-file", "config.json", "Path to scheduler config file (.json or .yaml)")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.StringVar(&logFile, "log-file", "", "Log file path (empty logs to stderr)")
	flag.Parse()

	cfg, err := parseFile(configFile)
	if err != nil {
		panic("Failed to load config file: " + err.Error())
	}

	cfg.ConfigFile = configFile
	cfg.LogLevel = parseLogLevel(logLevel)
	cfg.LogFile = logFile

	cfg.validate()
	return cfg
}

func parseFile(path string) (Config, error) {
	var cfg Config

	file, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.NewDecoder(file).Decode(&cfg)
	default:
		err = json.NewDecoder(file).Decode(&cfg)
	}
	if err != nil {
		return cfg, err
	}

	if cfg.APIPort == 0 {
		cfg.APIPort = 8090
	}
	if cfg.TickIntervalMinutes == 0 {
		cfg.TickIntervalMinutes = 5
	}
	if cfg.StateDir == "" {
		cfg.StateDir = "data"
	}
	if cfg.HistoryDBPath == "" {
		cfg.HistoryDBPath = filepath.Join(cfg.StateDir, "history.db")
	}

	return cfg, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// validate panics on config the daemon cannot run with. Everything caught
// here is an operator mistake, not a runtime condition.
func (cfg *Config) validate() {
	var problems []string

	if len(cfg.Devices) == 0 {
		problems = append(problems, "no devices configured")
	}

	seen := map[string]bool{}
	for i := range cfg.Devices {
		d := &cfg.Devices[i]

		if d.ID == "" {
			problems = append(problems, fmt.Sprintf("devices[%d]: missing id", i))
			continue
		}
		if seen[d.ID] {
			problems = append(problems, fmt.Sprintf("devices[%d]: duplicate id %q", i, d.ID))
		}
		seen[d.ID] = true

		switch d.Adapter {
		case "http":
			if d.Endpoint == "" {
				problems = append(problems, fmt.Sprintf("device %s: http adapter requires endpoint", d.ID))
			}
		case "mqtt":
			if d.BrokerURL == "" || d.TopicPrefix == "" {
				problems = append(problems, fmt.Sprintf("device %s: mqtt adapter requires broker_url and topic_prefix", d.ID))
			}
		default:
			problems = append(problems, fmt.Sprintf("device %s: unknown adapter %q", d.ID, d.Adapter))
		}

		if d.OverrideWindowMinutes < 0 {
			problems = append(problems, fmt.Sprintf("device %s: negative override window", d.ID))
		}
		if d.DefaultMode != "" && !model.ValidHVACMode(d.DefaultMode) {
			problems = append(problems, fmt.Sprintf("device %s: invalid default mode %q", d.ID, d.DefaultMode))
		}

		catalog, err := d.PresetCatalog()
		if err != nil {
			problems = append(problems, fmt.Sprintf("device %s: %v", d.ID, err))
		}
		if d.DefaultPreset != "" {
			if _, ok := catalog[d.DefaultPreset]; !ok {
				problems = append(problems, fmt.Sprintf("device %s: default preset %q not in catalog", d.ID, d.DefaultPreset))
			}
		}
		if _, err := d.ScheduleTable(); err != nil {
			problems = append(problems, fmt.Sprintf("device %s: %v", d.ID, err))
		}
	}

	if len(problems) > 0 {
		panic("Invalid configuration: " + strings.Join(problems, "; "))
	}
}

// PresetCatalog builds the immutable catalog for one device.
func (d *DeviceConfig) PresetCatalog() (model.PresetCatalog, error) {
	catalog := make(model.PresetCatalog, len(d.Presets))
	for _, p := range d.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset with empty name")
		}
		if _, exists := catalog[p.Name]; exists {
			return nil, fmt.Errorf("duplicate preset %q", p.Name)
		}
		catalog[p.Name] = model.Preset{Name: p.Name, Temperature: p.Temperature}
	}
	return catalog, nil
}

// ScheduleTable builds the immutable day-typed table for one device. Slot
// order from the file is preserved; the resolver sorts at evaluation time.
func (d *DeviceConfig) ScheduleTable() (model.ScheduleTable, error) {
	catalog, err := d.PresetCatalog()
	if err != nil {
		return nil, err
	}

	table := make(model.ScheduleTable, len(d.Schedules))
	for dayName, slots := range d.Schedules {
		day := model.DayType(dayName)
		if day != model.DayTypeWeekday && day != model.DayTypeWeekend {
			return nil, fmt.Errorf("unknown schedule day type %q", dayName)
		}
		for _, s := range slots {
			t, err := model.ParseTimeOfDay(s.Time)
			if err != nil {
				return nil, fmt.Errorf("schedule %s: %w", dayName, err)
			}
			if _, ok := catalog[s.Preset]; !ok {
				return nil, fmt.Errorf("schedule %s: slot %s references unknown preset %q", dayName, s.Time, s.Preset)
			}
			table[day] = append(table[day], model.TimeSlot{Time: t, Preset: s.Preset})
		}
	}
	return table, nil
}
