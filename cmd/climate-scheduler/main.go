package main

import (
	"context"
	"database/sql"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-scheduler/db"
	"github.com/thatsimonsguy/climate-scheduler/internal/api"
	"github.com/thatsimonsguy/climate-scheduler/internal/clock"
	"github.com/thatsimonsguy/climate-scheduler/internal/config"
	"github.com/thatsimonsguy/climate-scheduler/internal/datadog"
	"github.com/thatsimonsguy/climate-scheduler/internal/deviceadapter"
	"github.com/thatsimonsguy/climate-scheduler/internal/logging"
	"github.com/thatsimonsguy/climate-scheduler/internal/notifications"
	"github.com/thatsimonsguy/climate-scheduler/internal/scheduler"
	"github.com/thatsimonsguy/climate-scheduler/internal/store"
	"github.com/thatsimonsguy/climate-scheduler/internal/ticker"
)

func main() {
	cfg := config.Load()
	logging.Init(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("config_file", cfg.ConfigFile).
		Int("devices", len(cfg.Devices)).
		Msg("Starting climate scheduler")

	datadog.InitMetrics(cfg.DDAgentAddr, cfg.DDNamespace, cfg.DDTags, cfg.EnableDatadog)
	notifications.Init(cfg.NtfyTopic)

	history, err := db.Open(cfg.HistoryDBPath)
	if err != nil {
		log.Warn().Err(err).Str("path", cfg.HistoryDBPath).Msg("Transition history unavailable, continuing without it")
		history = nil
	}

	st := store.New(cfg.StateDir)
	clk := clock.SystemClock{}
	interval := time.Duration(cfg.TickIntervalMinutes) * time.Minute

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	controllers := make(map[string]*scheduler.Controller, len(cfg.Devices))
	for _, dev := range cfg.Devices {
		ctrl := buildController(dev, clk, st, history)
		controllers[dev.ID] = ctrl

		if snap, err := st.Load(dev.ID); err != nil {
			log.Warn().Err(err).Str("device", dev.ID).Msg("No usable persisted state, starting with defaults")
		} else {
			ctrl.Restore(*snap)
		}

		go ticker.Run(ctx, clk, interval, ctrl.OnTick)
	}

	server := api.NewServer(controllers, history)
	go func() {
		if err := server.Start(cfg.APIPort); err != nil {
			log.Fatal().Err(err).Msg("API server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down climate scheduler")
}

func buildController(dev config.DeviceConfig, clk clock.Clock, st *store.Store, history *sql.DB) *scheduler.Controller {
	// Validation already ran, so these cannot fail here.
	table, _ := dev.ScheduleTable()
	presets, _ := dev.PresetCatalog()

	var adapter deviceadapter.Adapter
	switch dev.Adapter {
	case "mqtt":
		adapter = deviceadapter.NewMQTT(dev.BrokerURL, "climate-scheduler-"+dev.ID, dev.TopicPrefix)
	default:
		adapter = deviceadapter.NewHTTP(dev.Endpoint)
	}

	ctrl := scheduler.New(scheduler.Config{
		DeviceID:       dev.ID,
		Clock:          clk,
		Adapter:        adapter,
		Table:          table,
		Presets:        presets,
		OverrideWindow: time.Duration(dev.OverrideWindowMinutes) * time.Minute,
		DefaultPreset:  dev.DefaultPreset,
		DefaultMode:    dev.DefaultMode,
		Store:          st,
		History:        history,
	})

	if dev.ScheduleEnabled != nil && !*dev.ScheduleEnabled {
		ctrl.SetScheduleEnabled(false)
	}

	return ctrl
}
