package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pmsched/internal/config"
	"pmsched/internal/engine"
	"pmsched/internal/eventbus"
	"pmsched/internal/runner"
	"pmsched/internal/store"
	logx "pmsched/pkg/logx"
)

func main() {
	var cfgPath string
	var once bool
	flag.StringVar(&cfgPath, "config", "./pmsched.yaml", "path to config file (yaml or json)")
	flag.BoolVar(&once, "once", false, "run a single scheduling pass and exit")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, once); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string, once bool) error {
	mgr := config.NewManager(cfgPath)
	mgr.SetValidator(validate)
	cfg, err := mgr.Load()
	if err != nil {
		return err
	}
	if err := validate(ctx, cfg); err != nil {
		return err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	defer logSvc.Close()
	mgr.SetLogger(log.With(logx.String("component", "config")))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("component", "store")))
	if err != nil {
		return err
	}
	defer st.Close()

	bus := eventbus.New()
	eng := engine.New(engine.Config{
		Workers:             cfg.Engine.Workers,
		DefaultLookbackDays: cfg.Engine.DefaultLookbackDays,
		EmitRatePerSec:      cfg.Engine.EmitRatePerSec,
	}, st, log.With(logx.String("component", "engine")), bus)

	if once {
		report, err := eng.Run(ctx, engine.Options{TenantID: cfg.Engine.TenantID})
		if err != nil {
			return err
		}
		out, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	runTimeout, err := config.ParseDurationOrDefault("runner.run_timeout", cfg.Runner.RunTimeout, 0)
	if err != nil {
		return err
	}
	svc := runner.New(runner.Config{
		Enabled:    cfg.Runner.Enabled,
		Schedule:   cfg.Runner.Schedule,
		Timezone:   cfg.Runner.Timezone,
		RunTimeout: runTimeout,
		Options:    engine.Options{TenantID: cfg.Engine.TenantID},
	}, eng, log.With(logx.String("component", "runner")))
	if err := svc.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()
		svc.Stop(stopCtx)
	}()

	// Observe emitted work items at info level; downstream systems subscribe
	// the same way.
	events, unsub := bus.Subscribe(64)
	defer unsub()
	go func() {
		for ev := range events {
			if ev.Type != eventbus.TypeWorkItemCreated {
				continue
			}
			if wi, ok := ev.Data.(engine.WorkItemEvent); ok {
				log.Info("work item created",
					logx.String("item", wi.WorkItemID),
					logx.String("task", wi.TaskID),
					logx.String("asset", wi.AssetID),
					logx.String("reason", wi.Reason),
					logx.String("title", wi.Title))
			}
		}
	}()

	// Hot-reload: the watcher re-parses on file change; committed configs are
	// fanned out here. Only logging settings apply live.
	cfgCh := mgr.Subscribe(4)
	defer mgr.Unsubscribe(cfgCh)
	go func() {
		if err := mgr.Watch(ctx); err != nil && ctx.Err() == nil {
			log.Warn("config watcher exited", logx.Any("err", err))
		}
	}()
	go func() {
		for next := range cfgCh {
			logSvc.Apply(logx.Config{
				Level:   next.Logging.Level,
				Console: next.Logging.Console,
				File: logx.FileConfig{
					Enabled: next.Logging.File.Enabled,
					Path:    next.Logging.File.Path,
				},
			})
			log.Info("configuration reloaded", logx.String("level", next.Logging.Level))
		}
	}()

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	log.Info("pmsched started", logx.String("config", cfgPath))

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return nil
}

// validate rejects a config before it is committed, both at startup and on
// hot reload.
func validate(_ context.Context, cfg *config.Config) error {
	switch cfg.Storage.Driver {
	case "", "sqlite", "sqlite3", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if d := cfg.Storage.Driver; (d == "" || d == "sqlite" || d == "sqlite3") && cfg.Storage.Path == "" {
		return fmt.Errorf("storage.path: required for sqlite")
	}
	if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("runner.run_timeout", cfg.Runner.RunTimeout, 0); err != nil {
		return err
	}
	if cfg.Runner.Enabled {
		if _, err := engine.ParseRecurrence(cfg.Runner.Schedule); err != nil {
			return fmt.Errorf("runner.schedule: %w", err)
		}
		if tz := cfg.Runner.Timezone; tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("runner.timezone: %w", err)
			}
		}
	}
	if cfg.Engine.Workers < 0 {
		return fmt.Errorf("engine.workers: must be >= 0")
	}
	if cfg.Engine.EmitRatePerSec < 0 {
		return fmt.Errorf("engine.emit_rate_per_sec: must be >= 0")
	}
	return nil
}
