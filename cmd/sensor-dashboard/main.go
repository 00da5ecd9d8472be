package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-dashboard/internal/config"
	"github.com/sweeney/sensor-dashboard/internal/dashboard"
	"github.com/sweeney/sensor-dashboard/internal/instrument"
	"github.com/sweeney/sensor-dashboard/internal/logging"
	"github.com/sweeney/sensor-dashboard/internal/nut"
	"github.com/sweeney/sensor-dashboard/internal/probe"
	"github.com/sweeney/sensor-dashboard/internal/publisher"
	"github.com/sweeney/sensor-dashboard/internal/runner"
	"github.com/sweeney/sensor-dashboard/internal/server"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
	"github.com/sweeney/sensor-dashboard/web"
)

const (
	shutdownTimeout = 10 * time.Second
	// nutStartupAttempts bounds how long startup waits for upsd before
	// falling back to reconnecting on each poll.
	nutStartupAttempts = 3
)

func main() {
	if err := run(); err != nil {
		slog.Error("sensor-dashboard exiting", "err", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to config file (default /etc/sensor-dashboard/config.toml, then ./config.toml)")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before environment overrides are read")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", *envFile, err)
	}

	cfg, err := config.Load(*configPath, "/etc/sensor-dashboard/config.toml", "./config.toml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	logger.Info("sensor-dashboard starting",
		"addr", cfg.Server.Addr(),
		"nut", cfg.NUT.Enabled,
		"mqtt", cfg.MQTT.Enabled,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	inst := instrument.New(reg)

	var r runner.Runner = &runner.Exec{
		Timeout:        cfg.Commands.Timeout.Duration,
		MaxOutputBytes: cfg.Commands.MaxOutputBytes,
	}
	r = runner.Limit(r, cfg.Server.MaxConcurrentCommands)
	r = inst.WrapRunner(r)

	var ups nut.Poller
	if cfg.NUT.Enabled {
		client, err := connectNUT(ctx, cfg.NUT, nutStartupAttempts, logger)
		if err != nil {
			logger.Warn("NUT unavailable at startup; will reconnect on demand", "err", err)
			client = nut.NewLazyClient(cfg.NUT)
		}
		defer client.Close() //nolint:errcheck
		ups = client
	}

	svc := telemetry.New(telemetry.Config{
		Runner:         r,
		SensorsCommand: command(cfg.Commands.Sensors),
		Metrics: probe.NewAggregator(
			&probe.Disk{Runner: r, Command: command(cfg.Commands.Disk)},
			&probe.Memory{Counters: probe.HostMemory},
			&probe.CPU{Runner: r, Command: command(cfg.Commands.CPU)},
		),
		UPS:      ups,
		Recorder: inst,
		Logger:   logger,
	})

	sources := []instrument.Source{{Section: string(telemetry.SectionSensors), Fetch: svc.Sensors}}
	if svc.UPSEnabled() {
		sources = append(sources, instrument.Source{Section: string(telemetry.SectionUPS), Fetch: svc.UPS})
	}
	reg.MustRegister(instrument.NewReadingsCollector(cfg.Commands.Timeout.Duration+time.Second, logger, sources...))

	srv := server.New(svc, server.Options{
		Addr:         cfg.Server.Addr(),
		PollInterval: cfg.Server.PollInterval.Duration,
		Rules:        dashboard.RulesFromConfig(cfg.Dashboard),
		Registry:     reg,
		Static:       web.Static(),
		Logger:       logger,
	})

	var (
		pub    publisher.Publisher
		pubCfg publisher.PublishConfig
	)
	if cfg.MQTT.Enabled {
		pubCfg = publisher.PublishConfig{
			Prefix:   cfg.MQTT.TopicPrefix,
			Host:     hostname(),
			Retained: cfg.MQTT.Retained,
		}
		// Connect to the broker before the first poll so the LWT is registered.
		will := publisher.Will{
			Topic:   publisher.StatusTopic(pubCfg.Prefix, pubCfg.Host),
			Payload: publisher.FormatOffline(),
		}
		mqttPub, err := publisher.NewMQTTPublisher(cfg.MQTT, will, logger)
		if err != nil {
			return fmt.Errorf("connecting to MQTT broker: %w", err)
		}
		defer mqttPub.Close() //nolint:errcheck
		pub = mqttPub
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if pub != nil {
		g.Go(func() error {
			exportLoop(gctx, svc, pub, pubCfg, cfg.Server.PollInterval.Duration, logger)
			return nil
		})
	}

	return g.Wait()
}

// snapshotter is the part of telemetry.Service the export loop needs.
type snapshotter interface {
	Snapshot(ctx context.Context) telemetry.Snapshot
}

// exportLoop publishes a snapshot every interval until ctx is cancelled, then
// publishes a final snapshot and the offline announcement.
func exportLoop(ctx context.Context, svc snapshotter, pub publisher.Publisher, cfg publisher.PublishConfig, interval time.Duration, logger *slog.Logger) {
	statusTopic := publisher.StatusTopic(cfg.Prefix, cfg.Host)
	if err := pub.Publish(publisher.Message{Topic: statusTopic, Payload: publisher.FormatOnline(), Retained: true}); err != nil {
		logger.Warn("publishing online announcement", "err", err)
	}
	if err := doPoll(ctx, svc, pub, cfg); err != nil {
		logger.Warn("export failed", "err", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Info("exporting to MQTT", "interval", interval, "prefix", cfg.Prefix, "host", cfg.Host)

loop:
	for {
		select {
		case <-ticker.C:
			if err := doPoll(ctx, svc, pub, cfg); err != nil {
				logger.Warn("export failed", "err", err)
			}
		case <-ctx.Done():
			break loop
		}
	}

	ticker.Stop()

	// Attempt a final export so subscribers see fresh state on exit. The
	// parent context is already cancelled, so give it a short one of its own.
	finalCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := doPoll(finalCtx, svc, pub, cfg); err != nil {
		logger.Warn("final export failed; skipping final state snapshot", "err", err)
	}

	// Always publish the offline announcement.
	offMsg := publisher.Message{
		Topic:    statusTopic,
		Payload:  publisher.FormatOffline(),
		Retained: true,
	}
	if err := pub.Publish(offMsg); err != nil {
		logger.Warn("publishing offline announcement", "err", err)
	}
	logger.Info("offline announcement sent")
}

// doPoll collects one snapshot and publishes everything in it.
func doPoll(ctx context.Context, svc snapshotter, pub publisher.Publisher, cfg publisher.PublishConfig) error {
	snap := svc.Snapshot(ctx)
	if err := publisher.PublishAll(snap, cfg, pub); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	return nil
}

// connectNUT dials upsd with exponential backoff (1 s doubling, 60 s cap),
// giving up after attempts tries. Each sleep is interruptible via ctx
// cancellation.
func connectNUT(ctx context.Context, cfg config.NUTConfig, attempts int, logger *slog.Logger) (*nut.Client, error) {
	backoff := time.Second
	const maxBackoff = 60 * time.Second

	var lastErr error
	for i := 0; i < attempts; i++ {
		c, err := nut.NewClient(cfg)
		if err == nil {
			logger.Info("connected to NUT", "host", cfg.Host, "port", cfg.Port, "ups", cfg.UPSName)
			return c, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		logger.Warn("NUT connection failed", "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return nil, lastErr
}

// command turns a validated argv from the config into a runner.Command.
func command(argv []string) runner.Command {
	return runner.Command{Name: argv[0], Args: argv[1:]}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "localhost"
	}
	return h
}
