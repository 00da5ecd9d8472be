// Package telemetry gathers the dashboard's sections (hardware sensors,
// system metrics and optionally UPS state) behind one Service that the HTTP,
// websocket and MQTT transports share.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sweeney/sensor-dashboard/internal/nut"
	"github.com/sweeney/sensor-dashboard/internal/reading"
	"github.com/sweeney/sensor-dashboard/internal/runner"
	"github.com/sweeney/sensor-dashboard/internal/sensors"
)

// ErrUPSDisabled is returned by UPS when no NUT poller is configured.
var ErrUPSDisabled = errors.New("ups monitoring not configured")

// MetricsSource produces the system metrics section. *probe.Aggregator
// implements it.
type MetricsSource interface {
	Collect(ctx context.Context) (*reading.Set, error)
}

// Recorder observes the outcome of every section collection.
type Recorder interface {
	ObserveSection(name SectionName, err error)
}

// Config wires a Service. UPS and Recorder may be nil.
type Config struct {
	Runner         runner.Runner
	SensorsCommand runner.Command
	Metrics        MetricsSource
	UPS            nut.Poller
	Recorder       Recorder
	Logger         *slog.Logger
}

// Service collects telemetry on demand. Nothing is cached; every call runs
// the underlying commands again.
type Service struct {
	runner     runner.Runner
	sensorsCmd runner.Command
	metrics    MetricsSource
	ups        nut.Poller
	recorder   Recorder
	logger     *slog.Logger
}

// New returns a Service using cfg.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:     cfg.Runner,
		sensorsCmd: cfg.SensorsCommand,
		metrics:    cfg.Metrics,
		ups:        cfg.UPS,
		recorder:   cfg.Recorder,
		logger:     logger,
	}
}

// Sensors runs the sensors command and parses its output.
func (s *Service) Sensors(ctx context.Context) (*reading.Set, error) {
	set, err := s.sensors(ctx)
	s.observe(SectionSensors, err)
	return set, err
}

func (s *Service) sensors(ctx context.Context) (*reading.Set, error) {
	out, err := s.runner.Run(ctx, s.sensorsCmd)
	if err != nil {
		return nil, fmt.Errorf("reading sensors: %w", err)
	}
	return sensors.Parse(out), nil
}

// SystemMetrics returns the merged disk, memory and CPU readings.
func (s *Service) SystemMetrics(ctx context.Context) (*reading.Set, error) {
	set, err := s.metrics.Collect(ctx)
	if err != nil {
		err = fmt.Errorf("collecting system metrics: %w", err)
	}
	s.observe(SectionSystemMetrics, err)
	return set, err
}

// UPSEnabled reports whether a NUT poller is configured.
func (s *Service) UPSEnabled() bool { return s.ups != nil }

// UPS polls the NUT daemon. It returns ErrUPSDisabled without polling when
// no poller is configured.
func (s *Service) UPS(ctx context.Context) (*reading.Set, error) {
	if s.ups == nil {
		return nil, ErrUPSDisabled
	}
	set, err := s.pollUPS(ctx)
	s.observe(SectionUPS, err)
	return set, err
}

func (s *Service) pollUPS(ctx context.Context) (*reading.Set, error) {
	vars, err := s.ups.Poll(ctx)
	if err != nil {
		return nil, fmt.Errorf("polling NUT: %w", err)
	}
	return nut.Readings(vars), nil
}

func (s *Service) observe(name SectionName, err error) {
	if err != nil {
		s.logger.Error("section failed", "section", string(name), "err", err)
	}
	if s.recorder != nil {
		s.recorder.ObserveSection(name, err)
	}
}

// PublicMessage is the client-facing description of a section failure.
// Raw errors stay in the log.
func PublicMessage(name SectionName, err error) string {
	switch name {
	case SectionSensors:
		var stderrErr *runner.StderrError
		if errors.As(err, &stderrErr) {
			return "Error in sensor command"
		}
		return "Failed to retrieve sensor data"
	case SectionSystemMetrics:
		return "Failed to retrieve system metrics"
	case SectionUPS:
		if errors.Is(err, ErrUPSDisabled) {
			return "UPS monitoring is not configured"
		}
		return "Failed to retrieve UPS data"
	}
	return "Internal error"
}
