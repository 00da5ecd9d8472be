// Package instrument exposes the dashboard's own behaviour as Prometheus
// metrics: subprocess latency, section failures and the live numeric
// readings themselves.
package instrument

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/sensor-dashboard/internal/runner"
	"github.com/sweeney/sensor-dashboard/internal/telemetry"
)

const namespace = "sensor_dashboard"

// Instruments holds the process-wide counters and histograms.
type Instruments struct {
	commandDuration *prometheus.HistogramVec
	sectionFailures *prometheus.CounterVec
	sectionUp       *prometheus.GaugeVec
}

// New creates the instruments and registers them with reg.
func New(reg prometheus.Registerer) *Instruments {
	i := &Instruments{
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Wall time of diagnostic subprocesses by program and outcome.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"command", "outcome"}),
		sectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "section_failures_total",
			Help:      "Failed collections per dashboard section.",
		}, []string{"section"}),
		sectionUp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "section_up",
			Help:      "Whether the most recent collection of the section succeeded.",
		}, []string{"section"}),
	}
	reg.MustRegister(i.commandDuration, i.sectionFailures, i.sectionUp)
	return i
}

// ObserveSection implements telemetry.Recorder.
func (i *Instruments) ObserveSection(name telemetry.SectionName, err error) {
	if err != nil {
		i.sectionFailures.WithLabelValues(string(name)).Inc()
		i.sectionUp.WithLabelValues(string(name)).Set(0)
		return
	}
	i.sectionUp.WithLabelValues(string(name)).Set(1)
}

// WrapRunner times every command run through next.
func (i *Instruments) WrapRunner(next runner.Runner) runner.Runner {
	return &timedRunner{next: next, hist: i.commandDuration}
}

type timedRunner struct {
	next runner.Runner
	hist *prometheus.HistogramVec
}

func (t *timedRunner) Run(ctx context.Context, cmd runner.Command) (string, error) {
	start := time.Now()
	out, err := t.next.Run(ctx, cmd)
	t.hist.WithLabelValues(cmd.Name, Outcome(err)).Observe(time.Since(start).Seconds())
	return out, err
}

// Outcome classifies a runner error into a low-cardinality label value.
func Outcome(err error) string {
	var exitErr *runner.ExitError
	var stderrErr *runner.StderrError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, runner.ErrNotFound):
		return "not_found"
	case errors.Is(err, runner.ErrTimeout):
		return "timeout"
	case errors.As(err, &exitErr):
		return "exit"
	case errors.As(err, &stderrErr):
		return "stderr"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
