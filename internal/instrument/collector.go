package instrument

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/sensor-dashboard/internal/reading"
)

// Source is one section whose numeric readings are exported as gauges.
type Source struct {
	Section string
	Fetch   func(ctx context.Context) (*reading.Set, error)
}

// ReadingsCollector collects its sources on every scrape. Text readings are
// skipped; Prometheus only carries numbers.
type ReadingsCollector struct {
	value          *prometheus.Desc
	scrapeSuccess  *prometheus.Desc
	scrapeDuration *prometheus.Desc

	sources []Source
	timeout time.Duration
	logger  *slog.Logger
}

// NewReadingsCollector returns a collector over sources. Each scrape is
// bounded by timeout.
func NewReadingsCollector(timeout time.Duration, logger *slog.Logger, sources ...Source) *ReadingsCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReadingsCollector{
		value: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "reading"),
			"Current numeric reading as reported on the dashboard.", []string{"section", "name"}, nil),
		scrapeSuccess: prometheus.NewDesc(prometheus.BuildFQName(namespace, "scrape", "success"),
			"Whether the section could be collected during this scrape.", []string{"section"}, nil),
		scrapeDuration: prometheus.NewDesc(prometheus.BuildFQName(namespace, "scrape", "duration_seconds"),
			"Time spent collecting the section during this scrape.", []string{"section"}, nil),
		sources: sources,
		timeout: timeout,
		logger:  logger,
	}
}

// Describe implements prometheus.Collector.
func (c *ReadingsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.value
	ch <- c.scrapeSuccess
	ch <- c.scrapeDuration
}

// Collect implements prometheus.Collector.
func (c *ReadingsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var g errgroup.Group
	for _, src := range c.sources {
		src := src
		g.Go(func() error {
			c.collectSource(ctx, src, ch)
			return nil
		})
	}
	_ = g.Wait()
}

func (c *ReadingsCollector) collectSource(ctx context.Context, src Source, ch chan<- prometheus.Metric) {
	start := time.Now()
	set, err := src.Fetch(ctx)
	c.emit(ch, c.scrapeDuration, time.Since(start).Seconds(), src.Section)
	if err != nil {
		c.logger.Debug("scrape failed", "section", src.Section, "err", err)
		c.emit(ch, c.scrapeSuccess, 0, src.Section)
		return
	}
	c.emit(ch, c.scrapeSuccess, 1, src.Section)
	for _, r := range set.Readings() {
		if f, ok := r.Value.Float(); ok {
			c.emit(ch, c.value, f, src.Section, r.Name)
		}
	}
}

// emit sends one gauge. Label values Prometheus rejects, such as invalid
// UTF-8, drop that sample only; Collect runs outside any HTTP recoverer.
func (c *ReadingsCollector) emit(ch chan<- prometheus.Metric, desc *prometheus.Desc, v float64, labels ...string) {
	m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v, labels...)
	if err != nil {
		c.logger.Warn("dropping metric", "labels", labels, "err", err)
		return
	}
	ch <- m
}
