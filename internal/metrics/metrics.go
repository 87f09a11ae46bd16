// Package metrics owns the Prometheus registry the service exports.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "featureserver"

type BuildInfo struct {
	Version   string
	Revision  string
	BuildDate string
}

type Config struct {
	Build BuildInfo
	// Started defaults to the time Init runs.
	Started time.Time
}

// Provider is a private registry, so tests and embedded servers never
// collide on the default one.
type Provider struct {
	reg *prometheus.Registry
}

func Init(cfg Config) *Provider {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
	)

	b := cfg.Build
	if b.Version == "" {
		b.Version = "dev"
	}
	info := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Always 1; labels describe the running binary.",
		ConstLabels: prometheus.Labels{
			"version":    b.Version,
			"revision":   b.Revision,
			"build_date": b.BuildDate,
		},
	})
	info.Set(1)

	started := cfg.Started
	if started.IsZero() {
		started = time.Now()
	}
	start := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "start_time_seconds",
		Help:      "Unix time the service started.",
	})
	start.Set(float64(started.Unix()))

	reg.MustRegister(info, start)
	return &Provider{reg: reg}
}

// Handler serves the registry and counts its own scrapes.
func (p *Provider) Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(p.reg, promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{
		Registry: p.reg,
	}))
}

func (p *Provider) Register(cs ...prometheus.Collector) {
	p.reg.MustRegister(cs...)
}

func (p *Provider) Registerer() prometheus.Registerer { return p.reg }

// Gatherer exposes the registry to tests and pushers.
func (p *Provider) Gatherer() prometheus.Gatherer { return p.reg }
