// Package metrics exports settlement telemetry to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/payroll"
)

const (
	MetricRunsTotal          = "runs_total"
	MetricRunDurationSeconds = "run_duration_seconds"
	MetricDriversSettled     = "drivers_settled_total"
	MetricDriverFailures     = "driver_failures_total"
	MetricDraftUpserts       = "draft_upserts_total"
	MetricRecordsFinalized   = "records_finalized_total"
	MetricLastRunTimestamp   = "last_run_timestamp_seconds"
)

// Prometheus implements payroll.Recorder on its own registry.
//
// Thread Safety: Safe for concurrent use by multiple goroutines.
type Prometheus struct {
	registry *prometheus.Registry

	runsTotal        *prometheus.CounterVec
	runDuration      prometheus.Histogram
	driversSettled   prometheus.Counter
	driverFailures   prometheus.Counter
	draftUpserts     *prometheus.CounterVec
	recordsFinalized prometheus.Counter
	lastRun          prometheus.Gauge
}

var _ payroll.Recorder = (*Prometheus)(nil)

// NewPrometheus registers the payroll collectors (plus Go runtime and
// process collectors) under namespace.
func NewPrometheus(namespace string) *Prometheus {
	if namespace == "" {
		namespace = "payroll"
	}
	registry := prometheus.NewRegistry()

	p := &Prometheus{
		registry: registry,
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRunsTotal,
			Help:      "Settlement runs by outcome.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricRunDurationSeconds,
			Help:      "Wall time of a settlement run.",
			Buckets:   prometheus.DefBuckets,
		}),
		driversSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDriversSettled,
			Help:      "Drivers whose record was written or left processed.",
		}),
		driverFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDriverFailures,
			Help:      "Drivers that failed to settle.",
		}),
		draftUpserts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricDraftUpserts,
			Help:      "Draft upserts by outcome.",
		}, []string{"outcome"}),
		recordsFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRecordsFinalized,
			Help:      "Salary records flipped to processed.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricLastRunTimestamp,
			Help:      "Unix time of the last completed run.",
		}),
	}

	registry.MustRegister(
		p.runsTotal,
		p.runDuration,
		p.driversSettled,
		p.driverFailures,
		p.draftUpserts,
		p.recordsFinalized,
		p.lastRun,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return p
}

func (p *Prometheus) RunCompleted(_ generic.Period, processed, failed int, elapsed time.Duration) {
	status := string(payroll.RunCompleted)
	if failed > 0 {
		status = string(payroll.RunCompletedWithErrors)
	}
	p.runsTotal.WithLabelValues(status).Inc()
	p.runDuration.Observe(elapsed.Seconds())
	p.driversSettled.Add(float64(processed))
	p.driverFailures.Add(float64(failed))
	p.lastRun.SetToCurrentTime()
}

func (p *Prometheus) DraftUpserted(outcome payroll.UpsertOutcome) {
	p.draftUpserts.WithLabelValues(outcome.String()).Inc()
}

func (p *Prometheus) RecordsFinalized(n int) {
	if n > 0 {
		p.recordsFinalized.Add(float64(n))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Registry is exposed for tests.
func (p *Prometheus) Registry() *prometheus.Registry {
	return p.registry
}
