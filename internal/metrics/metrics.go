package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"silvergate/internal/model"
)

type Registry struct {
	reg *prometheus.Registry

	Ingested    prometheus.Counter
	Certified   prometheus.Counter
	Quarantined prometheus.Counter
	Inserted    prometheus.Counter
	Versioned   prometheus.Counter
	Unchanged   prometheus.Counter

	Violations *prometheus.CounterVec
	Runs       *prometheus.CounterVec

	RunDurationSec prometheus.Histogram
	LastRunUnix    prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	ingested := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_ingested_total"})
	certified := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_certified_total"})
	quarantined := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_quarantined_total"})
	inserted := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_inserted_total"})
	versioned := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_versioned_total"})
	unchanged := prometheus.NewCounter(prometheus.CounterOpts{Name: "silvergate_records_unchanged_total"})

	violations := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "silvergate_violations_total"}, []string{"rule"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "silvergate_runs_total"}, []string{"status"})

	runDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "silvergate_run_duration_seconds",
		Buckets: prometheus.DefBuckets,
	})
	// Exported as the completion timestamp so dashboards can derive age as
	// time() - silvergate_last_run_timestamp_seconds.
	lastRun := prometheus.NewGauge(prometheus.GaugeOpts{Name: "silvergate_last_run_timestamp_seconds"})

	r.MustRegister(ingested, certified, quarantined, inserted, versioned, unchanged, violations, runs, runDuration, lastRun)
	return &Registry{
		reg:            r,
		Ingested:       ingested,
		Certified:      certified,
		Quarantined:    quarantined,
		Inserted:       inserted,
		Versioned:      versioned,
		Unchanged:      unchanged,
		Violations:     violations,
		Runs:           runs,
		RunDurationSec: runDuration,
		LastRunUnix:    lastRun,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Observe records the counters for a finished run.
func (r *Registry) Observe(run model.RunResult) {
	r.Ingested.Add(float64(run.Ingested))
	r.Certified.Add(float64(run.Certified))
	r.Quarantined.Add(float64(run.Quarantined))
	r.Inserted.Add(float64(run.Inserted))
	r.Versioned.Add(float64(run.Versioned))
	r.Unchanged.Add(float64(run.Unchanged))
	for rule, n := range run.RuleTallies {
		r.Violations.WithLabelValues(rule).Add(float64(n))
	}
	r.Runs.WithLabelValues(string(run.Status)).Inc()
	r.RunDurationSec.Observe(float64(run.FinishedAt - run.StartedAt))
	r.LastRunUnix.Set(float64(run.FinishedAt))
}
