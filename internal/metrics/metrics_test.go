package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"silvergate/internal/model"
)

func TestObserve_AccumulatesRunCounters(t *testing.T) {
	r := NewRegistry()
	r.Observe(model.RunResult{
		Ingested: 10, Certified: 8, Quarantined: 2,
		Inserted: 6, Versioned: 1, Unchanged: 1,
		RuleTallies: map[string]int{model.RuleNotNull: 2},
		Status:      model.StatusSuccessWithQuarantine,
		StartedAt:   100,
		FinishedAt:  103,
	})
	r.Observe(model.RunResult{
		Ingested: 5, Certified: 5,
		Inserted:   5,
		Status:     model.StatusSuccess,
		StartedAt:  200,
		FinishedAt: 201,
	})

	if got := testutil.ToFloat64(r.Ingested); got != 15 {
		t.Fatalf("ingested = %v", got)
	}
	if got := testutil.ToFloat64(r.Quarantined); got != 2 {
		t.Fatalf("quarantined = %v", got)
	}
	if got := testutil.ToFloat64(r.Violations.WithLabelValues(model.RuleNotNull)); got != 2 {
		t.Fatalf("not-null violations = %v", got)
	}
	if got := testutil.ToFloat64(r.Runs.WithLabelValues(string(model.StatusSuccess))); got != 1 {
		t.Fatalf("success runs = %v", got)
	}
	if got := testutil.ToFloat64(r.Runs.WithLabelValues(string(model.StatusSuccessWithQuarantine))); got != 1 {
		t.Fatalf("quarantine runs = %v", got)
	}
	// The gauge tracks the most recent completion timestamp.
	if got := testutil.ToFloat64(r.LastRunUnix); got != 201 {
		t.Fatalf("last run timestamp = %v", got)
	}
}
