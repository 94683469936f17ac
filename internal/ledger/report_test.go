package ledger

import (
	"fmt"
	"strings"
	"testing"

	"silvergate/internal/model"
)

func TestReport_CountsAndTallies(t *testing.T) {
	r := sampleRun("run-r")
	r.SkippedRules = []string{model.RuleReferential}
	out := Report(r)

	for _, want := range []string{
		"run run-r",
		"status=success_with_quarantine",
		"ingested=10 certified=9 quarantined=1",
		"rule not-null: 1 violation(s)",
		`[WARNING] uid=u9 required column "product_name" is null`,
		"rule referential-integrity: skipped",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReport_SamplesAreCapped(t *testing.T) {
	r := sampleRun("run-cap")
	r.Violations = nil
	for i := 0; i < 50; i++ {
		r.Violations = append(r.Violations, model.Violation{
			RecordUID: fmt.Sprintf("u%d", i),
			Rule:      model.RuleNotNull,
			Reason:    "required column is null",
		})
	}
	r.RuleTallies = map[string]int{model.RuleNotNull: 50}

	out := Report(r)
	if got := strings.Count(out, "uid=u"); got != maxSamplesPerRule {
		t.Fatalf("want %d samples, got %d", maxSamplesPerRule, got)
	}
	if !strings.Contains(out, "... 40 more") {
		t.Fatalf("overflow marker missing:\n%s", out)
	}
}

func TestReport_FailureLineCarriesErrorSeverity(t *testing.T) {
	r := sampleRun("run-f")
	r.Status = model.StatusFailed
	r.FailureReason = "structural failure: zero records ingested"
	out := Report(r)
	if !strings.Contains(out, "failure [ERROR]: structural failure: zero records ingested") {
		t.Fatalf("failure severity missing:\n%s", out)
	}
}
