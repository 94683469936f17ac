package ledger

import (
	"fmt"
	"os"
	"strings"
	"time"

	"silvergate/internal/model"
)

// maxSamplesPerRule caps violation samples in the report so the ledger does
// not grow with batch size.
const maxSamplesPerRule = 10

// Report renders a run result for humans: counts, per-rule tallies and a
// bounded sample of violation reasons.
func Report(r model.RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s department=%s source=%s status=%s\n", r.RunID, r.Department, r.SourceFile, r.Status)
	fmt.Fprintf(&b, "  started=%s finished=%s duration=%s\n",
		time.Unix(r.StartedAt, 0).UTC().Format(time.RFC3339),
		time.Unix(r.FinishedAt, 0).UTC().Format(time.RFC3339),
		time.Duration(r.FinishedAt-r.StartedAt)*time.Second)
	fmt.Fprintf(&b, "  ingested=%d certified=%d quarantined=%d\n", r.Ingested, r.Certified, r.Quarantined)
	fmt.Fprintf(&b, "  inserted=%d versioned=%d unchanged=%d\n", r.Inserted, r.Versioned, r.Unchanged)
	if r.FailureReason != "" {
		fmt.Fprintf(&b, "  failure [%s]: %s\n", model.SeverityError, r.FailureReason)
	}
	for _, rule := range model.RuleOrder {
		n := r.RuleTallies[rule]
		if n == 0 {
			continue
		}
		fmt.Fprintf(&b, "  rule %s: %d violation(s)\n", rule, n)
		shown := 0
		for _, v := range r.Violations {
			if v.Rule != rule {
				continue
			}
			sev := v.Severity
			if sev == "" {
				sev = model.SeverityWarning
			}
			fmt.Fprintf(&b, "    [%s] uid=%s %s\n", sev, v.RecordUID, v.Reason)
			shown++
			if shown == maxSamplesPerRule {
				fmt.Fprintf(&b, "    ... %d more\n", n-shown)
				break
			}
		}
	}
	for _, rule := range r.SkippedRules {
		fmt.Fprintf(&b, "  rule %s: skipped\n", rule)
	}
	return b.String()
}

// ReportWriter appends human-readable reports next to the JSONL ledger.
type ReportWriter struct {
	file *FileWriter
}

func NewReportWriter(dir string, filename string) (*ReportWriter, error) {
	fw, err := NewFileWriter(dir, filename)
	if err != nil {
		return nil, err
	}
	return &ReportWriter{file: fw}, nil
}

func (w *ReportWriter) Append(r model.RunResult) error {
	f, err := os.OpenFile(w.file.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(Report(r)); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}
