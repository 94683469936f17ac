package ledger

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"silvergate/internal/model"
)

// qualityHeader matches the _silver_quality_report.csv column layout.
var qualityHeader = []string{"timestamp", "table", "issue_type", "details", "severity"}

// QualityEntry is one row of the quality report.
type QualityEntry struct {
	Timestamp string
	Table     string
	IssueType string
	Details   string
	Severity  string
}

// QualityEntries flattens a run into report rows: one WARNING per rule
// violation, plus one ERROR when the run as a whole failed. A clean run
// yields no rows.
func QualityEntries(r model.RunResult) []QualityEntry {
	ts := time.Unix(r.FinishedAt, 0).UTC().Format(time.RFC3339)
	table := r.Table
	if table == "" {
		table = string(r.Department)
	}
	var out []QualityEntry
	for _, v := range r.Violations {
		sev := v.Severity
		if sev == "" {
			sev = model.SeverityWarning
		}
		out = append(out, QualityEntry{
			Timestamp: ts,
			Table:     table,
			IssueType: v.Rule,
			Details:   fmt.Sprintf("uid=%s %s", v.RecordUID, v.Reason),
			Severity:  sev,
		})
	}
	if r.Status == model.StatusFailed {
		out = append(out, QualityEntry{
			Timestamp: ts,
			Table:     table,
			IssueType: "structural-failure",
			Details:   r.FailureReason,
			Severity:  model.SeverityError,
		})
	}
	return out
}

// QualityReportWriter appends quality report rows as CSV, header written once.
type QualityReportWriter struct {
	path string
}

func NewQualityReportWriter(dir string, filename string) (*QualityReportWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}
	return &QualityReportWriter{path: filepath.Join(dir, filename)}, nil
}

func (w *QualityReportWriter) Append(r model.RunResult) error {
	entries := QualityEntries(r)
	if len(entries) == 0 {
		return nil
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	cw := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := cw.Write(qualityHeader); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	for _, e := range entries {
		if err := cw.Write([]string{e.Timestamp, e.Table, e.IssueType, e.Details, e.Severity}); err != nil {
			return fmt.Errorf("write entry: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush quality report: %w", err)
	}
	return nil
}
