package model

// Format tags the source file format a record was read from.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
	FormatPickle  Format = "pickle"
	FormatExcel   Format = "excel"
	FormatJSON    Format = "json"
	FormatHTML    Format = "html"
)

// Department identifies the source department of an extract.
type Department string

const (
	DeptBusiness           Department = "business"
	DeptCustomerManagement Department = "customer_management"
	DeptEnterprise         Department = "enterprise"
	DeptMarketing          Department = "marketing"
	DeptOperations         Department = "operations"
)

// Departments lists all known departments in a fixed order.
var Departments = []Department{
	DeptBusiness, DeptCustomerManagement, DeptEnterprise, DeptMarketing, DeptOperations,
}

// RawRecord is one row as read from a source extract. Columns preserves the
// source column order; Values maps source column name to an untyped value.
type RawRecord struct {
	Columns []string       `json:"columns"`
	Values  map[string]any `json:"values"`
	Format  Format         `json:"format"`
}

// TaggedRecord is a RawRecord stamped with provenance metadata. Business
// field values are carried through untouched.
type TaggedRecord struct {
	Raw        RawRecord  `json:"raw"`
	RecordUID  string     `json:"recordUid"`
	IngestedAt int64      `json:"ingestedAt"`
	Department Department `json:"department"`
	SourceFile string     `json:"sourceFile"`
}

// ConformedRecord is a TaggedRecord cast to the canonical schema of its
// department. Columns holds the canonical column order; Fields maps canonical
// column name to the typed value (string, int64, float64, bool, epoch-second
// int64 for dates, or nil).
type ConformedRecord struct {
	RecordUID     string         `json:"recordUid"`
	IdentityKey   string         `json:"identityKey"`
	ContentDigest string         `json:"contentDigest"`
	Department    Department     `json:"department"`
	SourceFile    string         `json:"sourceFile"`
	IngestedAt    int64          `json:"ingestedAt"`
	Columns       []string       `json:"columns"`
	Fields        map[string]any `json:"fields"`
	Malformed     bool           `json:"malformed,omitempty"`
	MalformedWhy  string         `json:"malformedWhy,omitempty"`
}

// Validation rule names, in evaluation order.
const (
	RuleNotNull     = "not-null"
	RuleUniqueness  = "uniqueness"
	RuleType        = "type-conformance"
	RuleReferential = "referential-integrity"
)

// RuleOrder is the fixed evaluation order of the quality gate.
var RuleOrder = []string{RuleNotNull, RuleUniqueness, RuleType, RuleReferential}

// Severity levels for quality report entries. Per-record rule violations are
// warnings; structural defects that fail the whole run are errors.
const (
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// Violation ties a record to the first rule it broke.
type Violation struct {
	RecordUID string `json:"recordUid"`
	Rule      string `json:"rule"`
	Reason    string `json:"reason"`
	Severity  string `json:"severity,omitempty"`
}

// Status reports how an invocation ended.
type Status string

const (
	StatusSuccess               Status = "success"
	StatusSuccessWithQuarantine Status = "success_with_quarantine"
	StatusFailed                Status = "failed"
)

// RunResult summarizes one pipeline invocation. Finalized by the ledger and
// immutable afterwards.
type RunResult struct {
	RunID      string     `json:"runId"`
	Department Department `json:"department"`
	Table      string     `json:"table,omitempty"`
	SourceFile string     `json:"sourceFile"`
	StartedAt  int64      `json:"startedAt"`
	FinishedAt int64      `json:"finishedAt"`

	Ingested    int `json:"ingested"`
	Certified   int `json:"certified"`
	Quarantined int `json:"quarantined"`

	// Merge outcome within the certified set.
	Inserted  int `json:"inserted"`
	Versioned int `json:"versioned"`
	Unchanged int `json:"unchanged"`

	Violations   []Violation    `json:"violations,omitempty"`
	RuleTallies  map[string]int `json:"ruleTallies,omitempty"`
	SkippedRules []string       `json:"skippedRules,omitempty"`

	Status        Status `json:"status"`
	FailureReason string `json:"failureReason,omitempty"`
}
