package tag

import (
	"time"

	"github.com/google/uuid"

	"silvergate/internal/model"
)

// NowUnix returns current time in epoch seconds. Split for testability.
var NowUnix = func() int64 { return time.Now().UTC().Unix() }

// NewUID generates a record uid. Random 128-bit, never derived from row
// position or content, so uids stay unique across overlapping re-reads.
var NewUID = func() string { return uuid.NewString() }

// Tagger stamps provenance metadata onto raw records.
type Tagger struct {
	department model.Department
	sourceFile string
}

func NewTagger(dept model.Department, sourceFile string) *Tagger {
	return &Tagger{department: dept, sourceFile: sourceFile}
}

// Tag stamps one record. Business field values pass through untouched.
func (t *Tagger) Tag(r model.RawRecord) model.TaggedRecord {
	return model.TaggedRecord{
		Raw:        r,
		RecordUID:  NewUID(),
		IngestedAt: NowUnix(),
		Department: t.department,
		SourceFile: t.sourceFile,
	}
}

// TagAll tags a batch preserving input order.
func (t *Tagger) TagAll(rs []model.RawRecord) []model.TaggedRecord {
	out := make([]model.TaggedRecord, len(rs))
	for i, r := range rs {
		out[i] = t.Tag(r)
	}
	return out
}
