package quality

import (
	"fmt"
	"log"

	"silvergate/internal/identity"
	"silvergate/internal/model"
	"silvergate/internal/schema"
)

// RefSets maps a reference-set name to the set of previously certified key
// values, in normalized form.
type RefSets map[string]map[string]bool

// Partition is the gate outcome for one chunk, both sides in input order.
type Partition struct {
	Certified   []model.ConformedRecord
	Quarantined []model.ConformedRecord
	Violations  []model.Violation
}

// Gate evaluates the ordered rule set and routes failing records to
// quarantine. A Gate carries running state across chunks so the outcome does
// not depend on chunk boundaries.
type Gate struct {
	schema  *schema.DeptSchema
	refs    RefSets
	seen    map[string]bool // identity keys certified so far in this run
	skipped map[string]bool // rules already reported as skipped
}

func NewGate(ds *schema.DeptSchema, refs RefSets) *Gate {
	return &Gate{
		schema:  ds,
		refs:    refs,
		seen:    make(map[string]bool),
		skipped: make(map[string]bool),
	}
}

// Evaluate partitions one chunk. First violation per record wins: a record is
// quarantined once with the first rule it breaks. Records are never dropped.
func (g *Gate) Evaluate(chunk []model.ConformedRecord) Partition {
	var p Partition
	for _, rec := range chunk {
		if v, bad := g.check(rec); bad {
			p.Quarantined = append(p.Quarantined, rec)
			p.Violations = append(p.Violations, v)
			continue
		}
		// Only certified records claim their identity key.
		g.seen[rec.IdentityKey] = true
		p.Certified = append(p.Certified, rec)
	}
	return p
}

// SkippedRules reports rules that could not be evaluated (in practice:
// referential-integrity without its reference set).
func (g *Gate) SkippedRules() []string {
	var out []string
	for r := range g.skipped {
		out = append(out, r)
	}
	return out
}

func (g *Gate) check(rec model.ConformedRecord) (model.Violation, bool) {
	for _, col := range g.schema.RequiredColumns() {
		name := schema.Standardize(col.Name)
		if rec.Fields[name] == nil {
			return violation(rec, model.RuleNotNull, fmt.Sprintf("required column %q is null", name)), true
		}
	}
	if !g.schema.AllowIntraBatchDuplicates && g.seen[rec.IdentityKey] {
		return violation(rec, model.RuleUniqueness, fmt.Sprintf("identity key %s already certified in this batch", short(rec.IdentityKey))), true
	}
	if rec.Malformed {
		return violation(rec, model.RuleType, rec.MalformedWhy), true
	}
	for _, col := range g.schema.RefColumns() {
		set, ok := g.refs[col.Ref]
		if !ok {
			if !g.skipped[model.RuleReferential] {
				g.skipped[model.RuleReferential] = true
				log.Printf("quality: rule %s skipped, reference set %q unavailable", model.RuleReferential, col.Ref)
			}
			continue
		}
		name := schema.Standardize(col.Name)
		v := rec.Fields[name]
		if v == nil {
			continue // nulls belong to the not-null rule
		}
		if !set[identity.Normalize(v, false)] {
			return violation(rec, model.RuleReferential, fmt.Sprintf("%q value %v not found in reference set %q", name, v, col.Ref)), true
		}
	}
	return model.Violation{}, false
}

func violation(rec model.ConformedRecord, rule string, reason string) model.Violation {
	return model.Violation{
		RecordUID: rec.RecordUID,
		Rule:      rule,
		Reason:    reason,
		Severity:  model.SeverityWarning,
	}
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}

// StructuralFailure decides whether the batch as a whole failed: zero records
// ingested, or every record failing the same rule, both signal an upstream
// format regression rather than scattered bad rows.
func StructuralFailure(ingested int, violations []model.Violation) error {
	if ingested == 0 {
		return fmt.Errorf("structural failure: zero records ingested")
	}
	if len(violations) != ingested {
		return nil
	}
	rule := violations[0].Rule
	for _, v := range violations[1:] {
		if v.Rule != rule {
			return nil
		}
	}
	return fmt.Errorf("structural failure: all %d records failed rule %s", ingested, rule)
}
