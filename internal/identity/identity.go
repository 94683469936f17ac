package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"silvergate/internal/model"
	"silvergate/internal/schema"
)

// sep keeps field boundaries unambiguous inside the digest input.
const sep = "\x1f"

// Resolver computes deterministic record identity for a department.
type Resolver struct {
	schema *schema.DeptSchema
}

func NewResolver(ds *schema.DeptSchema) *Resolver {
	return &Resolver{schema: ds}
}

// IdentityKey digests the declared natural key of the record. With no natural
// key declared, the full business column set is digested instead. Values are
// normalized first so that the same business content yields the same key no
// matter which source format carried it.
func (r *Resolver) IdentityKey(t model.TaggedRecord) string {
	keys := r.schema.NaturalKeyColumns()
	if len(keys) == 0 {
		return digestAllColumns(t)
	}
	parts := make([]string, 0, len(keys))
	for _, col := range keys {
		raw := lookupSource(t.Raw, col)
		parts = append(parts, schema.Standardize(col.Name)+"="+Normalize(raw, col.CaseInsensitive))
	}
	return digest(parts)
}

// ContentDigest digests every business field of a conformed record, used to
// tell a changed record from an unchanged re-read of the same entity.
func (r *Resolver) ContentDigest(c model.ConformedRecord) string {
	parts := make([]string, 0, len(c.Columns))
	for _, name := range c.Columns {
		parts = append(parts, name+"="+Normalize(c.Fields[name], false))
	}
	return digest(parts)
}

// lookupSource resolves a canonical column's value in a fixed order: the
// canonical name first, then aliases in declared order, colliding source
// names settled by source column order. Keeps identity keys stable when a
// record carries both "Product ID" and "product_id".
func lookupSource(raw model.RawRecord, col schema.Column) any {
	order := sourceOrder(raw)
	for _, candidate := range append([]string{col.Name}, col.Aliases...) {
		cn := schema.Standardize(candidate)
		for _, name := range order {
			v, ok := raw.Values[name]
			if ok && schema.Standardize(name) == cn {
				return v
			}
		}
	}
	return nil
}

func sourceOrder(raw model.RawRecord) []string {
	if len(raw.Columns) > 0 {
		return raw.Columns
	}
	names := make([]string, 0, len(raw.Values))
	for name := range raw.Values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func digestAllColumns(t model.TaggedRecord) string {
	names := make([]string, 0, len(t.Raw.Values))
	for name := range t.Raw.Values {
		names = append(names, schema.Standardize(name))
	}
	sort.Strings(names)
	byName := make(map[string]any, len(t.Raw.Values))
	for name, v := range t.Raw.Values {
		byName[schema.Standardize(name)] = v
	}
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+Normalize(byName[name], false))
	}
	return digest(parts)
}

func digest(parts []string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, sep)))
	return hex.EncodeToString(h[:])
}

// Normalize renders a value in canonical form: trimmed, diacritics stripped,
// numbers in canonical formatting ("100", 100 and "100.0" all render "100").
// caseInsensitive additionally lowercases.
func Normalize(v any, caseInsensitive bool) string {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatNumber(x)
	case string:
		s := StripDiacritics(strings.TrimSpace(x))
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return formatNumber(f)
		}
		if caseInsensitive {
			s = strings.ToLower(s)
		}
		return s
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", x))
	}
}

func formatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
