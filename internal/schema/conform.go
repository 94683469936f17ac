package schema

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"silvergate/internal/model"
)

// Conformer casts tagged records onto a department's canonical schema.
type Conformer struct {
	schema *DeptSchema
}

func NewConformer(ds *DeptSchema) *Conformer {
	return &Conformer{schema: ds}
}

// Conform maps source columns to canonical ones, casts every value to its
// canonical type and fills missing canonical columns with the declared
// default (or nil). Source columns with no canonical mapping are dropped.
// A value that cannot be cast marks the record malformed instead of failing
// the batch; the quality gate quarantines it with the coercion reason.
func (c *Conformer) Conform(t model.TaggedRecord) model.ConformedRecord {
	out := model.ConformedRecord{
		RecordUID:  t.RecordUID,
		Department: t.Department,
		SourceFile: t.SourceFile,
		IngestedAt: t.IngestedAt,
		Columns:    c.schema.ColumnNames(),
		Fields:     make(map[string]any, len(c.schema.Columns)),
	}

	// Locate the source value for each canonical column through aliases.
	// First occurrence wins when two source columns standardize identically,
	// so the outcome never depends on map iteration order.
	bySource := make(map[string]any, len(t.Raw.Values))
	for _, name := range sourceOrder(t.Raw) {
		v, ok := t.Raw.Values[name]
		if !ok {
			continue
		}
		n := Standardize(name)
		if _, dup := bySource[n]; !dup {
			bySource[n] = v
		}
	}
	for _, col := range c.schema.Columns {
		name := Standardize(col.Name)
		raw, found := bySource[name]
		if !found {
			for _, a := range col.Aliases {
				if v, ok := bySource[Standardize(a)]; ok {
					raw, found = v, true
					break
				}
			}
		}
		if !found {
			// Validate has already rejected uncastable defaults.
			v, err := Cast(col.Default, col.Type)
			if err != nil {
				v = nil
			}
			out.Fields[name] = v
			continue
		}
		v, err := Cast(raw, col.Type)
		if err != nil {
			var tce *model.TypeCoercionError
			if errors.As(err, &tce) {
				tce.Column = name
			}
			out.Fields[name] = nil
			if !out.Malformed {
				out.Malformed = true
				out.MalformedWhy = err.Error()
			}
			continue
		}
		out.Fields[name] = v
	}
	return out
}

// sourceOrder returns the source column names in a stable order: the
// record's column order when the reader supplied one, sorted names otherwise.
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

// Cast converts an untyped source value to a canonical type. nil and empty
// strings become nil (the null marker). Returns TypeCoercionError when the
// value cannot represent the target type.
func Cast(v any, t ColumnType) (any, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, nil
		}
		v = s
	}
	switch t {
	case TypeString:
		return castString(v)
	case TypeInteger:
		return castInteger(v)
	case TypeDecimal:
		return castDecimal(v)
	case TypeDate:
		return castDate(v)
	case TypeBoolean:
		return castBoolean(v)
	}
	return nil, &model.TypeCoercionError{Value: v, Want: string(t)}
}

func castString(v any) (any, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	}
	return fmt.Sprintf("%v", v), nil
}

func castInteger(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case float64:
		if x != math.Trunc(x) {
			return nil, &model.TypeCoercionError{Value: v, Want: string(TypeInteger)}
		}
		return int64(x), nil
	case string:
		if n, err := strconv.ParseInt(x, 10, 64); err == nil {
			return n, nil
		}
		// JSON and spreadsheet extracts frequently render integers as "7.0".
		if f, err := strconv.ParseFloat(x, 64); err == nil && f == math.Trunc(f) {
			return int64(f), nil
		}
	}
	return nil, &model.TypeCoercionError{Value: v, Want: string(TypeInteger)}
}

func castDecimal(v any) (any, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case string:
		if f, err := strconv.ParseFloat(strings.ReplaceAll(x, ",", ""), 64); err == nil {
			return f, nil
		}
	}
	return nil, &model.TypeCoercionError{Value: v, Want: string(TypeDecimal)}
}

// dateLayouts covers the formats observed across departmental extracts.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
	"2006/01/02",
}

func castDate(v any) (any, error) {
	switch x := v.(type) {
	case int64:
		return x, nil
	case float64:
		if x == math.Trunc(x) {
			return int64(x), nil
		}
	case string:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, x); err == nil {
				return ts.UTC().Unix(), nil
			}
		}
	}
	return nil, &model.TypeCoercionError{Value: v, Want: string(TypeDate)}
}

func castBoolean(v any) (any, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case int64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		switch strings.ToLower(x) {
		case "true", "t", "yes", "y", "1":
			return true, nil
		case "false", "f", "no", "n", "0":
			return false, nil
		}
	}
	return nil, &model.TypeCoercionError{Value: v, Want: string(TypeBoolean)}
}
