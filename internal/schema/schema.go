package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"silvergate/internal/model"
)

// ColumnType enumerates the canonical value types.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeDecimal ColumnType = "decimal"
	TypeDate    ColumnType = "date"
	TypeBoolean ColumnType = "boolean"
)

// Column declares one canonical column of a department schema.
type Column struct {
	Name            string     `json:"name"`
	Type            ColumnType `json:"type"`
	Required        bool       `json:"required,omitempty"`
	NaturalKey      bool       `json:"naturalKey,omitempty"`
	Aliases         []string   `json:"aliases,omitempty"`
	CaseInsensitive bool       `json:"caseInsensitive,omitempty"`
	Ref             string     `json:"ref,omitempty"`
	Default         any        `json:"default,omitempty"`
}

// DeptSchema is the canonical schema for one department's extracts.
type DeptSchema struct {
	Department                model.Department `json:"department"`
	Table                     string           `json:"table"`
	AllowIntraBatchDuplicates bool             `json:"allowIntraBatchDuplicates,omitempty"`
	NaturalKeys               []string         `json:"naturalKeys,omitempty"`
	Columns                   []Column         `json:"columns"`
}

// Config holds the canonical schemas for all departments.
type Config struct {
	Departments map[model.Department]*DeptSchema `json:"departments"`
}

// Load reads a schema configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a schema configuration document.
func Parse(data []byte) (*Config, error) {
	data = []byte(strings.TrimPrefix(string(data), "\ufeff"))
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal schema config: %w", err)
	}
	return &cfg, nil
}

// Standardize normalizes a source column name: trim, lowercase, spaces and
// dashes to underscores.
func Standardize(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "-", "_")
	return s
}

var validTypes = map[ColumnType]bool{
	TypeString: true, TypeInteger: true, TypeDecimal: true, TypeDate: true, TypeBoolean: true,
}

// Validate checks structural consistency. Any defect is a configuration
// problem, so it fails fast with StructuralSchemaError before any record is
// read.
func (c *Config) Validate() error {
	if len(c.Departments) == 0 {
		return &model.StructuralSchemaError{Reason: "no departments declared"}
	}
	for dept, ds := range c.Departments {
		if ds == nil || len(ds.Columns) == 0 {
			return &model.StructuralSchemaError{Department: dept, Reason: "no canonical columns declared"}
		}
		if ds.Department == "" {
			ds.Department = dept
		}
		names := make(map[string]bool, len(ds.Columns))
		aliases := make(map[string]string)
		for _, col := range ds.Columns {
			n := Standardize(col.Name)
			if n == "" {
				return &model.StructuralSchemaError{Department: dept, Reason: "empty column name"}
			}
			if names[n] {
				return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("duplicate canonical column %q", n)}
			}
			names[n] = true
			if !validTypes[col.Type] {
				return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("column %q has unknown type %q", n, col.Type)}
			}
			if col.Default != nil {
				if _, err := Cast(col.Default, col.Type); err != nil {
					return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("column %q default %v is not a %s", n, col.Default, col.Type)}
				}
			}
		}
		for _, col := range ds.Columns {
			for _, a := range col.Aliases {
				an := Standardize(a)
				if names[an] {
					return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("alias %q shadows a canonical column", an)}
				}
				if prev, dup := aliases[an]; dup && prev != col.Name {
					return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("alias %q claimed by both %q and %q", an, prev, col.Name)}
				}
				aliases[an] = col.Name
			}
			if col.Ref != "" && col.Type != TypeString && col.Type != TypeInteger {
				return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("reference column %q must be string or integer", col.Name)}
			}
		}
		for _, nk := range ds.NaturalKeys {
			if !names[Standardize(nk)] {
				return &model.StructuralSchemaError{Department: dept, Reason: fmt.Sprintf("natural key %q is not a canonical column", nk)}
			}
		}
	}
	return nil
}

// For returns the schema of a department.
func (c *Config) For(dept model.Department) (*DeptSchema, error) {
	ds, ok := c.Departments[dept]
	if !ok {
		return nil, &model.StructuralSchemaError{Department: dept, Reason: "no schema declared"}
	}
	return ds, nil
}

// Column returns the canonical column by name.
func (d *DeptSchema) Column(name string) (Column, bool) {
	n := Standardize(name)
	for _, col := range d.Columns {
		if Standardize(col.Name) == n {
			return col, true
		}
	}
	return Column{}, false
}

// Resolve maps a source column name (standardized, then matched against
// canonical names and aliases) to its canonical column.
func (d *DeptSchema) Resolve(sourceName string) (Column, bool) {
	n := Standardize(sourceName)
	for _, col := range d.Columns {
		if Standardize(col.Name) == n {
			return col, true
		}
		for _, a := range col.Aliases {
			if Standardize(a) == n {
				return col, true
			}
		}
	}
	return Column{}, false
}

// NaturalKeyColumns resolves the declared natural key. Both the dept-level
// list and per-column flags contribute; order follows the canonical column
// order. Empty result means the full business column set is the key.
func (d *DeptSchema) NaturalKeyColumns() []Column {
	declared := make(map[string]bool, len(d.NaturalKeys))
	for _, nk := range d.NaturalKeys {
		declared[Standardize(nk)] = true
	}
	var keys []Column
	for _, col := range d.Columns {
		if col.NaturalKey || declared[Standardize(col.Name)] {
			keys = append(keys, col)
		}
	}
	return keys
}

// ColumnNames returns canonical column names in declaration order.
func (d *DeptSchema) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = Standardize(col.Name)
	}
	return out
}

// RequiredColumns returns the columns declared required.
func (d *DeptSchema) RequiredColumns() []Column {
	var out []Column
	for _, col := range d.Columns {
		if col.Required {
			out = append(out, col)
		}
	}
	return out
}

// RefColumns returns the columns bound to a reference set.
func (d *DeptSchema) RefColumns() []Column {
	var out []Column
	for _, col := range d.Columns {
		if col.Ref != "" {
			out = append(out, col)
		}
	}
	return out
}
