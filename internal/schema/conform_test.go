package schema

import (
	"testing"

	"silvergate/internal/model"
)

func orderSchema() *DeptSchema {
	return &DeptSchema{
		Department:  model.DeptOperations,
		Table:       "operations_orders",
		NaturalKeys: []string{"order_id"},
		Columns: []Column{
			{Name: "order_id", Type: TypeString, Required: true, Aliases: []string{"orderid"}},
			{Name: "quantity", Type: TypeInteger, Aliases: []string{"qty", "order_quantity"}},
			{Name: "amount", Type: TypeDecimal},
			{Name: "order_date", Type: TypeDate},
			{Name: "express", Type: TypeBoolean, Default: false},
		},
	}
}

func taggedWith(values map[string]any) model.TaggedRecord {
	return model.TaggedRecord{
		Raw:        model.RawRecord{Values: values, Format: model.FormatCSV},
		RecordUID:  "uid-1",
		Department: model.DeptOperations,
		SourceFile: "operations_order_data.csv",
	}
}

func TestConform_AliasesCastsAndDefaults(t *testing.T) {
	c := NewConformer(orderSchema())
	rec := c.Conform(taggedWith(map[string]any{
		"OrderID":    "o1",              // alias + standardization
		"qty":        "3",               // numeric-as-string
		"amount":     "1,200.50",        // thousands separator
		"Order-Date": "2024-03-01",      // dashed source header
		"comment":    "should be gone",  // not canonical, dropped
	}))

	if rec.Malformed {
		t.Fatalf("unexpected malformed: %s", rec.MalformedWhy)
	}
	if rec.Fields["order_id"] != "o1" {
		t.Fatalf("order_id: %v", rec.Fields["order_id"])
	}
	if rec.Fields["quantity"] != int64(3) {
		t.Fatalf("quantity: %v (%T)", rec.Fields["quantity"], rec.Fields["quantity"])
	}
	if rec.Fields["amount"] != 1200.50 {
		t.Fatalf("amount: %v", rec.Fields["amount"])
	}
	if rec.Fields["order_date"] == nil {
		t.Fatalf("order_date not cast")
	}
	if rec.Fields["express"] != false {
		t.Fatalf("default not applied: %v", rec.Fields["express"])
	}
	if _, ok := rec.Fields["comment"]; ok {
		t.Fatalf("extra column not dropped")
	}
	if len(rec.Fields) != 5 {
		t.Fatalf("canonical cardinality violated: %d fields", len(rec.Fields))
	}
}

func TestConform_DefaultsCastToCanonicalType(t *testing.T) {
	ds := orderSchema()
	// JSON configs decode integer defaults as float64.
	ds.Columns = append(ds.Columns, Column{Name: "priority", Type: TypeInteger, Default: float64(7)})
	c := NewConformer(ds)

	rec := c.Conform(taggedWith(map[string]any{"order_id": "o4"}))
	if rec.Malformed {
		t.Fatalf("unexpected malformed: %s", rec.MalformedWhy)
	}
	if v := rec.Fields["priority"]; v != int64(7) {
		t.Fatalf("default not cast: %v (%T)", v, v)
	}
	if rec.Fields["express"] != false {
		t.Fatalf("boolean default: %v", rec.Fields["express"])
	}
}

func TestConform_DuplicateSourceColumnsFirstWins(t *testing.T) {
	c := NewConformer(orderSchema())
	// Both headers standardize to order_id; column order decides.
	rec := c.Conform(model.TaggedRecord{
		Raw: model.RawRecord{
			Columns: []string{"Order ID", "order_id"},
			Values:  map[string]any{"Order ID": "oA", "order_id": "oB"},
			Format:  model.FormatCSV,
		},
		RecordUID: "uid-dup",
	})
	if rec.Fields["order_id"] != "oA" {
		t.Fatalf("first source column should win: %v", rec.Fields["order_id"])
	}
}

func TestConform_CoercionFailureMarksMalformed(t *testing.T) {
	c := NewConformer(orderSchema())
	rec := c.Conform(taggedWith(map[string]any{
		"order_id": "o2",
		"quantity": "two", // not castable to integer
	}))
	if !rec.Malformed {
		t.Fatalf("expected malformed record")
	}
	if rec.MalformedWhy == "" {
		t.Fatalf("missing coercion reason")
	}
	if rec.Fields["quantity"] != nil {
		t.Fatalf("failed cast should leave null: %v", rec.Fields["quantity"])
	}
	// Record is emitted, not discarded: the gate accounts for it.
	if rec.Fields["order_id"] != "o2" {
		t.Fatalf("other fields should still conform: %v", rec.Fields["order_id"])
	}
}

func TestConform_MissingCanonicalColumnGetsNull(t *testing.T) {
	c := NewConformer(orderSchema())
	rec := c.Conform(taggedWith(map[string]any{"order_id": "o3"}))
	if rec.Malformed {
		t.Fatalf("missing columns are not coercion failures")
	}
	if v, ok := rec.Fields["amount"]; !ok || v != nil {
		t.Fatalf("missing canonical column should be present as null: %v ok=%v", v, ok)
	}
}

func TestCast(t *testing.T) {
	if v, err := Cast("", TypeInteger); err != nil || v != nil {
		t.Fatalf("empty string should be null: %v %v", v, err)
	}
	if v, err := Cast("7.0", TypeInteger); err != nil || v != int64(7) {
		t.Fatalf("integral float string: %v %v", v, err)
	}
	if _, err := Cast("7.5", TypeInteger); err == nil {
		t.Fatalf("fractional value should not cast to integer")
	}
	if v, err := Cast("yes", TypeBoolean); err != nil || v != true {
		t.Fatalf("yes: %v %v", v, err)
	}
	if v, err := Cast(float64(42), TypeString); err != nil || v != "42" {
		t.Fatalf("float to string: %v %v", v, err)
	}
	if _, err := Cast("not a date", TypeDate); err == nil {
		t.Fatalf("garbage date should fail")
	}
	if v, err := Cast("2024-03-01 10:30:00", TypeDate); err != nil || v == nil {
		t.Fatalf("datetime: %v %v", v, err)
	}
}
