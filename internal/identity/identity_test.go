package identity

import (
	"testing"

	"silvergate/internal/model"
	"silvergate/internal/schema"
)

func productSchema() *schema.DeptSchema {
	return &schema.DeptSchema{
		Department: model.DeptBusiness,
		Table:      "business_product",
		Columns: []schema.Column{
			{Name: "product_id", Type: schema.TypeString, Required: true, NaturalKey: true, Aliases: []string{"productid", "sku"}},
			{Name: "product_name", Type: schema.TypeString},
			{Name: "price", Type: schema.TypeDecimal},
		},
	}
}

func tagged(values map[string]any, format model.Format) model.TaggedRecord {
	return model.TaggedRecord{
		Raw:       model.RawRecord{Values: values, Format: format},
		RecordUID: "uid-x",
	}
}

func TestIdentityKey_SameContentAcrossFormats(t *testing.T) {
	r := NewResolver(productSchema())

	// CSV renders the id as a string, a spreadsheet cell as a float.
	csvKey := r.IdentityKey(tagged(map[string]any{"product_id": "100", "product_name": "A"}, model.FormatCSV))
	xlsKey := r.IdentityKey(tagged(map[string]any{"product_id": float64(100), "product_name": "A"}, model.FormatExcel))
	strFloatKey := r.IdentityKey(tagged(map[string]any{"product_id": "100.0", "product_name": "A"}, model.FormatJSON))

	if csvKey != xlsKey || csvKey != strFloatKey {
		t.Fatalf("keys differ across formats: %s %s %s", csvKey, xlsKey, strFloatKey)
	}
}

func TestIdentityKey_AliasResolvesToSameKey(t *testing.T) {
	r := NewResolver(productSchema())
	a := r.IdentityKey(tagged(map[string]any{"product_id": "p1"}, model.FormatCSV))
	b := r.IdentityKey(tagged(map[string]any{"SKU": "p1"}, model.FormatCSV))
	if a != b {
		t.Fatalf("alias should map to the same key: %s vs %s", a, b)
	}
}

func TestIdentityKey_CanonicalNameBeatsAlias(t *testing.T) {
	r := NewResolver(productSchema())
	// Record carries both the canonical column and an alias with another value.
	withBoth := model.TaggedRecord{
		Raw: model.RawRecord{
			Columns: []string{"sku", "product_id"},
			Values:  map[string]any{"sku": "alias-val", "product_id": "canon-val"},
		},
	}
	canonOnly := tagged(map[string]any{"product_id": "canon-val"}, model.FormatCSV)
	if r.IdentityKey(withBoth) != r.IdentityKey(canonOnly) {
		t.Fatalf("canonical column should win over the alias")
	}
}

func TestIdentityKey_CollidingSourceNamesResolveByColumnOrder(t *testing.T) {
	r := NewResolver(productSchema())
	// "Product ID" and "product_id" standardize to the same canonical name.
	rec := model.TaggedRecord{
		Raw: model.RawRecord{
			Columns: []string{"Product ID", "product_id"},
			Values:  map[string]any{"Product ID": "pA", "product_id": "pB"},
		},
	}
	want := r.IdentityKey(tagged(map[string]any{"product_id": "pA"}, model.FormatCSV))
	for i := 0; i < 50; i++ {
		if got := r.IdentityKey(rec); got != want {
			t.Fatalf("identity key unstable on colliding source names (iteration %d)", i)
		}
	}
}

func TestIdentityKey_DifferentContentDifferentKey(t *testing.T) {
	r := NewResolver(productSchema())
	a := r.IdentityKey(tagged(map[string]any{"product_id": "p1"}, model.FormatCSV))
	b := r.IdentityKey(tagged(map[string]any{"product_id": "p2"}, model.FormatCSV))
	if a == b {
		t.Fatalf("distinct ids should not collide")
	}
}

func TestIdentityKey_FullFieldFallbackWithoutNaturalKey(t *testing.T) {
	ds := &schema.DeptSchema{
		Department: model.DeptMarketing,
		Table:      "marketing_transactional_campaign",
		Columns: []schema.Column{
			{Name: "campaign", Type: schema.TypeString},
			{Name: "clicks", Type: schema.TypeInteger},
		},
	}
	r := NewResolver(ds)
	a := r.IdentityKey(tagged(map[string]any{"campaign": "summer", "clicks": "10"}, model.FormatCSV))
	b := r.IdentityKey(tagged(map[string]any{"clicks": int64(10), "campaign": "summer"}, model.FormatJSON))
	c := r.IdentityKey(tagged(map[string]any{"campaign": "summer", "clicks": "11"}, model.FormatCSV))
	if a != b {
		t.Fatalf("same full content should digest identically: %s vs %s", a, b)
	}
	if a == c {
		t.Fatalf("changed field should change the key")
	}
}

func TestContentDigest_DetectsChange(t *testing.T) {
	r := NewResolver(productSchema())
	rec := model.ConformedRecord{
		Columns: []string{"product_id", "product_name", "price"},
		Fields:  map[string]any{"product_id": "p1", "product_name": "A", "price": 9.5},
	}
	d1 := r.ContentDigest(rec)
	rec.Fields["price"] = 10.0
	d2 := r.ContentDigest(rec)
	if d1 == d2 {
		t.Fatalf("digest should change with content")
	}
	rec.Fields["price"] = 9.5
	if r.ContentDigest(rec) != d1 {
		t.Fatalf("digest should be stable for identical content")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  100 ", false); got != "100" {
		t.Fatalf("trimmed numeric string: %q", got)
	}
	if got := Normalize(float64(100), false); got != "100" {
		t.Fatalf("integral float: %q", got)
	}
	if got := Normalize("José", false); got != "Jose" {
		t.Fatalf("diacritics: %q", got)
	}
	if got := Normalize("ALICE", true); got != "alice" {
		t.Fatalf("case-insensitive: %q", got)
	}
	if got := Normalize(nil, false); got != "" {
		t.Fatalf("nil: %q", got)
	}
}
