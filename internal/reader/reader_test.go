package reader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"silvergate/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestCSVReader_HeaderAndRows(t *testing.T) {
	path := writeFile(t, "business_product_data.csv",
		"Product ID,Product Name,Price\np1,Widget,9.99\np2,Gadget,4.50\n")
	r, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer r.Close()

	recs, exhausted, err := ReadChunk(context.Background(), r, 10)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !exhausted || len(recs) != 2 {
		t.Fatalf("got %d records exhausted=%v, want 2/true", len(recs), exhausted)
	}
	// Header names pass through untouched; standardization happens later.
	if recs[0].Columns[0] != "Product ID" {
		t.Fatalf("header mangled: %v", recs[0].Columns)
	}
	if recs[1].Values["Price"] != "4.50" {
		t.Fatalf("value lost: %v", recs[1].Values)
	}
	if recs[0].Format != model.FormatCSV {
		t.Fatalf("format = %s", recs[0].Format)
	}
}

func TestCSVReader_RaggedRowPadsNil(t *testing.T) {
	path := writeFile(t, "ragged.csv", "a,b,c\n1,2\n")
	r, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	defer r.Close()

	rec, ok, err := r.Next(context.Background())
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if rec.Values["b"] != "2" || rec.Values["c"] != nil {
		t.Fatalf("short row not padded: %v", rec.Values)
	}
}

func TestCSVReader_EmptyFileIsReadError(t *testing.T) {
	path := writeFile(t, "empty.csv", "")
	_, err := OpenCSV(path)
	var sre *model.SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("want SourceReadError for missing header, got %v", err)
	}
}

func TestCSVReader_MissingFile(t *testing.T) {
	_, err := OpenCSV(filepath.Join(t.TempDir(), "absent.csv"))
	var sre *model.SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("want SourceReadError, got %v", err)
	}
}

func TestJSONLReader_SortedColumnsAndBlankLines(t *testing.T) {
	path := writeFile(t, "rows.jsonl",
		`{"name":"Widget","product_id":"p1"}`+"\n\n"+`{"product_id":"p2","name":"Gadget"}`+"\n")
	r, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer r.Close()

	recs, exhausted, err := ReadChunk(context.Background(), r, 10)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if !exhausted || len(recs) != 2 {
		t.Fatalf("got %d records exhausted=%v, want 2/true", len(recs), exhausted)
	}
	for _, rec := range recs {
		if rec.Columns[0] != "name" || rec.Columns[1] != "product_id" {
			t.Fatalf("columns not sorted: %v", rec.Columns)
		}
		if rec.Format != model.FormatJSON {
			t.Fatalf("format = %s", rec.Format)
		}
	}
}

func TestJSONLReader_BadLineNamesLineNumber(t *testing.T) {
	path := writeFile(t, "bad.jsonl", `{"product_id":"p1"}`+"\n{not json\n")
	r, err := OpenJSONL(path)
	if err != nil {
		t.Fatalf("OpenJSONL: %v", err)
	}
	defer r.Close()

	if _, ok, err := r.Next(context.Background()); err != nil || !ok {
		t.Fatalf("first line should parse: ok=%v err=%v", ok, err)
	}
	_, _, err = r.Next(context.Background())
	var sre *model.SourceReadError
	if !errors.As(err, &sre) {
		t.Fatalf("want SourceReadError, got %v", err)
	}
	if sre.Source != path {
		t.Fatalf("source = %q, want %q", sre.Source, path)
	}
}

func TestReadChunk_StopsAtChunkSize(t *testing.T) {
	var recs []model.RawRecord
	for i := 0; i < 5; i++ {
		recs = append(recs, model.RawRecord{Columns: []string{"a"}, Values: map[string]any{"a": i}})
	}
	r := NewSliceReader(recs)

	chunk, exhausted, err := ReadChunk(context.Background(), r, 3)
	if err != nil || exhausted || len(chunk) != 3 {
		t.Fatalf("first chunk: %d exhausted=%v err=%v", len(chunk), exhausted, err)
	}
	chunk, exhausted, err = ReadChunk(context.Background(), r, 3)
	if err != nil || !exhausted || len(chunk) != 2 {
		t.Fatalf("second chunk: %d exhausted=%v err=%v", len(chunk), exhausted, err)
	}
}

func TestReadChunk_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewSliceReader([]model.RawRecord{{Columns: []string{"a"}, Values: map[string]any{"a": 1}}})

	_, _, err := ReadChunk(ctx, r, 3)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled through the read error, got %v", err)
	}
}
