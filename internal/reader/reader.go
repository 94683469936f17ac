package reader

import (
	"context"

	"silvergate/internal/model"
)

// RawReader is the capability every source format satisfies: produce raw
// records one at a time. Exhaustion is explicit (ok=false) and read failures
// surface as SourceReadError, never as a silent empty stream.
// Format-specific quirks stay inside the reader.
type RawReader interface {
	Next(ctx context.Context) (rec model.RawRecord, ok bool, err error)
	Close() error
}

// ReadChunk pulls up to n records. Returns what it got plus whether the
// stream is exhausted.
func ReadChunk(ctx context.Context, r RawReader, n int) ([]model.RawRecord, bool, error) {
	out := make([]model.RawRecord, 0, n)
	for len(out) < n {
		rec, ok, err := r.Next(ctx)
		if err != nil {
			return out, false, err
		}
		if !ok {
			return out, true, nil
		}
		out = append(out, rec)
	}
	return out, false, nil
}

// SliceReader serves records from memory. Used by tests and by the sample
// generator.
type SliceReader struct {
	records []model.RawRecord
	pos     int
}

func NewSliceReader(records []model.RawRecord) *SliceReader {
	return &SliceReader{records: records}
}

func (s *SliceReader) Next(ctx context.Context) (model.RawRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.RawRecord{}, false, &model.SourceReadError{Source: "slice", Err: err}
	}
	if s.pos >= len(s.records) {
		return model.RawRecord{}, false, nil
	}
	rec := s.records[s.pos]
	s.pos++
	return rec, true, nil
}

func (s *SliceReader) Close() error { return nil }
