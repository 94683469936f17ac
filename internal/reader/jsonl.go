package reader

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"silvergate/internal/model"
)

// JSONLReader reads newline-delimited JSON objects. JSON carries no column
// order, so columns come out sorted for a stable record shape.
type JSONLReader struct {
	source  string
	f       *os.File
	scanner *bufio.Scanner
	line    int
}

func OpenJSONL(path string) (*JSONLReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.SourceReadError{Source: path, Err: err}
	}
	return &JSONLReader{source: path, f: f, scanner: bufio.NewScanner(f)}, nil
}

func (j *JSONLReader) Next(ctx context.Context) (model.RawRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.RawRecord{}, false, &model.SourceReadError{Source: j.source, Err: err}
	}
	for j.scanner.Scan() {
		j.line++
		raw := j.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var values map[string]any
		if err := json.Unmarshal(raw, &values); err != nil {
			return model.RawRecord{}, false, &model.SourceReadError{Source: j.source, Err: fmt.Errorf("line %d: %w", j.line, err)}
		}
		columns := make([]string, 0, len(values))
		for name := range values {
			columns = append(columns, name)
		}
		sort.Strings(columns)
		return model.RawRecord{Columns: columns, Values: values, Format: model.FormatJSON}, true, nil
	}
	if err := j.scanner.Err(); err != nil {
		return model.RawRecord{}, false, &model.SourceReadError{Source: j.source, Err: err}
	}
	return model.RawRecord{}, false, nil
}

func (j *JSONLReader) Close() error { return j.f.Close() }
