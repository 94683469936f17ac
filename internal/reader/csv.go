package reader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"silvergate/internal/model"
)

// CSVReader reads one CSV extract. The first row is the header.
type CSVReader struct {
	source string
	f      *os.File
	r      *csv.Reader
	header []string
}

func OpenCSV(path string) (*CSVReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &model.SourceReadError{Source: path, Err: err}
	}
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		return nil, &model.SourceReadError{Source: path, Err: fmt.Errorf("read header: %w", err)}
	}
	return &CSVReader{source: path, f: f, r: r, header: header}, nil
}

func (c *CSVReader) Next(ctx context.Context) (model.RawRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.RawRecord{}, false, &model.SourceReadError{Source: c.source, Err: err}
	}
	row, err := c.r.Read()
	if err == io.EOF {
		return model.RawRecord{}, false, nil
	}
	if err != nil {
		return model.RawRecord{}, false, &model.SourceReadError{Source: c.source, Err: err}
	}
	values := make(map[string]any, len(c.header))
	for i, name := range c.header {
		if i < len(row) {
			values[name] = row[i]
		} else {
			values[name] = nil
		}
	}
	return model.RawRecord{
		Columns: append([]string(nil), c.header...),
		Values:  values,
		Format:  model.FormatCSV,
	}, true, nil
}

func (c *CSVReader) Close() error { return c.f.Close() }
