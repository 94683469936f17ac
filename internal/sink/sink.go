package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/segmentio/kafka-go"

	"silvergate/internal/model"
)

// ColumnSpec describes one column in a dataset's embedded schema.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SourceRef traces a dataset row back to its origin: filename plus
// record uid, with the merge version for certified rows and the violation
// for quarantined rows.
type SourceRef struct {
	File        string `json:"file"`
	RecordUID   string `json:"recordUid"`
	IdentityKey string `json:"identityKey"`
	Version     int64  `json:"version,omitempty"`
	Rule        string `json:"rule,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// Dataset is the self-describing columnar output format: a typed schema
// block, per-column value arrays, and per-row source references. Row i of
// every column belongs with Sources[i].
type Dataset struct {
	Table      string           `json:"table"`
	Department model.Department `json:"department"`
	RunID      string           `json:"runId"`
	Kind       string           `json:"kind"` // certified|quarantine
	Schema     []ColumnSpec     `json:"schema"`
	Columns    map[string][]any `json:"columns"`
	Sources    []SourceRef      `json:"sources"`
}

func NewDataset(table string, dept model.Department, runID string, kind string, schema []ColumnSpec) *Dataset {
	d := &Dataset{
		Table:      table,
		Department: dept,
		RunID:      runID,
		Kind:       kind,
		Schema:     schema,
		Columns:    make(map[string][]any, len(schema)),
	}
	for _, c := range schema {
		d.Columns[c.Name] = []any{}
	}
	return d
}

// AddCertified appends one certified record with its merge version.
func (d *Dataset) AddCertified(rec model.ConformedRecord, version int64) {
	d.add(rec, SourceRef{
		File:        rec.SourceFile,
		RecordUID:   rec.RecordUID,
		IdentityKey: rec.IdentityKey,
		Version:     version,
	})
}

// AddQuarantined appends one quarantined record with its violation.
func (d *Dataset) AddQuarantined(rec model.ConformedRecord, v model.Violation) {
	d.add(rec, SourceRef{
		File:        rec.SourceFile,
		RecordUID:   rec.RecordUID,
		IdentityKey: rec.IdentityKey,
		Rule:        v.Rule,
		Reason:      v.Reason,
	})
}

func (d *Dataset) add(rec model.ConformedRecord, ref SourceRef) {
	for _, c := range d.Schema {
		d.Columns[c.Name] = append(d.Columns[c.Name], rec.Fields[c.Name])
	}
	d.Sources = append(d.Sources, ref)
}

// Len reports the row count.
func (d *Dataset) Len() int { return len(d.Sources) }

// Sink persists datasets.
type Sink interface {
	Write(d *Dataset) error
}

// MultiSink fans out to several sinks.
type MultiSink struct {
	sinks []Sink
}

func NewMultiSink(ss ...Sink) *MultiSink {
	return &MultiSink{sinks: ss}
}

func (m *MultiSink) Write(d *Dataset) error {
	for _, s := range m.sinks {
		if err := s.Write(d); err != nil {
			return err
		}
	}
	return nil
}

// FileSink writes each dataset as <table>.<runID>.<kind>.json.
type FileSink struct {
	baseDir string
}

func NewFileSink(baseDir string) *FileSink {
	return &FileSink{baseDir: baseDir}
}

func (f *FileSink) Write(d *Dataset) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	name := fmt.Sprintf("%s.%s.%s.json", d.Table, d.RunID, d.Kind)
	out, err := os.Create(filepath.Join(f.baseDir, name))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(d); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// KafkaSink publishes one message per dataset, keyed table#kind, so the
// downstream loader can consume whole certified batches.
type KafkaSink struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafkaSink(bootstrap string, topic string) *KafkaSink {
	var brokers []string
	for _, a := range strings.Split(bootstrap, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaSink{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (k *KafkaSink) Write(d *Dataset) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	key := fmt.Sprintf("%s#%s", d.Table, d.Kind)
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(key), Value: b})
}

// NewKafkaSinkWith is only for tests to inject a fake writer.
func NewKafkaSinkWith(w kafkaMessageWriter) *KafkaSink {
	return &KafkaSink{writer: w}
}
