package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"silvergate/internal/model"
)

func sampleRun(id string) model.RunResult {
	return model.RunResult{
		RunID:       id,
		Department:  model.DeptBusiness,
		SourceFile:  "business_product_data.csv",
		StartedAt:   100,
		FinishedAt:  103,
		Ingested:    10,
		Certified:   9,
		Quarantined: 1,
		Inserted:    9,
		Violations: []model.Violation{
			{RecordUID: "u9", Rule: model.RuleNotNull, Reason: `required column "product_name" is null`},
		},
		RuleTallies: map[string]int{model.RuleNotNull: 1},
		Status:      model.StatusSuccessWithQuarantine,
	}
}

func TestFileWriter_AppendOnly(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "runs.jsonl")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}

	r1 := sampleRun("run-1")
	r2 := sampleRun("run-2")
	if err := w.Append(r1); err != nil {
		t.Fatalf("append1: %v", err)
	}
	if err := w.Append(r2); err != nil {
		t.Fatalf("append2: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "runs.jsonl"))
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	var got []model.RunResult
	for s.Scan() {
		var r model.RunResult
		if err := json.Unmarshal(s.Bytes(), &r); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, r)
	}
	if err := s.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 lines, got %d", len(got))
	}
	if got[0].RunID != "run-1" || got[1].RunID != "run-2" {
		t.Fatalf("mismatch: %+v", got)
	}
	if got[0].Ingested != got[0].Certified+got[0].Quarantined {
		t.Fatalf("conservation broken in persisted entry: %+v", got[0])
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriter_Append_Success(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kw := NewKafkaWriterWith(fk)
	if err := kw.Append(sampleRun("run-k")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "run-k" {
		t.Fatalf("bad key: %s", string(fk.msgs[0].Key))
	}
}

func TestKafkaWriter_Append_Fail(t *testing.T) {
	fk := &fakeKafkaWriter{fail: true}
	kw := NewKafkaWriterWith(fk)
	if err := kw.Append(sampleRun("run-k")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestMultiWriter_FansOut(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWriter(dir, "runs.jsonl")
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	fk := &fakeKafkaWriter{}
	mw := NewMultiWriter(fw, NewKafkaWriterWith(fk))
	if err := mw.Append(sampleRun("run-m")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("kafka leg missed the write")
	}
	if _, err := os.Stat(filepath.Join(dir, "runs.jsonl")); err != nil {
		t.Fatalf("file leg missed the write: %v", err)
	}
}

func TestFilesystemLatest_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewFilesystemLatest(dir)
	want := sampleRun("run-latest")
	if err := l.PublishLatest(want); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := l.ReadLatest()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RunID != want.RunID || got.Status != want.Status {
		t.Fatalf("mismatch: %+v vs %+v", got, want)
	}
}

func TestKafkaLatest_PublishUsesFixedKey(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kl := NewKafkaLatestWith(fk, LatestKey)
	if err := kl.PublishLatest(sampleRun("run-x")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(fk.msgs) != 1 || string(fk.msgs[0].Key) != LatestKey {
		t.Fatalf("bad message: %+v", fk.msgs)
	}
}
