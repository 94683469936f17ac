package refset

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"silvergate/internal/identity"
	"silvergate/internal/quality"
	"silvergate/internal/sink"
)

// Binding declares that reference set Set is fed by Column of table Table's
// certified output. An empty Table matches every table.
type Binding struct {
	Set    string `json:"set"`
	Table  string `json:"table,omitempty"`
	Column string `json:"column"`
}

// LoadDir rebuilds reference sets from *.certified.json dataset files under
// dir. Missing dir or zero matching files yields empty sets for the declared
// bindings, which the gate treats as available (the set genuinely has no
// certified keys yet).
func LoadDir(dir string, bindings []Binding) (quality.RefSets, error) {
	refs := make(quality.RefSets, len(bindings))
	for _, b := range bindings {
		refs[b.Set] = make(map[string]bool)
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.certified.json"))
	if err != nil {
		return nil, fmt.Errorf("glob certified datasets: %w", err)
	}
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read dataset %s: %w", filepath.Base(path), err)
		}
		var d sink.Dataset
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("unmarshal dataset %s: %w", filepath.Base(path), err)
		}
		collect(refs, bindings, &d)
	}
	log.Printf("refset: loaded %d set(s) from %d certified file(s)", len(refs), len(matches))
	return refs, nil
}

// LoadKafka rebuilds reference sets by replaying certified dataset messages
// from a Kafka topic. Bounded by the read timeout; partial topics simply
// yield smaller sets.
func LoadKafka(brokers []string, topic string, bindings []Binding, timeout time.Duration) (quality.RefSets, error) {
	refs := make(quality.RefSets, len(bindings))
	for _, b := range bindings {
		refs[b.Set] = make(map[string]bool)
	}
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n := 0
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return nil, fmt.Errorf("read kafka: %w", err)
		}
		if !strings.HasSuffix(string(m.Key), "#certified") {
			continue
		}
		var d sink.Dataset
		if err := json.Unmarshal(m.Value, &d); err != nil {
			return nil, fmt.Errorf("unmarshal dataset message: %w", err)
		}
		collect(refs, bindings, &d)
		n++
	}
	log.Printf("refset: loaded %d set(s) from %d kafka dataset message(s)", len(refs), n)
	return refs, nil
}

func collect(refs quality.RefSets, bindings []Binding, d *sink.Dataset) {
	for _, b := range bindings {
		if b.Table != "" && b.Table != d.Table {
			continue
		}
		values, ok := d.Columns[b.Column]
		if !ok {
			continue
		}
		for _, v := range values {
			if v == nil {
				continue
			}
			refs[b.Set][identity.Normalize(v, false)] = true
		}
	}
}
