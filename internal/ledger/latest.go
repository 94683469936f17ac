package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/segmentio/kafka-go"

	"silvergate/internal/model"
)

// LatestKey is the compacted-topic key for the most recent run per pipeline.
const LatestKey = "silvergate-run-latest"

// Publisher exposes the most recent run result for the external scheduler.
type Publisher interface {
	PublishLatest(r model.RunResult) error
}

// MultiPublisher writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) PublishLatest(r model.RunResult) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(r); err != nil {
			return err
		}
	}
	return nil
}

// Reader retrieves the most recent run result.
type Reader interface {
	ReadLatest() (model.RunResult, error)
}

// FilesystemLatest keeps run.latest.json in the ledger directory.
type FilesystemLatest struct {
	baseDir string
}

func NewFilesystemLatest(baseDir string) *FilesystemLatest {
	return &FilesystemLatest{baseDir: baseDir}
}

func (f *FilesystemLatest) PublishLatest(r model.RunResult) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	file := filepath.Join(f.baseDir, "run.latest.json")
	out, err := os.Create(file)
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&r); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

func (f *FilesystemLatest) ReadLatest() (model.RunResult, error) {
	file := filepath.Join(f.baseDir, "run.latest.json")
	data, err := os.ReadFile(file)
	if err != nil {
		return model.RunResult{}, fmt.Errorf("read latest run: %w", err)
	}
	var r model.RunResult
	if err := json.Unmarshal(data, &r); err != nil {
		return model.RunResult{}, fmt.Errorf("unmarshal latest run: %w", err)
	}
	return r, nil
}

// KafkaLatest publishes the latest run as a compacted Kafka record.
type KafkaLatest struct {
	writer kafkaMessageWriter
	key    []byte
}

// NewKafkaLatest creates a Kafka latest-run publisher.
func NewKafkaLatest(bootstrap string, topic string, key string) *KafkaLatest {
	return &KafkaLatest{writer: &kafka.Writer{
		Addr:         kafka.TCP(splitBrokers(bootstrap)...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}, key: []byte(key)}
}

func (k *KafkaLatest) PublishLatest(r model.RunResult) error {
	b, err := json.Marshal(&r)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: k.key, Value: b})
}

// NewKafkaLatestWith is only for tests to inject a fake writer.
func NewKafkaLatestWith(w kafkaMessageWriter, key string) *KafkaLatest {
	return &KafkaLatest{writer: w, key: []byte(key)}
}

// KafkaLatestReader reads the latest run record from a compacted Kafka topic.
type KafkaLatestReader struct {
	brokers []string
	topic   string
	key     []byte
}

func NewKafkaLatestReader(brokers []string, topic string, key string) *KafkaLatestReader {
	return &KafkaLatestReader{brokers: brokers, topic: topic, key: []byte(key)}
}

func (k *KafkaLatestReader) ReadLatest() (model.RunResult, error) {
	// Read from the beginning and keep the last record seen for the key.
	// Fine for small compacted topics.
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     k.topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var last model.RunResult
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return model.RunResult{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) != string(k.key) {
			continue
		}
		var run model.RunResult
		if err := json.Unmarshal(m.Value, &run); err != nil {
			return model.RunResult{}, fmt.Errorf("unmarshal kafka run: %w", err)
		}
		last = run
	}
	if last.RunID == "" {
		return model.RunResult{}, fmt.Errorf("no run found for key")
	}
	return last, nil
}
