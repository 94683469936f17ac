package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"

	"silvergate/internal/ledger"
	"silvergate/internal/metrics"
	"silvergate/internal/model"
	"silvergate/internal/pipeline"
	"silvergate/internal/quality"
	"silvergate/internal/reader"
	"silvergate/internal/refset"
	"silvergate/internal/schema"
	"silvergate/internal/sink"
	"silvergate/internal/state"
)

// Config holds CLI flags for the silver conformance pipeline.
type Config struct {
	BronzeDir     string
	SilverDir     string
	QuarantineDir string
	LedgerDir     string
	SchemaConfig  string
	StateBackend  string // memory|pebble|badger
	StateDir      string
	RunTimeoutSec int
	MetricsAddr   string
	Department    string // restrict to one department; empty = all routed files

	// Kafka sinks/sources
	KafkaBootstrap  string
	LedgerSink      string // file|kafka|both
	LatestSink      string // file|kafka|both
	OutputSink      string // file|kafka|both
	RefsetSource    string // file|kafka
	RefsetBindings  string
	TopicLedger     string
	TopicLatest     string
	TopicCertified  string
	TopicQuarantine string

	// Kafka input for bronze records
	InputSource string // files|kafka
	GroupID     string
	TopicBronze string
	KafkaBatch  int
}

func main() {
	cfg := readFlags()
	if err := run(cfg); err != nil {
		log.Fatalf("silvergate failed: %v", err)
	}
}

func readFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.BronzeDir, "bronze-dir", "./data_zone/bronze_files", "bronze landing directory")
	flag.StringVar(&cfg.SilverDir, "silver-dir", "./data_zone/silver_files", "certified output directory")
	flag.StringVar(&cfg.QuarantineDir, "quarantine-dir", "./data_zone/quarantine_files", "quarantine output directory")
	flag.StringVar(&cfg.LedgerDir, "ledger-dir", "./ledger", "run ledger directory")
	flag.StringVar(&cfg.SchemaConfig, "schema-config", "./schema.json", "canonical schema configuration")
	flag.StringVar(&cfg.StateBackend, "state-backend", "pebble", "identity store backend: memory|pebble|badger")
	flag.StringVar(&cfg.StateDir, "state-dir", "./data/identity", "identity store directory")
	flag.IntVar(&cfg.RunTimeoutSec, "run-timeout", 300, "per-run timeout seconds")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", ":8080", "metrics/health listen address")
	flag.StringVar(&cfg.Department, "department", "", "process only this department")
	flag.StringVar(&cfg.KafkaBootstrap, "kafka-bootstrap", "", "kafka bootstrap servers, e.g. localhost:9092")
	flag.StringVar(&cfg.LedgerSink, "ledger-sink", "file", "run ledger sink: file|kafka|both")
	flag.StringVar(&cfg.LatestSink, "latest-sink", "file", "latest-run sink: file|kafka|both")
	flag.StringVar(&cfg.OutputSink, "output-sink", "file", "dataset sink: file|kafka|both")
	flag.StringVar(&cfg.RefsetSource, "refset-source", "file", "reference set source: file|kafka")
	flag.StringVar(&cfg.RefsetBindings, "refset-bindings", "", "reference set bindings file (JSON)")
	flag.StringVar(&cfg.TopicLedger, "topic-ledger", "silver.runs", "kafka topic for the run ledger")
	flag.StringVar(&cfg.TopicLatest, "topic-latest", "silver.runs.latest", "kafka topic for the latest run (compacted)")
	flag.StringVar(&cfg.TopicCertified, "topic-certified", "silver.certified", "kafka topic for certified datasets")
	flag.StringVar(&cfg.TopicQuarantine, "topic-quarantine", "silver.quarantine", "kafka topic for quarantined datasets")
	flag.StringVar(&cfg.InputSource, "input-source", "files", "bronze input: files|kafka")
	flag.StringVar(&cfg.GroupID, "group-id", "silvergate", "consumer group id")
	flag.StringVar(&cfg.TopicBronze, "topic-bronze", "bronze.records", "kafka topic for bronze raw records")
	flag.IntVar(&cfg.KafkaBatch, "kafka-batch", 100, "max records per kafka-sourced run")
	flag.Parse()
	return cfg
}

func run(cfg Config) error {
	log.Printf("starting silvergate bronze=%s silver=%s backend=%s", cfg.BronzeDir, cfg.SilverDir, cfg.StateBackend)

	schemas, err := schema.Load(cfg.SchemaConfig)
	if err != nil {
		return err
	}
	// Fail fast on configuration defects before touching any source file.
	if err := schemas.Validate(); err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	led, err := buildLedger(cfg)
	if err != nil {
		return err
	}
	latest, err := buildLatest(cfg)
	if err != nil {
		return err
	}
	certified, quarantine := buildSinks(cfg)

	mreg := metrics.NewRegistry()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", mreg.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		})
		_ = http.ListenAndServe(cfg.MetricsAddr, mux)
	}()

	refs, err := loadRefSets(cfg)
	if err != nil {
		return err
	}

	p := &pipeline.Pipeline{
		Schemas:    schemas,
		Store:      st,
		Ledger:     led,
		Latest:     latest,
		Certified:  certified,
		Quarantine: quarantine,
		Metrics:    mreg,
	}

	if cfg.InputSource == "kafka" && cfg.KafkaBootstrap != "" {
		return runFromKafka(cfg, p, refs)
	}
	return runFromFiles(cfg, p, refs)
}

func runFromFiles(cfg Config, p *pipeline.Pipeline, refs quality.RefSets) error {
	entries, err := os.ReadDir(cfg.BronzeDir)
	if err != nil {
		return fmt.Errorf("read bronze dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "_") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	failures := 0
	processed := 0
	for _, name := range names {
		dept, ok := routeDepartment(name)
		if !ok {
			log.Printf("router: no department for bronze file %s, skipping", name)
			continue
		}
		if cfg.Department != "" && cfg.Department != string(dept) {
			continue
		}
		r, err := openReader(filepath.Join(cfg.BronzeDir, name))
		if err != nil {
			log.Printf("router: open %s: %v", name, err)
			failures++
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RunTimeoutSec)*time.Second)
		res, err := p.Run(ctx, r, dept, name, refs)
		cancel()
		_ = r.Close()
		processed++
		if err != nil {
			log.Printf("run %s failed: %v", res.RunID, err)
			failures++
		}
	}
	log.Printf("silvergate done: %d file(s) processed, %d failure(s)", processed, failures)
	if failures > 0 {
		return fmt.Errorf("%d run(s) failed", failures)
	}
	return nil
}

// runFromKafka consumes bronze records from a topic and runs one pipeline
// invocation per bounded batch. read_committed keeps half-produced upstream
// batches invisible.
func runFromKafka(cfg Config, p *pipeline.Pipeline, refs quality.RefSets) error {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  cfg.KafkaBootstrap,
		"group.id":           cfg.GroupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	defer c.Close()
	if err := c.SubscribeTopics([]string{cfg.TopicBronze}, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	dept := model.Department(cfg.Department)
	if dept == "" {
		return fmt.Errorf("kafka input requires -department")
	}

	var raws []model.RawRecord
	for len(raws) < cfg.KafkaBatch {
		msg, err := c.ReadMessage(5 * time.Second)
		if err != nil {
			break // no message within timeout; run what we have
		}
		var values map[string]any
		if err := json.Unmarshal(msg.Value, &values); err != nil {
			log.Printf("kafka: bad bronze record at %v: %v", msg.TopicPartition, err)
			continue
		}
		columns := make([]string, 0, len(values))
		for name := range values {
			columns = append(columns, name)
		}
		sort.Strings(columns)
		raws = append(raws, model.RawRecord{Columns: columns, Values: values, Format: model.FormatJSON})
	}
	if len(raws) == 0 {
		log.Printf("kafka: no bronze records available")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.RunTimeoutSec)*time.Second)
	defer cancel()
	source := fmt.Sprintf("kafka:%s", cfg.TopicBronze)
	res, err := p.Run(ctx, reader.NewSliceReader(raws), dept, source, refs)
	if err != nil {
		return err
	}
	if _, err := c.Commit(); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	log.Printf("run %s status=%s", res.RunID, res.Status)
	return nil
}

// routeDepartment maps a bronze filename to its source department by prefix.
func routeDepartment(filename string) (model.Department, bool) {
	name := strings.ToLower(filename)
	switch {
	case strings.HasPrefix(name, "business_"):
		return model.DeptBusiness, true
	case strings.HasPrefix(name, "customer_management_"), strings.HasPrefix(name, "customer_"):
		return model.DeptCustomerManagement, true
	case strings.HasPrefix(name, "enterprise_"):
		return model.DeptEnterprise, true
	case strings.HasPrefix(name, "operations_"):
		return model.DeptOperations, true
	case strings.HasPrefix(name, "marketing_"):
		return model.DeptMarketing, true
	}
	return "", false
}

func openReader(path string) (reader.RawReader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return reader.OpenCSV(path)
	case ".jsonl", ".ndjson":
		return reader.OpenJSONL(path)
	}
	return nil, fmt.Errorf("unsupported bronze format: %s", filepath.Base(path))
}

func openStore(cfg Config) (state.Store, func(), error) {
	switch cfg.StateBackend {
	case "badger":
		bs, err := state.NewBadgerStore(cfg.StateDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init badger: %w", err)
		}
		return bs, func() { _ = bs.Close() }, nil
	case "pebble":
		ps, err := state.NewPebbleStore(cfg.StateDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init pebble: %w", err)
		}
		return ps, func() { _ = ps.Close() }, nil
	default:
		return state.NewInMemoryStore(), func() {}, nil
	}
}

func buildLedger(cfg Config) (ledger.Writer, error) {
	var w ledger.Writer
	if cfg.LedgerSink == "file" || cfg.LedgerSink == "both" || cfg.LedgerSink == "" {
		fw, err := ledger.NewFileWriter(cfg.LedgerDir, "runs.jsonl")
		if err != nil {
			return nil, fmt.Errorf("init ledger file: %w", err)
		}
		rw, err := ledger.NewReportWriter(cfg.LedgerDir, "runs.report.txt")
		if err != nil {
			return nil, fmt.Errorf("init ledger report: %w", err)
		}
		qw, err := ledger.NewQualityReportWriter(cfg.LedgerDir, "_quality_report.csv")
		if err != nil {
			return nil, fmt.Errorf("init quality report: %w", err)
		}
		w = ledger.NewMultiWriter(fw, rw, qw)
	}
	if (cfg.LedgerSink == "kafka" || cfg.LedgerSink == "both") && cfg.KafkaBootstrap != "" {
		kw := ledger.NewKafkaWriter(cfg.KafkaBootstrap, cfg.TopicLedger)
		if w == nil {
			w = kw
		} else {
			w = ledger.NewMultiWriter(w, kw)
		}
	}
	if w == nil {
		return nil, fmt.Errorf("no ledger sink configured")
	}
	return w, nil
}

func buildLatest(cfg Config) (ledger.Publisher, error) {
	fsLatest := ledger.NewFilesystemLatest(cfg.LedgerDir)
	switch cfg.LatestSink {
	case "kafka":
		if cfg.KafkaBootstrap == "" {
			return fsLatest, nil
		}
		return ledger.NewKafkaLatest(cfg.KafkaBootstrap, cfg.TopicLatest, ledger.LatestKey), nil
	case "both":
		if cfg.KafkaBootstrap == "" {
			return fsLatest, nil
		}
		return ledger.MultiPublisher(fsLatest, ledger.NewKafkaLatest(cfg.KafkaBootstrap, cfg.TopicLatest, ledger.LatestKey)), nil
	default:
		return fsLatest, nil
	}
}

func buildSinks(cfg Config) (sink.Sink, sink.Sink) {
	certFile := sink.NewFileSink(cfg.SilverDir)
	quarFile := sink.NewFileSink(cfg.QuarantineDir)
	if (cfg.OutputSink == "kafka" || cfg.OutputSink == "both") && cfg.KafkaBootstrap != "" {
		certKafka := sink.NewKafkaSink(cfg.KafkaBootstrap, cfg.TopicCertified)
		quarKafka := sink.NewKafkaSink(cfg.KafkaBootstrap, cfg.TopicQuarantine)
		if cfg.OutputSink == "kafka" {
			return certKafka, quarKafka
		}
		return sink.NewMultiSink(certFile, certKafka), sink.NewMultiSink(quarFile, quarKafka)
	}
	return certFile, quarFile
}

func loadRefSets(cfg Config) (quality.RefSets, error) {
	if cfg.RefsetBindings == "" {
		return nil, nil // gate logs referential-integrity as skipped
	}
	data, err := os.ReadFile(cfg.RefsetBindings)
	if err != nil {
		return nil, fmt.Errorf("read refset bindings: %w", err)
	}
	var bindings []refset.Binding
	if err := json.Unmarshal(data, &bindings); err != nil {
		return nil, fmt.Errorf("unmarshal refset bindings: %w", err)
	}
	if cfg.RefsetSource == "kafka" && cfg.KafkaBootstrap != "" {
		return refset.LoadKafka([]string{cfg.KafkaBootstrap}, cfg.TopicCertified, bindings, 20*time.Second)
	}
	return refset.LoadDir(cfg.SilverDir, bindings)
}
