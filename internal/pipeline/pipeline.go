package pipeline

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"silvergate/internal/identity"
	"silvergate/internal/ledger"
	"silvergate/internal/metrics"
	"silvergate/internal/model"
	"silvergate/internal/quality"
	"silvergate/internal/reader"
	"silvergate/internal/schema"
	"silvergate/internal/sink"
	"silvergate/internal/state"
	"silvergate/internal/tag"
)

// NowUnix returns current time in epoch seconds. Split for testability.
var NowUnix = func() int64 { return time.Now().UTC().Unix() }

const defaultChunkSize = 1000

// Pipeline is the orchestration facade: tag, resolve, conform, gate, merge,
// sink, ledger. One Run call per (department, source file) invocation.
// Concurrent Runs for different departments share nothing but the identity
// store, which is safe for concurrent use.
type Pipeline struct {
	Schemas    *schema.Config
	Store      state.Store
	Ledger     ledger.Writer
	Latest     ledger.Publisher // optional
	Certified  sink.Sink
	Quarantine sink.Sink
	Metrics    *metrics.Registry // optional
	ChunkSize  int
}

// Run executes one invocation. Per-record defects go to quarantine and never
// fail the run; structural and I/O defects fail it, always with a ledger
// entry written before the error propagates.
func (p *Pipeline) Run(ctx context.Context, r reader.RawReader, dept model.Department, sourceFile string, refs quality.RefSets) (model.RunResult, error) {
	run := model.RunResult{
		RunID:       newRunID(),
		Department:  dept,
		SourceFile:  sourceFile,
		StartedAt:   NowUnix(),
		RuleTallies: make(map[string]int),
	}
	log.Printf("pipeline: run %s started department=%s source=%s", run.RunID, dept, sourceFile)

	// Configuration defects fail before any record is read.
	if err := p.Schemas.Validate(); err != nil {
		return p.fail(run, nil, nil, err)
	}
	ds, err := p.Schemas.For(dept)
	if err != nil {
		return p.fail(run, nil, nil, err)
	}
	run.Table = ds.Table

	tagger := tag.NewTagger(dept, sourceFile)
	resolver := identity.NewResolver(ds)
	conformer := schema.NewConformer(ds)
	gate := quality.NewGate(ds, refs)

	specs := columnSpecs(ds)
	certified := sink.NewDataset(ds.Table, dept, run.RunID, "certified", specs)
	quarantined := sink.NewDataset(ds.Table, dept, run.RunID, "quarantine", specs)

	chunkSize := p.ChunkSize
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}

	for {
		// Cooperative cancellation between chunks: already-certified output
		// stays intact, the run is recorded as failed.
		if err := ctx.Err(); err != nil {
			return p.fail(run, certified, quarantined, fmt.Errorf("cancelled: %w", err))
		}
		raws, exhausted, err := reader.ReadChunk(ctx, r, chunkSize)
		if err != nil {
			return p.fail(run, certified, quarantined, err)
		}
		for _, raw := range raws {
			run.Ingested++
			tagged := tagger.Tag(raw)
			rec := conformer.Conform(tagged)
			rec.IdentityKey = resolver.IdentityKey(tagged)
			rec.ContentDigest = resolver.ContentDigest(rec)

			part := gate.Evaluate([]model.ConformedRecord{rec})
			for i, q := range part.Quarantined {
				v := part.Violations[i]
				run.Quarantined++
				run.RuleTallies[v.Rule]++
				run.Violations = append(run.Violations, v)
				quarantined.AddQuarantined(q, v)
			}
			for _, c := range part.Certified {
				run.Certified++
				dec, st, err := p.Store.Apply(c.IdentityKey, c.ContentDigest, c.RecordUID, NowUnix())
				if err != nil {
					return p.fail(run, certified, quarantined, fmt.Errorf("identity store apply: %w", err))
				}
				switch dec {
				case state.Inserted:
					run.Inserted++
					certified.AddCertified(c, st.Version)
				case state.Versioned:
					run.Versioned++
					certified.AddCertified(c, st.Version)
				case state.Unchanged:
					run.Unchanged++
				}
			}
		}
		if exhausted {
			break
		}
	}
	run.SkippedRules = gate.SkippedRules()

	if err := quality.StructuralFailure(run.Ingested, run.Violations); err != nil {
		return p.fail(run, certified, quarantined, err)
	}
	if err := p.flush(certified, quarantined); err != nil {
		return p.fail(run, nil, nil, err)
	}

	run.Status = model.StatusSuccess
	if run.Quarantined > 0 {
		run.Status = model.StatusSuccessWithQuarantine
	}
	run.FinishedAt = NowUnix()
	if err := p.record(run); err != nil {
		return run, &model.PipelineError{RunID: run.RunID, Err: err}
	}
	log.Printf("pipeline: run %s finished status=%s ingested=%d certified=%d quarantined=%d",
		run.RunID, run.Status, run.Ingested, run.Certified, run.Quarantined)
	return run, nil
}

// fail finalizes a failed run: flush whatever output already exists, write
// the ledger entry describing the cause, then propagate a single pipeline
// error. The caller never has to infer failure from missing output.
func (p *Pipeline) fail(run model.RunResult, certified, quarantined *sink.Dataset, cause error) (model.RunResult, error) {
	run.Status = model.StatusFailed
	run.FailureReason = cause.Error()
	run.FinishedAt = NowUnix()
	if certified != nil || quarantined != nil {
		if err := p.flush(certified, quarantined); err != nil {
			log.Printf("pipeline: run %s flush after failure: %v", run.RunID, err)
		}
	}
	if err := p.record(run); err != nil {
		log.Printf("pipeline: run %s ledger write failed: %v", run.RunID, err)
	}
	return run, &model.PipelineError{RunID: run.RunID, Err: cause}
}

func (p *Pipeline) flush(certified, quarantined *sink.Dataset) error {
	if certified != nil && certified.Len() > 0 {
		if err := p.Certified.Write(certified); err != nil {
			return fmt.Errorf("write certified dataset: %w", err)
		}
	}
	if quarantined != nil && quarantined.Len() > 0 {
		if err := p.Quarantine.Write(quarantined); err != nil {
			return fmt.Errorf("write quarantine dataset: %w", err)
		}
	}
	return nil
}

func (p *Pipeline) record(run model.RunResult) error {
	if err := p.Ledger.Append(run); err != nil {
		return fmt.Errorf("append ledger: %w", err)
	}
	if p.Latest != nil {
		if err := p.Latest.PublishLatest(run); err != nil {
			return fmt.Errorf("publish latest run: %w", err)
		}
	}
	if p.Metrics != nil {
		p.Metrics.Observe(run)
	}
	return nil
}

func columnSpecs(ds *schema.DeptSchema) []sink.ColumnSpec {
	specs := make([]sink.ColumnSpec, len(ds.Columns))
	for i, col := range ds.Columns {
		specs[i] = sink.ColumnSpec{Name: schema.Standardize(col.Name), Type: string(col.Type)}
	}
	return specs
}

func newRunID() string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}
