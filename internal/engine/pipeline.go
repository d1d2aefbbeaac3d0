package engine

import (
	"context"
	"log"
	"sync"

	"github.com/kgfoundry/graphrag/internal/extract"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// ProgressEvent reports one build pipeline step, used for progress
// streaming.
type ProgressEvent struct {
	Stage   string `json:"stage"` // "ingest", "extract", "upsert", "index", "done"
	ChunkID string `json:"chunk_id,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// ProgressFunc receives pipeline progress events. It must be safe to call
// from the pipeline's drain goroutine and must not block for long.
type ProgressFunc func(ProgressEvent)

// Pipeline runs the build flow: chunks feed a bounded queue, a pool of
// extraction workers drains it, and a single committer serializes upserts
// and indexing. Bounded queues provide backpressure instead of unbounded
// buffering; the single committer satisfies the writer-serialization
// requirement for conflicting upserts.
type Pipeline struct {
	extractor *extract.Extractor
	upserter  *Upserter
	indexer   *Indexer
	graph     storage.GraphStore
	workers   int
	queueSize int
	progress  ProgressFunc
}

// NewPipeline creates a pipeline with the given worker pool and queue
// bounds. progress may be nil.
func NewPipeline(extractor *extract.Extractor, upserter *Upserter, indexer *Indexer, graph storage.GraphStore, workers, queueSize int, progress ProgressFunc) *Pipeline {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 32
	}
	if progress == nil {
		progress = func(ProgressEvent) {}
	}
	return &Pipeline{
		extractor: extractor,
		upserter:  upserter,
		indexer:   indexer,
		graph:     graph,
		workers:   workers,
		queueSize: queueSize,
		progress:  progress,
	}
}

// extraction pairs a worker's output with the chunk it came from so the
// committer can account for failures.
type extraction struct {
	chunk  *types.Chunk
	result *extract.Result
	err    error
}

// Run pushes the chunks through the pipeline and aggregates a build report.
// Individual chunk failures are counted, not fatal; the returned error is
// non-nil only for cancellation or store failures that prevent the build
// from proceeding at all.
func (p *Pipeline) Run(ctx context.Context, chunks []*types.Chunk) (*types.BuildReport, error) {
	report := &types.BuildReport{}

	// Persist chunks up front so provenance references resolve no matter
	// which extraction finishes first.
	for _, chunk := range chunks {
		if err := p.graph.PutChunk(ctx, chunk); err != nil {
			return report, err
		}
		report.ChunksIngested++
		p.progress(ProgressEvent{Stage: "ingest", ChunkID: chunk.ID})
	}

	chunkCh := make(chan *types.Chunk, p.queueSize)
	resultCh := make(chan extraction, p.queueSize)

	go func() {
		defer close(chunkCh)
		for _, chunk := range chunks {
			select {
			case chunkCh <- chunk:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for chunk := range chunkCh {
				result, err := p.extractor.Extract(ctx, chunk)
				select {
				case resultCh <- extraction{chunk: chunk, result: result, err: err}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var commitErr error
	for ex := range resultCh {
		if ctx.Err() != nil || commitErr != nil {
			continue // drain remaining results so workers can exit
		}
		commitErr = p.commit(ctx, ex, report)
	}

	if err := ctx.Err(); err != nil {
		return report, err
	}
	if commitErr != nil {
		return report, commitErr
	}
	p.progress(ProgressEvent{Stage: "done"})
	return report, nil
}

// commit upserts and indexes one extraction result, folding counters into
// the report.
func (p *Pipeline) commit(ctx context.Context, ex extraction, report *types.BuildReport) error {
	if ex.err != nil {
		log.Printf("engine: extraction failed for %s: %v", ex.chunk.ID, ex.err)
		report.ExtractFailures++
		p.progress(ProgressEvent{Stage: "extract", ChunkID: ex.chunk.ID, Detail: ex.err.Error()})
		// A failed extraction still gets its chunk indexed for vector search.
		return p.index(ctx, ex.chunk, nil, report)
	}

	report.EntitiesExtracted += len(ex.result.Entities)
	report.RelationsExtracted += len(ex.result.Relations)
	report.SkippedLabels += len(ex.result.Skipped)
	p.progress(ProgressEvent{Stage: "extract", ChunkID: ex.chunk.ID})

	upsertReport, err := p.upserter.Upsert(ctx, ex.result.Entities, ex.result.Relations)
	if err != nil {
		return err
	}
	report.UpsertFailures += len(upsertReport.Conflicts)
	p.progress(ProgressEvent{Stage: "upsert", ChunkID: ex.chunk.ID})

	return p.index(ctx, ex.chunk, ex.result.Entities, report)
}

// index embeds the chunk text and any extracted entity descriptions.
func (p *Pipeline) index(ctx context.Context, chunk *types.Chunk, entities []*types.Entity, report *types.BuildReport) error {
	items := []IndexItem{{ID: chunk.ID, Text: chunk.Text}}
	for _, entity := range entities {
		items = append(items, IndexItem{ID: entity.ID, Text: formatEntity(entity)})
	}

	indexReport, err := p.indexer.Index(ctx, items)
	if err != nil {
		return err
	}
	report.IndexFailures += len(indexReport.Failed)
	p.progress(ProgressEvent{Stage: "index", ChunkID: chunk.ID})
	return nil
}
