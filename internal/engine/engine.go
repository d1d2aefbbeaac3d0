package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/kgfoundry/graphrag/internal/config"
	"github.com/kgfoundry/graphrag/internal/extract"
	"github.com/kgfoundry/graphrag/internal/ingest"
	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/internal/tokenizer"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// Engine is the facade over the retrieval core and the build pipeline. All
// collaborators are injected at construction; the engine holds no hidden
// global state.
type Engine struct {
	cfg       *config.Config
	graph     storage.GraphStore
	generator llm.TextGenerator
	embedder  llm.EmbeddingGenerator
	retriever *Retriever
	assembler *Assembler
	templates *TemplateRegistry
	ingestor  *ingest.Ingestor
	pipeline  *Pipeline
}

// New wires an engine from its collaborators. progress may be nil.
func New(cfg *config.Config, graph storage.GraphStore, vectors storage.VectorIndex, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, progress ProgressFunc) *Engine {
	count := tokenizer.NewCounter()

	retriever := NewRetriever(embedder, vectors, graph, RetrieverOptions{
		FanoutCap:       cfg.Retrieval.FanoutCap,
		OverfetchFactor: cfg.Retrieval.OverfetchFactor,
		VectorWeight:    cfg.Retrieval.VectorWeight,
		GraphWeight:     cfg.Retrieval.GraphWeight,
	})

	entityTypes := types.NewVocabulary(cfg.Graph.EntityTypes)
	relationTypes := types.NewVocabulary(cfg.Graph.RelationTypes)
	extractor := extract.NewExtractor(generator, entityTypes, relationTypes)

	upserter := NewUpserter(graph)
	indexer := NewIndexer(embedder, vectors, cfg.LLM.EmbedRatePerSecond)

	return &Engine{
		cfg:       cfg,
		graph:     graph,
		generator: generator,
		embedder:  embedder,
		retriever: retriever,
		assembler: NewAssembler(count),
		templates: NewTemplateRegistry(),
		ingestor:  ingest.NewIngestor(cfg.Build.ChunkSize, cfg.Build.ChunkOverlap, count),
		pipeline:  NewPipeline(extractor, upserter, indexer, graph, cfg.Build.ExtractWorkers, cfg.Build.QueueSize, progress),
	}
}

// Templates exposes the template registry for user registrations.
func (e *Engine) Templates() *TemplateRegistry {
	return e.templates
}

// Setup performs one-time index creation on the graph store.
func (e *Engine) Setup(ctx context.Context) error {
	for _, kind := range []storage.IndexKind{storage.IndexVector, storage.IndexFulltext} {
		if err := e.graph.CreateIndex(ctx, kind); err != nil {
			return fmt.Errorf("creating %s index: %w", kind, err)
		}
	}
	return nil
}

// Stats returns the current graph size counters.
func (e *Engine) Stats(ctx context.Context) (*storage.GraphStats, error) {
	return e.graph.Stats(ctx)
}

// Search answers a query. useGraph selects between vector-only and
// graph-enhanced retrieval; the result always records which mode actually
// ran. templateName selects a registered answer template (empty means
// "default"); an unknown name is an error before any collaborator call,
// never a silent fallback.
func (e *Engine) Search(ctx context.Context, query string, useGraph bool, topK int, templateName string) (*types.QueryResult, error) {
	start := time.Now()

	if query == "" {
		return nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", ErrInvalidArgument)
	}
	if templateName == "" {
		templateName = "default"
	}
	if !e.templates.Has(templateName) {
		return nil, fmt.Errorf("%w: unknown template %q", ErrTemplate, templateName)
	}

	retrieval, err := e.retriever.Retrieve(ctx, query, topK, useGraph, e.cfg.Retrieval.HopLimit)
	if err != nil {
		return nil, e.wrapQueryErr(ctx, err)
	}

	return e.answer(ctx, start, query, templateName, useGraph, retrieval)
}

// Compare runs the same query in vector-only and graph-enhanced mode for
// side-by-side evaluation. The query is embedded once and reused, so the
// comparison halves embedding cost versus two independent searches.
func (e *Engine) Compare(ctx context.Context, query string, topK int, templateName string) (*types.QueryResult, *types.QueryResult, error) {
	start := time.Now()

	if query == "" {
		return nil, nil, fmt.Errorf("%w: query is required", ErrInvalidArgument)
	}
	if topK <= 0 {
		return nil, nil, fmt.Errorf("%w: topK must be positive", ErrInvalidArgument)
	}
	if templateName == "" {
		templateName = "default"
	}
	if !e.templates.Has(templateName) {
		return nil, nil, fmt.Errorf("%w: unknown template %q", ErrTemplate, templateName)
	}

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, nil, e.wrapQueryErr(ctx, fmt.Errorf("embedding collaborator: %w", err))
	}

	baseline, err := e.retriever.RetrieveEmbedded(ctx, vector, topK, false, e.cfg.Retrieval.HopLimit)
	if err != nil {
		return nil, nil, e.wrapQueryErr(ctx, err)
	}
	enhanced, err := e.retriever.RetrieveEmbedded(ctx, vector, topK, true, e.cfg.Retrieval.HopLimit)
	if err != nil {
		return nil, nil, e.wrapQueryErr(ctx, err)
	}

	// Each result's latency covers the shared embedding and retrieval work
	// plus its own generation, never the other mode's generation time.
	shared := time.Since(start)

	generationStart := time.Now()
	baselineResult, err := e.answer(ctx, generationStart, query, templateName, false, baseline)
	if err != nil {
		return nil, nil, err
	}
	baselineResult.Latency += shared

	generationStart = time.Now()
	enhancedResult, err := e.answer(ctx, generationStart, query, templateName, true, enhanced)
	if err != nil {
		return nil, nil, err
	}
	enhancedResult.Latency += shared
	return baselineResult, enhancedResult, nil
}

// answer assembles the context, renders the template and calls generation.
func (e *Engine) answer(ctx context.Context, start time.Time, query, templateName string, useGraph bool, retrieval *RetrievalResult) (*types.QueryResult, error) {
	assembled, err := e.assembler.Assemble(retrieval.Candidates, retrieval.Facts, e.cfg.Retrieval.MaxContextTokens)
	if err != nil {
		return nil, err
	}

	prompt, err := e.templates.Render(templateName, query, assembled.Text)
	if err != nil {
		return nil, err
	}

	answer, err := e.generator.Complete(ctx, prompt)
	if err != nil {
		return nil, e.wrapQueryErr(ctx, fmt.Errorf("generation collaborator: %w", err))
	}

	mode := types.ModeVectorOnly
	if useGraph {
		mode = types.ModeGraphEnhanced
	}
	return &types.QueryResult{
		Answer:   answer,
		Evidence: assembled.Refs,
		Mode:     mode,
		Latency:  time.Since(start),
	}, nil
}

// wrapQueryErr maps cancellation onto ErrRetrievalTimeout. Query-time
// errors abort the whole query; there is no silent mode degradation.
func (e *Engine) wrapQueryErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return fmt.Errorf("%w: %v", ErrRetrievalTimeout, err)
	}
	return err
}

// BuildFromText chunks raw text and runs it through the build pipeline.
func (e *Engine) BuildFromText(ctx context.Context, text string) (*types.BuildReport, error) {
	start := time.Now()

	chunks, err := e.ingestor.IngestText(text)
	if err != nil {
		return nil, err
	}
	report, err := e.pipeline.Run(ctx, chunks)
	if report != nil {
		report.Duration = time.Since(start)
	}
	return report, err
}

// BuildFromFile builds the knowledge graph from one document file.
func (e *Engine) BuildFromFile(ctx context.Context, path string) (*types.BuildReport, error) {
	start := time.Now()

	chunks, err := e.ingestor.IngestFile(path)
	if err != nil {
		return nil, err
	}
	report, err := e.pipeline.Run(ctx, chunks)
	if report != nil {
		report.Duration = time.Since(start)
	}
	return report, err
}

// BuildFromFiles builds from several files, continuing past per-file
// failures. The batch stops early only on context cancellation.
func (e *Engine) BuildFromFiles(ctx context.Context, paths []string) []types.FileResult {
	results := make([]types.FileResult, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			results = append(results, types.FileResult{File: path, Err: ctx.Err()})
			continue
		}

		report, err := e.BuildFromFile(ctx, path)
		result := types.FileResult{File: path, Err: err}
		if report != nil {
			result.Report = *report
		}
		if err != nil {
			log.Printf("engine: build failed for %s: %v", path, err)
		}
		results = append(results, result)
	}
	return results
}
