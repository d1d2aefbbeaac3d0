// cmd/graphrag is the entry point for the GraphRAG engine. It wires the
// chosen storage backend and LLM provider through the engine and exposes
// the result as either a one-shot CLI command or a long-running server.
//
// Subcommands:
//
//	build <file>...   ingest documents and build the knowledge graph
//	query <text>      answer a question over the graph
//	compare <text>    answer with and without graph expansion, side by side
//	serve             run the HTTP API with a WebSocket progress stream
//	watch <dir>       watch a directory and build every document dropped in
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kgfoundry/graphrag/internal/config"
	"github.com/kgfoundry/graphrag/internal/engine"
	"github.com/kgfoundry/graphrag/internal/llm"
	"github.com/kgfoundry/graphrag/internal/notify"
	"github.com/kgfoundry/graphrag/internal/server"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/internal/storage/postgres"
	"github.com/kgfoundry/graphrag/internal/storage/sqlite"
)

// timeResolution rounds durations for human-facing output.
const timeResolution = time.Millisecond

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("graphrag: ")
	log.SetFlags(log.LstdFlags)

	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	useGraph := flag.Bool("graph", true, "use graph expansion for query")
	topK := flag.Int("topk", 0, "override the configured result count")
	template := flag.String("template", "", "prompt template name")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}
	defer store.Close()

	generator, err := llm.NewTextGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("creating text generator: %v", err)
	}
	embedder, err := llm.NewEmbeddingGenerator(cfg.LLM)
	if err != nil {
		log.Fatalf("creating embedding generator: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "build":
		err = runBuild(ctx, cfg, store, generator, embedder, args[1:])
	case "query":
		err = runQuery(ctx, cfg, store, generator, embedder, args[1:], *useGraph, *topK, *template)
	case "compare":
		err = runCompare(ctx, cfg, store, generator, embedder, args[1:], *topK, *template)
	case "serve":
		err = runServe(ctx, cfg, store, generator, embedder)
	case "watch":
		err = runWatch(ctx, cfg, store, generator, embedder, args[1:])
	default:
		log.Printf("unknown command %q", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", args[0], err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: graphrag [flags] <command> [args]

Commands:
  build <file>...   ingest documents and build the knowledge graph
  query <text>      answer a question over the graph
  compare <text>    answer with and without graph expansion
  serve             run the HTTP API server
  watch <dir>       build every document dropped into a directory

Flags:
`)
	flag.PrintDefaults()
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadConfigFromFile(path)
	}
	return config.LoadConfig()
}

// graphVectorStore is the combined storage surface the engine needs. Both
// backends satisfy it with one handle.
type graphVectorStore interface {
	storage.GraphStore
	storage.VectorIndex
	Close() error
}

func openStore(cfg *config.Config) (graphVectorStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		return postgres.Open(cfg.Storage.PostgresDSN)
	default:
		return sqlite.Open(cfg.Storage.DataPath)
	}
}

func newEngine(cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, progress engine.ProgressFunc) *engine.Engine {
	return engine.New(cfg, store, store, generator, embedder, progress)
}

func runBuild(ctx context.Context, cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, paths []string) error {
	if len(paths) == 0 {
		return fmt.Errorf("build requires at least one file")
	}

	eng := newEngine(cfg, store, generator, embedder, logProgress)
	if err := eng.Setup(ctx); err != nil {
		return err
	}

	results := eng.BuildFromFiles(ctx, paths)
	failed := 0
	for _, result := range results {
		if result.Err != nil {
			failed++
			fmt.Printf("%s: FAILED: %v\n", result.File, result.Err)
			continue
		}
		r := result.Report
		fmt.Printf("%s: %d chunks, %d entities, %d relations (%d labels skipped, %d failures) in %s\n",
			result.File, r.ChunksIngested, r.EntitiesExtracted, r.RelationsExtracted,
			r.SkippedLabels, r.ExtractFailures+r.UpsertFailures+r.IndexFailures, r.Duration.Round(timeResolution))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(results))
	}
	return nil
}

func runQuery(ctx context.Context, cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, args []string, useGraph bool, topK int, template string) error {
	if len(args) == 0 {
		return fmt.Errorf("query requires question text")
	}
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	eng := newEngine(cfg, store, generator, embedder, nil)
	result, err := eng.Search(ctx, args[0], useGraph, topK, template)
	if err != nil {
		return err
	}

	fmt.Println(result.Answer)
	fmt.Printf("\n[%s, %d sources, %s]\n", result.Mode, len(result.Evidence), result.Latency.Round(timeResolution))
	return nil
}

func runCompare(ctx context.Context, cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, args []string, topK int, template string) error {
	if len(args) == 0 {
		return fmt.Errorf("compare requires question text")
	}
	if topK <= 0 {
		topK = cfg.Retrieval.TopK
	}

	eng := newEngine(cfg, store, generator, embedder, nil)
	baseline, enhanced, err := eng.Compare(ctx, args[0], topK, template)
	if err != nil {
		return err
	}

	fmt.Printf("=== %s (%d sources, %s) ===\n%s\n\n", baseline.Mode, len(baseline.Evidence), baseline.Latency.Round(timeResolution), baseline.Answer)
	fmt.Printf("=== %s (%d sources, %s) ===\n%s\n", enhanced.Mode, len(enhanced.Evidence), enhanced.Latency.Round(timeResolution), enhanced.Answer)
	return nil
}

func runServe(ctx context.Context, cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator) error {
	// The engine streams build progress into the hub so WebSocket clients
	// can follow long-running builds.
	var srv *server.Server
	eng := newEngine(cfg, store, generator, embedder, func(event engine.ProgressEvent) {
		srv.Hub().Broadcast(event)
	})
	srv = server.New(cfg, eng)

	if err := eng.Setup(ctx); err != nil {
		return err
	}

	addr, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	log.Printf("serving on http://%s", addr)

	<-ctx.Done()
	log.Printf("shutting down")
	return nil
}

func runWatch(ctx context.Context, cfg *config.Config, store graphVectorStore, generator llm.TextGenerator, embedder llm.EmbeddingGenerator, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("watch requires a directory")
	}

	eng := newEngine(cfg, store, generator, embedder, logProgress)
	if err := eng.Setup(ctx); err != nil {
		return err
	}

	watcher := notify.NewDocumentWatcher(args[0], func(path string) {
		report, err := eng.BuildFromFile(ctx, path)
		if err != nil {
			log.Printf("building %s: %v", path, err)
			return
		}
		log.Printf("built %s: %d chunks, %d entities, %d relations",
			path, report.ChunksIngested, report.EntitiesExtracted, report.RelationsExtracted)
	})
	if err := watcher.Start(); err != nil {
		return err
	}
	defer watcher.Stop()

	log.Printf("watching %s", args[0])
	<-ctx.Done()
	return nil
}

func logProgress(event engine.ProgressEvent) {
	if event.ChunkID != "" {
		log.Printf("%s %s %s", event.Stage, event.ChunkID, event.Detail)
		return
	}
	log.Printf("%s %s", event.Stage, event.Detail)
}
