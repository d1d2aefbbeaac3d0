package engine

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgfoundry/graphrag/internal/config"
	"github.com/kgfoundry/graphrag/internal/storage/sqlite"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// fakeGenerator answers extraction prompts with scripted JSON and anything
// else with a fixed answer. Safe for concurrent extraction workers.
type fakeGenerator struct {
	mu           sync.Mutex
	entityJSON   string
	relationJSON string
	answer       string
	prompts      []string
}

func (f *fakeGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()

	switch {
	case strings.Contains(prompt, "Extract named entities"):
		return f.entityJSON, nil
	case strings.Contains(prompt, "Extract relations"):
		return f.relationJSON, nil
	default:
		return f.answer, nil
	}
}

func (f *fakeGenerator) GetModel() string { return "fake-gen" }

func (f *fakeGenerator) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func testConfig() *config.Config {
	return &config.Config{
		Graph: config.GraphConfig{
			EntityTypes:   config.DefaultEntityTypes,
			RelationTypes: config.DefaultRelationTypes,
		},
		Retrieval: config.RetrievalConfig{
			TopK:             5,
			HopLimit:         2,
			FanoutCap:        10,
			OverfetchFactor:  3,
			VectorWeight:     0.7,
			GraphWeight:      0.3,
			MaxContextTokens: 500,
		},
		Build: config.BuildConfig{
			ChunkSize:      400,
			ExtractWorkers: 2,
			QueueSize:      8,
		},
	}
}

func newTestEngine(t *testing.T, store *sqlite.Store, generator *fakeGenerator, embedder *fakeEmbedder) *Engine {
	t.Helper()
	return New(testConfig(), store, store, generator, embedder, nil)
}

func TestSearchValidatesBeforeCollaborators(t *testing.T) {
	store := newGraphFixture(t)
	generator := &fakeGenerator{answer: "ok"}
	embedder := &fakeEmbedder{}
	eng := newTestEngine(t, store, generator, embedder)
	ctx := context.Background()

	_, err := eng.Search(ctx, "", false, 5, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = eng.Search(ctx, "query", false, 0, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = eng.Search(ctx, "query", false, 5, "no-such-template")
	assert.ErrorIs(t, err, ErrTemplate)

	assert.Zero(t, embedder.calls)
	assert.Zero(t, generator.promptCount())
}

func TestSearchReportsMode(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	generator := &fakeGenerator{answer: "Alice is an engineer."}
	eng := newTestEngine(t, store, generator, embedder)
	ctx := context.Background()

	baseline, err := eng.Search(ctx, "who is alice", false, 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.ModeVectorOnly, baseline.Mode)
	assert.Equal(t, "Alice is an engineer.", baseline.Answer)
	assert.NotEmpty(t, baseline.Evidence)
	assert.Greater(t, baseline.Latency.Nanoseconds(), int64(0))

	enhanced, err := eng.Search(ctx, "who is alice", true, 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.ModeGraphEnhanced, enhanced.Mode)
	assert.Contains(t, enhanced.Evidence, "ent:organization:acme")
}

func TestSearchRendersContextIntoPrompt(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	generator := &fakeGenerator{answer: "answer"}
	eng := newTestEngine(t, store, generator, embedder)

	_, err := eng.Search(context.Background(), "who is alice", true, 5, "english")
	require.NoError(t, err)

	require.Equal(t, 1, generator.promptCount())
	prompt := generator.prompts[0]
	assert.Contains(t, prompt, "who is alice")
	assert.Contains(t, prompt, "Alice is a software engineer.")
	assert.Contains(t, prompt, "Alice - WORKS_FOR -> Acme")
}

func TestSearchMapsCancellationToTimeout(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	eng := newTestEngine(t, store, &fakeGenerator{answer: "late"}, embedder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Search(ctx, "who is alice", true, 5, "")
	assert.ErrorIs(t, err, ErrRetrievalTimeout)
}

func TestCompareEmbedsOnce(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	eng := newTestEngine(t, store, &fakeGenerator{answer: "side by side"}, embedder)

	baseline, enhanced, err := eng.Compare(context.Background(), "who is alice", 5, "")
	require.NoError(t, err)
	assert.Equal(t, types.ModeVectorOnly, baseline.Mode)
	assert.Equal(t, types.ModeGraphEnhanced, enhanced.Mode)
	assert.Equal(t, 1, embedder.calls, "comparison embeds the query once and reuses it")
}

// slowFirstGenerator delays only its first completion call.
type slowFirstGenerator struct {
	fakeGenerator
	once sync.Once
}

func (g *slowFirstGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.once.Do(func() { time.Sleep(50 * time.Millisecond) })
	return g.fakeGenerator.Complete(ctx, prompt)
}

func TestCompareLatencyIsPerMode(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	generator := &slowFirstGenerator{fakeGenerator: fakeGenerator{answer: "side by side"}}
	eng := New(testConfig(), store, store, generator, embedder, nil)

	// The baseline answer is generated first and is slow; that time must
	// not leak into the graph-enhanced result's latency.
	baseline, enhanced, err := eng.Compare(context.Background(), "who is alice", 5, "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, baseline.Latency, 50*time.Millisecond)
	assert.Less(t, enhanced.Latency, baseline.Latency)
}

func TestBuildFromTextEndToEnd(t *testing.T) {
	store := newGraphFixture(t)
	generator := &fakeGenerator{
		entityJSON: `{"entities": [
			{"name": "Alice", "type": "Person", "description": "An engineer", "confidence": 0.9},
			{"name": "Acme", "type": "Organization", "description": "A company", "confidence": 0.8}
		]}`,
		relationJSON: `{"relations": [
			{"from": "Alice", "to": "Acme", "type": "RELATED_TO", "confidence": 0.8}
		]}`,
	}
	eng := newTestEngine(t, store, generator, &fakeEmbedder{})
	ctx := context.Background()

	report, err := eng.BuildFromText(ctx, "Alice works at Acme.")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ChunksIngested)
	assert.Equal(t, 2, report.EntitiesExtracted)
	assert.Equal(t, 1, report.RelationsExtracted)
	assert.Zero(t, report.UpsertFailures)
	assert.Zero(t, report.IndexFailures)
	assert.Greater(t, report.Duration.Nanoseconds(), int64(0))

	stats, err := eng.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 2, stats.Entities)
	assert.Equal(t, 1, stats.Relations)

	// Chunk and both entities are vector-indexed.
	matches, err := store.Search(ctx, []float32{0, 0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestBuildFromTextRejectsUnknownLabels(t *testing.T) {
	store := newGraphFixture(t)
	generator := &fakeGenerator{
		entityJSON: `{"entities": [
			{"name": "Alice", "type": "Person", "confidence": 0.9},
			{"name": "Widget", "type": "Gadget", "confidence": 0.9}
		]}`,
		relationJSON: `{"relations": [
			{"from": "Alice", "to": "Alice", "type": "INVENTED_BY", "confidence": 0.9}
		]}`,
	}
	eng := newTestEngine(t, store, generator, &fakeEmbedder{})

	report, err := eng.BuildFromText(context.Background(), "Alice invented the widget.")
	require.NoError(t, err)
	assert.Equal(t, 1, report.EntitiesExtracted)
	assert.Zero(t, report.RelationsExtracted)
	assert.Equal(t, 2, report.SkippedLabels)
}

func TestBuildFromFilesContinuesPastFailures(t *testing.T) {
	store := newGraphFixture(t)
	generator := &fakeGenerator{
		entityJSON:   `{"entities": []}`,
		relationJSON: `{"relations": []}`,
	}
	eng := newTestEngine(t, store, generator, &fakeEmbedder{})

	good := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(good, []byte("Some document text."), 0o600))

	results := eng.BuildFromFiles(context.Background(), []string{good, "/nonexistent/file.txt"})
	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Report.ChunksIngested)
	assert.Error(t, results[1].Err)
}

func TestTemplateRegistrationOnEngine(t *testing.T) {
	store, embedder := newWorkplaceFixture(t)
	generator := &fakeGenerator{answer: "custom"}
	eng := newTestEngine(t, store, generator, embedder)

	require.NoError(t, eng.Templates().Register("terse", "Q:{query_text} C:{context}"))

	result, err := eng.Search(context.Background(), "who is alice", false, 5, "terse")
	require.NoError(t, err)
	assert.Equal(t, "custom", result.Answer)
}

func TestSetup(t *testing.T) {
	store := newGraphFixture(t)
	eng := newTestEngine(t, store, &fakeGenerator{}, &fakeEmbedder{})
	assert.NoError(t, eng.Setup(context.Background()))
}
