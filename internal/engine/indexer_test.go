package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgfoundry/graphrag/internal/llm"
)

// flakyEmbedder fails for specific texts, or goes fully unavailable after
// a set number of calls.
type flakyEmbedder struct {
	failTexts map[string]bool
	downAfter int // 0 disables
	calls     int
}

func (f *flakyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if f.downAfter > 0 && f.calls > f.downAfter {
		return nil, llm.ErrUnavailable
	}
	if f.failTexts[text] {
		return nil, errors.New("bad input")
	}
	return []float32{1, 0}, nil
}

func (f *flakyEmbedder) GetModel() string { return "flaky-embed" }

func TestIndexPersistsAllItems(t *testing.T) {
	store := newGraphFixture(t)
	indexer := NewIndexer(&flakyEmbedder{}, store, 0)

	report, err := indexer.Index(context.Background(), []IndexItem{
		{ID: "chunk:a:0", Text: "first"},
		{ID: "chunk:a:1", Text: "second"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk:a:0", "chunk:a:1"}, report.Succeeded)
	assert.Empty(t, report.Failed)

	matches, err := store.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, matches, 2)
}

func TestIndexContinuesPastItemFailures(t *testing.T) {
	store := newGraphFixture(t)
	embedder := &flakyEmbedder{failTexts: map[string]bool{"broken": true}}
	indexer := NewIndexer(embedder, store, 0)

	report, err := indexer.Index(context.Background(), []IndexItem{
		{ID: "chunk:a:0", Text: "fine"},
		{ID: "chunk:a:1", Text: "broken"},
		{ID: "chunk:a:2", Text: "also fine"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk:a:0", "chunk:a:2"}, report.Succeeded)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "chunk:a:1", report.Failed[0].ID)
}

func TestIndexKeepsPartialProgressWhenProviderGoesDown(t *testing.T) {
	store := newGraphFixture(t)
	embedder := &flakyEmbedder{downAfter: 1}
	indexer := NewIndexer(embedder, store, 0)

	report, err := indexer.Index(context.Background(), []IndexItem{
		{ID: "chunk:a:0", Text: "first"},
		{ID: "chunk:a:1", Text: "second"},
		{ID: "chunk:a:2", Text: "third"},
	})
	require.NoError(t, err)

	// The first item stays persisted; the rest are failed without further
	// embedding calls.
	assert.Equal(t, []string{"chunk:a:0"}, report.Succeeded)
	assert.Len(t, report.Failed, 2)
	assert.Equal(t, 2, embedder.calls)

	matches, err := store.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "chunk:a:0", matches[0].ID)
}

func TestIndexHonorsCancellation(t *testing.T) {
	store := newGraphFixture(t)
	indexer := NewIndexer(&flakyEmbedder{}, store, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := indexer.Index(ctx, []IndexItem{{ID: "chunk:a:0", Text: "first"}})
	assert.Error(t, err)
}
