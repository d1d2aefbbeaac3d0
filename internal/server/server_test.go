package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kgfoundry/graphrag/internal/config"
	"github.com/kgfoundry/graphrag/internal/engine"
	"github.com/kgfoundry/graphrag/internal/storage"
	"github.com/kgfoundry/graphrag/pkg/types"
)

// fakeService is a scripted RAGService.
type fakeService struct {
	searchResult *types.QueryResult
	searchErr    error
	lastUseGraph bool
	lastTopK     int
	stats        *storage.GraphStats
	buildReport  *types.BuildReport
}

func (f *fakeService) Search(_ context.Context, _ string, useGraph bool, topK int, _ string) (*types.QueryResult, error) {
	f.lastUseGraph = useGraph
	f.lastTopK = topK
	return f.searchResult, f.searchErr
}

func (f *fakeService) Compare(_ context.Context, _ string, _ int, _ string) (*types.QueryResult, *types.QueryResult, error) {
	if f.searchErr != nil {
		return nil, nil, f.searchErr
	}
	baseline := &types.QueryResult{Mode: types.ModeVectorOnly}
	enhanced := &types.QueryResult{Mode: types.ModeGraphEnhanced}
	return baseline, enhanced, nil
}

func (f *fakeService) BuildFromText(context.Context, string) (*types.BuildReport, error) {
	return f.buildReport, nil
}

func (f *fakeService) BuildFromFiles(_ context.Context, paths []string) []types.FileResult {
	results := make([]types.FileResult, len(paths))
	for i, path := range paths {
		results[i] = types.FileResult{File: path}
	}
	return results
}

func (f *fakeService) Stats(context.Context) (*storage.GraphStats, error) {
	return f.stats, nil
}

func newTestServer(service *fakeService) *httptest.Server {
	cfg := &config.Config{
		Retrieval: config.RetrievalConfig{TopK: 5},
	}
	return httptest.NewServer(New(cfg, service).Handler())
}

func postJSON(t *testing.T, url string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestSearchEndpoint(t *testing.T) {
	service := &fakeService{
		searchResult: &types.QueryResult{
			Answer:   "because",
			Evidence: []string{"chunk:doc:0"},
			Mode:     types.ModeGraphEnhanced,
		},
	}
	ts := newTestServer(service)
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/search", map[string]interface{}{"query": "why?"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result types.QueryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, "because", result.Answer)
	assert.Equal(t, types.ModeGraphEnhanced, result.Mode)

	// Graph mode and config top-k are the defaults.
	assert.True(t, service.lastUseGraph)
	assert.Equal(t, 5, service.lastTopK)
}

func TestSearchEndpointHonorsRequestOverrides(t *testing.T) {
	service := &fakeService{searchResult: &types.QueryResult{Mode: types.ModeVectorOnly}}
	ts := newTestServer(service)
	defer ts.Close()

	useGraph := false
	resp := postJSON(t, ts.URL+"/api/search", searchRequest{Query: "q", UseGraph: &useGraph, TopK: 3})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.False(t, service.lastUseGraph)
	assert.Equal(t, 3, service.lastTopK)
}

func TestSearchEndpointErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"invalid argument", engine.ErrInvalidArgument, http.StatusBadRequest},
		{"unknown template", engine.ErrTemplate, http.StatusBadRequest},
		{"timeout", engine.ErrRetrievalTimeout, http.StatusGatewayTimeout},
		{"store down", storage.ErrUnavailable, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&fakeService{searchErr: tt.err})
			defer ts.Close()

			resp := postJSON(t, ts.URL+"/api/search", map[string]string{"query": "q"})
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestSearchEndpointRejectsGet(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/search")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCompareEndpoint(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/compare", map[string]string{"query": "q"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result map[string]types.QueryResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	assert.Equal(t, types.ModeVectorOnly, result["vector_only"].Mode)
	assert.Equal(t, types.ModeGraphEnhanced, result["graph_enhanced"].Mode)
}

func TestBuildEndpointFromText(t *testing.T) {
	ts := newTestServer(&fakeService{buildReport: &types.BuildReport{ChunksIngested: 3}})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/build", map[string]string{"text": "some document"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report types.BuildReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 3, report.ChunksIngested)
}

func TestBuildEndpointRequiresInput(t *testing.T) {
	ts := newTestServer(&fakeService{})
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/build", map[string]string{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStatsEndpoint(t *testing.T) {
	ts := newTestServer(&fakeService{stats: &storage.GraphStats{Chunks: 7, Entities: 4, Relations: 2}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats storage.GraphStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 7, stats.Chunks)
	assert.Equal(t, 4, stats.Entities)
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(&fakeService{stats: &storage.GraphStats{}})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
}
