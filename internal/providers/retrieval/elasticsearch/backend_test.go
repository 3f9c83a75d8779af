package elasticsearch

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

type fakeCluster struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(r recordedRequest) (int, string)
}

func (f *fakeCluster) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery, Body: string(body)}
	f.mu.Lock()
	f.requests = append(f.requests, rec)
	f.mu.Unlock()

	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	status, payload := f.respond(rec)
	w.WriteHeader(status)
	_, _ = w.Write([]byte(payload))
}

func (f *fakeCluster) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func setup(t *testing.T, respond func(r recordedRequest) (int, string)) (*Backend, *fakeCluster) {
	t.Helper()
	fc := &fakeCluster{respond: respond}
	srv := httptest.NewServer(http.HandlerFunc(fc.handler))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{srv.URL}})
	require.NoError(t, err)
	return New("es", "items", client, logger.NewTestLogger(t)), fc
}

const twoHits = `{"hits":{"hits":[
 {"_id":"https://seriouseats.example/chili","_source":{"url":"https://seriouseats.example/chili","name":"Veggie Chili","site":"seriouseats","schema":{"@type":"Recipe","name":"Veggie Chili"}}},
 {"_id":"sha:abc","_source":{"name":"Untitled","site":"seriouseats","schema":{"@type":"Recipe"}}}
]}}`

func TestBackend_Search_BuildsSiteFilteredQuery(t *testing.T) {
	b, fc := setup(t, func(recordedRequest) (int, string) { return 200, twoHits })

	items, err := b.Search(context.Background(), "bean chili", []string{"SeriousEats"}, 25)

	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Veggie Chili", items[0].Name)
	assert.Equal(t, "es", items[0].Backend)
	assert.Equal(t, "Recipe", items[0].Schema["@type"])
	assert.Empty(t, items[1].URL, "content-hash ids are not urls")

	req := fc.last()
	assert.Equal(t, "/items/_search", req.Path)
	assert.Contains(t, req.Query, "size=25")
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
	filter := body["query"].(map[string]interface{})["bool"].(map[string]interface{})["filter"].([]interface{})
	terms := filter[0].(map[string]interface{})["terms"].(map[string]interface{})
	assert.Equal(t, []interface{}{"seriouseats"}, terms["site"])
}

func TestBackend_Search_NoSitesMeansNoFilter(t *testing.T) {
	b, fc := setup(t, func(recordedRequest) (int, string) { return 200, `{"hits":{"hits":[]}}` })

	items, err := b.Search(context.Background(), "anything", nil, 10)

	require.NoError(t, err)
	assert.Empty(t, items)
	assert.NotContains(t, fc.last().Body, "filter")
}

func TestBackend_Search_ClusterError(t *testing.T) {
	b, _ := setup(t, func(recordedRequest) (int, string) {
		return 500, `{"error":{"type":"search_phase_execution_exception"}}`
	})

	_, err := b.Search(context.Background(), "x", nil, 10)
	assert.ErrorIs(t, err, ErrSearchFailed)
}

func TestBackend_LookupURL(t *testing.T) {
	b, fc := setup(t, func(r recordedRequest) (int, string) {
		if strings.Contains(r.Body, "missing") {
			return 200, `{"hits":{"hits":[]}}`
		}
		return 200, twoHits
	})

	item, err := b.LookupURL(context.Background(), "https://seriouseats.example/chili")
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, "Veggie Chili", item.Name)
	assert.Contains(t, fc.last().Body, `"term"`)

	item, err = b.LookupURL(context.Background(), "https://missing.example/")
	require.NoError(t, err)
	assert.Nil(t, item)
}

func TestBackend_Sites(t *testing.T) {
	b, fc := setup(t, func(recordedRequest) (int, string) {
		return 200, `{"hits":{"hits":[]},"aggregations":{"sites":{"buckets":[{"key":"imdb","doc_count":4},{"key":"seriouseats","doc_count":2}]}}}`
	})

	sites, err := b.Sites(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"imdb", "seriouseats"}, sites)
	assert.NotContains(t, fc.last().Query, "size=")
}

func TestBackend_Upsert_SendsBulkNDJSON(t *testing.T) {
	b, fc := setup(t, func(recordedRequest) (int, string) {
		return 200, `{"errors":true,"items":[{"index":{"status":201}},{"index":{"status":400,"error":{"reason":"mapper_parsing_exception"}}}]}`
	})

	n, err := b.Upsert(context.Background(), []models.CandidateItem{
		{URL: "https://a.example/1", Name: "One", Site: "A", Schema: map[string]interface{}{"name": "One"}},
		{URL: "https://a.example/2", Name: "Two", Site: "A"},
	})

	require.NoError(t, err)
	assert.Equal(t, 1, n)

	req := fc.last()
	assert.Equal(t, "/_bulk", req.Path)
	assert.Contains(t, req.Query, "refresh=wait_for")
	var lines []string
	sc := bufio.NewScanner(strings.NewReader(req.Body))
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"_id":"https://a.example/1"`)
	assert.Contains(t, lines[1], `"site":"a"`)
}

func TestBackend_DeleteItems(t *testing.T) {
	b, fc := setup(t, func(recordedRequest) (int, string) { return 200, `{"deleted":2}` })

	n, err := b.DeleteItems(context.Background(), []string{"https://a.example/1", "sha:123"})

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	req := fc.last()
	assert.Equal(t, "/items/_delete_by_query", req.Path)
	assert.Contains(t, req.Body, `"ids"`)
	assert.Contains(t, req.Body, "sha:123")
}

func TestBackend_EnsureIndex_CreatesWhenMissing(t *testing.T) {
	b, fc := setup(t, func(r recordedRequest) (int, string) {
		if r.Method == http.MethodHead {
			return 404, ``
		}
		return 200, `{"acknowledged":true}`
	})

	require.NoError(t, b.EnsureIndex(context.Background()))
	req := fc.last()
	assert.Equal(t, http.MethodPut, req.Method)
	assert.Equal(t, "/items", req.Path)
	assert.Contains(t, req.Body, `"keyword"`)
}
