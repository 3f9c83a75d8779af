package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

var (
	ErrSearchFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrWriteFailed  = errors.New("INDEX_WRITE_FAILED")
)

// document is what is stored per item.
type document struct {
	URL     string                 `json:"url"`
	Name    string                 `json:"name"`
	Site    string                 `json:"site"`
	Content string                 `json:"content"`
	Schema  map[string]interface{} `json:"schema"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string   `json:"_id"`
			Source document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		Sites struct {
			Buckets []struct {
				Key string `json:"key"`
			} `json:"buckets"`
		} `json:"sites"`
	} `json:"aggregations"`
}

type Backend struct {
	name   string
	index  string
	client *elasticsearch.Client
	logger logger.Logger
}

func New(name, index string, client *elasticsearch.Client, log logger.Logger) *Backend {
	if name == "" {
		name = "elasticsearch"
	}
	return &Backend{
		name:   name,
		index:  index,
		client: client,
		logger: logger.ForComponent(log, "elasticsearch").With(map[string]interface{}{"backend": name, "index": index}),
	}
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Search(ctx context.Context, query string, sites []string, topK int) ([]models.CandidateItem, error) {
	resp, err := b.search(ctx, searchQuery(query, sites), topK)
	if err != nil {
		return nil, err
	}
	items := make([]models.CandidateItem, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		items = append(items, b.toItem(h.ID, h.Source))
	}
	return items, nil
}

func (b *Backend) LookupURL(ctx context.Context, url string) (*models.CandidateItem, error) {
	resp, err := b.search(ctx, urlQuery(url), 1)
	if err != nil {
		return nil, err
	}
	if len(resp.Hits.Hits) == 0 {
		return nil, nil
	}
	h := resp.Hits.Hits[0]
	item := b.toItem(h.ID, h.Source)
	return &item, nil
}

func (b *Backend) Sites(ctx context.Context) ([]string, error) {
	resp, err := b.search(ctx, sitesAggregation(500), -1)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Aggregations.Sites.Buckets))
	for _, bucket := range resp.Aggregations.Sites.Buckets {
		out = append(out, bucket.Key)
	}
	return out, nil
}

func (b *Backend) search(ctx context.Context, body map[string]interface{}, size int) (*searchResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req := esapi.SearchRequest{
		Index: []string{b.index},
		Body:  bytes.NewReader(raw),
	}
	if size >= 0 {
		req.Size = &size
	}

	res, err := req.Do(ctx, b.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, res.String())
	}

	var out searchResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrSearchFailed, err)
	}
	return &out, nil
}

// EnsureIndex creates the index with its mapping when it does not exist.
func (b *Backend) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{b.index}}.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	raw, _ := json.Marshal(indexMapping)
	res, err := esapi.IndicesCreateRequest{Index: b.index, Body: bytes.NewReader(raw)}.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() && !strings.Contains(res.String(), "resource_already_exists_exception") {
		return fmt.Errorf("%w: %s", ErrWriteFailed, res.String())
	}
	return nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		Status int `json:"status"`
		Error  *struct {
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// Upsert indexes items in one bulk request with the identity as document id.
func (b *Backend) Upsert(ctx context.Context, items []models.CandidateItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, it := range items {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": b.index, "_id": it.Identity()}}
		if err := enc.Encode(meta); err != nil {
			return 0, err
		}
		if err := enc.Encode(document{
			URL:     it.URL,
			Name:    it.Name,
			Site:    strings.ToLower(it.Site),
			Content: it.Description(),
			Schema:  it.Schema,
		}); err != nil {
			return 0, err
		}
	}

	res, err := esapi.BulkRequest{Body: &buf, Refresh: "wait_for"}.Do(ctx, b.client)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: %s", ErrWriteFailed, res.String())
	}

	var out bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrWriteFailed, err)
	}
	written := 0
	for _, entry := range out.Items {
		for _, r := range entry {
			if r.Error == nil && r.Status < 300 {
				written++
			} else if r.Error != nil {
				b.logger.Warn("bulk item rejected", map[string]interface{}{"reason": r.Error.Reason})
			}
		}
	}
	return written, nil
}

// DeleteItems removes documents whose id is one of the identities.
func (b *Backend) DeleteItems(ctx context.Context, identities []string) (int, error) {
	if len(identities) == 0 {
		return 0, nil
	}
	raw, _ := json.Marshal(idsQuery(identities))
	refresh := true
	res, err := esapi.DeleteByQueryRequest{
		Index:   []string{b.index},
		Body:    bytes.NewReader(raw),
		Refresh: &refresh,
	}.Do(ctx, b.client)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("%w: %s", ErrWriteFailed, res.String())
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	body, _ := io.ReadAll(res.Body)
	if err := json.Unmarshal(body, &out); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", ErrWriteFailed, err)
	}
	return out.Deleted, nil
}

func (b *Backend) toItem(id string, d document) models.CandidateItem {
	url := d.URL
	if url == "" && !strings.HasPrefix(id, "sha:") {
		url = id
	}
	return models.CandidateItem{
		URL:     url,
		Name:    d.Name,
		Site:    d.Site,
		Schema:  d.Schema,
		Backend: b.name,
	}
}
