// Package qdrant is a vector retrieval backend speaking Qdrant's REST API.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	commonhttp "nlweb-orchestrator/internal/common/http"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

// Embedder produces query and document vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Config struct {
	Name       string
	URL        string
	APIKey     string
	Collection string
}

type Backend struct {
	name       string
	base       string
	collection string
	http       *commonhttp.Client
	embedder   Embedder
	logger     logger.Logger
}

func New(cfg Config, client *commonhttp.Client, embedder Embedder, log logger.Logger) *Backend {
	if cfg.Name == "" {
		cfg.Name = "qdrant"
	}
	if cfg.APIKey != "" {
		client = client.WithHeader("api-key", cfg.APIKey)
	}
	return &Backend{
		name:       cfg.Name,
		base:       strings.TrimRight(cfg.URL, "/") + "/collections/" + cfg.Collection,
		collection: cfg.Collection,
		http:       client,
		embedder:   embedder,
		logger:     logger.ForComponent(log, "qdrant").With(map[string]interface{}{"backend": cfg.Name}),
	}
}

func (b *Backend) Name() string { return b.name }

type payload struct {
	URL    string                 `json:"url"`
	Name   string                 `json:"name"`
	Site   string                 `json:"site"`
	ItemID string                 `json:"item_id"`
	Schema map[string]interface{} `json:"schema"`
}

type point struct {
	ID      string    `json:"id"`
	Payload payload   `json:"payload"`
	Score   float64   `json:"score,omitempty"`
	Vector  []float32 `json:"vector,omitempty"`
}

type condition struct {
	Key   string                 `json:"key"`
	Match map[string]interface{} `json:"match"`
}

type filter struct {
	Must []condition `json:"must"`
}

func siteFilter(sites []string) *filter {
	if len(sites) == 0 {
		return nil
	}
	lowered := make([]string, len(sites))
	for i, s := range sites {
		lowered[i] = strings.ToLower(s)
	}
	return &filter{Must: []condition{{Key: "site", Match: map[string]interface{}{"any": lowered}}}}
}

// pointID maps an item identity onto the UUID ids Qdrant accepts.
func pointID(identity string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(identity)).String()
}

func (b *Backend) Search(ctx context.Context, query string, sites []string, topK int) ([]models.CandidateItem, error) {
	vec, err := b.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	req := map[string]interface{}{
		"vector":       vec,
		"limit":        topK,
		"with_payload": true,
	}
	if f := siteFilter(sites); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []point `json:"result"`
	}
	if err := b.http.DoJSON(ctx, http.MethodPost, b.base+"/points/search", req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}
	return b.toItems(resp.Result), nil
}

func (b *Backend) LookupURL(ctx context.Context, url string) (*models.CandidateItem, error) {
	req := map[string]interface{}{
		"filter":       filter{Must: []condition{{Key: "url", Match: map[string]interface{}{"value": url}}}},
		"limit":        1,
		"with_payload": true,
	}
	var resp struct {
		Result struct {
			Points []point `json:"points"`
		} `json:"result"`
	}
	if err := b.http.DoJSON(ctx, http.MethodPost, b.base+"/points/scroll", req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant scroll: %w", err)
	}
	items := b.toItems(resp.Result.Points)
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// Sites uses the facet endpoint to list distinct site values.
func (b *Backend) Sites(ctx context.Context) ([]string, error) {
	var resp struct {
		Result struct {
			Hits []struct {
				Value string `json:"value"`
			} `json:"hits"`
		} `json:"result"`
	}
	req := map[string]interface{}{"key": "site", "limit": 500}
	if err := b.http.DoJSON(ctx, http.MethodPost, b.base+"/facet", req, &resp); err != nil {
		return nil, fmt.Errorf("qdrant facet: %w", err)
	}
	out := make([]string, 0, len(resp.Result.Hits))
	for _, h := range resp.Result.Hits {
		out = append(out, h.Value)
	}
	return out, nil
}

// EnsureCollection creates the collection for vectors of the given size.
func (b *Backend) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	err := b.http.DoJSON(ctx, http.MethodGet, b.base, nil, nil)
	if err == nil {
		return nil
	}
	var se *commonhttp.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant collection info: %w", err)
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{"size": dimension, "distance": "Cosine"},
	}
	if err := b.http.DoJSON(ctx, http.MethodPut, b.base, body, nil); err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	b.logger.Info("collection created", map[string]interface{}{"collection": b.collection, "dimension": dimension})
	return nil
}

func (b *Backend) Upsert(ctx context.Context, items []models.CandidateItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	texts := make([]string, len(items))
	for i, it := range items {
		texts[i] = it.Name + "\n" + it.Description()
	}
	vecs, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed items: %w", err)
	}

	points := make([]point, len(items))
	for i, it := range items {
		points[i] = point{
			ID:     pointID(it.Identity()),
			Vector: vecs[i],
			Payload: payload{
				URL:    it.URL,
				Name:   it.Name,
				Site:   strings.ToLower(it.Site),
				ItemID: it.Identity(),
				Schema: it.Schema,
			},
		}
	}
	if err := b.http.DoJSON(ctx, http.MethodPut, b.base+"/points?wait=true", map[string]interface{}{"points": points}, nil); err != nil {
		return 0, fmt.Errorf("qdrant upsert: %w", err)
	}
	return len(points), nil
}

// DeleteItems deletes by identity and reports how many points existed.
func (b *Backend) DeleteItems(ctx context.Context, identities []string) (int, error) {
	if len(identities) == 0 {
		return 0, nil
	}
	ids := make([]string, len(identities))
	for i, id := range identities {
		ids[i] = pointID(id)
	}

	var existing struct {
		Result []struct {
			ID string `json:"id"`
		} `json:"result"`
	}
	if err := b.http.DoJSON(ctx, http.MethodPost, b.base+"/points", map[string]interface{}{"ids": ids}, &existing); err != nil {
		return 0, fmt.Errorf("qdrant retrieve: %w", err)
	}
	if len(existing.Result) == 0 {
		return 0, nil
	}
	if err := b.http.DoJSON(ctx, http.MethodPost, b.base+"/points/delete?wait=true", map[string]interface{}{"points": ids}, nil); err != nil {
		return 0, fmt.Errorf("qdrant delete: %w", err)
	}
	return len(existing.Result), nil
}

func (b *Backend) toItems(points []point) []models.CandidateItem {
	items := make([]models.CandidateItem, 0, len(points))
	for _, p := range points {
		items = append(items, models.CandidateItem{
			URL:     p.Payload.URL,
			Name:    p.Payload.Name,
			Site:    p.Payload.Site,
			Schema:  p.Payload.Schema,
			Backend: b.name,
		})
	}
	return items
}
