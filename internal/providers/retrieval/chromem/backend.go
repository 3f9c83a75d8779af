// Package chromem is an embedded vector retrieval backend. It needs no
// external service, which makes it the default for local runs and tests.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"

	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/models"
)

const (
	metaURL    = "url"
	metaName   = "name"
	metaSite   = "site"
	metaSchema = "schema"
)

// EmbeddingFunc turns text into a vector; the llm client's Embed fits.
type EmbeddingFunc func(ctx context.Context, text string) ([]float32, error)

type Config struct {
	Name        string
	Collection  string
	PersistPath string // empty keeps the collection in memory
}

type Backend struct {
	name       string
	db         *chromem.DB
	collection *chromem.Collection
	logger     logger.Logger
}

func New(cfg Config, embed EmbeddingFunc, log logger.Logger) (*Backend, error) {
	if cfg.Name == "" {
		cfg.Name = "chromem"
	}
	if cfg.Collection == "" {
		cfg.Collection = "nlweb"
	}

	var (
		db  *chromem.DB
		err error
	)
	if cfg.PersistPath != "" {
		db, err = chromem.NewPersistentDB(filepath.Join(cfg.PersistPath, "chromem"), false)
		if err != nil {
			return nil, fmt.Errorf("open chromem db: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	coll, err := db.GetOrCreateCollection(cfg.Collection, nil, chromem.EmbeddingFunc(embed))
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", cfg.Collection, err)
	}
	return &Backend{
		name:       cfg.Name,
		db:         db,
		collection: coll,
		logger:     logger.ForComponent(log, "chromem").With(map[string]interface{}{"backend": cfg.Name}),
	}, nil
}

func (b *Backend) Name() string { return b.name }

func (b *Backend) Count() int { return b.collection.Count() }

// Search runs one similarity query per requested site, or one unfiltered
// query when sites is nil.
func (b *Backend) Search(ctx context.Context, query string, sites []string, topK int) ([]models.CandidateItem, error) {
	if len(sites) == 0 {
		return b.query(ctx, query, topK, nil)
	}
	var out []models.CandidateItem
	for _, site := range sites {
		items, err := b.query(ctx, query, topK, map[string]string{metaSite: strings.ToLower(site)})
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	if len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (b *Backend) query(ctx context.Context, query string, topK int, where map[string]string) ([]models.CandidateItem, error) {
	// chromem rejects nResults above the collection size
	n := topK
	if count := b.collection.Count(); n > count {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}
	results, err := b.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}
	items := make([]models.CandidateItem, 0, len(results))
	for _, r := range results {
		items = append(items, b.toItem(r.ID, r.Metadata))
	}
	return items, nil
}

func (b *Backend) LookupURL(ctx context.Context, url string) (*models.CandidateItem, error) {
	doc, err := b.collection.GetByID(ctx, url)
	if err != nil {
		return nil, nil
	}
	item := b.toItem(doc.ID, doc.Metadata)
	return &item, nil
}

// Upsert embeds and stores items keyed by identity; an existing id is replaced.
func (b *Backend) Upsert(ctx context.Context, items []models.CandidateItem) (int, error) {
	docs := make([]chromem.Document, 0, len(items))
	for _, it := range items {
		schema, err := json.Marshal(it.Schema)
		if err != nil {
			return 0, fmt.Errorf("encode schema for %s: %w", it.Identity(), err)
		}
		docs = append(docs, chromem.Document{
			ID:      it.Identity(),
			Content: it.Name + "\n" + it.Description(),
			Metadata: map[string]string{
				metaURL:    it.URL,
				metaName:   it.Name,
				metaSite:   strings.ToLower(it.Site),
				metaSchema: string(schema),
			},
		})
	}
	if len(docs) == 0 {
		return 0, nil
	}
	if err := b.collection.AddDocuments(ctx, docs, 4); err != nil {
		return 0, fmt.Errorf("chromem add: %w", err)
	}
	b.logger.Info("items upserted", map[string]interface{}{"count": len(docs)})
	return len(docs), nil
}

// DeleteItems removes the given identities and reports how many existed.
func (b *Backend) DeleteItems(ctx context.Context, identities []string) (int, error) {
	present := make([]string, 0, len(identities))
	for _, id := range identities {
		if _, err := b.collection.GetByID(ctx, id); err == nil {
			present = append(present, id)
		}
	}
	if len(present) == 0 {
		return 0, nil
	}
	if err := b.collection.Delete(ctx, nil, nil, present...); err != nil {
		return 0, fmt.Errorf("chromem delete: %w", err)
	}
	return len(present), nil
}

func (b *Backend) toItem(id string, meta map[string]string) models.CandidateItem {
	item := models.CandidateItem{
		URL:     meta[metaURL],
		Name:    meta[metaName],
		Site:    meta[metaSite],
		Backend: b.name,
	}
	if item.URL == "" && !strings.HasPrefix(id, "sha:") {
		item.URL = id
	}
	if raw := meta[metaSchema]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &item.Schema); err != nil {
			b.logger.Warn("stored schema is not valid json", map[string]interface{}{"id": id})
		}
	}
	return item
}
