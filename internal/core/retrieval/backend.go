package retrieval

import (
	"context"
	"time"

	"nlweb-orchestrator/internal/models"
)

// Backend is a retrieval collaborator. sites is nil when the query targets every site.
type Backend interface {
	Name() string
	Search(ctx context.Context, query string, sites []string, topK int) ([]models.CandidateItem, error)
}

// URLLookup is implemented by backends that can fetch a single item by URL.
// A miss returns (nil, nil).
type URLLookup interface {
	LookupURL(ctx context.Context, url string) (*models.CandidateItem, error)
}

// Writer is implemented by backends that accept operator writes.
type Writer interface {
	Upsert(ctx context.Context, items []models.CandidateItem) (int, error)
	DeleteItems(ctx context.Context, identities []string) (int, error)
}

// SiteLister is implemented by backends that can enumerate the sites they hold.
type SiteLister interface {
	Sites(ctx context.Context) ([]string, error)
}

// Registration binds a backend to the sites it serves. An empty Sites list
// means the backend serves every site.
type Registration struct {
	Backend Backend
	Sites   []string
	TopK    int
	Timeout time.Duration
}

func (r Registration) serves(selector []string) bool {
	if len(r.Sites) == 0 || len(selector) == 0 {
		return true
	}
	for _, want := range selector {
		for _, have := range r.Sites {
			if equalSite(want, have) {
				return true
			}
		}
	}
	return false
}
