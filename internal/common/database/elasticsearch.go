// internal/common/database/elasticsearch.go
package database

import (
	"context"
	"fmt"

	"nlweb-orchestrator/internal/common/config"

	"github.com/elastic/go-elasticsearch/v8"
)

// ElasticsearchClient is the cluster connection behind one retrieval backend.
type ElasticsearchClient struct {
	Client *elasticsearch.Client
}

// NewElasticsearch connects to url when a backend names its own cluster and
// to the shared database.elasticsearch addresses otherwise. Credentials
// always come from the shared section.
func NewElasticsearch(shared config.ElasticsearchConfig, url string) (*ElasticsearchClient, error) {
	addresses := shared.Addresses
	switch {
	case url != "":
		addresses = []string{url}
	case len(addresses) == 0 && shared.URL != "":
		addresses = []string{shared.URL}
	}
	if len(addresses) == 0 {
		return nil, fmt.Errorf("no elasticsearch address configured")
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		Username:  shared.Username,
		Password:  shared.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return &ElasticsearchClient{Client: es}, nil
}

func (c *ElasticsearchClient) Ping(ctx context.Context) error {
	res, err := c.Client.Ping(c.Client.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch ping failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch ping error: %s", res.Status())
	}
	return nil
}
