package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlweb-orchestrator/internal/common/config"
)

func TestNewPostgres_RequiresHostAndDatabase(t *testing.T) {
	_, err := NewPostgres(config.PostgresConfig{Host: "localhost"})
	assert.ErrorContains(t, err, "required")
}

func TestNewPostgres_AppliesPoolDefaults(t *testing.T) {
	pg, err := NewPostgres(config.PostgresConfig{Host: "localhost", Database: "nlweb", MaxIdle: 50})
	require.NoError(t, err)
	defer pg.Close()

	assert.Equal(t, 4, pg.GetDB().Stats().MaxOpenConnections)
}

func TestRedis_PingAndClose(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	assert.NoError(t, rc.Ping(context.Background()))
	assert.NoError(t, rc.Close())

	_, err = NewRedis(config.RedisConfig{})
	assert.Error(t, err)
}

func TestNewElasticsearch_AddressResolution(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{}, "")
	assert.ErrorContains(t, err, "no elasticsearch address")

	es, err := NewElasticsearch(config.ElasticsearchConfig{URL: "http://es:9200"}, "")
	require.NoError(t, err)
	assert.NotNil(t, es.Client)

	es, err = NewElasticsearch(config.ElasticsearchConfig{Addresses: []string{"http://shared:9200"}}, "http://own:9200")
	require.NoError(t, err)
	assert.NotNil(t, es.Client)
}
