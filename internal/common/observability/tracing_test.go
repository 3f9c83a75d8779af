package observability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTracing_DisabledWithoutEndpoint(t *testing.T) {
	tr, err := NewTracing("nlweb", "")
	require.NoError(t, err)
	assert.False(t, tr.Enabled())
	assert.NoError(t, tr.Shutdown(context.Background()))
}

func TestNewTracing_WithEndpoint(t *testing.T) {
	tr, err := NewTracing("nlweb", "http://127.0.0.1:14268/api/traces")
	require.NoError(t, err)
	assert.True(t, tr.Enabled())
	assert.NoError(t, tr.Shutdown(context.Background()))
}
