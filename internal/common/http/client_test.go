package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_DoJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("api-key"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["q"]})
	}))
	defer srv.Close()

	c := NewClient(time.Second).WithHeader("api-key", "secret")
	var out map[string]string
	err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"q": "pasta"}, &out)

	require.NoError(t, err)
	assert.Equal(t, "pasta", out["echo"])
}

func TestClient_DoJSON_StatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer srv.Close()

	err := NewClient(time.Second).DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "overloaded", se.Body)
	assert.True(t, se.Retryable())
}

func TestClient_WithHeaderDoesNotMutateParent(t *testing.T) {
	base := NewClient(time.Second)
	_ = base.WithHeader("x", "1")
	assert.Empty(t, base.headers)
}
