package server

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/models"
)

type rpcReply struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func rpc(t *testing.T, s *Server, body string) rpcReply {
	t.Helper()
	rec := do(s, http.MethodPost, "/mcp", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var out rpcReply
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMCP_Initialize(t *testing.T) {
	s := newTestServer(t, &fakeQuerier{}, Options{Version: "0.1.0"})

	out := rpc(t, s, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	require.Nil(t, out.Error)
	assert.Equal(t, "1", string(out.ID))
	var result struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &result))
	assert.Equal(t, mcpProtocolVersion, result.ProtocolVersion)
	assert.Equal(t, "0.1.0", result.ServerInfo.Version)
}

func TestMCP_ToolsList(t *testing.T) {
	s := newTestServer(t, &fakeQuerier{}, Options{})

	out := rpc(t, s, `{"jsonrpc":"2.0","id":"a","method":"tools/list"}`)

	require.Nil(t, out.Error)
	assert.Contains(t, string(out.Result), `"name":"ask_nlweb"`)
	assert.Contains(t, string(out.Result), `"required":["query"]`)
}

func TestMCP_ToolsCallRunsNonStreaming(t *testing.T) {
	q := &fakeQuerier{resp: &models.Response{
		Results: []models.ResultItem{
			{Name: "Spicy Chili", URL: "https://seriouseats.com/chili", Description: "Hot and smoky."},
			{Name: "Mapo Tofu", URL: "https://seriouseats.com/mapo"},
		},
	}}
	s := newTestServer(t, q, Options{})

	out := rpc(t, s, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"ask_nlweb","arguments":{"query":"spicy dishes","site":"seriouseats"}}}`)

	require.Nil(t, out.Error)
	var result struct {
		Content []textContent `json:"content"`
		IsError bool          `json:"isError"`
	}
	require.NoError(t, json.Unmarshal(out.Result, &result))
	require.Len(t, result.Content, 1)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "1. Spicy Chili")
	assert.Contains(t, result.Content[0].Text, "Hot and smoky.")
	assert.Contains(t, result.Content[0].Text, "2. Mapo Tofu")

	req := q.lastRequest(t)
	assert.False(t, req.Streaming)
	assert.Equal(t, "seriouseats", req.Site)
}

func TestMCP_ToolsCallErrors(t *testing.T) {
	q := &fakeQuerier{err: apperrors.NewBackendUnavailableError("es", nil)}
	s := newTestServer(t, q, Options{})

	out := rpc(t, s, `{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"ask_nlweb","arguments":{"query":"x"}}}`)
	require.Nil(t, out.Error)
	assert.Contains(t, string(out.Result), `"isError":true`)
	assert.Contains(t, string(out.Result), "BACKEND_UNAVAILABLE")

	out = rpc(t, s, `{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"other"}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcInvalidParams, out.Error.Code)

	out = rpc(t, s, `{"jsonrpc":"2.0","id":4,"method":"tools/call","params":{"name":"ask_nlweb","arguments":{}}}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcInvalidParams, out.Error.Code)
}

func TestMCP_ProtocolErrors(t *testing.T) {
	s := newTestServer(t, &fakeQuerier{}, Options{})

	out := rpc(t, s, `{"jsonrpc":"2.0","id":5,"method":"resources/list"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcMethodNotFound, out.Error.Code)

	out = rpc(t, s, `{not json`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcParseError, out.Error.Code)
	assert.Equal(t, "null", string(out.ID))

	out = rpc(t, s, `{"jsonrpc":"1.0","id":6,"method":"ping"}`)
	require.NotNil(t, out.Error)
	assert.Equal(t, rpcInvalidRequest, out.Error.Code)
}

func TestMCP_NotificationHasNoBody(t *testing.T) {
	s := newTestServer(t, &fakeQuerier{}, Options{})

	rec := do(s, http.MethodPost, "/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestRenderResponse(t *testing.T) {
	assert.Equal(t, "No results found.", renderResponse(&models.Response{}))
	assert.Equal(t, "Try the vegetable soup.", renderResponse(&models.Response{Answer: "Try the vegetable soup."}))
	assert.Equal(t, "Which city are you looking in?", renderResponse(&models.Response{
		Messages: []models.ProtocolEvent{{MessageType: models.MessageAskUser, Message: "Which city are you looking in?"}},
	}))
}
