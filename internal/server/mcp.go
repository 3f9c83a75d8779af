package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/validation"
	"nlweb-orchestrator/internal/models"
)

const (
	mcpProtocolVersion = "2024-11-05"
	askTool            = "ask_nlweb"

	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type toolCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var askToolDefinition = gin.H{
	"name":        askTool,
	"description": "Ask a natural-language question over the sites indexed by this NLWeb instance",
	"inputSchema": gin.H{
		"type": "object",
		"properties": gin.H{
			"query":         gin.H{"type": "string", "description": "The question to answer"},
			"site":          gin.H{"type": "string", "description": "Site or comma-separated sites to search"},
			"prev":          gin.H{"type": "array", "items": gin.H{"type": "string"}, "description": "Earlier queries in the conversation"},
			"generate_mode": gin.H{"type": "string", "enum": []string{"list", "summarize", "generate"}},
		},
		"required": []string{"query"},
	},
}

// handleMCP answers the JSON-RPC subset MCP clients need to discover and call
// the ask tool. Tool calls always run non-streaming.
func (s *Server) handleMCP(c *gin.Context) {
	var req rpcRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, rpcResponse{JSONRPC: "2.0", ID: json.RawMessage("null"),
			Error: &rpcError{Code: rpcParseError, Message: "Parse error"}})
		return
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		c.JSON(http.StatusOK, s.rpcFail(req.ID, rpcInvalidRequest, "Invalid request"))
		return
	}

	// notifications carry no id and get no body
	if len(req.ID) == 0 {
		c.Status(http.StatusAccepted)
		return
	}

	switch req.Method {
	case "initialize":
		c.JSON(http.StatusOK, s.rpcOK(req.ID, gin.H{
			"protocolVersion": mcpProtocolVersion,
			"capabilities":    gin.H{"tools": gin.H{"listChanged": false}},
			"serverInfo":      gin.H{"name": "nlweb-orchestrator", "version": s.opts.Version},
		}))
	case "ping":
		c.JSON(http.StatusOK, s.rpcOK(req.ID, gin.H{}))
	case "tools/list":
		c.JSON(http.StatusOK, s.rpcOK(req.ID, gin.H{"tools": []gin.H{askToolDefinition}}))
	case "tools/call":
		c.JSON(http.StatusOK, s.callTool(c, req))
	default:
		c.JSON(http.StatusOK, s.rpcFail(req.ID, rpcMethodNotFound, "Method not found: "+req.Method))
	}
}

func (s *Server) callTool(c *gin.Context, req rpcRequest) rpcResponse {
	var params toolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.rpcFail(req.ID, rpcInvalidParams, "Invalid params")
	}
	if params.Name != askTool {
		return s.rpcFail(req.ID, rpcInvalidParams, "Unknown tool: "+params.Name)
	}
	if params.Arguments == nil {
		params.Arguments = map[string]interface{}{}
	}
	params.Arguments["streaming"] = false

	query, res := validation.ToQueryRequest(params.Arguments)
	if !res.Valid {
		return s.rpcFail(req.ID, rpcInvalidParams, res.Error())
	}

	resp, err := s.querier.Run(c.Request.Context(), query, nil)
	if resp == nil {
		stdErr := apperrors.Normalize(err)
		return s.rpcOK(req.ID, gin.H{
			"content": []textContent{{Type: "text", Text: fmt.Sprintf("%s: %s", stdErr.Code, stdErr.Message)}},
			"isError": true,
		})
	}
	return s.rpcOK(req.ID, gin.H{
		"content": []textContent{{Type: "text", Text: renderResponse(resp)}},
		"isError": false,
	})
}

func (s *Server) rpcOK(id json.RawMessage, result interface{}) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func (s *Server) rpcFail(id json.RawMessage, code int, msg string) rpcResponse {
	if len(id) == 0 {
		id = json.RawMessage("null")
	}
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg}}
}

// renderResponse turns a Response into plain text for the tool result.
func renderResponse(resp *models.Response) string {
	var b strings.Builder
	if resp.Answer != "" {
		b.WriteString(resp.Answer)
		b.WriteString("\n\n")
	} else if resp.Summary != "" {
		b.WriteString(resp.Summary)
		b.WriteString("\n\n")
	}
	for _, m := range resp.Messages {
		switch m.MessageType {
		case models.MessageAskUser, models.MessageSiteIsIrrelevant, models.MessageNoResults:
			b.WriteString(m.Message)
			b.WriteString("\n")
		}
	}
	for i, r := range resp.Results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n", i+1, r.Name, r.URL)
		if r.Description != "" {
			fmt.Fprintf(&b, "   %s\n", r.Description)
		}
	}
	if b.Len() == 0 {
		return "No results found."
	}
	return strings.TrimSpace(b.String())
}
