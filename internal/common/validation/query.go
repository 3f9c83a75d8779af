package validation

import (
	"strings"

	"nlweb-orchestrator/internal/models"
)

var modes = []interface{}{"list", "summarize", "generate"}

// AskSchema describes the body accepted by /ask, the MCP ask_nlweb tool and
// the ask-nlweb job worker. Field names follow the NLWeb wire format.
var AskSchema = MustCompile(map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"query"},
	"properties": map[string]interface{}{
		"query":                  map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 2000},
		"query_id":               map[string]interface{}{"type": "string", "maxLength": 128},
		"site":                   map[string]interface{}{"type": "string", "maxLength": 512},
		"prev":                   map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		"decontextualized_query": map[string]interface{}{"type": "string"},
		"generate_mode":          map[string]interface{}{"type": "string", "enum": modes},
		"mode":                   map[string]interface{}{"type": "string", "enum": modes},
		"streaming":              map[string]interface{}{"type": "boolean"},
		"context_url":            map[string]interface{}{"type": "string"},
		"context_description":    map[string]interface{}{"type": "string"},
	},
})

// ValidateAsk applies AskSchema plus the checks the schema cannot express.
func ValidateAsk(input map[string]interface{}) *ValidationResult {
	res := AskSchema.Validate(input)
	if q, ok := input["query"].(string); ok && strings.TrimSpace(q) == "" && !res.HasErrors("query") {
		res.Errors = append(res.Errors, ValidationError{Field: "query", Message: "must not be blank", Code: "MIN_LENGTH_VIOLATION"})
	}
	if u, ok := input["context_url"].(string); ok && u != "" && !ValidateURL(u) {
		res.Errors = append(res.Errors, ValidationError{Field: "context_url", Message: "must be an http(s) URL", Code: "PATTERN_MISMATCH"})
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// ToQueryRequest validates input and converts it into a QueryRequest. The
// generate_mode field wins over mode; streaming defaults to true.
func ToQueryRequest(input map[string]interface{}) (models.QueryRequest, *ValidationResult) {
	res := ValidateAsk(input)
	if !res.Valid {
		return models.QueryRequest{}, res
	}

	str := func(key string) string {
		v, _ := input[key].(string)
		return v
	}

	req := models.NewQueryRequest(str("query"))
	if id := str("query_id"); id != "" {
		req.QueryID = id
	}
	req.Site = str("site")
	req.DecontextualizedQuery = str("decontextualized_query")
	req.ContextURL = str("context_url")
	req.ContextDescription = str("context_description")
	if prev, ok := input["prev"].([]interface{}); ok {
		for _, p := range prev {
			if s, ok := p.(string); ok && strings.TrimSpace(s) != "" {
				req.PrevQueries = append(req.PrevQueries, s)
			}
		}
	}
	mode := str("generate_mode")
	if mode == "" {
		mode = str("mode")
	}
	req.Mode, _ = models.ParseMode(mode)
	if streaming, ok := input["streaming"].(bool); ok {
		req.Streaming = streaming
	}
	return req, res
}
