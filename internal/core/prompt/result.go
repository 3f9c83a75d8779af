package prompt

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Result is a schema-validated model response.
type Result map[string]interface{}

// Bool reads a flag the model may return as a JSON boolean or as "True"/"yes".
func (r Result) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1":
			return true
		}
	case float64:
		return v != 0
	}
	return false
}

func (r Result) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return strings.TrimSpace(toString(v))
	}
}

// Int reads an integer the model may return as a number or numeric string.
func (r Result) Int(key string) (int, bool) {
	switch v := r[key].(type) {
	case float64:
		return int(math.Round(v)), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return int(math.Round(f)), true
	}
	return 0, false
}

func (r Result) Strings(key string) []string {
	raw, ok := r[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func toString(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
