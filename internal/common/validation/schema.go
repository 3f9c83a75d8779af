package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a compiled JSON schema for request payloads.
type Schema struct {
	compiled *gojsonschema.Schema
}

// MustCompile compiles a schema document and panics if it is invalid, so
// it is meant for package-level schemas.
func MustCompile(doc map[string]interface{}) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc))
	if err != nil {
		panic(fmt.Sprintf("compile schema: %v", err))
	}
	return &Schema{compiled: s}
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

var errorCodes = map[string]string{
	"required":     "REQUIRED_FIELD_MISSING",
	"invalid_type": "INVALID_TYPE",
	"string_gte":   "MIN_LENGTH_VIOLATION",
	"string_lte":   "MAX_LENGTH_VIOLATION",
	"enum":         "INVALID_ENUM_VALUE",
	"pattern":      "PATTERN_MISMATCH",
	"format":       "PATTERN_MISMATCH",
	"number_gte":   "MINIMUM_VIOLATION",
	"number_lte":   "MAXIMUM_VIOLATION",
}

// Validate checks a decoded JSON object and reports every violation.
func (s *Schema) Validate(input map[string]interface{}) *ValidationResult {
	res, err := s.compiled.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return &ValidationResult{Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "INVALID_DOCUMENT"}}}
	}

	out := &ValidationResult{Valid: res.Valid()}
	for _, re := range res.Errors() {
		field := re.Field()
		if re.Type() == "required" {
			if p, ok := re.Details()["property"].(string); ok {
				field = p
			}
		}
		code, ok := errorCodes[re.Type()]
		if !ok {
			code = strings.ToUpper(re.Type())
		}
		out.Errors = append(out.Errors, ValidationError{Field: field, Message: re.Description(), Code: code})
	}
	return out
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// Error joins the messages, for use as an InvalidRequest detail.
func (vr *ValidationResult) Error() string {
	return strings.Join(vr.GetErrorMessages(), "; ")
}

// HasErrors reports whether field, or an element of it, failed validation.
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

var urlPattern = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)

// ValidateURL accepts absolute http and https URLs.
func ValidateURL(url string) bool {
	return urlPattern.MatchString(url)
}
