package prompt

import (
	"regexp"
	"strings"

	apperrors "nlweb-orchestrator/internal/common/errors"
)

// Placeholders look like {request.query}; braces around anything else, such as
// inline JSON examples, are left untouched.
var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*(?:\.[A-Za-z_][A-Za-z0-9_]*)*)\}`)

// Fill substitutes every placeholder in the template. A placeholder with no
// matching variable fails with MissingVariable.
func Fill(templateName, template string, vars map[string]string) (string, error) {
	var missing string
	out := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := m[1 : len(m)-1]
		v, ok := vars[key]
		if !ok {
			if missing == "" {
				missing = key
			}
			return m
		}
		return v
	})
	if missing != "" {
		return "", apperrors.NewMissingVariableError(templateName, missing)
	}
	return out, nil
}

// Placeholders lists the distinct variable names a template references, in order.
func Placeholders(template string) []string {
	var names []string
	seen := map[string]bool{}
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// JoinList renders a list variable the way templates expect it.
func JoinList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, "; ")
}
