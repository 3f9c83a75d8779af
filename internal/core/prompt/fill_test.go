package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlweb-orchestrator/internal/common/errors"
)

func TestFill_SubstitutesDottedPlaceholders(t *testing.T) {
	out, err := Fill("t", "Find {site.itemType} for {request.query} on {site.name}", map[string]string{
		"site.itemType": "Recipe",
		"request.query": "vegetarian lasagna",
		"site.name":     "seriouseats",
	})

	require.NoError(t, err)
	assert.Equal(t, "Find Recipe for vegetarian lasagna on seriouseats", out)
}

func TestFill_MissingVariable(t *testing.T) {
	_, err := Fill("RankingPrompt", "{request.query} {item.description}", map[string]string{
		"request.query": "q",
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrMissingVariable)
	assert.Contains(t, err.Error(), "item.description")
}

func TestFill_LeavesJSONBracesAlone(t *testing.T) {
	tmpl := `Reply like {"score": 10} for {request.query}`
	out, err := Fill("t", tmpl, map[string]string{"request.query": "x"})

	require.NoError(t, err)
	assert.Equal(t, `Reply like {"score": 10} for x`, out)
}

func TestPlaceholders(t *testing.T) {
	names := Placeholders("{a} {b.c} {a} {not a var}")
	assert.Equal(t, []string{"a", "b.c"}, names)
}

func TestJoinList(t *testing.T) {
	assert.Equal(t, "none", JoinList(nil))
	assert.Equal(t, "vegetarian; no nuts", JoinList([]string{"vegetarian", "no nuts"}))
}
