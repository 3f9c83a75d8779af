package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/pkg/registry"
)

func TestHierarchy_ChainEndsInRoot(t *testing.T) {
	h := Hierarchy(DefaultHierarchy)

	assert.Equal(t, []string{"Recipe", "HowTo", "CreativeWork", "Thing"}, h.Chain("Recipe"))
	assert.Equal(t, []string{"Gadget", "Thing"}, h.Chain("Gadget"))
	assert.Equal(t, []string{"Thing"}, h.Chain(""))
}

func TestRegistry_ResolveMostSpecific(t *testing.T) {
	r := NewRegistry(nil)

	tmpl, err := r.Resolve(PromptMemory, "Recipe")
	require.NoError(t, err)
	assert.Equal(t, "Recipe", tmpl.ResolvedType)
	assert.Contains(t, tmpl.Text, "recipe site")

	tmpl, err = r.Resolve(PromptMemory, "Movie")
	require.NoError(t, err)
	assert.Equal(t, RootType, tmpl.ResolvedType)
}

func TestRegistry_ResolveWalksAncestors(t *testing.T) {
	r := NewRegistry(nil)

	tmpl, err := r.Resolve(PromptRequiredInfo, "Restaurant")
	require.NoError(t, err)
	assert.Equal(t, "LocalBusiness", tmpl.ResolvedType)
}

func TestRegistry_ResolveNotFound(t *testing.T) {
	r := NewRegistry(nil)

	_, err := r.Resolve(PromptRequiredInfo, "Recipe")
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
	assert.False(t, r.Has(PromptRequiredInfo, "Recipe"))

	// cached miss answers the same way
	_, err = r.Resolve(PromptRequiredInfo, "Recipe")
	assert.ErrorIs(t, err, apperrors.ErrTemplateNotFound)
}

func TestRegistry_FileOverridesAndExtendsHierarchy(t *testing.T) {
	file := &registry.PromptRegistry{
		Hierarchy: map[string][]string{"VeganRecipe": {"Recipe", "HowTo", "CreativeWork", "Thing"}},
		Prompts: []registry.Prompt{
			{Name: PromptRanking, ItemType: "Recipe", Template: "score {request.query} {item.description}", Level: "high"},
		},
	}
	r := NewRegistry(file)

	tmpl, err := r.Resolve(PromptRanking, "VeganRecipe")
	require.NoError(t, err)
	assert.Equal(t, "Recipe", tmpl.ResolvedType)
	assert.Equal(t, "score {request.query} {item.description}", tmpl.Text)
	assert.Equal(t, "high", string(tmpl.Level))

	tmpl, err = r.Resolve(PromptMemory, "VeganRecipe")
	require.NoError(t, err)
	assert.Equal(t, "Recipe", tmpl.ResolvedType)
}

func TestDefaultPrompts_PlaceholdersAreKnown(t *testing.T) {
	known := map[string]bool{
		"site.name": true, "site.itemType": true,
		"request.rawQuery": true, "request.query": true, "request.previousQueries": true,
		"request.contextDescription": true, "request.memory": true,
		"item.description": true, "items": true, "feedback": true, "answer": true,
	}
	for _, p := range DefaultPrompts() {
		for _, name := range Placeholders(p.Template) {
			assert.True(t, known[name], "%s uses unknown variable %s", p.Key(), name)
		}
	}
}

func TestDefaultPrompts_ValidRegistry(t *testing.T) {
	reg := &registry.PromptRegistry{Hierarchy: DefaultHierarchy, Prompts: DefaultPrompts()}
	assert.NoError(t, reg.Validate())
}
