package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRegistry() *PromptRegistry {
	return &PromptRegistry{
		Version:   "1",
		Hierarchy: map[string][]string{"Recipe": {"CreativeWork", "Thing"}},
		Prompts: []Prompt{
			{
				Name:     "RankingPrompt",
				ItemType: "Thing",
				Template: "Rank {item.description} for {request.query}",
				OutputSchema: map[string]interface{}{
					"type":     "object",
					"required": []interface{}{"score"},
				},
				Level: "low",
			},
		},
	}
}

func TestSaveAndLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.json")
	reg := sampleRegistry()
	reg.Upsert(Prompt{Name: "MemoryPrompt", ItemType: "Recipe", Template: "Remember? {request.query}"})

	require.NoError(t, SaveRegistry(path, reg))
	loaded, err := LoadRegistry(path)
	require.NoError(t, err)

	assert.Len(t, loaded.Prompts, 2)
	assert.Equal(t, "MemoryPrompt", loaded.Prompts[0].Name)
	assert.NotEmpty(t, loaded.LastUpdated)

	p, ok := loaded.Find("RankingPrompt", "Thing")
	assert.True(t, ok)
	assert.Equal(t, "low", p.Level)
}

func TestUpsert_ReplacesExisting(t *testing.T) {
	reg := sampleRegistry()
	reg.Upsert(Prompt{Name: "RankingPrompt", ItemType: "Thing", Template: "new"})
	assert.Len(t, reg.Prompts, 1)
	assert.Equal(t, "new", reg.Prompts[0].Template)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, sampleRegistry().Validate())

	tests := []struct {
		name   string
		mutate func(r *PromptRegistry)
		want   string
	}{
		{"empty template", func(r *PromptRegistry) { r.Prompts[0].Template = "" }, "template is empty"},
		{"bad level", func(r *PromptRegistry) { r.Prompts[0].Level = "medium" }, "unknown level"},
		{"duplicate", func(r *PromptRegistry) { r.Prompts = append(r.Prompts, r.Prompts[0]) }, "duplicate"},
		{"bad schema", func(r *PromptRegistry) { r.Prompts[0].OutputSchema = map[string]interface{}{"type": 12} }, "invalid output schema"},
		{"self ancestor", func(r *PromptRegistry) { r.Hierarchy["Thing"] = []string{"Thing"} }, "lists itself"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := sampleRegistry()
			tt.mutate(reg)
			err := reg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
