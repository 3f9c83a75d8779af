package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

func LoadRegistry(path string) (*PromptRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg PromptRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse prompt registry %s: %w", path, err)
	}
	return &reg, nil
}

// SaveRegistry writes the registry with prompts sorted by name and type.
func SaveRegistry(path string, reg *PromptRegistry) error {
	sort.SliceStable(reg.Prompts, func(i, j int) bool {
		return reg.Prompts[i].Key() < reg.Prompts[j].Key()
	})
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Find returns the prompt registered for exactly this name and type.
func (r *PromptRegistry) Find(name, itemType string) (Prompt, bool) {
	for _, p := range r.Prompts {
		if p.Name == name && p.ItemType == itemType {
			return p, true
		}
	}
	return Prompt{}, false
}

// Upsert replaces the prompt with the same key or appends it.
func (r *PromptRegistry) Upsert(p Prompt) {
	for i := range r.Prompts {
		if r.Prompts[i].Key() == p.Key() {
			r.Prompts[i] = p
			return
		}
	}
	r.Prompts = append(r.Prompts, p)
}

// Validate checks every entry has a name, type and template, a compilable
// output schema, and a known level.
func (r *PromptRegistry) Validate() error {
	seen := make(map[string]bool, len(r.Prompts))
	for i, p := range r.Prompts {
		if p.Name == "" || p.ItemType == "" {
			return fmt.Errorf("prompt %d: name and itemType are required", i)
		}
		if p.Template == "" {
			return fmt.Errorf("prompt %s: template is empty", p.Key())
		}
		if seen[p.Key()] {
			return fmt.Errorf("prompt %s: duplicate entry", p.Key())
		}
		seen[p.Key()] = true

		switch p.Level {
		case "", "low", "high":
		default:
			return fmt.Errorf("prompt %s: unknown level %q", p.Key(), p.Level)
		}
		if len(p.OutputSchema) > 0 {
			if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(p.OutputSchema)); err != nil {
				return fmt.Errorf("prompt %s: invalid output schema: %w", p.Key(), err)
			}
		}
	}
	for t, ancestors := range r.Hierarchy {
		for _, a := range ancestors {
			if a == t {
				return fmt.Errorf("hierarchy: type %s lists itself as an ancestor", t)
			}
		}
	}
	return nil
}
