// pkg/registry/schema.go
package registry

// PromptRegistry is the on-disk catalogue of prompt templates.
type PromptRegistry struct {
	Version     string              `json:"version"`
	LastUpdated string              `json:"lastUpdated"`
	Hierarchy   map[string][]string `json:"hierarchy,omitempty"`
	Prompts     []Prompt            `json:"prompts"`
}

// Prompt is one template registered for a schema.org type. Ancestor types
// inherit it unless they register their own.
type Prompt struct {
	Name         string                 `json:"name"`
	ItemType     string                 `json:"itemType"`
	Description  string                 `json:"description,omitempty"`
	Template     string                 `json:"template"`
	OutputSchema map[string]interface{} `json:"outputSchema"`
	Level        string                 `json:"level,omitempty"`
}

// Key identifies a prompt within a registry.
func (p Prompt) Key() string {
	return p.Name + "@" + p.ItemType
}
