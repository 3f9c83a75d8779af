package prompt

import (
	lru "github.com/hashicorp/golang-lru/v2"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/models"
	"nlweb-orchestrator/pkg/registry"
)

// Template is a prompt resolved for a concrete item type.
type Template struct {
	Name         string
	ResolvedType string
	Text         string
	OutputSchema map[string]interface{}
	Level        models.ModelLevel
}

// Invocation builds the PromptInvocation for this template.
func (t Template) Invocation(vars map[string]string) models.PromptInvocation {
	return models.PromptInvocation{
		TemplateName: t.Name,
		Template:     t.Text,
		Variables:    vars,
		OutputSchema: t.OutputSchema,
		Level:        t.Level,
	}
}

// Registry resolves a prompt name against the most specific registered type in
// an item type's ancestor chain. It is immutable after construction; the lookup
// cache is safe for concurrent use.
type Registry struct {
	prompts   map[string]registry.Prompt
	hierarchy Hierarchy
	cache     *lru.Cache[string, resolved]
}

type resolved struct {
	tmpl Template
	ok   bool
}

const resolveCacheSize = 512

// NewRegistry layers the file registry (may be nil) over the built-in prompts.
func NewRegistry(file *registry.PromptRegistry) *Registry {
	r := &Registry{
		prompts:   make(map[string]registry.Prompt),
		hierarchy: Hierarchy(DefaultHierarchy),
	}
	for _, p := range DefaultPrompts() {
		r.prompts[p.Key()] = p
	}
	if file != nil {
		for _, p := range file.Prompts {
			r.prompts[p.Key()] = p
		}
		r.hierarchy = r.hierarchy.Merge(file.Hierarchy)
	}
	r.cache, _ = lru.New[string, resolved](resolveCacheSize)
	return r
}

// Resolve walks itemType's ancestor chain and returns the first template
// registered under name. TemplateNotFound means no type in the chain has one.
func (r *Registry) Resolve(name, itemType string) (Template, error) {
	key := name + "@" + itemType
	if hit, ok := r.cache.Get(key); ok {
		if !hit.ok {
			return Template{}, apperrors.NewTemplateNotFoundError(name, itemType)
		}
		return hit.tmpl, nil
	}

	for _, t := range r.hierarchy.Chain(itemType) {
		p, ok := r.prompts[name+"@"+t]
		if !ok {
			continue
		}
		tmpl := Template{
			Name:         name,
			ResolvedType: t,
			Text:         p.Template,
			OutputSchema: p.OutputSchema,
			Level:        levelOf(p.Level),
		}
		r.cache.Add(key, resolved{tmpl: tmpl, ok: true})
		return tmpl, nil
	}

	r.cache.Add(key, resolved{})
	return Template{}, apperrors.NewTemplateNotFoundError(name, itemType)
}

// Has reports whether any type in the chain registers the prompt.
func (r *Registry) Has(name, itemType string) bool {
	_, err := r.Resolve(name, itemType)
	return err == nil
}

func (r *Registry) Chain(itemType string) []string {
	return r.hierarchy.Chain(itemType)
}

func levelOf(s string) models.ModelLevel {
	if s == string(models.LevelHigh) {
		return models.LevelHigh
	}
	return models.LevelLow
}
