// Package memory holds the collaborators that receive facts the analyzer
// asks to remember.
package memory

import (
	"context"
	"errors"
	"fmt"

	"nlweb-orchestrator/internal/models"
)

// Hook persists one fact.
type Hook interface {
	Persist(ctx context.Context, fact models.MemoryFact) error
}

type named struct {
	name string
	hook Hook
}

// Multi sends every fact to each registered hook and joins their failures.
type Multi struct {
	hooks []named
}

func NewMulti() *Multi {
	return &Multi{}
}

func (m *Multi) Add(name string, h Hook) *Multi {
	if h != nil {
		m.hooks = append(m.hooks, named{name: name, hook: h})
	}
	return m
}

func (m *Multi) Len() int { return len(m.hooks) }

func (m *Multi) Persist(ctx context.Context, fact models.MemoryFact) error {
	var errs []error
	for _, h := range m.hooks {
		if err := h.hook.Persist(ctx, fact); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
