package stream

import (
	"context"
	"fmt"
	"sync"
)

type registration struct {
	cancel     context.CancelFunc
	dispatcher *Dispatcher
}

// Hub tracks in-flight queries so they can be cancelled by id.
type Hub struct {
	mu      sync.Mutex
	queries map[string]registration
}

func NewHub() *Hub {
	return &Hub{queries: make(map[string]registration)}
}

// Register fails when the id is already in flight.
func (h *Hub) Register(queryID string, cancel context.CancelFunc, d *Dispatcher) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.queries[queryID]; exists {
		return fmt.Errorf("query %s is already running", queryID)
	}
	h.queries[queryID] = registration{cancel: cancel, dispatcher: d}
	return nil
}

// Cancel closes the query's stream first, so nothing is emitted while its
// tasks wind down, then cancels its context.
func (h *Hub) Cancel(queryID string) bool {
	h.mu.Lock()
	reg, ok := h.queries[queryID]
	h.mu.Unlock()
	if !ok {
		return false
	}
	if reg.dispatcher != nil {
		reg.dispatcher.Cancel()
	}
	if reg.cancel != nil {
		reg.cancel()
	}
	return true
}

func (h *Hub) Release(queryID string) {
	h.mu.Lock()
	delete(h.queries, queryID)
	h.mu.Unlock()
}

func (h *Hub) InFlight() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queries)
}
