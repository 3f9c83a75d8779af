package orchestrator

import (
	"context"
	"fmt"

	"nlweb-orchestrator/internal/models"
)

// fastTrack starts retrieval for the raw query while analysis is still
// running. Its items are used only if analysis leaves the query unchanged;
// nothing is ranked or emitted from here.
type fastTrack struct {
	cancel context.CancelFunc
	done   chan struct{}
	items  []models.CandidateItem
	err    error
}

func startFastTrack(ctx context.Context, r Retriever, query string, sites []string) *fastTrack {
	fctx, cancel := context.WithCancel(ctx)
	ft := &fastTrack{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(ft.done)
		defer func() {
			if p := recover(); p != nil {
				ft.items, ft.err = nil, fmt.Errorf("fast track retrieval panicked: %v", p)
			}
		}()
		ft.items, ft.err = r.Retrieve(fctx, query, sites)
	}()
	return ft
}

func (f *fastTrack) wait(ctx context.Context) ([]models.CandidateItem, error) {
	select {
	case <-f.done:
		return f.items, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop abandons the prefetch and waits for its goroutine.
func (f *fastTrack) stop() {
	f.cancel()
	<-f.done
}
