package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	apperrors "nlweb-orchestrator/internal/common/errors"
	"nlweb-orchestrator/internal/common/logger"
	"nlweb-orchestrator/internal/common/metrics"
	"nlweb-orchestrator/internal/models"
)

const (
	defaultTopK    = 50
	defaultTimeout = 10 * time.Second
)

// FanOut queries every backend in scope concurrently and merges what survives.
type FanOut struct {
	backends []Registration
	logger   logger.Logger
}

func NewFanOut(backends []Registration, log logger.Logger) *FanOut {
	regs := make([]Registration, len(backends))
	for i, r := range backends {
		if r.TopK <= 0 {
			r.TopK = defaultTopK
		}
		if r.Timeout <= 0 {
			r.Timeout = defaultTimeout
		}
		regs[i] = r
	}
	return &FanOut{backends: regs, logger: logger.ForComponent(log, "retrieval")}
}

func (f *FanOut) Backends() []string {
	names := make([]string, len(f.backends))
	for i, r := range f.backends {
		names[i] = r.Backend.Name()
	}
	return names
}

// Retrieve never fails because one backend failed. It returns BackendUnavailable
// only when no backend is in scope or every backend in scope failed.
func (f *FanOut) Retrieve(ctx context.Context, query string, sites []string) ([]models.CandidateItem, error) {
	var scoped []Registration
	for _, r := range f.backends {
		if r.serves(sites) {
			scoped = append(scoped, r)
		}
	}
	if len(scoped) == 0 {
		return nil, apperrors.NewBackendUnavailableError("*", fmt.Errorf("no backend serves %s", strings.Join(sites, ",")))
	}

	perBackend := make([][]models.CandidateItem, len(scoped))
	failures := make([]error, len(scoped))

	g, gctx := errgroup.WithContext(ctx)
	for i, reg := range scoped {
		g.Go(func() error {
			items, err := f.search(gctx, reg, query, sites)
			if err != nil {
				failures[i] = err
				return nil
			}
			perBackend[i] = items
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	failed := 0
	for _, err := range failures {
		if err != nil {
			failed++
		}
	}
	if failed == len(scoped) {
		return nil, apperrors.NewBackendUnavailableError("*", errors.Join(failures...))
	}

	return Dedup(perBackend...), nil
}

func (f *FanOut) search(ctx context.Context, reg Registration, query string, sites []string) (items []models.CandidateItem, err error) {
	name := reg.Backend.Name()
	defer func() {
		if p := recover(); p != nil {
			metrics.BackendCalls.WithLabelValues(name, "panic").Inc()
			f.logger.Error("retrieval backend panicked", map[string]interface{}{
				"backend": name,
				"panic":   fmt.Sprint(p),
			})
			items, err = nil, apperrors.NewBackendUnavailableError(name, fmt.Errorf("panic: %v", p))
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, reg.Timeout)
	defer cancel()

	start := time.Now()
	items, err = reg.Backend.Search(callCtx, query, sites, reg.TopK)
	if err != nil {
		outcome := "error"
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		metrics.BackendCalls.WithLabelValues(name, outcome).Inc()
		f.logger.Warn("retrieval backend failed", map[string]interface{}{
			"backend":  name,
			"outcome":  outcome,
			"duration": time.Since(start).String(),
			"error":    err,
		})
		return nil, apperrors.NewBackendUnavailableError(name, err)
	}

	metrics.BackendCalls.WithLabelValues(name, "ok").Inc()
	for i := range items {
		items[i].Backend = name
	}
	f.logger.Debug("retrieval backend answered", map[string]interface{}{
		"backend":  name,
		"items":    len(items),
		"duration": time.Since(start).String(),
	})
	return items, nil
}

// Dedup merges result lists keeping the first occurrence of each identity.
func Dedup(lists ...[]models.CandidateItem) []models.CandidateItem {
	seen := map[string]bool{}
	var out []models.CandidateItem
	for _, list := range lists {
		for _, it := range list {
			id := it.Identity()
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, it)
		}
	}
	return out
}

// LookupURL asks every backend that supports URL lookup and returns the first
// hit in registration order.
func (f *FanOut) LookupURL(ctx context.Context, url string) (*models.CandidateItem, error) {
	var lookups []Registration
	for _, r := range f.backends {
		if _, ok := r.Backend.(URLLookup); ok {
			lookups = append(lookups, r)
		}
	}
	if len(lookups) == 0 {
		return nil, nil
	}

	found := make([]*models.CandidateItem, len(lookups))
	g, gctx := errgroup.WithContext(ctx)
	for i, reg := range lookups {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					f.logger.Error("url lookup panicked", map[string]interface{}{
						"backend": reg.Backend.Name(),
						"panic":   fmt.Sprint(p),
					})
				}
			}()
			callCtx, cancel := context.WithTimeout(gctx, reg.Timeout)
			defer cancel()
			item, err := reg.Backend.(URLLookup).LookupURL(callCtx, url)
			if err != nil {
				f.logger.Warn("url lookup failed", map[string]interface{}{
					"backend": reg.Backend.Name(),
					"error":   err,
				})
				return nil
			}
			found[i] = item
			return nil
		})
	}
	_ = g.Wait()

	for _, item := range found {
		if item != nil {
			return item, nil
		}
	}
	return nil, ctx.Err()
}

// Upsert writes items to the named backend, or to every writable backend when
// backend is empty.
func (f *FanOut) Upsert(ctx context.Context, backend string, items []models.CandidateItem) (int, error) {
	total := 0
	var errs []error
	matched := false
	for _, r := range f.backends {
		w, ok := r.Backend.(Writer)
		if !ok || (backend != "" && r.Backend.Name() != backend) {
			continue
		}
		matched = true
		n, err := w.Upsert(ctx, items)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Backend.Name(), err))
		}
	}
	if !matched {
		return 0, apperrors.NewInvalidRequestError("no writable backend named " + backend)
	}
	return total, errors.Join(errs...)
}

// DeleteItems removes items by stable identity from every writable backend.
func (f *FanOut) DeleteItems(ctx context.Context, identities []string) (int, error) {
	total := 0
	var errs []error
	for _, r := range f.backends {
		w, ok := r.Backend.(Writer)
		if !ok {
			continue
		}
		n, err := w.DeleteItems(ctx, identities)
		total += n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Backend.Name(), err))
		}
	}
	return total, errors.Join(errs...)
}

// Sites merges the site lists of every backend that can enumerate them, plus
// the statically scoped sites of the others.
func (f *FanOut) Sites(ctx context.Context) ([]string, error) {
	set := map[string]bool{}
	var errs []error
	for _, r := range f.backends {
		for _, s := range r.Sites {
			set[s] = true
		}
		lister, ok := r.Backend.(SiteLister)
		if !ok {
			continue
		}
		sites, err := lister.Sites(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", r.Backend.Name(), err))
			continue
		}
		for _, s := range sites {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, errors.Join(errs...)
}
