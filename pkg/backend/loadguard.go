package backend

import (
	"context"
	"sync"
)

// LoadGuard serializes model loading so that concurrent first callers trigger
// exactly one real load. Backends embed it and pass their loader to Ensure.
//
// Unlike sync.Once, a failed load can be retried by a later caller, and
// Reset allows Unload to drop the loaded state.
type LoadGuard struct {
	mu      sync.Mutex
	loaded  bool
	modelID string
}

// Ensure runs load under the guard unless a model with the same id is
// already loaded. Callers arriving while a load is in flight block until it
// finishes and then observe the loaded state without re-entering the loader.
func (g *LoadGuard) Ensure(ctx context.Context, modelID string, load func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.loaded && g.modelID == modelID {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return NewError(KindCancelled, "load cancelled", err)
	}
	if err := load(ctx); err != nil {
		return err
	}
	g.loaded = true
	g.modelID = modelID
	return nil
}

// Reset marks the guard unloaded, running unload while the lock is held.
func (g *LoadGuard) Reset(unload func() error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.loaded {
		return nil
	}
	if unload != nil {
		if err := unload(); err != nil {
			return err
		}
	}
	g.loaded = false
	g.modelID = ""
	return nil
}

// Loaded reports whether a model is currently loaded.
func (g *LoadGuard) Loaded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loaded
}
