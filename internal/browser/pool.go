package browser

import (
	"context"
	"sync"
	"time"
)

// Accessor is a lazily-initialized, health-checking handle to a Worker.
// It restarts the worker if its underlying goroutine has died, matching
// §9's "accessor is a lazily-initialized handle that health-checks the
// worker's underlying thread and restarts it if dead" design note, and
// original_source/crawler/worker.py's get_mr_worker().
type Accessor struct {
	mu         sync.Mutex
	chromePath string
	worker     *Worker
}

// NewAccessor builds an Accessor. No Worker is started until first use.
func NewAccessor(chromePath string) *Accessor {
	return &Accessor{chromePath: chromePath}
}

// Get returns a live Worker, starting or restarting one if necessary.
func (a *Accessor) Get() *Worker {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.worker == nil || !a.worker.Alive() {
		a.worker = New(a.chromePath)
	}
	return a.worker
}

// Fetch is a convenience wrapper that always goes through the
// health-checked accessor. Calls are serialized one at a time through the
// Worker's own inbox channel, which is required for Provider-M — parallel
// fetches against one browser tab violate its stability assumption (§5).
func (a *Accessor) Fetch(ctx context.Context, url string, timeout time.Duration) string {
	return a.Get().Fetch(ctx, url, timeout)
}

// Stop tears the current worker down, if any.
func (a *Accessor) Stop() {
	a.mu.Lock()
	w := a.worker
	a.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}
