package service

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// ─────────────────────────────────────────────────────────────
// RunningGuard: one poll loop per source name
// ─────────────────────────────────────────────────────────────

// RunningGuard hands out one token per source name. A Poller holds its
// token for the whole of Run, so a source rebuilt by a config reload cannot
// query while its predecessor is still finishing an in-flight tick. The
// zero value is ready to use.
type RunningGuard struct {
	mu sync.Mutex
	// held maps each taken name to a channel closed by Unlock.
	held map[string]chan struct{}
}

// TryLock takes the token for name. It returns false while another poller
// holds it.
func (g *RunningGuard) TryLock(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held == nil {
		g.held = make(map[string]chan struct{})
	}
	if _, ok := g.held[name]; ok {
		return false
	}
	g.held[name] = make(chan struct{})
	return true
}

// Unlock gives the token for name back. Unlocking a name that is not held
// is a no-op.
func (g *RunningGuard) Unlock(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if released, ok := g.held[name]; ok {
		close(released)
		delete(g.held, name)
	}
}

// Running lists the source names whose pollers are still inside Run, sorted.
func (g *RunningGuard) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := lo.Keys(g.held)
	sort.Strings(names)
	return names
}

// WaitAll blocks until every token held at the time of the call has been
// given back. It returns ctx.Err() if ctx ends first; tokens taken after
// the call are not waited for.
func (g *RunningGuard) WaitAll(ctx context.Context) error {
	g.mu.Lock()
	pending := lo.Values(g.held)
	g.mu.Unlock()

	for _, released := range pending {
		select {
		case <-released:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
