package resolver

import (
	"github.com/siftech/lookout/internal/log"
)

// Context is the shared resolver context: one native query engine that
// every in-flight lookup issues against. It exists only while at least
// one reference is held.
type Context struct {
	backend Backend
}

// AcquireContext returns the shared context, creating it and its
// backend on first acquisition. It fails with ErrLoopNotRunning when
// the bound loop is not dispatching. Every acquire pairs with one
// ReleaseContext.
func (r *Resolver) AcquireContext() (*Context, error) {
	if !r.loop.IsRunning() {
		return nil, ErrLoopNotRunning
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		r.ctx = &Context{backend: r.factory()}
		r.refs = 1
		log.Debug("resolver: context created")
		return r.ctx, nil
	}

	r.refs++
	return r.ctx, nil
}

// ReleaseContext drops one reference. When the count reaches zero the
// backend is closed exactly once and the slot resets, so a later
// acquire builds a fresh context. Releases past zero clamp; the count
// is never observed negative.
func (r *Resolver) ReleaseContext() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refs--
	if r.refs > 0 {
		return
	}
	r.refs = 0

	if r.ctx == nil {
		return
	}
	if err := r.ctx.backend.Close(); err != nil {
		log.Warnf("resolver: closing backend: %v", err)
	}
	r.ctx = nil
	log.Debug("resolver: context freed")
}

// ContextRefs returns the live reference count on the shared context.
func (r *Resolver) ContextRefs() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refs
}
