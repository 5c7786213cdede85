// Package resolver issues asynchronous hostname lookups against a
// shared, reference-counted resolver context. Exactly one callback
// fires per lookup, on the event loop goroutine, after which every
// resource the lookup held is released.
package resolver

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/siftech/lookout/internal/log"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/handles"
)

// ResolveFunc receives a successful resolution: the address in
// presentation form and its family tag.
type ResolveFunc func(address string, family Family)

// EventFunc receives the terminal error of a failed lookup.
type EventFunc func(err error)

// BackendFactory builds the native query engine when the shared
// context is first acquired.
type BackendFactory func() Backend

// pendingLookup is the callback state attached to a handle between
// issue and completion.
type pendingLookup struct {
	host       string
	onResolved ResolveFunc
	onEvent    EventFunc
	ctx        *Context // the reference released on completion
}

// Resolver issues non-blocking lookups and manages the shared context
// refcount. One Resolver binds to one event loop; it is safe for
// concurrent use, though completions always arrive on the loop
// goroutine.
type Resolver struct {
	loop    *eventloop.Loop
	table   *handles.Table
	factory BackendFactory

	mu   sync.Mutex // guards ctx and refs
	ctx  *Context
	refs int

	issued   atomic.Int64
	resolved atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
	inline   atomic.Int64
}

// New creates a Resolver bound to loop. The factory runs on first
// context acquisition; NewDNSBackend is the production choice.
func New(loop *eventloop.Loop, factory BackendFactory) *Resolver {
	return &Resolver{
		loop:    loop,
		table:   handles.NewTable(),
		factory: factory,
	}
}

// Lookup issues an asynchronous resolution of host. Exactly one of
// onResolved or onEvent is invoked later on the loop goroutine, after
// which the lookup's resources are released. The returned bool reports
// whether the backend produced the result inline, without network
// I/O. Callers must not use it to decide whether to wait; the callback
// arrives through the loop either way.
//
// Hosts that are already IPv4 literals take the same path; the backend
// answers them inline but the contract above is unchanged.
func (r *Resolver) Lookup(host string, onResolved ResolveFunc, onEvent EventFunc) (bool, error) {
	if !r.loop.IsRunning() {
		return false, ErrLoopNotRunning
	}

	token := r.table.Allocate()

	ctx, err := r.AcquireContext()
	if err != nil {
		r.table.Free(token)
		return false, err
	}

	hints := lookupHints()

	r.table.Attach(token, &pendingLookup{
		host:       host,
		onResolved: onResolved,
		onEvent:    onEvent,
		ctx:        ctx,
	})

	inline, err := ctx.backend.Getaddrinfo(host, hints, token, r.onGetaddrinfo)
	if err != nil {
		// The backend refused the query; no completion will arrive.
		r.table.Free(token)
		r.ReleaseContext()
		return false, err
	}

	r.issued.Inc()
	if inline {
		r.inline.Inc()
	}
	log.Debugf("resolver: lookup issued host=%q inline=%v", host, inline)
	return inline, nil
}

// onGetaddrinfo is the completion handler, the single entry point for
// every finished resolution. Cleanup is unconditional: the result
// chain is released, the handle freed, and the context reference
// dropped exactly once, even when a callback panics.
func (r *Resolver) onGetaddrinfo(code int, res *AddrInfo, token handles.Handle) {
	payload, ok := r.table.Retrieve(token)
	if !ok {
		log.Errorf("resolver: completion for unknown token (code=%d)", code)
		res.Release()
		return
	}

	host := "?"
	defer func() {
		if rec := recover(); rec != nil {
			log.Errorf("resolver: callback panic host=%q: %v", host, rec)
		}
		res.Release()
		r.table.Free(token)
		r.ReleaseContext()
	}()

	pending := payload.(*pendingLookup)
	host = pending.host

	if code != CodeNone {
		r.failed.Inc()
		log.Debugf("resolver: lookup failed host=%q code=%d", host, code)
		pending.onEvent(newDNSError(code))
		return
	}

	if res == nil || res.Family == FamilyINET {
		address := extractIPv4(res)
		if address == "" {
			r.failed.Inc()
			pending.onEvent(&DNSError{
				Code:    CodeExtraction,
				Message: fmt.Sprintf("no usable address for family %s", FamilyINET),
			})
			return
		}
		r.resolved.Inc()
		log.Debugf("resolver: lookup resolved host=%q addr=%s", host, address)
		pending.onResolved(address, FamilyINET)
		return
	}

	// A successful answer in another family invokes no callback.
	// Counted and logged so the drop stays observable.
	r.dropped.Inc()
	log.Warnf("resolver: dropping non-IPv4 result host=%q family=%s", host, res.Family)
}

// extractIPv4 walks the first node of the chain to presentation form.
// An empty string means no usable address was found.
func extractIPv4(res *AddrInfo) string {
	if res == nil || res.Addr == nil {
		return ""
	}
	return res.Addr.AddrString()
}

// Stats is a point-in-time snapshot of resolver activity.
type Stats struct {
	Issued         int64 `json:"issued"`
	Resolved       int64 `json:"resolved"`
	Failed         int64 `json:"failed"`
	FamilyDropped  int64 `json:"family_dropped"`
	Inline         int64 `json:"inline"`
	ContextRefs    int   `json:"context_refs"`
	PendingHandles int   `json:"pending_handles"`
}

// Stats snapshots the resolver's counters.
func (r *Resolver) Stats() Stats {
	return Stats{
		Issued:         r.issued.Load(),
		Resolved:       r.resolved.Load(),
		Failed:         r.failed.Load(),
		FamilyDropped:  r.dropped.Load(),
		Inline:         r.inline.Load(),
		ContextRefs:    r.ContextRefs(),
		PendingHandles: r.table.Len(),
	}
}
