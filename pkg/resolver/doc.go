// Package resolver provides non-blocking hostname resolution on top of a
// shared, reference-counted resolver context bound to a single event loop.
//
// The package coordinates three pieces: a lazily-created context shared by
// every in-flight lookup, per-lookup callback state that must survive until
// the completion arrives exactly once, and strict translation of the native
// result into either a resolved address or a structured error, with
// deterministic cleanup on every exit path.
//
// # Basic Usage
//
// Create a resolver bound to a running event loop and issue lookups from
// the loop goroutine:
//
//	loop := eventloop.New(eventloop.DefaultQueueSize)
//	r := resolver.New(loop, func() resolver.Backend {
//		return resolver.NewDNSBackend(loop, 5*time.Second, 2)
//	})
//
//	err := loop.Run(ctx, func() error {
//		_, err := r.Lookup("example.com",
//			func(addr string, family resolver.Family) {
//				fmt.Printf("resolved: %s (%s)\n", addr, family)
//			},
//			func(err error) {
//				fmt.Printf("failed: %v\n", err)
//			})
//		return err
//	})
//
// Exactly one of the two callbacks fires, exactly once, on the loop
// goroutine. After it returns, the lookup's handle, its result chain, and
// its context reference are gone.
//
// # The Shared Context
//
// The first AcquireContext creates the native query engine; each lookup
// holds one reference for its lifetime, and the engine is freed when the
// last reference is released. Other DNS-adjacent consumers may call
// AcquireContext and ReleaseContext directly to share the same engine.
//
// # Error Handling
//
// Failures are delivered through the event callback as *DNSError values
// carrying the native error code and its Strerror rendering. Two errors
// are synchronous instead: ErrLoopNotRunning (the precondition check, no
// resources allocated) and a backend refusal at issue time (the lookup is
// unwound before returning).
//
// A successful native answer in a family other than IPv4 invokes no
// callback at all. The drop is logged and counted so it stays observable;
// resources are still released exactly once.
//
// # Concurrency
//
// Lookup is safe for concurrent use; the refcount is mutex-guarded and
// completions are serialized by the loop. Issued lookups cannot be
// cancelled; callers layering timeouts simply abandon the late callback.
package resolver
