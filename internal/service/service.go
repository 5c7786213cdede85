// Package service hosts the resolver runtime for the lookoutd daemon.
// It owns the event loop goroutine and the shared resolver context,
// and bridges request handlers into the loop: handlers issue lookups
// from their own goroutines and wait here for the completions that the
// loop delivers.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/siftech/lookout/internal/log"
	"github.com/siftech/lookout/pkg/eventloop"
	"github.com/siftech/lookout/pkg/resolver"
)

// Result is one answered lookup.
type Result struct {
	RequestID string        `json:"request_id"`
	Host      string        `json:"host"`
	Address   string        `json:"address"`
	Family    string        `json:"family"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Stats is a point-in-time view of the daemon's resolver activity.
type Stats struct {
	Resolver resolver.Stats `json:"resolver"`
	TasksRun int64          `json:"tasks_run"`
	Uptime   time.Duration  `json:"uptime"`
}

// Service runs the event loop and brokers lookups into it.
type Service struct {
	loop     *eventloop.Loop
	resolver *resolver.Resolver
	start    time.Time

	// keepAlive pins the loop open until Close releases it.
	keepAlive eventloop.EnqueueFunc
	closed    *atomic.Bool
}

// New creates a Service around an event loop and a resolver bound to
// that loop. The keep-alive reservation is taken here, before the loop
// starts, so Run never exits while the service is open.
func New(loop *eventloop.Loop, res *resolver.Resolver) *Service {
	return &Service{
		loop:      loop,
		resolver:  res,
		start:     time.Now(),
		keepAlive: loop.Reserve(),
		closed:    atomic.NewBool(false),
	}
}

// Run drives the event loop on the calling goroutine. It blocks until
// Close releases the keep-alive reservation and all in-flight lookups
// settle, or the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	err := s.loop.Run(ctx, func() error {
		log.Info("service: event loop running")
		return nil
	})
	log.Info("service: event loop stopped")
	return err
}

// Close releases the keep-alive reservation, letting Run drain the
// remaining lookups and return. Safe to call more than once.
func (s *Service) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	log.Info("service: shutting down")
	s.keepAlive(func() {})
}

type reply struct {
	addr   string
	family resolver.Family
	err    error
}

// Resolve issues a hostname lookup on the loop goroutine and waits for
// its completion. It is safe to call from any goroutine. The context
// bounds the wait: on expiry the lookup is abandoned and its eventual
// completion discarded.
func (s *Service) Resolve(ctx context.Context, host string) (Result, error) {
	id := uuid.NewString()
	started := time.Now()

	// Buffered so an abandoned completion never blocks the loop.
	ch := make(chan reply, 1)
	err := s.loop.Submit(func() {
		_, err := s.resolver.Lookup(host,
			func(addr string, family resolver.Family) {
				ch <- reply{addr: addr, family: family}
			},
			func(err error) {
				ch <- reply{err: err}
			})
		if err != nil {
			ch <- reply{err: err}
		}
	})
	if err != nil {
		return Result{}, err
	}

	log.Debugf("service: resolve %s host=%q", id, host)

	select {
	case r := <-ch:
		if r.err != nil {
			log.Warnf("service: resolve %s host=%q failed: %v", id, host, r.err)
			return Result{}, r.err
		}
		res := Result{
			RequestID: id,
			Host:      host,
			Address:   r.addr,
			Family:    r.family.String(),
			Elapsed:   time.Since(started),
		}
		log.Infof("service: resolve %s host=%q addr=%s elapsed=%s", id, host, res.Address, res.Elapsed)
		return res, nil
	case <-ctx.Done():
		log.Warnf("service: resolve %s host=%q abandoned: %v", id, host, ctx.Err())
		return Result{}, ctx.Err()
	}
}

// Stats snapshots the resolver counters and loop activity.
func (s *Service) Stats() Stats {
	return Stats{
		Resolver: s.resolver.Stats(),
		TasksRun: s.loop.Executed(),
		Uptime:   time.Since(s.start),
	}
}
