// Package eventloop provides a single-goroutine cooperative event loop.
// All tasks submitted to a Loop execute serially on the goroutine that
// called Run, which keeps dispatching until every outstanding
// reservation has been consumed or its context ends. Components that
// expect to deliver work later reserve a slot up front; the loop stays
// alive as long as reservations remain.
package eventloop

import (
	"context"
	"errors"

	"go.uber.org/atomic"

	"github.com/siftech/lookout/internal/log"
)

var (
	// ErrNotRunning is returned by Submit when the loop is not dispatching.
	ErrNotRunning = errors.New("event loop is not running")
	// ErrAlreadyStarted is returned by Run when the loop has already run.
	ErrAlreadyStarted = errors.New("event loop already started")
)

// DefaultQueueSize is the task queue capacity used when none is given.
const DefaultQueueSize = 128

const (
	_stateNew = iota
	_stateRunning
	_stateStopped
)

// EnqueueFunc delivers the task for a previously reserved slot. Each
// function is single-use; calling it twice is a programming error and
// panics.
type EnqueueFunc func(task func())

// Loop is a single-goroutine task dispatcher. A Loop runs at most once.
type Loop struct {
	queue chan func()
	done  chan struct{} // closed when Run returns; unblocks stuck enqueues
	wake  chan struct{} // nudges Run to re-check pending after a decrement

	state    *atomic.Int32
	pending  *atomic.Int64 // reservations not yet consumed
	executed *atomic.Int64
}

// New creates a loop whose task queue holds queueSize entries.
// Non-positive sizes fall back to DefaultQueueSize.
func New(queueSize int) *Loop {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Loop{
		queue:    make(chan func(), queueSize),
		done:     make(chan struct{}),
		wake:     make(chan struct{}, 1),
		state:    atomic.NewInt32(_stateNew),
		pending:  atomic.NewInt64(0),
		executed: atomic.NewInt64(0),
	}
}

// Run executes main on the loop goroutine, then dispatches queued tasks
// until every reservation has been consumed or ctx is done. It returns
// main's error, ctx's error, or nil once the loop drains. The calling
// goroutine becomes the loop goroutine for the duration.
func (l *Loop) Run(ctx context.Context, main func() error) error {
	if !l.state.CompareAndSwap(_stateNew, _stateRunning) {
		return ErrAlreadyStarted
	}
	defer func() {
		l.state.Store(_stateStopped)
		close(l.done)
		log.Debug("eventloop: stopped")
	}()

	log.Debug("eventloop: running")

	if main != nil {
		if err := main(); err != nil {
			return err
		}
	}

	for {
		select {
		case task := <-l.queue:
			l.execute(task)
			continue
		default:
		}

		if l.pending.Load() == 0 {
			// Every enqueue lands in the queue before its reservation is
			// consumed, so a zero count means one final drain settles it.
			select {
			case task := <-l.queue:
				l.execute(task)
				continue
			default:
				return nil
			}
		}

		select {
		case task := <-l.queue:
			l.execute(task)
		case <-l.wake:
			// A reservation was released; re-check pending.
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Reserve claims a slot on the loop and returns the single-use function
// that delivers its task. The loop will not exit on its own while the
// reservation is unconsumed. Reserving before Run is allowed; the loop
// picks the reservation up when it starts.
func (l *Loop) Reserve() EnqueueFunc {
	l.pending.Inc()
	used := atomic.NewBool(false)

	return func(task func()) {
		if !used.CompareAndSwap(false, true) {
			panic("eventloop: reservation enqueued twice")
		}
		defer l.release()

		if !l.IsRunning() {
			log.Warnf("eventloop: dropping task enqueued while not running")
			return
		}
		select {
		case l.queue <- task:
		case <-l.done:
			log.Warnf("eventloop: dropping task enqueued during stop")
		}
	}
}

// Submit reserves and enqueues task in one step. It blocks while the
// queue is full and returns ErrNotRunning once the loop has stopped or
// before it has started.
func (l *Loop) Submit(task func()) error {
	if !l.IsRunning() {
		return ErrNotRunning
	}
	l.Reserve()(task)
	return nil
}

// IsRunning reports whether the loop is currently dispatching.
func (l *Loop) IsRunning() bool {
	return l.state.Load() == _stateRunning
}

// Pending returns the number of unconsumed reservations.
func (l *Loop) Pending() int64 {
	return l.pending.Load()
}

// Executed returns the number of tasks the loop has run.
func (l *Loop) Executed() int64 {
	return l.executed.Load()
}

// release consumes one reservation. The task may already be in the
// queue, or even executed, before the count drops; the wake nudge makes
// Run re-read pending instead of blocking on a stale value.
func (l *Loop) release() {
	l.pending.Dec()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) execute(task func()) {
	task()
	l.executed.Inc()
}
