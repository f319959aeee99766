// Package loop provides the single goroutine that owns UI state, plus the
// Scheduler abstraction components use to post work and arm timers on it.
package loop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Timer is a pending delayed callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the
	// timer was still pending.
	Stop() bool
}

// Scheduler runs callbacks on the UI-owning goroutine.
type Scheduler interface {
	Post(fn func())
	After(d time.Duration, fn func()) Timer
	Now() time.Time
}

// Loop executes posted callbacks one at a time on the goroutine that calls Run.
// The queue is unbounded so Post never blocks, including from the loop itself.
type Loop struct {
	clock clock.Clock
	wake  chan struct{}
	done  chan struct{}

	mu    sync.Mutex
	queue []func()

	closeOnce sync.Once
}

// New creates a loop driven by the given clock. A nil clock uses wall time.
func New(c clock.Clock) *Loop {
	if c == nil {
		c = clock.New()
	}
	return &Loop{
		clock: c,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Run drains callbacks until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
			for {
				fn, ok := l.next()
				if !ok {
					break
				}
				fn()
				if ctx.Err() != nil || l.closed() {
					break
				}
			}
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

func (l *Loop) closed() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Pending reports how many posted callbacks have not run yet.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Post queues fn without blocking. Callbacks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	if l.closed() {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// After posts fn once d has elapsed on the loop clock.
func (l *Loop) After(d time.Duration, fn func()) Timer {
	t := &loopTimer{}
	t.timer = l.clock.AfterFunc(d, func() {
		l.Post(func() {
			if t.stopped.CompareAndSwap(false, true) {
				fn()
			}
		})
	})
	return t
}

// Now returns the loop clock time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Close stops the loop. Pending callbacks are discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.queue = nil
		l.mu.Unlock()
	})
}

type loopTimer struct {
	timer   *clock.Timer
	stopped atomic.Bool
}

// Stop also covers the window where the clock already fired but the
// callback is still queued on the loop.
func (t *loopTimer) Stop() bool {
	if !t.stopped.CompareAndSwap(false, true) {
		return false
	}
	t.timer.Stop()
	return true
}
