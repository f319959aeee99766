// Package worker runs blocking I/O off the UI loop on a bounded goroutine pool.
package worker

import (
	"fmt"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/olivier-w/csvtv/internal/log"
)

// DefaultSize bounds concurrent background tasks when no size is configured.
const DefaultSize = 8

// Pool is a bounded goroutine pool.
type Pool struct {
	pool   *ants.Pool
	logger zerolog.Logger
}

// New creates a pool with at most size concurrent tasks.
func New(size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	logger := log.WithComponent("worker")
	p, err := ants.NewPool(size,
		ants.WithPreAlloc(true),
		ants.WithPanicHandler(func(v any) {
			logger.Error().Interface("panic", v).Msg("background task panicked")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("creating worker pool: %w", err)
	}
	return &Pool{pool: p, logger: logger}, nil
}

// Go submits task. It blocks while the pool is saturated.
func (p *Pool) Go(task func()) error {
	if err := p.pool.Submit(task); err != nil {
		return fmt.Errorf("submitting background task: %w", err)
	}
	return nil
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Release stops accepting tasks and frees idle workers.
func (p *Pool) Release() {
	p.pool.Release()
}
