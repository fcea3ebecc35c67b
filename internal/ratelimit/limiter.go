package ratelimit

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultCapacity is the default number of concurrent provider calls.
const DefaultCapacity = 15

// Limiter is the process-wide admission gate for provider calls. It bounds
// the number of concurrent holders and, when a request rate is configured,
// paces admissions through a token bucket.
//
// A Limiter is constructed once and shared by reference with every worker.
type Limiter struct {
	sem      *semaphore.Weighted
	pacer    *rate.Limiter
	capacity int
	inFlight atomic.Int64
}

// New creates a Limiter admitting at most capacity concurrent holders.
// perSecond <= 0 disables pacing.
func New(capacity int, perSecond float64) *Limiter {
	if capacity < 1 {
		capacity = DefaultCapacity
	}

	pacer := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		pacer = rate.NewLimiter(rate.Limit(perSecond), 1)
	}

	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		pacer:    pacer,
		capacity: capacity,
	}
}

// Acquire blocks until a slot is free and the pacer admits the call.
// It returns the context error if ctx ends first; no slot is held in that case.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := l.pacer.Wait(ctx); err != nil {
		l.sem.Release(1)
		return err
	}
	l.inFlight.Add(1)
	return nil
}

// Release returns a slot acquired with Acquire.
func (l *Limiter) Release() {
	l.inFlight.Add(-1)
	l.sem.Release(1)
}

// InFlight reports the number of current holders.
func (l *Limiter) InFlight() int {
	return int(l.inFlight.Load())
}

// Capacity reports the maximum number of concurrent holders.
func (l *Limiter) Capacity() int {
	return l.capacity
}
