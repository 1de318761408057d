// Package concurrency provides the semaphore limiter bounding how many nodes
// an execution dispatches concurrently in parallel mode.
package concurrency

import (
	"context"
	"sync/atomic"
	"time"
)

// Metrics tracks limiter performance counters.
type Metrics struct {
	TotalAcquired   int64
	TotalReleased   int64
	PeakConcurrent  int64
	TotalWaitTimeNs int64
}

// Limiter provides semaphore-based concurrency control with observability.
// A nil or unbounded limiter admits everything immediately.
type Limiter struct {
	sem    chan struct{}
	active atomic.Int64

	totalAcquired   atomic.Int64
	totalReleased   atomic.Int64
	peakConcurrent  atomic.Int64
	totalWaitTimeNs atomic.Int64
}

// NewLimiter creates a limiter admitting at most maxConcurrent holders.
// maxConcurrent <= 0 means unbounded.
func NewLimiter(maxConcurrent int) *Limiter {
	l := &Limiter{}
	if maxConcurrent > 0 {
		l.sem = make(chan struct{}, maxConcurrent)
	}
	return l
}

// Acquire blocks until a slot is available or the context is cancelled.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.sem == nil {
		l.admitted(0)
		return nil
	}

	start := time.Now()
	select {
	case l.sem <- struct{}{}:
		l.admitted(time.Since(start).Nanoseconds())
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	if l.sem != nil {
		select {
		case <-l.sem:
		default:
			// Release without a matching Acquire; nothing to return.
			return
		}
	}
	l.active.Add(-1)
	l.totalReleased.Add(1)
}

// CurrentActive returns the number of currently admitted holders.
func (l *Limiter) CurrentActive() int64 {
	return l.active.Load()
}

// GetMetrics returns a copy of the current counters.
func (l *Limiter) GetMetrics() Metrics {
	return Metrics{
		TotalAcquired:   l.totalAcquired.Load(),
		TotalReleased:   l.totalReleased.Load(),
		PeakConcurrent:  l.peakConcurrent.Load(),
		TotalWaitTimeNs: l.totalWaitTimeNs.Load(),
	}
}

// GetAverageWaitTime returns the mean time spent waiting for a slot.
func (l *Limiter) GetAverageWaitTime() time.Duration {
	acquired := l.totalAcquired.Load()
	if acquired == 0 {
		return 0
	}
	return time.Duration(l.totalWaitTimeNs.Load() / acquired)
}

func (l *Limiter) admitted(waitNs int64) {
	l.totalWaitTimeNs.Add(waitNs)
	l.totalAcquired.Add(1)
	current := l.active.Add(1)
	for {
		peak := l.peakConcurrent.Load()
		if current <= peak {
			break
		}
		if l.peakConcurrent.CompareAndSwap(peak, current) {
			break
		}
	}
}
