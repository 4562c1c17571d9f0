package insight

import (
	"sync/atomic"
	"time"
)

// Health tracks consecutive external failures. After maxFailures in a row
// the external path is skipped until the cooldown has passed. Then a single
// caller is let through as a trial run, and its success closes the breaker.
type Health struct {
	maxFailures int32
	cooldown    time.Duration

	failures  atomic.Int32
	openUntil atomic.Int64 // unix nanos, 0 when closed
}

// NewHealth creates a breaker. maxFailures <= 0 disables it.
func NewHealth(maxFailures int, cooldown time.Duration) *Health {
	return &Health{maxFailures: int32(maxFailures), cooldown: cooldown}
}

// Available reports whether the external path may be tried at now. It does
// not reserve the trial run; use Acquire for that.
func (h *Health) Available(now time.Time) bool {
	until := h.openUntil.Load()
	return until == 0 || now.UnixNano() >= until
}

// Acquire admits a caller to the external path. A closed breaker admits
// everyone. Once the cooldown has passed exactly one caller is admitted and
// the window is pushed out by another cooldown until that caller reports.
//
// release hands an unused trial back so the next caller may try at once. It
// is a no-op for callers admitted while the breaker was closed.
func (h *Health) Acquire(now time.Time) (release func(), ok bool) {
	until := h.openUntil.Load()
	if until == 0 {
		return func() {}, true
	}
	if now.UnixNano() < until {
		return nil, false
	}
	reserved := now.Add(h.cooldown).UnixNano()
	if !h.openUntil.CompareAndSwap(until, reserved) {
		return nil, false
	}
	return func() { h.openUntil.CompareAndSwap(reserved, until) }, true
}

// RecordSuccess resets the failure count.
func (h *Health) RecordSuccess() {
	h.Reset()
}

// RecordFailure counts a failure and opens the breaker once the limit is hit.
func (h *Health) RecordFailure(now time.Time) {
	n := h.failures.Add(1)
	if h.maxFailures > 0 && n >= h.maxFailures {
		h.openUntil.Store(now.Add(h.cooldown).UnixNano())
	}
}

// Reset closes the breaker, e.g. after the provider behind it was replaced.
func (h *Health) Reset() {
	h.failures.Store(0)
	h.openUntil.Store(0)
}

// Failures returns the current consecutive failure count.
func (h *Health) Failures() int {
	return int(h.failures.Load())
}
