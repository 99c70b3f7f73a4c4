// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratex implements the retry/backoff primitives used by the
// transport layer (spec.md §5, §7): exponential backoff with jitter, a
// capped attempt count, and a maximum backoff ceiling.
package ratex

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// BackoffPolicy configures exponential backoff with jitter.
type BackoffPolicy struct {
	// Base is the initial delay before the first retry.
	Base time.Duration
	// Factor multiplies the delay after each attempt.
	Factor float64
	// Max caps the delay regardless of attempt count.
	Max time.Duration
	// MaxAttempts bounds the number of retries (0 disables retrying).
	MaxAttempts int
	// Jitter is the fractional jitter applied symmetrically, e.g. 0.5 for ±50%.
	Jitter float64
}

// DefaultBackoffPolicy matches the FROMAGER_HTTP_* environment variable
// defaults described in spec.md §6.
var DefaultBackoffPolicy = BackoffPolicy{
	Base:        500 * time.Millisecond,
	Factor:      2.0,
	Max:         30 * time.Second,
	MaxAttempts: 5,
	Jitter:      0.5,
}

// Delay returns the backoff delay to use before retry attempt n (0-indexed).
func (p BackoffPolicy) Delay(n int, rng *rand.Rand) time.Duration {
	d := float64(p.Base)
	for i := 0; i < n; i++ {
		d *= p.Factor
	}
	if cap := float64(p.Max); d > cap {
		d = cap
	}
	if p.Jitter > 0 {
		delta := d * p.Jitter
		d = d - delta + rng.Float64()*2*delta
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry invokes fn until it succeeds, fn reports a non-retryable error, or
// MaxAttempts is exhausted. isRetryable classifies the error returned by fn.
func (p BackoffPolicy) Retry(ctx context.Context, isRetryable func(error) bool, fn func() error) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var err error
	for attempt := 0; attempt <= p.MaxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) || attempt == p.MaxAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Delay(attempt, rng)):
		}
	}
	return err
}

// BackoffLimiter is a threadsafe rate limiter whose period grows on
// Backoff() and shrinks on Success(), for GitHub/GitLab 429 handling.
type BackoffLimiter struct {
	mu            sync.Mutex
	currentPeriod time.Duration
	minimum       time.Duration
	ch            chan struct{}
}

func NewBackoffLimiter(minimum time.Duration) *BackoffLimiter {
	l := &BackoffLimiter{currentPeriod: minimum, minimum: minimum, ch: make(chan struct{})}
	go l.run()
	return l
}

func (l *BackoffLimiter) run() {
	for {
		l.mu.Lock()
		d := l.currentPeriod
		l.mu.Unlock()
		time.Sleep(d)
		l.ch <- struct{}{}
	}
}

// Wait blocks until the limiter permits another event, or ctx ends.
func (l *BackoffLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.ch:
		return nil
	}
}

// Backoff increases the period by 33%, honored starting with the next tick.
func (l *BackoffLimiter) Backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.currentPeriod = l.currentPeriod * 4 / 3
}

// Success decreases the period by 10%, bounded below by the minimum.
func (l *BackoffLimiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if next := l.currentPeriod * 9 / 10; next > l.minimum {
		l.currentPeriod = next
	} else {
		l.currentPeriod = l.minimum
	}
}

// ResetAfter raises the period to d when d is longer than the current
// period (a shorter d leaves it unchanged), honoring a rate-limit reset hint
// such as GitHub's X-RateLimit-Reset. The new period applies from the next
// sleep; a sleep already under way is not shortened or extended.
func (l *BackoffLimiter) ResetAfter(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if d > l.currentPeriod {
		l.currentPeriod = d
	}
}
