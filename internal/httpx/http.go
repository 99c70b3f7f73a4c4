// Copyright 2026 The Fromager Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides a simplified http.Client abstraction and the
// retrying/authenticated decorators the transport contract in spec.md §7
// requires (rate-limit-aware retry, retryable 5xx/429/connection-reset
// classification).
package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/fromager-project/fromager/internal/ratex"
)

// BasicClient is a minimal http.Client abstraction.
type BasicClient interface {
	Do(*http.Request) (*http.Response, error)
}

var _ BasicClient = http.DefaultClient

// WithUserAgent adds a User-Agent header to every request.
type WithUserAgent struct {
	BasicClient
	UserAgent string
}

func (c *WithUserAgent) Do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.UserAgent)
	return c.BasicClient.Do(req)
}

// WithBearerToken adds an Authorization header when Token is non-empty,
// used for GITHUB_TOKEN-authenticated requests (spec.md §6).
type WithBearerToken struct {
	BasicClient
	Token string
}

func (c *WithBearerToken) Do(req *http.Request) (*http.Response, error) {
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.BasicClient.Do(req)
}

// RetryCondition classifies a (response, error) pair returned by the
// underlying client as retryable transient failures (spec.md §7:
// NetworkError-class conditions — 5xx, 429, connection resets, incomplete
// reads, DNS failure).
func RetryCondition(resp *http.Response, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) {
			return true
		}
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return true
		}
		return errors.Is(err, context.DeadlineExceeded)
	}
	if resp == nil {
		return false
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
}

// RetryingClient wraps BasicClient with the exponential-backoff-with-jitter
// retry policy from spec.md §5/§7.
type RetryingClient struct {
	BasicClient
	Policy ratex.BackoffPolicy
}

func (c *RetryingClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response
	err := c.Policy.Retry(req.Context(), func(err error) bool {
		var ts errTransientStatus
		if errors.As(err, &ts) {
			return true
		}
		return RetryCondition(nil, err)
	}, func() error {
		var doErr error
		resp, doErr = c.BasicClient.Do(req)
		if doErr != nil {
			return doErr
		}
		if RetryCondition(resp, nil) {
			resp.Body.Close()
			return errTransientStatus{resp.StatusCode}
		}
		return nil
	})
	return resp, err
}

type errTransientStatus struct{ code int }

func (e errTransientStatus) Error() string {
	return http.StatusText(e.code)
}

// RateLimitedClient throttles outgoing requests to at most one per tick.
type RateLimitedClient struct {
	BasicClient
	Ticker *time.Ticker
}

func (c *RateLimitedClient) Do(req *http.Request) (*http.Response, error) {
	<-c.Ticker.C
	return c.BasicClient.Do(req)
}
