// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package remote

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// ProactiveRate keeps a single session comfortably below the authenticated quotas
	ProactiveRate = 10.0

	// MinBuffer is the remaining quota below which requests wait for the reset
	MinBuffer = 10

	HeaderRateRemaining = "X-RateLimit-Remaining"
	HeaderRateReset     = "X-RateLimit-Reset"
	HeaderRetryAfter    = "Retry-After"
)

// ⏳ RateLimitedTransport throttles outgoing requests with a token bucket and, once a
// provider reports its quota is nearly spent, holds requests until the reset time.
type RateLimitedTransport struct {
	Base http.RoundTripper

	mu        sync.Mutex
	bucket    *rate.Limiter
	remaining int
	resetTime time.Time
	minBuffer int
}

func NewRateLimitedTransport(base http.RoundTripper) *RateLimitedTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &RateLimitedTransport{
		Base:      base,
		bucket:    rate.NewLimiter(rate.Limit(ProactiveRate), 5),
		remaining: -1,
		minBuffer: MinBuffer,
	}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.wait(req.Context()); err != nil {
		return nil, err
	}

	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	t.update(resp)
	return resp, nil
}

func (t *RateLimitedTransport) wait(ctx context.Context) error {
	if err := t.bucket.Wait(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	remaining, resetTime := t.remaining, t.resetTime
	t.mu.Unlock()

	if remaining < 0 || remaining >= t.minBuffer || !time.Now().Before(resetTime) {
		return nil
	}

	zerolog.Ctx(ctx).Debug().Int("remaining", remaining).Time("reset", resetTime).Msg("waiting for rate limit reset")
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(time.Until(resetTime)):
		return nil
	}
}

func (t *RateLimitedTransport) update(resp *http.Response) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if v := resp.Header.Get(HeaderRateRemaining); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			t.remaining = n
		}
	}
	if v := resp.Header.Get(HeaderRateReset); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.resetTime = time.Unix(n, 0)
		}
	}
	if v := resp.Header.Get(HeaderRetryAfter); v != "" && resp.StatusCode == http.StatusTooManyRequests {
		if n, err := strconv.Atoi(v); err == nil {
			t.remaining = 0
			t.resetTime = time.Now().Add(time.Duration(n) * time.Second)
		}
	}
}

// 🌐 NewHTTPClient returns a rate limited client that sends token as a bearer token.
// An empty token yields an anonymous client.
func NewHTTPClient(ctx context.Context, token string) *http.Client {
	base := &http.Client{Transport: NewRateLimitedTransport(nil)}
	if token == "" {
		return base
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
}
