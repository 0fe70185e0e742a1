// Zaparoo Bridge
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Bridge.
//
// Zaparoo Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Bridge.  If not, see <http://www.gnu.org/licenses/>.


package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPRateLimiter_Burst(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(clockwork.NewFakeClock(), DefaultLimits)

	for i := range BurstSize {
		assert.True(t, limiter.Allow("192.168.1.100"), "request %d within burst", i+1)
	}
	assert.False(t, limiter.Allow("192.168.1.100"), "request beyond burst")
	assert.True(t, limiter.Allow("192.168.1.101"), "other addresses have their own bucket")
}

func TestIPRateLimiter_Refills(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock, Limits{PerMinute: 60, Burst: 2})

	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))

	clock.Advance(time.Second)
	assert.True(t, limiter.Allow("10.0.0.1"))
	assert.False(t, limiter.Allow("10.0.0.1"))
}

func TestIPRateLimiter_Defaults(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(nil, Limits{})
	assert.Equal(t, DefaultLimits, limiter.limits)
	assert.NotNil(t, limiter.clock)
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock, DefaultLimits)

	limiter.Allow("old.ip")
	clock.Advance(11 * time.Minute)
	limiter.Allow("new.ip")
	require.Equal(t, 2, limiter.Len())

	limiter.Cleanup()

	assert.Equal(t, 1, limiter.Len())
	assert.Contains(t, limiter.limiters, "new.ip")
	assert.NotContains(t, limiter.limiters, "old.ip")
}

func TestIPRateLimiter_RunCleanup(t *testing.T) {
	t.Parallel()
	clock := clockwork.NewFakeClock()
	limiter := NewIPRateLimiter(clock, DefaultLimits)
	limiter.Allow("old.ip")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		limiter.RunCleanup(ctx)
		close(done)
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(limiterMaxAge + limiterCleanupEvery)
	assert.Eventually(t, func() bool { return limiter.Len() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestHTTPRateLimitMiddleware(t *testing.T) {
	t.Parallel()
	limiter := NewIPRateLimiter(clockwork.NewFakeClock(), Limits{PerMinute: 60, Burst: 3})

	calls := 0
	handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 4)
	for range 4 {
		req := httptest.NewRequest(http.MethodPost, "/stty", http.NoBody)
		req.RemoteAddr = "192.168.1.100:12345"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{200, 200, 200, http.StatusTooManyRequests}, codes)
	assert.Equal(t, 3, calls)
}

func TestHTTPRateLimitMiddleware_IPExtraction(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		expectedIP string
	}{
		{"with port", "192.168.1.100:12345", "192.168.1.100"},
		{"without port", "192.168.1.100", "192.168.1.100"},
		{"IPv6 with port", "[2001:db8::1]:8080", "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			limiter := NewIPRateLimiter(clockwork.NewFakeClock(), DefaultLimits)
			handler := HTTPRateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/status", http.NoBody)
			req.RemoteAddr = tt.remoteAddr
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, limiter.limiters, tt.expectedIP)
		})
	}
}
