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
	"encoding/json"
	"net/http"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	RequestsPerMinute = 100
	BurstSize         = 20

	limiterMaxAge       = 10 * time.Minute
	limiterCleanupEvery = 5 * time.Minute
)

// Limits is a token bucket per source address.
type Limits struct {
	PerMinute int
	Burst     int
}

var DefaultLimits = Limits{PerMinute: RequestsPerMinute, Burst: BurstSize}

// IPRateLimiter keeps one limiter per source address for HTTP requests,
// WebSocket upgrades and events feed messages.
type IPRateLimiter struct {
	clock    clockwork.Clock
	limiters map[string]*rateLimiterEntry
	limits   Limits
	mu       syncutil.RWMutex
}

type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPRateLimiter(clock clockwork.Clock, limits Limits) *IPRateLimiter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if limits.PerMinute <= 0 {
		limits.PerMinute = RequestsPerMinute
	}
	if limits.Burst <= 0 {
		limits.Burst = BurstSize
	}
	return &IPRateLimiter{
		clock:    clock,
		limiters: make(map[string]*rateLimiterEntry),
		limits:   limits,
	}
}

func (rl *IPRateLimiter) entry(ip string) *rateLimiterEntry {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	e, ok := rl.limiters[ip]
	if !ok {
		e = &rateLimiterEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(rl.limits.PerMinute)/60.0), rl.limits.Burst),
		}
		rl.limiters[ip] = e
	}
	e.lastSeen = now
	return e
}

// Allow spends one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	return rl.entry(ip).limiter.AllowN(rl.clock.Now(), 1)
}

func (rl *IPRateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

// Cleanup forgets addresses not seen for ten minutes.
func (rl *IPRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	for ip, e := range rl.limiters {
		if now.Sub(e.lastSeen) > limiterMaxAge {
			delete(rl.limiters, ip)
			log.Debug().Str("ip", ip).Msg("removed stale rate limiter")
		}
	}
}

// RunCleanup calls Cleanup periodically until ctx is done.
func (rl *IPRateLimiter) RunCleanup(ctx context.Context) {
	ticker := rl.clock.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			rl.Cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func HTTPRateLimitMiddleware(limiter *IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := ParseRemoteIP(r.RemoteAddr).String()
			if !limiter.Allow(host) {
				log.Warn().
					Str("ip", host).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("HTTP rate limit exceeded")

				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

type rpcError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type rpcErrorResponse struct {
	ID      any      `json:"id"`
	JSONRPC string   `json:"jsonrpc"`
	Error   rpcError `json:"error"`
}

// WebSocketRateLimitHandler wraps an events feed message handler. Messages
// over the limit are answered with a JSON-RPC error and dropped.
func WebSocketRateLimitHandler(
	limiter *IPRateLimiter,
	handler func(*melody.Session, []byte),
) func(*melody.Session, []byte) {
	return func(session *melody.Session, msg []byte) {
		host := ParseRemoteIP(session.Request.RemoteAddr).String()
		if limiter.Allow(host) {
			handler(session, msg)
			return
		}

		log.Warn().
			Str("ip", host).
			Int("msg_size", len(msg)).
			Msg("WebSocket rate limit exceeded")

		errorMsg, err := json.Marshal(rpcErrorResponse{
			JSONRPC: "2.0",
			Error:   rpcError{Code: -32000, Message: "Rate limit exceeded"},
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to marshal rate limit error")
			return
		}
		if err := session.Write(errorMsg); err != nil {
			log.Error().Err(err).Msg("failed to send rate limit error")
		}
	}
}
