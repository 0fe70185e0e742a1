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


// Package api serves the bridge over HTTP: the terminal WebSocket, the
// line configuration endpoint, the auth token, a status snapshot and a
// JSON-RPC notification feed.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/middleware"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jonboulle/clockwork"
	"github.com/mackerelio/go-osstat/uptime"
	"github.com/olahol/melody"
	"github.com/rs/zerolog/log"
)

const (
	Realm = "Zaparoo Bridge"

	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Engine is the part of the bridge engine the HTTP endpoints drive.
type Engine interface {
	Stty(ctx context.Context, params uart.LineParams) error
	Status(ctx context.Context) (bridge.Status, error)
}

// Breaker sends a break condition on the serial line.
type Breaker interface {
	Break(d time.Duration) error
}

type Options struct {
	Config *config.Instance
	Engine Engine
	// Terminal serves /ws.
	Terminal http.Handler
	Breaker  Breaker
	Clock    clockwork.Clock
	// Uptime defaults to the system uptime.
	Uptime func() (time.Duration, error)
	// Token is the terminal auth token handed out by /token. Empty when
	// auth is off.
	Token  string
	Device string
}

type Server struct {
	opts    Options
	router  *chi.Mux
	events  *melody.Melody
	limiter *middleware.IPRateLimiter
}

func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Uptime == nil {
		opts.Uptime = uptime.Get
	}
	if opts.Config == nil {
		opts.Config = config.NewInstance(config.BaseDefaults)
	}

	s := &Server{
		opts:    opts,
		events:  melody.New(),
		limiter: middleware.NewIPRateLimiter(opts.Clock, middleware.DefaultLimits),
	}
	s.events.Upgrader.CheckOrigin = CheckOrigin(opts.Config.AllowedOrigins())
	s.events.HandleMessage(middleware.WebSocketRateLimitHandler(s.limiter, handleEventsMessage))
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *chi.Mux {
	cfg := s.opts.Config
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.HTTPIPFilterMiddleware(
		middleware.NewIPFilter(cfg.AllowedIPs(), cfg.PrivateNetworksOnly()),
	))
	r.Use(privateNetworkAccessMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins(cfg.AllowedOrigins()),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{},
	}))
	r.Use(middleware.HTTPRateLimitMiddleware(s.limiter))

	// The terminal socket authenticates with the token in its first frame.
	if s.opts.Terminal != nil {
		r.Get("/ws", s.opts.Terminal.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		if cfg.AuthEnabled() {
			user, pass := cfg.BasicAuth()
			r.Use(middleware.BasicAuth(middleware.AuthOptions{
				Realm:       Realm,
				Credentials: middleware.Credentials{Username: user, Password: pass},
			}))
		}

		r.Get("/events", func(w http.ResponseWriter, r *http.Request) {
			if err := s.events.HandleRequest(w, r); err != nil {
				log.Error().Err(err).Msg("handling events websocket request")
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.NoCache)
			r.Use(chimiddleware.Timeout(config.APIRequestTimeout))

			r.Get("/", s.handleIndex)
			r.Get("/stty", s.handleSttyGet)
			r.Post("/stty", s.handleSttyPost)
			r.Get("/token", s.handleToken)
			r.Get("/status", s.handleStatus)
		})
	})

	return r
}

// Listen binds the configured API address. Binding before Serve means the
// port accepts connections as soon as Listen returns.
func Listen(cfg *config.Instance) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", cfg.APIListen())
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.APIListen(), err)
	}
	return ln, nil
}

// Serve runs the HTTP server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	cleanupCtx, stopCleanup := context.WithCancel(ctx)
	defer stopCleanup()
	go s.limiter.RunCleanup(cleanupCtx)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", ln.Addr().String()).Msg("api server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.events.Close(); err != nil && !errors.Is(err, melody.ErrClosed) {
		log.Warn().Err(err).Msg("closing events feed")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	<-errCh
	log.Info().Msg("api server stopped")
	return nil
}

// Broadcast forwards notifications to every events feed subscriber until
// the channel closes or ctx is done.
func (s *Server) Broadcast(ctx context.Context, notifications <-chan models.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case notif, ok := <-notifications:
			if !ok {
				return
			}

			data, err := json.Marshal(models.RequestObject{
				JSONRPC: "2.0",
				Method:  notif.Method,
				Params:  notif.Params,
			})
			if err != nil {
				log.Error().Err(err).Msg("marshalling notification request")
				continue
			}

			if err := s.events.Broadcast(data); err != nil && !errors.Is(err, melody.ErrClosed) {
				log.Error().Err(err).Msg("broadcasting notification")
			}
		}
	}
}

// handleEventsMessage answers heartbeat pings. The feed is otherwise
// server to client only.
func handleEventsMessage(session *melody.Session, msg []byte) {
	if string(msg) == "ping" {
		if err := session.Write([]byte("pong")); err != nil {
			log.Error().Err(err).Msg("sending pong")
		}
		return
	}
	log.Debug().Int("size", len(msg)).Msg("ignoring message on events feed")
}

// privateNetworkAccessMiddleware answers Private Network Access preflights
// so pages on public origins can reach a bridge on the LAN.
func privateNetworkAccessMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions &&
			r.Header.Get("Access-Control-Request-Private-Network") == "true" {
			w.Header().Set("Access-Control-Allow-Private-Network", "true")
		}
		next.ServeHTTP(w, r)
	})
}

func corsOrigins(allowed []string) []string {
	if len(allowed) > 0 {
		return allowed
	}
	return []string{"https://*", "http://*"}
}

// CheckOrigin builds a WebSocket origin check. Requests without an Origin
// header come from non-browser clients and pass. Browsers must either
// match the request host or one of allowed.
func CheckOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		if strings.EqualFold(u.Host, r.Host) {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(a, origin) {
				return true
			}
		}
		return false
	}
}
