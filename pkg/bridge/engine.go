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

package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type flowSource uint8

const (
	sourceLocal flowSource = 1 << iota
	sourceRemote
)

func (s flowSource) String() string {
	switch s {
	case sourceLocal:
		return "local"
	case sourceRemote:
		return "remote"
	default:
		return "local+remote"
	}
}

// Status is a point-in-time snapshot of the engine.
type Status struct {
	Line       uart.LineParams
	Clients    int
	Pending    int
	MaxClients int
	TxBps      uint64
	RxBps      uint64
	TxTotal    uint64
	RxTotal    uint64
	UARTLocal  bool
	UARTRemote bool
	WSStopped  bool
}

type Option func(*Engine)

func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMemoryProbe(m MemoryProbe) Option {
	return func(e *Engine) { e.memory = m }
}

func WithIndicator(ind Indicator) Option {
	return func(e *Engine) { e.indicator = ind }
}

// WithNotifications makes the engine publish client, flow, stats and stty
// changes on ns. Sends never block.
func WithNotifications(ns chan<- models.Notification) Option {
	return func(e *Engine) { e.ns = ns }
}

type Engine struct {
	serial    SerialPort
	transport Transport
	memory    MemoryProbe
	indicator Indicator
	clock     clockwork.Clock
	ns        chan<- models.Notification
	requests  chan func()
	fatal     error

	registry  *Registry
	blocked   *BlockedSet
	fragments *FragmentCache
	expired   []ClientID

	localStopSince time.Time
	wsStopSince    time.Time
	coalesceUntil  time.Time

	lastLED          time.Time
	lastTimeoutCheck time.Time
	lastPing         time.Time
	lastStats        time.Time

	cfg  Config
	leds [2]ledState

	totalTx uint64
	totalRx uint64
	prevTx  uint64
	prevRx  uint64
	txBps   uint64
	rxBps   uint64

	uartFlow  flowSource
	wsStopped bool
	statusLED bool
}

func New(cfg Config, port SerialPort, transport Transport, opts ...Option) (*Engine, error) {
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		serial:    port,
		transport: transport,
		memory:    unlimitedMemory{},
		indicator: nopIndicator{},
		clock:     clockwork.NewRealClock(),
		requests:  make(chan func()),
		registry:  NewRegistry(cfg.MaxClients),
		blocked:   NewBlockedSet(cfg.BlockedCapacity, cfg.BlockExpiry),
		fragments: NewFragmentCache(cfg.MaxClients, cfg.FragmentBufferSize),
		expired:   make([]ClientID, 0, cfg.MaxClients),
	}
	for _, opt := range opts {
		opt(e)
	}

	now := e.clock.Now()
	e.lastLED = now
	e.lastTimeoutCheck = now
	e.lastPing = now
	e.lastStats = now
	return e, nil
}

// Run owns the engine until ctx is cancelled, events is closed or the
// engine stalls. Connected clients are closed on the way out.
func (e *Engine) Run(ctx context.Context, events <-chan Event) error {
	dispatch := e.clock.NewTicker(e.cfg.DispatchInterval)
	defer dispatch.Stop()
	housekeeping := e.clock.NewTicker(e.cfg.LEDInterval)
	defer housekeeping.Stop()

	var ready <-chan struct{}
	if rn, ok := e.serial.(readyNotifier); ok {
		ready = rn.Ready()
	}

	log.Info().
		Int("maxClients", e.cfg.MaxClients).
		Str("line", e.cfg.Line.String()).
		Bool("auth", e.cfg.AuthToken != "").
		Msg("bridge engine started")
	defer e.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ev)
		case <-ready:
			e.dispatch()
		case <-dispatch.Chan():
			e.dispatch()
		case <-housekeeping.Chan():
			e.housekeeping()
		case req := <-e.requests:
			req()
		}

		if e.fatal != nil {
			return e.fatal
		}
	}
}

func (e *Engine) shutdown() {
	ids := append([]ClientID(nil), e.registry.IDs()...)
	ids = append(ids, e.registry.pending...)
	for _, id := range ids {
		e.nukeClient(id, CloseGoingAway)
	}
	e.uartResume(sourceLocal | sourceRemote)
	log.Info().Msg("bridge engine stopped")
}

// do runs fn on the engine goroutine and waits for it to finish.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case e.requests <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return fmt.Errorf("engine request: %w", ctx.Err())
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine request: %w", ctx.Err())
	}
}

// Stty reconfigures the serial line from any goroutine.
func (e *Engine) Stty(ctx context.Context, params uart.LineParams) error {
	var err error
	if reqErr := e.do(ctx, func() { err = e.stty(params) }); reqErr != nil {
		return reqErr
	}
	return err
}

// Announce re-broadcasts the title and line parameters without
// reconfiguring the port, for a line that was set up before Run.
func (e *Engine) Announce(ctx context.Context) error {
	return e.do(ctx, e.announce)
}

// Status snapshots the engine from any goroutine.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	var st Status
	err := e.do(ctx, func() { st = e.status() })
	return st, err
}

func (e *Engine) status() Status {
	return Status{
		Line:       e.cfg.Line,
		Clients:    e.registry.Len(),
		Pending:    e.registry.Pending(),
		MaxClients: e.cfg.MaxClients,
		TxBps:      e.txBps,
		RxBps:      e.rxBps,
		TxTotal:    e.totalTx,
		RxTotal:    e.totalRx,
		UARTLocal:  e.uartFlow&sourceLocal != 0,
		UARTRemote: e.uartFlow&sourceRemote != 0,
		WSStopped:  e.wsStopped,
	}
}

func (e *Engine) handleEvent(ev Event) {
	switch ev := ev.(type) {
	case ConnectEvent:
		ev.Reply <- e.onNewClient(ev.ID)
	case DataEvent:
		e.onFrame(ev.ID, ev.Data, ev.Final, ev.First)
	case PongEvent:
		e.registry.Seen(ev.ID, e.clock.Now())
	case ErrorEvent:
		log.Warn().Err(ev.Err).Uint32("client", uint32(ev.ID)).Msg("client transport error")
		if e.registry.Known(ev.ID) {
			e.nukeClient(ev.ID, CloseInternalError)
		}
	case DisconnectEvent:
		e.removeClient(ev.ID)
	default:
		log.Debug().Msgf("ignoring unknown event %T", ev)
	}
}
