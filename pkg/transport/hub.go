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

// Package transport serves bridge clients over gorilla WebSockets. Every
// connection gets a bounded send queue drained by its own writer goroutine,
// so the engine never waits on the network.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	Subprotocol = "tty"

	DefaultQueueSize     = 8
	DefaultReadLimit     = 64 * 1024
	DefaultReadChunk     = 4096
	DefaultWindow        = bridge.DefaultSendBufferSize
	DefaultWriteTimeout  = 10 * time.Second
	DefaultReadTimeout   = 2 * bridge.DefaultPingInterval
	DefaultAcceptTimeout = 5 * time.Second

	eventBacklog = 64
)

var (
	ErrHubClosed    = errors.New("transport hub closed")
	errNoMessage    = errors.New("continuation frame without an open message")
	errBufferStuck  = errors.New("zero-copy buffer made no progress")
	errNotAccepted  = errors.New("connection not accepted")
	errAcceptExpiry = errors.New("timed out waiting for connection admission")
)

type Options struct {
	Clock         clockwork.Clock
	CheckOrigin   func(r *http.Request) bool
	QueueSize     int
	ReadLimit     int64
	ReadChunk     int
	Window        int
	WriteTimeout  time.Duration
	// ReadTimeout closes a connection that sends neither data nor pongs.
	ReadTimeout   time.Duration
	AcceptTimeout time.Duration
}

func (o *Options) defaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = DefaultReadLimit
	}
	if o.ReadChunk <= 0 {
		o.ReadChunk = DefaultReadChunk
	}
	if o.Window <= 0 {
		o.Window = DefaultWindow
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = DefaultWriteTimeout
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = DefaultReadTimeout
	}
	if o.AcceptTimeout <= 0 {
		o.AcceptTimeout = DefaultAcceptTimeout
	}
}

type outgoing struct {
	buf  *nocopy.Buffer
	data []byte
}

type client struct {
	conn    *websocket.Conn
	queue   chan outgoing
	closeCh chan bridge.CloseCode
	pingCh  chan struct{}
	done    chan struct{}
	id      bridge.ClientID
}

// Hub implements bridge.Transport on top of an http.Handler.
type Hub struct {
	opts     Options
	upgrader websocket.Upgrader
	events   chan bridge.Event
	clients  map[bridge.ClientID]*client
	done     chan struct{}
	wg       sync.WaitGroup
	mu       syncutil.RWMutex
	nextID   atomic.Uint32
	closing  sync.Once
}

func NewHub(opts Options) *Hub {
	opts.defaults()
	h := &Hub{
		opts:    opts,
		events:  make(chan bridge.Event, eventBacklog),
		clients: make(map[bridge.ClientID]*client),
		done:    make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		Subprotocols:    []string{Subprotocol},
		ReadBufferSize:  opts.ReadChunk,
		WriteBufferSize: opts.Window,
		CheckOrigin:     opts.CheckOrigin,
	}
	return h
}

// Events is the stream the engine consumes. It is never closed.
func (h *Hub) Events() <-chan bridge.Event {
	return h.events
}

// Len returns the number of open connections, admitted or not yet.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) emit(ev bridge.Event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) lookup(id bridge.ClientID) *client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.clients[id]
}

// Send queues msg for id and takes ownership of it.
func (h *Hub) Send(id bridge.ClientID, msg []byte) error {
	return h.enqueue(id, outgoing{data: msg})
}

// SendNoCopy queues buf for id. The writer releases buf once it has been
// sent or the connection is gone.
func (h *Hub) SendNoCopy(id bridge.ClientID, buf *nocopy.Buffer) error {
	err := h.enqueue(id, outgoing{buf: buf})
	if err != nil {
		buf.Release()
	}
	return err
}

func (h *Hub) enqueue(id bridge.ClientID, msg outgoing) error {
	c := h.lookup(id)
	if c == nil {
		return fmt.Errorf("%w: %d", bridge.ErrUnknownClient, id)
	}
	select {
	case c.queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %d", bridge.ErrQueueFull, id)
	}
}

// Close asks the writer to close the connection with code after the frames
// already queued. Repeated calls keep the first code.
func (h *Hub) Close(id bridge.ClientID, code bridge.CloseCode) {
	c := h.lookup(id)
	if c == nil {
		return
	}
	select {
	case c.closeCh <- code:
	default:
	}
}

func (h *Hub) Ping(id bridge.ClientID) error {
	c := h.lookup(id)
	if c == nil {
		return fmt.Errorf("%w: %d", bridge.ErrUnknownClient, id)
	}
	select {
	case c.pingCh <- struct{}{}:
	default:
	}
	return nil
}

func (h *Hub) QueueFull(id bridge.ClientID) bool {
	c := h.lookup(id)
	if c == nil {
		return false
	}
	return len(c.queue) == cap(c.queue)
}

// ServeHTTP admits a terminal client. The engine decides admission before
// the upgrade; a refused client is upgraded and then closed with 1013.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case <-h.done:
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	default:
	}
	if !slices.Contains(websocket.Subprotocols(r), Subprotocol) {
		http.Error(w, "missing tty subprotocol", http.StatusBadRequest)
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()

	c := &client{
		id:      bridge.ClientID(h.nextID.Add(1)),
		queue:   make(chan outgoing, h.opts.QueueSize),
		closeCh: make(chan bridge.CloseCode, 1),
		pingCh:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	defer h.forget(c)

	err := h.admit(r.Context(), c.id, r.RemoteAddr)
	if err != nil && !errors.Is(err, errNotAccepted) {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket admission failed")
		// The engine may still have admitted the client after we gave up.
		h.emit(bridge.DisconnectEvent{ID: c.id})
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, upErr := h.upgrader.Upgrade(w, r, nil)
	if upErr != nil {
		log.Debug().Err(upErr).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		if err == nil {
			h.emit(bridge.DisconnectEvent{ID: c.id})
		}
		return
	}
	if errors.Is(err, errNotAccepted) {
		h.reject(conn)
		return
	}

	c.conn = conn
	log.Info().Uint32("client", uint32(c.id)).Str("remote", r.RemoteAddr).Msg("websocket client connected")
	h.serve(c)
}

func (h *Hub) admit(ctx context.Context, id bridge.ClientID, remote string) error {
	reply := make(chan bool, 1)
	if !h.emit(bridge.ConnectEvent{ID: id, Remote: remote, Reply: reply}) {
		return ErrHubClosed
	}

	timer := h.opts.Clock.NewTimer(h.opts.AcceptTimeout)
	defer timer.Stop()

	select {
	case ok := <-reply:
		if !ok {
			return errNotAccepted
		}
		return nil
	case <-timer.Chan():
		return errAcceptExpiry
	case <-ctx.Done():
		return fmt.Errorf("waiting for admission: %w", ctx.Err())
	case <-h.done:
		return ErrHubClosed
	}
}

func (h *Hub) reject(conn *websocket.Conn) {
	deadline := h.opts.Clock.Now().Add(h.opts.WriteTimeout)
	msg := websocket.FormatCloseMessage(int(bridge.CloseTryAgainLater), "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		log.Debug().Err(err).Msg("failed to send rejection close")
	}
	if err := conn.Close(); err != nil {
		log.Debug().Err(err).Msg("failed to close rejected connection")
	}
}

func (h *Hub) forget(c *client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

// serve runs the read loop on the calling goroutine and the writer on a new
// one, then reports the disconnect.
func (h *Hub) serve(c *client) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(c)
	}()

	err := h.readLoop(c)
	if err != nil {
		h.emit(bridge.ErrorEvent{ID: c.id, Err: err})
	}

	close(c.done)
	<-writerDone
	if cerr := c.conn.Close(); cerr != nil {
		log.Debug().Err(cerr).Uint32("client", uint32(c.id)).Msg("closing websocket")
	}
	h.drain(c)
	h.emit(bridge.DisconnectEvent{ID: c.id})
	log.Info().Uint32("client", uint32(c.id)).Msg("websocket client disconnected")
}

// drain releases zero-copy buffers left in the queue.
func (h *Hub) drain(c *client) {
	for {
		select {
		case msg := <-c.queue:
			if msg.buf != nil {
				msg.buf.Release()
			}
		default:
			return
		}
	}
}

// Shutdown closes every connection with 1001 and waits for them to finish.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.closing.Do(func() { close(h.done) })

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for websocket clients: %w", ctx.Err())
	}
}
