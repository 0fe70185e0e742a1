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

package transport

import (
	"errors"
	"io"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// frameWriter maps nocopy frames onto gorilla's message writer. With the
// write buffer sized to the window, each frame leaves as one WebSocket
// frame.
type frameWriter struct {
	hub  *Hub
	conn *websocket.Conn
	w    io.WriteCloser
}

func (f *frameWriter) Window() int {
	return f.hub.opts.Window
}

func (f *frameWriter) WriteFrame(data []byte, first, final bool) (int, error) {
	if first {
		if err := f.conn.SetWriteDeadline(f.hub.opts.Clock.Now().Add(f.hub.opts.WriteTimeout)); err != nil {
			return 0, err
		}
		w, err := f.conn.NextWriter(websocket.BinaryMessage)
		if err != nil {
			return 0, err
		}
		f.w = w
	}
	if f.w == nil {
		return 0, errNoMessage
	}

	n, err := f.w.Write(data)
	if err != nil {
		return n, err
	}
	if final {
		err = f.w.Close()
		f.w = nil
	}
	return n, err
}

func (h *Hub) writeLoop(c *client) {
	fw := &frameWriter{hub: h, conn: c.conn}

	for {
		var err error
		select {
		case <-c.done:
			return
		case <-h.done:
			h.writeClose(c, bridge.CloseGoingAway)
			return
		case code := <-c.closeCh:
			h.writeClose(c, code)
			return
		case <-c.pingCh:
			err = c.conn.WriteControl(websocket.PingMessage, nil, h.deadline())
		case msg := <-c.queue:
			if msg.buf != nil {
				err = writeBuffer(fw, msg.buf)
			} else {
				err = h.writeMessage(c, msg.data)
			}
		}
		if err != nil {
			log.Debug().Err(err).Uint32("client", uint32(c.id)).Msg("websocket write failed")
			// Closing the socket ends the read loop, which reports the
			// disconnect.
			if cerr := c.conn.Close(); cerr != nil {
				log.Debug().Err(cerr).Msg("closing websocket after write error")
			}
			return
		}
	}
}

func (h *Hub) writeMessage(c *client, data []byte) error {
	if err := c.conn.SetWriteDeadline(h.deadline()); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, data)
}

// writeClose flushes what is already queued, then sends the close frame.
func (h *Hub) writeClose(c *client, code bridge.CloseCode) {
	fw := &frameWriter{hub: h, conn: c.conn}
	for len(c.queue) > 0 {
		msg := <-c.queue
		var err error
		if msg.buf != nil {
			err = writeBuffer(fw, msg.buf)
		} else {
			err = h.writeMessage(c, msg.data)
		}
		if err != nil {
			break
		}
	}

	msg := websocket.FormatCloseMessage(int(code), "")
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, h.deadline()); err != nil {
		log.Debug().Err(err).Uint32("client", uint32(c.id)).Msg("failed to send close frame")
	}
	if err := c.conn.Close(); err != nil {
		log.Debug().Err(err).Uint32("client", uint32(c.id)).Msg("closing websocket")
	}
}

// writeBuffer frames buf one window at a time. Acknowledged here means
// handed to the socket, not confirmed by the peer: gorilla copies each frame
// into its write buffer and the write returns once it is flushed. The buffer
// therefore never waits on an outstanding ack in this transport.
func writeBuffer(fw *frameWriter, buf *nocopy.Buffer) error {
	defer buf.Release()
	for !buf.Done() {
		n, err := buf.Send(fw)
		if err != nil {
			return err
		}
		if n == 0 {
			return errBufferStuck
		}
		if err := buf.Ack(nocopy.WireSize(n, false)); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) readLoop(c *client) error {
	c.conn.SetReadLimit(h.opts.ReadLimit)
	c.conn.SetPongHandler(func(string) error {
		h.emit(bridge.PongEvent{ID: c.id})
		return c.conn.SetReadDeadline(h.readDeadline())
	})

	for {
		if err := c.conn.SetReadDeadline(h.readDeadline()); err != nil {
			return nil
		}
		_, r, err := c.conn.NextReader()
		if err != nil {
			// Close frames, dropped sockets and silent peers are ordinary
			// disconnects.
			if errors.Is(err, websocket.ErrReadLimit) {
				return err
			}
			log.Debug().Err(err).Uint32("client", uint32(c.id)).Msg("websocket read ended")
			return nil
		}
		if err := h.readMessage(c.id, r); err != nil {
			if errors.Is(err, ErrHubClosed) {
				return nil
			}
			return err
		}
	}
}

// readMessage splits one message into chunk-sized data events. Reading one
// chunk ahead tells whether the current chunk is the last.
func (h *Hub) readMessage(id bridge.ClientID, r io.Reader) error {
	size := h.opts.ReadChunk
	send := func(data []byte, first, final bool) error {
		if !h.emit(bridge.DataEvent{ID: id, Data: data, First: first, Final: final}) {
			return ErrHubClosed
		}
		return nil
	}

	cur, err := readChunk(r, size)
	first := true
	for {
		if err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		if err != nil {
			return send(cur, first, true)
		}
		next, nerr := readChunk(r, size)
		if nerr != nil && !errors.Is(nerr, io.EOF) {
			return nerr
		}
		if nerr != nil && len(next) == 0 {
			return send(cur, first, true)
		}
		if err := send(cur, first, false); err != nil {
			return err
		}
		first = false
		cur, err = next, nerr
	}
}

// readChunk reads up to size bytes. io.EOF means the chunk, possibly
// empty, ends the message.
func readChunk(r io.Reader, size int) ([]byte, error) {
	buf := make([]byte, size)
	n, err := io.ReadFull(r, buf)
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return buf[:n], io.EOF
	case err != nil:
		return nil, err
	}
	return buf, nil
}

func (h *Hub) deadline() time.Time {
	return h.opts.Clock.Now().Add(h.opts.WriteTimeout)
}

func (h *Hub) readDeadline() time.Time {
	return h.opts.Clock.Now().Add(h.opts.ReadTimeout)
}
