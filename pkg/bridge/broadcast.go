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
	"bytes"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/rs/zerolog/log"
)

// delivery is how a broadcast reaches its recipients.
type delivery interface {
	deliver(t Transport)
}

// fastPath hands a single client the buffer itself.
type fastPath struct {
	buf *nocopy.Buffer
	id  ClientID
}

// slowPath gives every client its own copy of shared.
type slowPath struct {
	shared []byte
	ids    []ClientID
}

func (d fastPath) deliver(t Transport) {
	if err := t.SendNoCopy(d.id, d.buf); err != nil {
		log.Warn().Err(err).Uint32("client", uint32(d.id)).Msg("failed to queue frame")
	}
}

func (d slowPath) deliver(t Transport) {
	for _, id := range d.ids {
		if err := t.Send(id, bytes.Clone(d.shared)); err != nil {
			log.Warn().Err(err).Uint32("client", uint32(id)).Msg("failed to queue frame")
		}
	}
}

// route picks the delivery for msg. The engine must not touch msg after a
// fastPath has been delivered.
func (e *Engine) route(msg []byte) delivery {
	ids := e.registry.IDs()
	switch len(ids) {
	case 0:
		return nil
	case 1:
		return fastPath{id: ids[0], buf: nocopy.New(msg)}
	default:
		return slowPath{ids: ids, shared: msg}
	}
}

func (e *Engine) broadcast(msg []byte) {
	if d := e.route(msg); d != nil {
		d.deliver(e.transport)
	}
}

// canSend reports whether every authenticated client has room in its
// send queue.
func (e *Engine) canSend() bool {
	for _, id := range e.registry.IDs() {
		if e.transport.QueueFull(id) {
			return false
		}
	}
	return true
}
