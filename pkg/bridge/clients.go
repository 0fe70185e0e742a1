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
	"crypto/subtle"
	"encoding/json"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/notifications"
	"github.com/rs/zerolog/log"
)

type authMessage struct {
	AuthToken string `json:"AuthToken"`
}

// onNewClient decides whether a connection may be admitted as pending.
func (e *Engine) onNewClient(id ClientID) bool {
	if e.blocked.Contains(id, e.clock.Now()) {
		log.Debug().Uint32("client", uint32(id)).Msg("rejecting blocked client")
		return false
	}
	if !e.registry.AddPending(id, e.clock.Now()) {
		log.Info().
			Uint32("client", uint32(id)).
			Int("clients", e.registry.Len()).
			Int("pending", e.registry.Pending()).
			Msg("rejecting client, bridge at capacity")
		return false
	}
	log.Info().Uint32("client", uint32(id)).Msg("client connected")
	e.notifyClients(models.ClientConnected, id, 0)
	return true
}

// removeClient forgets id and blocks it for the expiry window. It is safe
// to call any number of times.
func (e *Engine) removeClient(id ClientID) {
	known := e.registry.Remove(id)
	e.blocked.Add(id, e.clock.Now())
	e.fragments.release(id)
	if known {
		log.Info().Uint32("client", uint32(id)).Msg("client removed")
		e.notifyClients(models.ClientRemoved, id, 0)
	}
}

// nukeClient removes id and closes its connection with code.
func (e *Engine) nukeClient(id ClientID, code CloseCode) {
	log.Debug().Uint32("client", uint32(id)).Uint16("code", uint16(code)).Msg("closing client")
	e.removeClient(id)
	e.transport.Close(id, code)
}

// onFrame handles one inbound WebSocket frame.
func (e *Engine) onFrame(id ClientID, data []byte, final, first bool) {
	if e.blocked.Contains(id, e.clock.Now()) {
		log.Trace().Uint32("client", uint32(id)).Msg("dropping frame from blocked client")
		return
	}
	if !e.registry.Known(id) && !e.onNewClient(id) {
		e.nukeClient(id, ClosePolicyViolation)
		return
	}

	if first && final {
		e.handleMessage(id, data, 0)
		return
	}

	slot := e.fragments.acquire(id, e.registry.Known)
	if first {
		if len(data) == 0 || data[0] != CmdInput {
			log.Warn().Uint32("client", uint32(id)).Msg("fragmented message is not terminal input")
			e.nukeClient(id, CloseInternalError)
			return
		}
		slot.begin(data[0])
		data = data[1:]
	} else if slot.cmd == 0 {
		log.Warn().Uint32("client", uint32(id)).Msg("continuation frame without a message start")
		e.nukeClient(id, CloseProtocolError)
		return
	}

	if !slot.append(data) {
		log.Warn().Uint32("client", uint32(id)).Int("limit", cap(slot.buf)).Msg("fragmented message too large")
		e.nukeClient(id, CloseInternalError)
		return
	}
	if !final {
		return
	}

	e.handleMessage(id, slot.buf, slot.cmd)
	e.fragments.release(id)
}

// handleMessage processes a complete message. When cmd is non-zero the
// message was reassembled and buf holds only the payload.
func (e *Engine) handleMessage(id ClientID, buf []byte, cmd byte) {
	payload := buf
	switch {
	case cmd != 0 && cmd != CmdInput:
		e.nukeClient(id, CloseInternalError)
		return
	case cmd == 0:
		if len(buf) == 0 {
			return
		}
		cmd, payload = buf[0], buf[1:]
	}

	var auth authMessage
	if cmd == CmdJSON {
		if err := json.Unmarshal(buf, &auth); err != nil {
			log.Warn().Err(err).Uint32("client", uint32(id)).Msg("malformed JSON message")
			e.nukeClient(id, CloseInvalidPayload)
			return
		}
	}

	now := e.clock.Now()
	if !e.registry.IsAuthenticated(id) {
		if e.cfg.AuthToken != "" && (cmd != CmdJSON || !e.tokenMatches(auth.AuthToken)) {
			log.Warn().Uint32("client", uint32(id)).Msg("client failed authentication")
			e.nukeClient(id, ClosePolicyViolation)
			return
		}
		if !e.registry.Authenticate(id, now) {
			e.nukeClient(id, ClosePolicyViolation)
			return
		}
		log.Info().Uint32("client", uint32(id)).Msg("client authenticated")
		e.notifyClients(models.ClientAuthenticated, id, 0)
		e.sendInitialMessages(id)
	}
	e.registry.Seen(id, now)

	switch cmd {
	case CmdInput:
		e.writeSerial(payload)
	case CmdPause:
		e.uartStop(sourceRemote)
	case CmdResume:
		e.uartResume(sourceRemote)
	case CmdJSON, CmdResize:
	default:
		log.Debug().Uint32("client", uint32(id)).Msgf("unknown command %q", cmd)
	}
}

func (e *Engine) tokenMatches(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(e.cfg.AuthToken)) == 1
}

func (e *Engine) sendInitialMessages(id ClientID) {
	title := append([]byte{CmdSetTitle}, e.windowTitle()...)
	if err := e.transport.Send(id, title); err != nil {
		log.Warn().Err(err).Uint32("client", uint32(id)).Msg("failed to send window title")
	}
	prefs := append([]byte{CmdPreferences}, e.cfg.Preferences...)
	if err := e.transport.Send(id, prefs); err != nil {
		log.Warn().Err(err).Uint32("client", uint32(id)).Msg("failed to send preferences")
	}
}

// writeSerial forwards terminal input to the line.
func (e *Engine) writeSerial(p []byte) {
	if len(p) == 0 {
		return
	}
	for len(p) > 0 {
		n, err := e.serial.Write(p)
		e.totalTx += uint64(n)
		if err != nil {
			log.Warn().Err(err).Int("dropped", len(p)-n).Msg("serial write failed")
			return
		}
		if n == 0 {
			log.Warn().Int("dropped", len(p)).Msg("serial write made no progress")
			return
		}
		p = p[n:]
	}
	e.leds[LEDTx].requested = true
}

func (e *Engine) notifyClients(event string, id ClientID, code CloseCode) {
	notifications.ClientsChanged(e.ns, models.ClientsParams{
		Event:   event,
		Client:  uint32(id),
		Code:    int(code),
		Clients: e.registry.Len(),
		Pending: e.registry.Pending(),
	})
}
