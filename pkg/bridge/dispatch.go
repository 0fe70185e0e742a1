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
	"time"

	"github.com/rs/zerolog/log"
)

// dispatch moves buffered serial data to the clients. It runs on every
// dispatch tick and whenever the port reports new data.
func (e *Engine) dispatch() {
	if e.registry.Len() == 0 {
		e.uartResume(sourceLocal | sourceRemote)
		e.wsStopped = false
		e.coalesceUntil = time.Time{}
		return
	}

	// Flow control runs on idle cycles too. A device held off by XOFF
	// stays silent until it sees XON.
	avail := e.serial.Available()
	now := e.clock.Now()
	e.flowControlLink(avail, now)
	e.flowControlMemory(now)
	if e.fatal != nil {
		return
	}

	if avail == 0 {
		e.coalesceUntil = time.Time{}
		return
	}
	if avail < e.cfg.RxSoftMin {
		if e.coalesceUntil.IsZero() {
			e.coalesceUntil = now.Add(e.coalesceDelay())
			return
		}
		if now.Before(e.coalesceUntil) {
			return
		}
		avail = e.serial.Available()
	}
	e.coalesceUntil = time.Time{}

	if e.wsStopped || !e.canSend() {
		return
	}

	buf := make([]byte, avail+1)
	buf[0] = CmdOutput
	n, err := e.serial.Read(buf[1:])
	if err != nil {
		log.Warn().Err(err).Msg("serial read failed")
		return
	}
	if n == 0 {
		return
	}

	e.totalRx += uint64(n)
	e.leds[LEDRx].requested = true
	e.broadcast(buf[:n+1])
}

// coalesceDelay is roughly the time to receive two thirds of a send buffer
// at the current baud rate, capped at CoalesceMax.
func (e *Engine) coalesceDelay() time.Duration {
	baud := max(e.cfg.Line.BaudRate, 1)
	ms := 1000 * e.cfg.SendBufferSize * 8 * 2 / 3 / baud
	return min(time.Duration(ms)*time.Millisecond, e.cfg.CoalesceMax)
}
