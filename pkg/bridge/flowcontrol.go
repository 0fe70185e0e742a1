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

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/notifications"
	"github.com/rs/zerolog/log"
)

// uartStop asks the device to pause on behalf of src. XOFF is written only
// when the first source engages.
func (e *Engine) uartStop(src flowSource) {
	if !e.cfg.SoftwareFlowControl {
		return
	}
	if src&sourceLocal != 0 && e.uartFlow&sourceLocal == 0 {
		e.localStopSince = e.clock.Now()
	}
	if e.uartFlow == 0 {
		e.writeControl(XOFF)
		log.Debug().Stringer("source", src).Msg("serial flow stopped")
		notifications.FlowChanged(e.ns, models.FlowParams{
			Direction: models.FlowUART,
			Source:    src.String(),
			Stopped:   true,
		})
	}
	e.uartFlow |= src
}

// uartResume clears src. XON is written once no source remains.
func (e *Engine) uartResume(src flowSource) {
	if !e.cfg.SoftwareFlowControl || e.uartFlow == 0 {
		return
	}
	e.uartFlow &^= src
	if e.uartFlow == 0 {
		e.writeControl(XON)
		log.Debug().Stringer("source", src).Msg("serial flow resumed")
		notifications.FlowChanged(e.ns, models.FlowParams{
			Direction: models.FlowUART,
			Source:    src.String(),
			Stopped:   false,
		})
	}
}

func (e *Engine) writeControl(b byte) {
	if _, err := e.serial.Write([]byte{b}); err != nil {
		log.Warn().Err(err).Msgf("failed to write flow control byte 0x%02x", b)
	}
}

// flowControlLink holds the device off while the receive ring is nearly
// full or a client cannot take more data.
func (e *Engine) flowControlLink(avail int, now time.Time) {
	if avail > e.cfg.HighWatermark || !e.canSend() {
		e.uartStop(sourceLocal)
	} else if avail < e.cfg.LowWatermark {
		e.uartResume(sourceLocal)
	}

	if e.uartFlow&sourceLocal == 0 || now.Sub(e.localStopSince) <= e.cfg.LocalMaxStop {
		return
	}
	if free := e.memory.Free(); free <= e.cfg.MemoryLowWatermark {
		log.Error().
			Dur("stopped", now.Sub(e.localStopSince)).
			Uint64("free", free).
			Msg("serial line stalled under memory pressure")
		e.fatal = ErrStalled
	}
}

// flowControlMemory pauses clients while free memory is low. A pause that
// has lasted longer than MemoryMaxStop is lifted for at least one cycle.
func (e *Engine) flowControlMemory(now time.Time) {
	free := e.memory.Free()
	if e.wsStopped {
		if free >= e.cfg.MemoryHighWatermark || now.Sub(e.wsStopSince) > e.cfg.MemoryMaxStop {
			e.setWSFlow(false, free)
		}
		return
	}
	if free <= e.cfg.MemoryLowWatermark {
		e.wsStopSince = now
		e.setWSFlow(true, free)
	}
}

func (e *Engine) setWSFlow(stopped bool, free uint64) {
	e.wsStopped = stopped
	cmd := CmdServerResume
	if stopped {
		cmd = CmdServerPause
	}
	e.broadcast([]byte{cmd})
	log.Debug().Bool("stopped", stopped).Uint64("free", free).Msg("client flow changed")
	notifications.FlowChanged(e.ns, models.FlowParams{
		Direction: models.FlowWebSocket,
		Stopped:   stopped,
	})
}
