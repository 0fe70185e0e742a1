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

type ledState struct {
	offAt     time.Time
	busyUntil time.Time
	requested bool
	on        bool
}

// housekeeping runs the periodic timers: LEDs, client timeouts, pings and
// throughput stats.
func (e *Engine) housekeeping() {
	now := e.clock.Now()

	if !now.Before(e.lastLED.Add(e.cfg.LEDInterval)) {
		e.lastLED = now
		e.handleLEDs(now)
	}
	if !now.Before(e.lastTimeoutCheck.Add(e.cfg.TimeoutCheckInterval)) {
		e.lastTimeoutCheck = now
		e.checkClientTimeouts(now)
	}
	if !now.Before(e.lastPing.Add(e.cfg.PingInterval)) {
		e.lastPing = now
		e.pingClients()
	}
	if !now.Before(e.lastStats.Add(e.cfg.StatsInterval)) {
		e.collectStats(now)
	}
}

// handleLEDs blinks the activity LEDs once per request, with a minimum off
// time between blinks, and mirrors flow control on the status LED.
func (e *Engine) handleLEDs(now time.Time) {
	for i := range e.leds {
		led := &e.leds[i]
		if !led.busyUntil.Before(now) {
			if led.on && led.offAt.Before(now) {
				led.on = false
				e.indicator.Set(LED(i), false)
			}
			continue
		}
		if led.requested {
			led.requested = false
			led.on = true
			led.offAt = now.Add(e.cfg.LEDOnTime)
			led.busyUntil = led.offAt.Add(e.cfg.LEDOffTime)
			e.indicator.Set(LED(i), true)
		} else if led.on {
			led.on = false
			e.indicator.Set(LED(i), false)
		}
	}

	status := e.wsStopped || e.uartFlow != 0
	if status != e.statusLED {
		e.statusLED = status
		e.indicator.Set(LEDStatus, status)
	}
}

// checkClientTimeouts closes silent clients and clients that never
// authenticated, which would otherwise hold a slot forever.
func (e *Engine) checkClientTimeouts(now time.Time) {
	e.expired = e.registry.Expired(e.expired[:0], now.Add(-e.cfg.ClientTimeout))
	for _, id := range e.expired {
		log.Info().Uint32("client", uint32(id)).Msg("client timed out")
		e.nukeClient(id, CloseNormal)
	}

	e.expired = e.registry.ExpiredPending(e.expired[:0], now.Add(-e.cfg.AuthTimeout))
	for _, id := range e.expired {
		log.Info().Uint32("client", uint32(id)).Msg("client did not authenticate in time")
		e.nukeClient(id, ClosePolicyViolation)
	}
}

func (e *Engine) pingClients() {
	for _, id := range e.registry.IDs() {
		if err := e.transport.Ping(id); err != nil {
			log.Debug().Err(err).Uint32("client", uint32(id)).Msg("failed to ping client")
		}
	}
}

func (e *Engine) collectStats(now time.Time) {
	elapsed := now.Sub(e.lastStats).Milliseconds()
	if elapsed <= 0 {
		return
	}
	e.lastStats = now

	e.txBps = (e.totalTx - e.prevTx) * 8 * 1000 / uint64(elapsed)
	e.rxBps = (e.totalRx - e.prevRx) * 8 * 1000 / uint64(elapsed)
	e.prevTx = e.totalTx
	e.prevRx = e.totalRx

	if e.registry.Len() == 0 && e.txBps == 0 && e.rxBps == 0 {
		return
	}
	notifications.Stats(e.ns, models.StatsParams{
		TxBps:   e.txBps,
		RxBps:   e.rxBps,
		TxTotal: e.totalTx,
		RxTotal: e.totalRx,
		Clients: e.registry.Len(),
	})
}
