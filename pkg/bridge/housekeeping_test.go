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
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTimeout(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.connect(t, 2)

	h.clock.Advance(h.engine.cfg.PingInterval)
	h.engine.housekeeping()
	assert.Equal(t, []ClientID{1, 2}, h.transport.pings)

	h.engine.handleEvent(PongEvent{ID: 2})

	h.clock.Advance(h.engine.cfg.ClientTimeout - h.engine.cfg.PingInterval + time.Second)
	h.engine.housekeeping()

	assert.Equal(t, CloseNormal, h.transport.closed[1])
	_, closed := h.transport.closed[2]
	assert.False(t, closed, "pong kept client 2 alive")
	assert.Equal(t, []ClientID{2}, h.engine.registry.IDs())
}

func TestTimeoutSweepRunsOnInterval(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.ClientTimeout = time.Second })
	h.connect(t, 1)

	h.clock.Advance(2 * time.Second)
	h.engine.housekeeping()
	assert.Empty(t, h.transport.closed, "sweep only runs every check interval")

	h.clock.Advance(h.engine.cfg.TimeoutCheckInterval)
	h.engine.housekeeping()
	assert.Equal(t, CloseNormal, h.transport.closed[1])
}

func TestUnauthenticatedClientsReleaseCapacity(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withToken)
	for id := ClientID(1); id <= 3; id++ {
		require.True(t, h.engine.onNewClient(id))
	}
	require.False(t, h.engine.onNewClient(4), "pending clients fill the bridge")

	h.clock.Advance(h.engine.cfg.AuthTimeout + h.engine.cfg.TimeoutCheckInterval)
	h.engine.housekeeping()

	for id := ClientID(1); id <= 3; id++ {
		assert.Equal(t, ClosePolicyViolation, h.transport.closed[id])
	}
	assert.Zero(t, h.engine.registry.Pending())

	h.connect(t, 5)
	assert.Equal(t, []ClientID{5}, h.engine.registry.IDs())
}

func TestAuthTimeoutSparesAuthenticatedClients(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withToken)
	h.connect(t, 1)
	require.True(t, h.engine.onNewClient(2))

	h.clock.Advance(h.engine.cfg.AuthTimeout + h.engine.cfg.TimeoutCheckInterval)
	h.engine.housekeeping()

	assert.Equal(t, ClosePolicyViolation, h.transport.closed[2])
	_, closed := h.transport.closed[1]
	assert.False(t, closed)
	assert.Equal(t, []ClientID{1}, h.engine.registry.IDs())
}

func TestActivityLEDBlink(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.indicator.calls = nil

	h.serial.rx = []byte("data")
	h.pump()
	require.True(t, h.engine.leds[LEDRx].requested)

	step := func() {
		h.clock.Advance(h.engine.cfg.LEDInterval)
		h.engine.housekeeping()
	}

	step()
	assert.Equal(t, []ledCall{{led: LEDRx, on: true}}, h.indicator.calls)

	h.engine.leds[LEDRx].requested = true
	step()
	step()
	step()
	step()
	assert.Equal(t, []ledCall{{led: LEDRx, on: true}, {led: LEDRx, on: false}}, h.indicator.calls)

	for range 4 {
		step()
	}
	assert.Equal(t, []ledCall{
		{led: LEDRx, on: true},
		{led: LEDRx, on: false},
		{led: LEDRx, on: true},
	}, h.indicator.calls, "request made while busy blinks after the off time")
}

func TestStatusLEDFollowsFlowControl(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)

	h.engine.onFrame(1, []byte{CmdPause}, true, true)
	h.clock.Advance(h.engine.cfg.LEDInterval)
	h.engine.housekeeping()
	h.engine.onFrame(1, []byte{CmdResume}, true, true)
	h.clock.Advance(h.engine.cfg.LEDInterval)
	h.engine.housekeeping()

	assert.Equal(t, []ledCall{
		{led: LEDStatus, on: true},
		{led: LEDStatus, on: false},
	}, h.indicator.calls)
}

func TestStatsRates(t *testing.T) {
	t.Parallel()

	ns := make(chan models.Notification, 4)
	h := newHarness(t, nil)
	h.engine.ns = ns
	h.connect(t, 1)
	for len(ns) > 0 {
		<-ns
	}

	h.engine.onFrame(1, []byte("0"+string(make([]byte, 100))), true, true)
	h.serial.rx = make([]byte, 250)
	h.pump()

	h.clock.Advance(testEpoch.Add(time.Second).Sub(h.clock.Now()))
	h.engine.housekeeping()

	assert.Equal(t, uint64(800), h.engine.txBps)
	assert.Equal(t, uint64(2000), h.engine.rxBps)

	require.Len(t, ns, 1)
	n := <-ns
	assert.Equal(t, models.NotificationStats, n.Method)
	var p models.StatsParams
	require.NoError(t, json.Unmarshal(n.Params, &p))
	assert.Equal(t, uint64(250), p.RxTotal)
	assert.Equal(t, 1, p.Clients)
}

func TestSttyAppliesAndRebroadcastsTitle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.reset()

	params := uart.LineParams{BaudRate: 9600, DataBits: 7, Parity: uart.ParityEven, StopBits: uart.StopBits2}
	require.NoError(t, h.engine.stty(params))

	assert.Equal(t, []uart.LineParams{params}, h.serial.configs)
	assert.Equal(t, params, h.engine.cfg.Line)
	require.Len(t, h.transport.frames[1], 1)
	assert.Equal(t, string(CmdSetTitle)+"9600bps 7E2 (test) - Zaparoo Bridge", string(h.transport.frames[1][0]))
}

func TestSttyRejectsInvalid(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	err := h.engine.stty(uart.LineParams{BaudRate: 1, DataBits: 8})
	require.ErrorIs(t, err, uart.ErrInvalidParams)
	assert.Empty(t, h.serial.configs)

	h.serial.configErr = errors.New("ioctl failed")
	err = h.engine.stty(uart.DefaultLineParams)
	require.Error(t, err)
	assert.Equal(t, uart.DefaultLineParams, h.engine.cfg.Line)
}

func TestSttyWithoutClientsSendsNothing(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	require.NoError(t, h.engine.stty(uart.DefaultLineParams))
	assert.Empty(t, h.transport.frames)
}

func TestAnnounceLeavesPortAlone(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ns := make(chan models.Notification, 4)
	h.engine.ns = ns
	h.connect(t, 1)
	h.transport.reset()
	h.serial.rx = []byte("received since detection")

	h.engine.announce()

	assert.Empty(t, h.serial.configs)
	assert.Equal(t, "received since detection", string(h.serial.rx))
	require.Len(t, h.transport.frames[1], 1)
	assert.Equal(t, string(CmdSetTitle)+"115200bps 8N1 (test) - Zaparoo Bridge", string(h.transport.frames[1][0]))

	var methods []string
	for len(ns) > 0 {
		methods = append(methods, (<-ns).Method)
	}
	assert.Contains(t, methods, models.NotificationStty)
}

func TestSttyParamsWireForm(t *testing.T) {
	t.Parallel()

	assert.Equal(t, models.SttyParams{BaudRate: 115200, Bits: 8, Parity: -1, Stop: 1},
		SttyParams(uart.DefaultLineParams))
	assert.Equal(t, models.SttyParams{BaudRate: 300, Bits: 7, Parity: 1, Stop: 2},
		SttyParams(uart.LineParams{BaudRate: 300, DataBits: 7, Parity: uart.ParityOdd, StopBits: uart.StopBits2}))

	baud, parity := 9600, 0
	got := ApplySttyRequest(uart.DefaultLineParams, models.SttyRequest{BaudRate: &baud, Parity: &parity})
	assert.Equal(t, uart.LineParams{BaudRate: 9600, DataBits: 8, Parity: uart.ParityEven, StopBits: uart.StopBits1}, got)
}

func TestSttyThroughRunLoop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx, make(chan Event)) }()

	params := uart.LineParams{BaudRate: 57600, DataBits: 8}
	require.NoError(t, h.engine.Stty(ctx, params))
	st, err := h.engine.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, params, st.Line)
	assert.Equal(t, 3, st.MaxClients)

	require.ErrorIs(t, h.engine.Stty(ctx, uart.LineParams{}), uart.ErrInvalidParams)

	cancel()
	require.NoError(t, <-done)
}
