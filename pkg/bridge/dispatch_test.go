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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutePicksPathByClientCount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	assert.Nil(t, h.engine.route([]byte("0x")))

	h.connect(t, 1)
	fp, ok := h.engine.route([]byte("0x")).(fastPath)
	require.True(t, ok)
	assert.Equal(t, ClientID(1), fp.id)

	h.connect(t, 2)
	sp, ok := h.engine.route([]byte("0x")).(slowPath)
	require.True(t, ok)
	assert.Equal(t, []ClientID{1, 2}, sp.ids)
}

func TestCoalescingDelay(t *testing.T) {
	t.Parallel()

	tests := []struct {
		baud int
		want time.Duration
	}{
		{baud: 9600, want: 5 * time.Millisecond},
		{baud: 115200, want: 5 * time.Millisecond},
		{baud: 3686400, want: 2 * time.Millisecond},
		{baud: 4000000, want: 2 * time.Millisecond},
	}

	for _, tt := range tests {
		h := newHarness(t, nil)
		h.engine.cfg.Line.BaudRate = tt.baud
		assert.Equal(t, tt.want, h.engine.coalesceDelay(), "baud %d", tt.baud)
	}
}

func TestDispatchCoalescesSmallReads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.reset()

	h.serial.rx = []byte("abc")
	h.engine.dispatch()
	assert.Empty(t, h.transport.outputs(1), "small read waits for more data")

	h.serial.rx = append(h.serial.rx, "def"...)
	h.clock.Advance(time.Millisecond)
	h.engine.dispatch()
	assert.Empty(t, h.transport.outputs(1))

	h.clock.Advance(h.engine.coalesceDelay())
	h.engine.dispatch()
	require.Len(t, h.transport.outputs(1), 1)
	assert.Equal(t, "abcdef", string(h.transport.outputs(1)[0]))
	assert.Equal(t, uint64(6), h.engine.totalRx)
}

func TestDispatchLargeReadIsImmediate(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.reset()

	h.serial.rx = bytes.Repeat([]byte("x"), h.engine.cfg.RxSoftMin)
	h.engine.dispatch()
	require.Len(t, h.transport.outputs(1), 1)
	assert.Len(t, h.transport.outputs(1)[0], h.engine.cfg.RxSoftMin)
}

func TestDispatchWithoutClientsClearsFlowControl(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.engine.onFrame(1, []byte{CmdPause}, true, true)
	require.Equal(t, []byte{XOFF}, h.serial.written)

	h.engine.removeClient(1)
	h.serial.rx = []byte("pending")
	h.engine.dispatch()

	assert.Equal(t, []byte{XOFF, XON}, h.serial.written)
	assert.Zero(t, h.engine.uartFlow)
	assert.Equal(t, 7, h.serial.Available(), "nothing is read with no one to send to")
}

func TestFlowControlIdempotentAcrossSources(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)

	h.engine.uartStop(sourceRemote)
	h.engine.uartStop(sourceRemote)
	h.engine.uartStop(sourceRemote)
	assert.Equal(t, []byte{XOFF}, h.serial.written)

	h.engine.uartStop(sourceLocal)
	h.engine.uartResume(sourceLocal)
	assert.Equal(t, []byte{XOFF}, h.serial.written, "remote source still holds the line")

	h.engine.uartResume(sourceRemote)
	h.engine.uartResume(sourceRemote)
	assert.Equal(t, []byte{XOFF, XON}, h.serial.written)
}

func TestFlowControlDisabled(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(c *Config) { c.SoftwareFlowControl = false })
	h.engine.uartStop(sourceRemote)
	h.engine.uartResume(sourceRemote)
	assert.Empty(t, h.serial.written)
}

func TestFullQueueHoldsSerialData(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.connect(t, 2)
	h.transport.reset()
	h.transport.full[2] = true

	h.serial.rx = bytes.Repeat([]byte("y"), 3000)
	h.engine.dispatch()

	assert.Empty(t, h.transport.outputs(1), "no client receives data while one is full")
	assert.Equal(t, 3000, h.serial.Available())
	assert.Equal(t, []byte{XOFF}, h.serial.written)

	h.transport.full[2] = false
	h.engine.dispatch()
	assert.Len(t, h.transport.outputs(1), 1)
	assert.Len(t, h.transport.outputs(2), 1)
}

func TestStallWhenStoppedUnderMemoryPressure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.full[1] = true
	h.serial.rx = bytes.Repeat([]byte("z"), 3000)

	h.engine.dispatch()
	require.NoError(t, h.engine.fatal)

	h.clock.Advance(h.engine.cfg.LocalMaxStop + time.Millisecond)
	h.engine.dispatch()
	require.NoError(t, h.engine.fatal, "plenty of memory, keep waiting")

	h.memory.free = h.engine.cfg.MemoryLowWatermark
	h.engine.dispatch()
	require.ErrorIs(t, h.engine.fatal, ErrStalled)
}

// Client A authenticates, gets one zero-copy frame; once B joins the same
// data goes out copied to both.
func TestScenarioAuthThenBroadcast(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withToken)
	h.connect(t, 1)

	frames := h.transport.frames[1]
	require.Len(t, frames, 2)
	assert.Equal(t, CmdSetTitle, frames[0][0])
	assert.Equal(t, CmdPreferences, frames[1][0])
	assert.Empty(t, h.transport.frames[2])

	payload := bytes.Repeat([]byte("a"), 200)
	h.serial.rx = bytes.Clone(payload)
	h.pump()

	require.Len(t, h.transport.outputs(1), 1)
	assert.Equal(t, payload, h.transport.outputs(1)[0])
	assert.Equal(t, 1, h.transport.noCopy)

	h.connect(t, 2)
	h.transport.reset()

	payload = bytes.Repeat([]byte("b"), 300)
	h.serial.rx = bytes.Clone(payload)
	h.pump()

	assert.Zero(t, h.transport.noCopy)
	assert.Equal(t, 2, h.transport.copies)
	require.Len(t, h.transport.outputs(1), 1)
	require.Len(t, h.transport.outputs(2), 1)
	assert.Equal(t, payload, h.transport.outputs(1)[0])
	assert.Equal(t, payload, h.transport.outputs(2)[0])

	a, b := h.transport.frames[1][0], h.transport.frames[2][0]
	assert.NotSame(t, &a[0], &b[0], "each client owns its copy")
}

// Availability above the high watermark for three cycles writes one XOFF.
// The device then goes quiet, and the drained ring alone brings the XON.
func TestScenarioHighWatermark(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)

	h.serial.sticky = true
	h.serial.rx = bytes.Repeat([]byte("h"), h.engine.cfg.HighWatermark+1)
	for range 3 {
		h.engine.dispatch()
	}
	assert.Equal(t, 1, count(h.serial.written, XOFF))
	assert.Zero(t, count(h.serial.written, XON))

	h.serial.sticky = false
	h.engine.dispatch()
	require.Zero(t, h.serial.Available())
	assert.Equal(t, []byte{XOFF}, h.serial.written, "ring drained on this cycle")

	h.clock.Advance(h.engine.cfg.DispatchInterval)
	h.engine.dispatch()
	assert.Equal(t, []byte{XOFF, XON}, h.serial.written)
	assert.Zero(t, h.engine.uartFlow)

	for range 10 {
		h.clock.Advance(h.engine.cfg.DispatchInterval)
		h.engine.dispatch()
	}
	assert.Equal(t, []byte{XOFF, XON}, h.serial.written, "level-triggered, no repeats")
}

func TestSilentLineResumesAfterQueueDrains(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.full[1] = true
	// Between the watermarks, so the queue draining alone does not resume.
	h.serial.rx = bytes.Repeat([]byte("s"), h.engine.cfg.LowWatermark+10)

	h.engine.dispatch()
	require.Equal(t, []byte{XOFF}, h.serial.written)

	h.transport.full[1] = false
	h.engine.dispatch()
	require.Len(t, h.transport.outputs(1), 1)
	require.Zero(t, h.serial.Available())
	require.Equal(t, []byte{XOFF}, h.serial.written)

	for range 1000 {
		h.clock.Advance(h.engine.cfg.LEDInterval)
		h.engine.dispatch()
		h.engine.housekeeping()
	}

	assert.Equal(t, []byte{XOFF, XON}, h.serial.written)
	assert.Zero(t, h.engine.uartFlow)
	require.NoError(t, h.engine.fatal)
}

func TestStallDetectedOnIdleLine(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.full[1] = true
	h.memory.free = h.engine.cfg.MemoryLowWatermark

	h.engine.dispatch()
	require.Equal(t, []byte{XOFF}, h.serial.written)
	require.NoError(t, h.engine.fatal)

	h.clock.Advance(h.engine.cfg.LocalMaxStop + time.Millisecond)
	h.engine.dispatch()
	assert.ErrorIs(t, h.engine.fatal, ErrStalled)
}

// Low memory pauses all clients once and holds output until memory
// recovers.
func TestScenarioMemoryPressure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.connect(t, 2)
	h.transport.reset()

	data := bytes.Repeat([]byte("m"), h.engine.cfg.RxSoftMin)
	h.memory.free = h.engine.cfg.MemoryLowWatermark
	h.serial.rx = bytes.Clone(data)

	h.engine.dispatch()
	h.clock.Advance(100 * time.Millisecond)
	h.engine.dispatch()

	for _, id := range []ClientID{1, 2} {
		require.Len(t, h.transport.frames[id], 1)
		assert.Equal(t, []byte{CmdServerPause}, h.transport.frames[id][0])
		assert.Empty(t, h.transport.outputs(id))
	}

	h.memory.free = h.engine.cfg.MemoryHighWatermark
	h.engine.dispatch()

	for _, id := range []ClientID{1, 2} {
		require.Len(t, h.transport.frames[id], 3)
		assert.Equal(t, []byte{CmdServerResume}, h.transport.frames[id][1])
		assert.Equal(t, data, h.transport.outputs(id)[0])
	}
}

func TestMemoryPauseLiftedAfterMaxStop(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	h.connect(t, 1)
	h.transport.reset()

	h.memory.free = 0
	h.serial.rx = bytes.Repeat([]byte("q"), h.engine.cfg.RxSoftMin)
	h.engine.dispatch()
	require.True(t, h.engine.wsStopped)

	h.clock.Advance(h.engine.cfg.MemoryMaxStop + time.Millisecond)
	h.engine.dispatch()
	assert.False(t, h.engine.wsStopped)
	require.Len(t, h.transport.outputs(1), 1, "one cycle of data gets through")

	h.serial.rx = bytes.Repeat([]byte("r"), h.engine.cfg.RxSoftMin)
	h.engine.dispatch()
	assert.True(t, h.engine.wsStopped, "still low, paused again")
	assert.Len(t, h.transport.outputs(1), 1)
}
