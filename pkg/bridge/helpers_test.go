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

	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeSerial struct {
	configErr error
	rx        []byte
	written   []byte
	configs   []uart.LineParams
	// sticky keeps rx in place after a read so the line stays busy.
	sticky bool
}

func (f *fakeSerial) Configure(p uart.LineParams) error {
	if f.configErr != nil {
		return f.configErr
	}
	f.configs = append(f.configs, p)
	return nil
}

func (f *fakeSerial) Available() int { return len(f.rx) }

func (f *fakeSerial) Read(p []byte) (int, error) {
	n := copy(p, f.rx)
	if !f.sticky {
		f.rx = f.rx[n:]
	}
	return n, nil
}

func (f *fakeSerial) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

type fakeTransport struct {
	frames  map[ClientID][][]byte
	closed  map[ClientID]CloseCode
	full    map[ClientID]bool
	pings   []ClientID
	noCopy  int
	copies  int
	sendErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		frames: make(map[ClientID][][]byte),
		closed: make(map[ClientID]CloseCode),
		full:   make(map[ClientID]bool),
	}
}

func (f *fakeTransport) Send(id ClientID, msg []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.copies++
	f.frames[id] = append(f.frames[id], msg)
	return nil
}

func (f *fakeTransport) SendNoCopy(id ClientID, buf *nocopy.Buffer) error {
	f.noCopy++
	f.frames[id] = append(f.frames[id], buf.Bytes())
	return nil
}

func (f *fakeTransport) Close(id ClientID, code CloseCode) {
	f.closed[id] = code
}

func (f *fakeTransport) Ping(id ClientID) error {
	f.pings = append(f.pings, id)
	return nil
}

func (f *fakeTransport) QueueFull(id ClientID) bool {
	return f.full[id]
}

// outputs returns the '0' frames received by id, without the command byte.
func (f *fakeTransport) outputs(id ClientID) [][]byte {
	var out [][]byte
	for _, fr := range f.frames[id] {
		if len(fr) > 0 && fr[0] == CmdOutput {
			out = append(out, fr[1:])
		}
	}
	return out
}

func (f *fakeTransport) reset() {
	clear(f.frames)
	f.noCopy = 0
	f.copies = 0
}

type fakeMemory struct {
	free uint64
}

func (m *fakeMemory) Free() uint64 { return m.free }

type ledCall struct {
	led LED
	on  bool
}

type fakeIndicator struct {
	calls []ledCall
}

func (f *fakeIndicator) Set(led LED, on bool) {
	f.calls = append(f.calls, ledCall{led: led, on: on})
}

type harness struct {
	engine    *Engine
	serial    *fakeSerial
	transport *fakeTransport
	memory    *fakeMemory
	indicator *fakeIndicator
	clock     *clockwork.FakeClock
}

var testEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, mutate func(*Config)) *harness {
	t.Helper()

	cfg := DefaultConfig(uart.DefaultRxBufferSize)
	cfg.Title = "test"
	if mutate != nil {
		mutate(&cfg)
	}

	h := &harness{
		serial:    &fakeSerial{},
		transport: newFakeTransport(),
		memory:    &fakeMemory{free: 1 << 30},
		indicator: &fakeIndicator{},
		clock:     clockwork.NewFakeClockAt(testEpoch),
	}
	e, err := New(cfg, h.serial, h.transport,
		WithClock(h.clock),
		WithMemoryProbe(h.memory),
		WithIndicator(h.indicator),
	)
	require.NoError(t, err)
	h.engine = e
	return h
}

// connect admits and authenticates id with a single final frame.
func (h *harness) connect(t *testing.T, id ClientID) {
	t.Helper()

	require.True(t, h.engine.onNewClient(id))
	msg := []byte(`{"AuthToken":"` + h.engine.cfg.AuthToken + `"}`)
	h.engine.onFrame(id, msg, true, true)
	require.True(t, h.engine.registry.IsAuthenticated(id))
}

// pump runs dispatch past any coalescing delay.
func (h *harness) pump() {
	h.engine.dispatch()
	h.clock.Advance(h.engine.coalesceDelay())
	h.engine.dispatch()
}

func count(b []byte, c byte) int {
	return bytes.Count(b, []byte{c})
}
