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

package uart

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// lineSim hands out text only while configured at the right rate.
type lineSim struct {
	pending    []byte
	configured []int
	current    int
	actual     int
}

func (l *lineSim) Configure(p LineParams) error {
	l.current = p.BaudRate
	l.configured = append(l.configured, p.BaudRate)
	if l.current == l.actual {
		l.pending = []byte("login: root\r\nPassword: ")
	} else {
		l.pending = []byte{0xff, 0x00, 0xfe, 0x80, 0x81, 0x90, 0xa5, 0x5a, 0x12}
	}
	return nil
}

func (l *lineSim) Available() int { return len(l.pending) }

func (l *lineSim) Read(p []byte) (int, error) {
	n := copy(p, l.pending)
	l.pending = l.pending[n:]
	return n, nil
}

func runDetect(t *testing.T, sim *lineSim, timeout time.Duration) (int, error) {
	t.Helper()

	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		err  error
		rate int
	}
	done := make(chan result, 1)
	go func() {
		rate, err := DetectBaudRate(ctx, sim, DefaultLineParams, AutobaudOptions{
			Clock:      clock,
			Timeout:    timeout,
			Interval:   100 * time.Millisecond,
			Candidates: []int{115200, 9600, 57600},
		})
		done <- result{rate: rate, err: err}
	}()

	for {
		select {
		case r := <-done:
			return r.rate, r.err
		case <-ctx.Done():
			t.Fatal("autobaud did not finish")
		default:
		}

		waitCtx, waitCancel := context.WithTimeout(ctx, 20*time.Millisecond)
		err := clock.BlockUntilContext(waitCtx, 1)
		waitCancel()
		if err == nil {
			clock.Advance(100 * time.Millisecond)
		}
	}
}

func TestDetectBaudRateFindsRate(t *testing.T) {
	t.Parallel()

	sim := &lineSim{actual: 57600}
	rate, err := runDetect(t, sim, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 57600, rate)
	assert.Equal(t, []int{115200, 9600, 57600}, sim.configured)
}

func TestDetectBaudRateTimesOut(t *testing.T) {
	t.Parallel()

	sim := &lineSim{actual: 300}
	_, err := runDetect(t, sim, 500*time.Millisecond)
	require.ErrorIs(t, err, ErrBaudNotDetected)
	assert.Equal(t, DefaultLineParams.BaudRate, sim.current, "line restored to the base rate")
}

func TestPrintableRatio(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, printableRatio([]byte("hello\r\n")), 0.001)
	assert.InDelta(t, 0.5, printableRatio([]byte{'a', 0xff}), 0.001)
	assert.Zero(t, printableRatio(nil))
}
