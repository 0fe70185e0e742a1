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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultAutobaudTimeout  = 10 * time.Second
	DefaultAutobaudInterval = 100 * time.Millisecond

	// minSampleBytes is the smallest sample worth scoring.
	minSampleBytes = 8
	// acceptScore is the printable ratio at which a rate is accepted.
	acceptScore = 0.9
)

var ErrBaudNotDetected = errors.New("baud rate not detected")

// Sampler is a line whose framing can be switched and whose received bytes
// can be inspected.
type Sampler interface {
	Configure(params LineParams) error
	Available() int
	Read(p []byte) (int, error)
}

type AutobaudOptions struct {
	Clock    clockwork.Clock
	Timeout  time.Duration
	Interval time.Duration
	// Candidates are tried in order. Defaults to StandardRates, most
	// common first.
	Candidates []int
}

func (o *AutobaudOptions) defaults() {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultAutobaudTimeout
	}
	if o.Interval <= 0 {
		o.Interval = DefaultAutobaudInterval
	}
	if len(o.Candidates) == 0 {
		o.Candidates = defaultCandidates()
	}
}

func defaultCandidates() []int {
	common := []int{115200, 9600, 57600, 38400, 19200, 230400, 460800, 921600}
	out := append([]int{}, common...)
	for _, r := range StandardRates {
		if !slices.Contains(common, r) {
			out = append(out, r)
		}
	}
	return out
}

// DetectBaudRate cycles the line through candidate rates, sampling traffic
// for one interval at each, until a sample decodes as mostly text. The
// winning rate is snapped to the standard table. The line is left at the
// detected rate, or at base if nothing was detected.
func DetectBaudRate(ctx context.Context, s Sampler, base LineParams, opts AutobaudOptions) (int, error) {
	opts.defaults()

	deadline := opts.Clock.Now().Add(opts.Timeout)
	buf := make([]byte, readChunkSize)

	for i := 0; ; i++ {
		if !opts.Clock.Now().Before(deadline) {
			break
		}

		rate := opts.Candidates[i%len(opts.Candidates)]
		params := base
		params.BaudRate = rate
		if err := s.Configure(params); err != nil {
			return 0, fmt.Errorf("autobaud configure %d: %w", rate, err)
		}

		select {
		case <-ctx.Done():
			_ = s.Configure(base)
			return 0, fmt.Errorf("autobaud: %w", ctx.Err())
		case <-opts.Clock.After(opts.Interval):
		}

		n := min(s.Available(), len(buf))
		if n == 0 {
			continue
		}
		n, err := s.Read(buf[:n])
		if err != nil {
			return 0, fmt.Errorf("autobaud read: %w", err)
		}

		score := printableRatio(buf[:n])
		log.Debug().Int("baud", rate).Int("bytes", n).Float64("score", score).Msg("autobaud sample")
		if n >= minSampleBytes && score >= acceptScore {
			detected := ClosestStandardRate(rate)
			if detected != rate {
				params.BaudRate = detected
				if err := s.Configure(params); err != nil {
					return 0, fmt.Errorf("autobaud configure %d: %w", detected, err)
				}
			}
			return detected, nil
		}
	}

	if err := s.Configure(base); err != nil {
		return 0, fmt.Errorf("autobaud restore %d: %w", base.BaudRate, err)
	}
	return 0, ErrBaudNotDetected
}

func printableRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	good := 0
	for _, c := range b {
		if (c >= 0x20 && c < 0x7f) || c == '\r' || c == '\n' || c == '\t' || c == 0x1b {
			good++
		}
	}
	return float64(good) / float64(len(b))
}
