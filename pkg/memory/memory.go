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

// Package memory samples how much memory the bridge can still use. The
// engine pauses clients when the figure drops below its low watermark.
package memory

import (
	"context"
	"fmt"
	"math"
	"runtime/metrics"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/mem"
)

const DefaultInterval = 100 * time.Millisecond

const (
	metricMemoryLimit = "/gc/gomemlimit:bytes"
	metricHeapTotal   = "/memory/classes/total:bytes"
)

// SystemFunc returns the bytes the OS reports as available.
type SystemFunc func(ctx context.Context) (uint64, error)

// RuntimeFunc returns the soft memory limit and the bytes mapped by the Go
// runtime. A limit of zero means unlimited.
type RuntimeFunc func() (limit, used uint64)

type Probe struct {
	clock    clockwork.Clock
	system   SystemFunc
	runtime  RuntimeFunc
	interval time.Duration
	free     atomic.Uint64
}

type Option func(*Probe)

func WithClock(clock clockwork.Clock) Option {
	return func(p *Probe) { p.clock = clock }
}

func WithInterval(d time.Duration) Option {
	return func(p *Probe) { p.interval = d }
}

func WithSystem(fn SystemFunc) Option {
	return func(p *Probe) { p.system = fn }
}

func WithRuntime(fn RuntimeFunc) Option {
	return func(p *Probe) { p.runtime = fn }
}

func New(opts ...Option) *Probe {
	p := &Probe{
		clock:    clockwork.NewRealClock(),
		system:   systemAvailable,
		runtime:  runtimeUsage,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.free.Store(math.MaxUint64)
	return p
}

// Free returns the last sampled figure. It never blocks, so the engine can
// call it on every dispatch.
func (p *Probe) Free() uint64 {
	return p.free.Load()
}

// Sample refreshes the free figure: the smaller of what the OS has available
// and the headroom left under the runtime memory limit.
func (p *Probe) Sample(ctx context.Context) error {
	avail, err := p.system(ctx)
	if err != nil {
		return fmt.Errorf("failed to read system memory: %w", err)
	}
	if limit, used := p.runtime(); limit > 0 {
		headroom := uint64(0)
		if limit > used {
			headroom = limit - used
		}
		avail = min(avail, headroom)
	}
	p.free.Store(avail)
	return nil
}

// Run samples until ctx is done. Failed samples keep the previous value.
func (p *Probe) Run(ctx context.Context) error {
	if err := p.Sample(ctx); err != nil {
		log.Warn().Err(err).Msg("initial memory sample failed")
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.Chan():
			if err := p.Sample(ctx); err != nil {
				log.Debug().Err(err).Msg("memory sample failed")
			}
		}
	}
}

func systemAvailable(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("virtual memory: %w", err)
	}
	return vm.Available, nil
}

func runtimeUsage() (limit, used uint64) {
	samples := []metrics.Sample{
		{Name: metricMemoryLimit},
		{Name: metricHeapTotal},
	}
	metrics.Read(samples)

	if samples[0].Value.Kind() == metrics.KindUint64 {
		limit = samples[0].Value.Uint64()
	}
	// math.MaxInt64 is the runtime's "no limit" value.
	if limit >= math.MaxInt64 {
		limit = 0
	}
	if samples[1].Value.Kind() == metrics.KindUint64 {
		used = samples[1].Value.Uint64()
	}
	return limit, used
}
