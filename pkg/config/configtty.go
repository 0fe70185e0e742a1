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

package config

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxClients         = 3
	DefaultSendBufferSize     = 1536
	DefaultSendQueueSize      = 8
	DefaultFragmentBufferSize = 1536
	DefaultPingInterval       = 300 * time.Second
	DefaultBlockExpiry        = 10 * time.Second
	DefaultAuthTimeout        = 10 * time.Second
	DefaultStatsInterval      = time.Second
	DefaultMemoryLow          = 8 << 20
	DefaultMemoryHigh         = 16 << 20
	DefaultMemoryMaxStop      = 500 * time.Millisecond
	DefaultPreferences        = `{"disableLeaveAlert":true}`
)

type TTY struct {
	WebConfig          map[string]any `toml:"web_config,omitempty"`
	MaxClients         *int           `toml:"max_clients,omitempty"`
	SendBufferSize     *int           `toml:"send_buffer_size,omitempty"`
	SendQueueSize      *int           `toml:"send_queue_size,omitempty"`
	FragmentBufferSize *int           `toml:"fragment_buffer_size,omitempty"`
	PingInterval       *string        `toml:"ping_interval,omitempty"`
	BlockExpiry        *string        `toml:"block_expiry,omitempty"`
	AuthTimeout        *string        `toml:"auth_timeout,omitempty"`
	StatsInterval      *string        `toml:"stats_interval,omitempty"`
	Title              string         `toml:"title,omitempty"`
	Memory             Memory         `toml:"memory,omitempty"`
}

type Memory struct {
	LowWatermark  *uint64 `toml:"low_watermark,omitempty"`
	HighWatermark *uint64 `toml:"high_watermark,omitempty"`
	MaxStop       *string `toml:"max_stop,omitempty"`
	Limit         *int64  `toml:"limit,omitempty"`
}

func (c *Instance) MaxClients() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.TTY.MaxClients, DefaultMaxClients)
}

func (c *Instance) SendBufferSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.TTY.SendBufferSize, DefaultSendBufferSize)
}

func (c *Instance) SendQueueSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.TTY.SendQueueSize, DefaultSendQueueSize)
}

func (c *Instance) FragmentBufferSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.TTY.FragmentBufferSize, DefaultFragmentBufferSize)
}

func (c *Instance) PingInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.TTY.PingInterval, DefaultPingInterval)
}

func (c *Instance) BlockExpiry() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.TTY.BlockExpiry, DefaultBlockExpiry)
}

// AuthTimeout is how long a terminal client may stay connected without
// authenticating.
func (c *Instance) AuthTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.TTY.AuthTimeout, DefaultAuthTimeout)
}

func (c *Instance) StatsInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.TTY.StatsInterval, DefaultStatsInterval)
}

// Title is the device name in the window title. Empty means use the
// hostname.
func (c *Instance) Title() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.TTY.Title
}

// Preferences returns the web_config table as the JSON object sent to
// clients after they authenticate.
func (c *Instance) Preferences() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.vals.TTY.WebConfig) == 0 {
		return DefaultPreferences
	}
	data, err := json.Marshal(c.vals.TTY.WebConfig)
	if err != nil {
		log.Warn().Err(err).Msg("invalid web_config, using defaults")
		return DefaultPreferences
	}
	return string(data)
}

// MemoryWatermarks returns the free-memory thresholds for pausing and
// resuming clients.
func (c *Instance) MemoryWatermarks() (low, high uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	low, high = DefaultMemoryLow, DefaultMemoryHigh
	if c.vals.TTY.Memory.LowWatermark != nil {
		low = *c.vals.TTY.Memory.LowWatermark
	}
	if c.vals.TTY.Memory.HighWatermark != nil {
		high = *c.vals.TTY.Memory.HighWatermark
	}
	return low, high
}

func (c *Instance) MemoryMaxStop() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.TTY.Memory.MaxStop, DefaultMemoryMaxStop)
}

// MemoryLimit is the soft memory limit applied to the Go runtime, or 0 for
// none.
func (c *Instance) MemoryLimit() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.vals.TTY.Memory.Limit == nil {
		return 0
	}
	return *c.vals.TTY.Memory.Limit
}
