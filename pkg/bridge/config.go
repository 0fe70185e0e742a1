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
	"fmt"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
)

const (
	DefaultMaxClients         = 3
	DefaultSendBufferSize     = 1536
	DefaultFragmentBufferSize = 1536
	DefaultPingInterval       = 300 * time.Second
	DefaultTimeoutCheck       = 10 * time.Second
	DefaultBlockExpiry        = 10 * time.Second
	DefaultAuthTimeout        = 10 * time.Second
	DefaultLocalMaxStop       = 500 * time.Millisecond
	DefaultMemoryMaxStop      = 500 * time.Millisecond
	DefaultCoalesceMax        = 5 * time.Millisecond
	DefaultDispatchInterval   = 2 * time.Millisecond
	DefaultLEDInterval        = 5 * time.Millisecond
	DefaultLEDOnTime          = 15 * time.Millisecond
	DefaultLEDOffTime         = 15 * time.Millisecond
	DefaultStatsInterval      = time.Second
	DefaultMemoryLow          = 8 << 20
	DefaultMemoryHigh         = 16 << 20
	DefaultPreferences        = `{"disableLeaveAlert":true}`

	// A client times out after 1.033 ping intervals, so a pong that lands
	// just after a sweep does not cost the client its connection.
	clientTimeoutPermille = 1033
)

type Config struct {
	// AuthToken, when set, must be presented in the first JSON message.
	AuthToken string
	// Title is the device name shown in the window title.
	Title string
	// Preferences is the JSON object sent to clients after authentication.
	Preferences string

	Line uart.LineParams

	MaxClients         int
	BlockedCapacity    int
	SendBufferSize     int
	FragmentBufferSize int
	RxSoftMin          int
	LowWatermark       int
	HighWatermark      int

	MemoryLowWatermark  uint64
	MemoryHighWatermark uint64

	PingInterval         time.Duration
	ClientTimeout        time.Duration
	// AuthTimeout bounds how long a client may stay unauthenticated.
	AuthTimeout          time.Duration
	TimeoutCheckInterval time.Duration
	BlockExpiry          time.Duration
	LocalMaxStop         time.Duration
	MemoryMaxStop        time.Duration
	CoalesceMax          time.Duration
	DispatchInterval     time.Duration
	LEDInterval          time.Duration
	LEDOnTime            time.Duration
	LEDOffTime           time.Duration
	StatsInterval        time.Duration

	SoftwareFlowControl bool
}

// DefaultConfig returns the stock tuning for a line with an rxBuffer byte
// receive ring.
func DefaultConfig(rxBuffer int) Config {
	softMin := DefaultSendBufferSize * 3 / 2
	return Config{
		Preferences:          DefaultPreferences,
		Line:                 uart.DefaultLineParams,
		MaxClients:           DefaultMaxClients,
		SendBufferSize:       DefaultSendBufferSize,
		FragmentBufferSize:   DefaultFragmentBufferSize,
		RxSoftMin:            softMin,
		LowWatermark:         softMin + 1,
		HighWatermark:        rxBuffer - DefaultSendBufferSize,
		MemoryLowWatermark:   DefaultMemoryLow,
		MemoryHighWatermark:  DefaultMemoryHigh,
		PingInterval:         DefaultPingInterval,
		TimeoutCheckInterval: DefaultTimeoutCheck,
		AuthTimeout:          DefaultAuthTimeout,
		LocalMaxStop:         DefaultLocalMaxStop,
		MemoryMaxStop:        DefaultMemoryMaxStop,
		CoalesceMax:          DefaultCoalesceMax,
		DispatchInterval:     DefaultDispatchInterval,
		LEDInterval:          DefaultLEDInterval,
		LEDOnTime:            DefaultLEDOnTime,
		LEDOffTime:           DefaultLEDOffTime,
		StatsInterval:        DefaultStatsInterval,
		SoftwareFlowControl:  true,
	}
}

// normalize fills derived values and checks the invariants the engine
// relies on.
func (c *Config) normalize() error {
	if c.MaxClients <= 0 {
		return fmt.Errorf("%w: max clients must be positive", ErrInvalidConfig)
	}
	if c.BlockedCapacity <= 0 {
		c.BlockedCapacity = c.MaxClients * 8
	}
	if c.FragmentBufferSize <= 0 || c.SendBufferSize <= 0 {
		return fmt.Errorf("%w: buffer sizes must be positive", ErrInvalidConfig)
	}
	if c.LowWatermark >= c.HighWatermark {
		return fmt.Errorf("%w: low watermark %d not below high watermark %d",
			ErrInvalidConfig, c.LowWatermark, c.HighWatermark)
	}
	if c.MemoryLowWatermark >= c.MemoryHighWatermark {
		return fmt.Errorf("%w: memory low watermark %d not below high watermark %d",
			ErrInvalidConfig, c.MemoryLowWatermark, c.MemoryHighWatermark)
	}
	if c.PingInterval <= 0 || c.DispatchInterval <= 0 || c.LEDInterval <= 0 || c.StatsInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.ClientTimeout <= 0 {
		c.ClientTimeout = c.PingInterval * clientTimeoutPermille / 1000
	}
	if c.TimeoutCheckInterval <= 0 {
		c.TimeoutCheckInterval = DefaultTimeoutCheck
	}
	if c.BlockExpiry <= 0 {
		c.BlockExpiry = DefaultBlockExpiry
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = DefaultAuthTimeout
	}
	if c.Preferences == "" {
		c.Preferences = DefaultPreferences
	}
	if err := c.Line.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
