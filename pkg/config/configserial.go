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
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
)

const (
	ParityNone = "none"
	ParityEven = "even"
	ParityOdd  = "odd"

	DefaultLocalMaxStop = 500 * time.Millisecond
)

type Serial struct {
	BaudRate            *int    `toml:"baud_rate,omitempty"`
	DataBits            *int    `toml:"data_bits,omitempty"`
	StopBits            *int    `toml:"stop_bits,omitempty"`
	SoftwareFlowControl *bool   `toml:"software_flow_control,omitempty"`
	RxBufferSize        *int    `toml:"rx_buffer_size,omitempty"`
	LowWatermark        *int    `toml:"low_watermark,omitempty"`
	HighWatermark       *int    `toml:"high_watermark,omitempty"`
	LocalMaxStop        *string `toml:"local_max_stop,omitempty"`
	Port                string  `toml:"port,omitempty"`
	Parity              string  `toml:"parity,omitempty"`
	Autobaud            bool    `toml:"autobaud"`
}

// SerialPort returns the device path. ZAPAROO_BRIDGE_PORT wins over the
// file; an empty result means auto-detect.
func (c *Instance) SerialPort() string {
	if env := os.Getenv(PortEnv); env != "" {
		return env
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.Port
}

func (c *Instance) SetSerialPort(port string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Serial.Port = port
}

// LineParams returns the configured framing over 115200 8N1 defaults.
func (c *Instance) LineParams() uart.LineParams {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p := uart.DefaultLineParams
	s := c.vals.Serial
	p.BaudRate = intOr(s.BaudRate, p.BaudRate)
	p.DataBits = intOr(s.DataBits, p.DataBits)

	switch strings.ToLower(s.Parity) {
	case "", ParityNone, "n":
		p.Parity = uart.ParityNone
	case ParityEven, "e":
		p.Parity = uart.ParityEven
	case ParityOdd, "o":
		p.Parity = uart.ParityOdd
	default:
		log.Warn().Str("parity", s.Parity).Msg("unknown parity in config, using none")
	}

	if intOr(s.StopBits, 1) == 2 {
		p.StopBits = uart.StopBits2
	}
	return p
}

// SetLineParams stores p so the next Save persists it.
func (c *Instance) SetLineParams(p uart.LineParams) {
	c.mu.Lock()
	defer c.mu.Unlock()

	baud, bits := p.BaudRate, p.DataBits
	c.vals.Serial.BaudRate = &baud
	c.vals.Serial.DataBits = &bits

	switch p.Parity {
	case uart.ParityEven:
		c.vals.Serial.Parity = ParityEven
	case uart.ParityOdd:
		c.vals.Serial.Parity = ParityOdd
	case uart.ParityNone:
		c.vals.Serial.Parity = ParityNone
	}

	stop := 1
	if p.StopBits == uart.StopBits2 {
		stop = 2
	}
	c.vals.Serial.StopBits = &stop
}

func (c *Instance) Autobaud() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Serial.Autobaud
}

func (c *Instance) SoftwareFlowControl() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return boolOr(c.vals.Serial.SoftwareFlowControl, true)
}

func (c *Instance) RxBufferSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.Serial.RxBufferSize, uart.DefaultRxBufferSize)
}

// Watermarks returns the configured receive ring watermarks. Zero means
// derive from the buffer sizes.
func (c *Instance) Watermarks() (low, high int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return intOr(c.vals.Serial.LowWatermark, 0), intOr(c.vals.Serial.HighWatermark, 0)
}

func (c *Instance) LocalMaxStop() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.Serial.LocalMaxStop, DefaultLocalMaxStop)
}
