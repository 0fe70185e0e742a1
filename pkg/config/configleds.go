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

import "time"

const (
	DefaultLEDOnTime  = 15 * time.Millisecond
	DefaultLEDOffTime = 15 * time.Millisecond
)

// LEDs names sysfs LEDs under /sys/class/leds. Unset names are not driven.
type LEDs struct {
	OnTime  *string `toml:"on_time,omitempty"`
	OffTime *string `toml:"off_time,omitempty"`
	Rx      string  `toml:"rx,omitempty"`
	Tx      string  `toml:"tx,omitempty"`
	Status  string  `toml:"status,omitempty"`
}

func (c *Instance) LEDNames() (rx, tx, status string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.LEDs.Rx, c.vals.LEDs.Tx, c.vals.LEDs.Status
}

func (c *Instance) LEDTimes() (on, off time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return durationOr(c.vals.LEDs.OnTime, DefaultLEDOnTime), durationOr(c.vals.LEDs.OffTime, DefaultLEDOffTime)
}
