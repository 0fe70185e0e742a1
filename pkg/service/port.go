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


package service

import (
	"errors"
	"fmt"
	"slices"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
)

// PTYDevice as the serial port creates a pseudo-terminal instead of opening
// a device.
const PTYDevice = "pty"

var ErrNoSerialPort = errors.New("no serial port found")

// PortLister enumerates candidate serial devices.
type PortLister func() ([]uart.PortInfo, error)

// resolvePort turns the configured port into a device path and the factory
// that opens it. An empty port picks the first detected device, USB first.
func resolvePort(configured string, list PortLister) (string, uart.PortFactory, error) {
	switch configured {
	case PTYDevice:
		return PTYDevice, uart.PTYFactory, nil
	case "":
	default:
		return configured, uart.DefaultPortFactory, nil
	}

	ports, err := list()
	if err != nil {
		return "", nil, fmt.Errorf("failed to detect serial port: %w", err)
	}
	if len(ports) == 0 {
		return "", nil, ErrNoSerialPort
	}

	slices.SortStableFunc(ports, func(a, b uart.PortInfo) int {
		switch {
		case a.IsUSB == b.IsUSB:
			return 0
		case a.IsUSB:
			return -1
		default:
			return 1
		}
	})

	chosen := ports[0]
	log.Info().
		Str("port", chosen.Name).
		Str("product", chosen.Product).
		Int("candidates", len(ports)).
		Msg("auto-detected serial port")
	return chosen.Name, uart.DefaultPortFactory, nil
}
