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

// Package uart adapts a host serial line to the bridge engine. It keeps a
// bounded receive ring filled by a background reader so the engine can poll
// the number of buffered bytes without blocking.
package uart

import (
	"errors"
	"fmt"
	"strconv"

	"go.bug.st/serial"
)

const (
	MinBaudRate = 300
	MaxBaudRate = 4_000_000
)

var ErrInvalidParams = errors.New("invalid line parameters")

type Parity int

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) Letter() byte {
	switch p {
	case ParityEven:
		return 'E'
	case ParityOdd:
		return 'O'
	default:
		return 'N'
	}
}

type StopBits int

const (
	StopBits1 StopBits = iota
	StopBits15
	StopBits2
)

func (s StopBits) String() string {
	switch s {
	case StopBits15:
		return "15"
	case StopBits2:
		return "2"
	default:
		return "1"
	}
}

// LineParams is the full description of a serial line's framing.
type LineParams struct {
	BaudRate int      `json:"baudRate"`
	DataBits int      `json:"dataBits"`
	Parity   Parity   `json:"parity"`
	StopBits StopBits `json:"stopBits"`
}

// DefaultLineParams is 115200 8N1.
var DefaultLineParams = LineParams{
	BaudRate: 115200,
	DataBits: 8,
	Parity:   ParityNone,
	StopBits: StopBits1,
}

func (p LineParams) Validate() error {
	switch {
	case p.BaudRate < MinBaudRate || p.BaudRate > MaxBaudRate:
		return fmt.Errorf("%w: baud rate %d outside %d-%d", ErrInvalidParams, p.BaudRate, MinBaudRate, MaxBaudRate)
	case p.DataBits < 5 || p.DataBits > 8:
		return fmt.Errorf("%w: data bits %d", ErrInvalidParams, p.DataBits)
	case p.Parity < ParityNone || p.Parity > ParityOdd:
		return fmt.Errorf("%w: parity %d", ErrInvalidParams, p.Parity)
	case p.StopBits < StopBits1 || p.StopBits > StopBits2:
		return fmt.Errorf("%w: stop bits %d", ErrInvalidParams, p.StopBits)
	}
	return nil
}

// Format renders the framing the usual way, e.g. "8N1".
func (p LineParams) Format() string {
	return strconv.Itoa(p.DataBits) + string(p.Parity.Letter()) + p.StopBits.String()
}

func (p LineParams) String() string {
	return strconv.Itoa(p.BaudRate) + " " + p.Format()
}

func (p LineParams) mode() *serial.Mode {
	mode := &serial.Mode{
		BaudRate: p.BaudRate,
		DataBits: p.DataBits,
	}
	switch p.Parity {
	case ParityEven:
		mode.Parity = serial.EvenParity
	case ParityOdd:
		mode.Parity = serial.OddParity
	default:
		mode.Parity = serial.NoParity
	}
	switch p.StopBits {
	case StopBits15:
		mode.StopBits = serial.OnePointFiveStopBits
	case StopBits2:
		mode.StopBits = serial.TwoStopBits
	default:
		mode.StopBits = serial.OneStopBit
	}
	return mode
}
