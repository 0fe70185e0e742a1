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
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
)

// SerialPort is the serial line the engine polls. Read must not block.
type SerialPort interface {
	Configure(params uart.LineParams) error
	Available() int
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// readyNotifier is implemented by ports that can wake the engine as soon as
// data arrives instead of waiting for the next dispatch tick.
type readyNotifier interface {
	Ready() <-chan struct{}
}

// Transport delivers frames to connected clients. Every method must return
// without waiting on the network.
type Transport interface {
	Send(id ClientID, msg []byte) error
	SendNoCopy(id ClientID, buf *nocopy.Buffer) error
	Close(id ClientID, code CloseCode)
	Ping(id ClientID) error
	QueueFull(id ClientID) bool
}

// MemoryProbe reports the bytes currently available to the process.
type MemoryProbe interface {
	Free() uint64
}

type LED int

const (
	LEDRx LED = iota
	LEDTx
	LEDStatus
)

func (l LED) String() string {
	switch l {
	case LEDRx:
		return "rx"
	case LEDTx:
		return "tx"
	case LEDStatus:
		return "status"
	default:
		return "unknown"
	}
}

// Indicator drives the activity and status lights.
type Indicator interface {
	Set(led LED, on bool)
}

type nopIndicator struct{}

func (nopIndicator) Set(LED, bool) {}

type unlimitedMemory struct{}

func (unlimitedMemory) Free() uint64 { return ^uint64(0) }
