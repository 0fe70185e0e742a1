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

// Package bridge is the engine that joins one serial line to a small set of
// WebSocket terminal clients. All engine state is owned by the goroutine
// running Engine.Run; the transport and serial adapter talk to it through
// events and non-blocking calls.
package bridge

import "errors"

// ClientID is the transport-assigned identity of a connection.
type ClientID uint32

// CloseCode is a WebSocket close status.
type CloseCode uint16

const (
	CloseNormal          CloseCode = 1000
	CloseGoingAway       CloseCode = 1001
	CloseProtocolError   CloseCode = 1002
	CloseUnsupportedData CloseCode = 1003
	CloseInvalidPayload  CloseCode = 1007
	ClosePolicyViolation CloseCode = 1008
	CloseMessageTooBig   CloseCode = 1009
	CloseMandatoryExt    CloseCode = 1010
	CloseInternalError   CloseCode = 1011
	CloseTryAgainLater   CloseCode = 1013
)

// Client to server command bytes.
const (
	CmdInput  byte = '0'
	CmdResize byte = '1'
	CmdPause  byte = '2'
	CmdResume byte = '3'
	CmdJSON   byte = '{'
)

// Server to client command bytes.
const (
	CmdOutput       byte = '0'
	CmdSetTitle     byte = '1'
	CmdPreferences  byte = '2'
	CmdServerPause  byte = '3'
	CmdServerResume byte = '4'
)

// Software flow control bytes written to the serial line.
const (
	XON  byte = 0x11
	XOFF byte = 0x13
)

var (
	// ErrStalled means the serial line has been held off for too long while
	// memory stayed exhausted. The process is expected to restart.
	ErrStalled       = errors.New("bridge stalled: serial line stopped under memory pressure")
	ErrQueueFull     = errors.New("client send queue full")
	ErrUnknownClient = errors.New("unknown client")
	ErrInvalidConfig = errors.New("invalid bridge config")
)
