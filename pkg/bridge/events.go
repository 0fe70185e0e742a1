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

// Event is something the transport reports about a connection.
type Event interface {
	Client() ClientID
}

// ConnectEvent asks the engine whether a new connection may proceed. The
// engine answers on Reply, which must be buffered.
type ConnectEvent struct {
	Reply  chan<- bool
	Remote string
	ID     ClientID
}

type DisconnectEvent struct {
	ID ClientID
}

type ErrorEvent struct {
	Err error
	ID  ClientID
}

type PongEvent struct {
	ID ClientID
}

// DataEvent carries one WebSocket frame. First marks the opening frame of a
// message, Final the closing one; an unfragmented message has both set.
type DataEvent struct {
	Data  []byte
	ID    ClientID
	First bool
	Final bool
}

func (e ConnectEvent) Client() ClientID    { return e.ID }
func (e DisconnectEvent) Client() ClientID { return e.ID }
func (e ErrorEvent) Client() ClientID      { return e.ID }
func (e PongEvent) Client() ClientID       { return e.ID }
func (e DataEvent) Client() ClientID       { return e.ID }
