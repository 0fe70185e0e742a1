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


package mocks

import (
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge/nocopy"
	"github.com/stretchr/testify/mock"
)

// MockTransport mocks bridge.Transport. Send copies msg before recording
// it since the engine reuses its frame buffers.
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) Send(id bridge.ClientID, msg []byte) error {
	return wrap(m.Called(id, append([]byte(nil), msg...)).Error(0))
}

func (m *MockTransport) SendNoCopy(id bridge.ClientID, buf *nocopy.Buffer) error {
	return wrap(m.Called(id, buf).Error(0))
}

func (m *MockTransport) Close(id bridge.ClientID, code bridge.CloseCode) {
	m.Called(id, code)
}

func (m *MockTransport) Ping(id bridge.ClientID) error {
	return wrap(m.Called(id).Error(0))
}

func (m *MockTransport) QueueFull(id bridge.ClientID) bool {
	return m.Called(id).Bool(0)
}

// SentTo returns the payloads passed to Send for id, in order.
func (m *MockTransport) SentTo(id bridge.ClientID) []string {
	var out []string
	for _, call := range m.Calls {
		if call.Method != "Send" || call.Arguments.Get(0) != id {
			continue
		}
		if b, ok := call.Arguments.Get(1).([]byte); ok {
			out = append(out, string(b))
		}
	}
	return out
}
