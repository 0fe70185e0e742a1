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


// Package mocks holds testify mocks for the bridge's external edges.
package mocks

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/mock"
)

// MockMQTTClient mocks mqtt.Client. Only the calls a publisher makes are
// routed through mock.Called.
type MockMQTTClient struct {
	mock.Mock
}

func (m *MockMQTTClient) IsConnected() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockMQTTClient) IsConnectionOpen() bool {
	return m.IsConnected()
}

func (m *MockMQTTClient) Connect() mqtt.Token {
	args := m.Called()
	return tokenArg(args, 0)
}

func (m *MockMQTTClient) Disconnect(quiesce uint) {
	m.Called(quiesce)
}

func (m *MockMQTTClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	args := m.Called(topic, qos, retained, payload)
	return tokenArg(args, 0)
}

func (*MockMQTTClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return NewToken(nil)
}

func (*MockMQTTClient) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return NewToken(nil)
}

func (*MockMQTTClient) Unsubscribe(...string) mqtt.Token {
	return NewToken(nil)
}

func (*MockMQTTClient) AddRoute(string, mqtt.MessageHandler) {}

func (*MockMQTTClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

func tokenArg(args mock.Arguments, i int) mqtt.Token {
	if tok, ok := args.Get(i).(mqtt.Token); ok {
		return tok
	}
	return NewToken(nil)
}

// MockToken is an mqtt.Token that completes when NewToken returns it.
type MockToken struct {
	err  error
	done chan struct{}
}

func NewToken(err error) *MockToken {
	done := make(chan struct{})
	close(done)
	return &MockToken{err: err, done: done}
}

func (t *MockToken) Wait() bool {
	<-t.done
	return true
}

func (t *MockToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *MockToken) Done() <-chan struct{} {
	return t.done
}

func (t *MockToken) Error() error {
	return t.err
}
