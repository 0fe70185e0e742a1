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
	"fmt"
	"time"

	"github.com/stretchr/testify/mock"
	"go.bug.st/serial"
)

// MockSerialPort mocks the device handle under uart.Port.
type MockSerialPort struct {
	mock.Mock
}

func (m *MockSerialPort) Read(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), wrap(args.Error(1))
}

func (m *MockSerialPort) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), wrap(args.Error(1))
}

func (m *MockSerialPort) Close() error {
	return wrap(m.Called().Error(0))
}

func (m *MockSerialPort) SetMode(mode *serial.Mode) error {
	return wrap(m.Called(mode).Error(0))
}

func (m *MockSerialPort) SetReadTimeout(t time.Duration) error {
	return wrap(m.Called(t).Error(0))
}

func (m *MockSerialPort) Break(d time.Duration) error {
	return wrap(m.Called(d).Error(0))
}

func (m *MockSerialPort) Drain() error {
	return wrap(m.Called().Error(0))
}

func (m *MockSerialPort) ResetInputBuffer() error {
	return wrap(m.Called().Error(0))
}

// IdleReads makes Read report no data every few milliseconds, the way a
// real port with a read timeout behaves on a quiet line.
func (m *MockSerialPort) IdleReads() {
	m.On("Read", mock.Anything).Return(0, nil).After(5 * time.Millisecond).Maybe()
}

func wrap(err error) error {
	if err != nil {
		return fmt.Errorf("mock operation failed: %w", err)
	}
	return nil
}
