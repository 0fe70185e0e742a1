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
	"sync"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
)

// Accessors that call each other must not take the read lock twice;
// go-deadlock (-tags=deadlock) panics on recursive locks.
func TestAccessorsDoNotNestLocks(t *testing.T) {
	t.Parallel()

	cfg := &Instance{}
	done := make(chan struct{})
	go func() {
		_ = cfg.APIListen()
		_ = cfg.LineParams()
		_ = cfg.Preferences()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("config accessors deadlocked")
	}
}

func TestConcurrentReadWrite(t *testing.T) {
	t.Parallel()

	cfg := NewInstance(BaseDefaults)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				if i%2 == 0 {
					cfg.SetLineParams(uart.LineParams{BaudRate: 9600 + j, DataBits: 8})
					cfg.SetAPIPort(8000 + j)
				} else {
					_ = cfg.LineParams()
					_ = cfg.APIListen()
					_ = cfg.MaxClients()
				}
			}
		}()
	}

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()
	select {
	case <-waitDone:
	case <-time.After(5 * time.Second):
		t.Fatal("concurrent access deadlocked")
	}
}
