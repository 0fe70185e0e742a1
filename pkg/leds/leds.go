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

// Package leds drives the activity and status lights through the Linux LED
// class in sysfs.
package leds

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const SysfsRoot = "/sys/class/leds"

var ErrNoSuchLED = errors.New("led not found")

// Names maps each bridge light to a sysfs LED name. Empty names are skipped.
type Names struct {
	Rx     string
	Tx     string
	Status string
}

// Sysfs writes brightness values under root. Failed writes are logged once
// per LED and then ignored.
type Sysfs struct {
	fs     afero.Fs
	root   string
	paths  [3]string
	failed [3]bool
}

// NewSysfs checks every named LED exists before returning.
func NewSysfs(fs afero.Fs, root string, names Names) (*Sysfs, error) {
	s := &Sysfs{fs: fs, root: root}
	for led, name := range map[bridge.LED]string{
		bridge.LEDRx:     names.Rx,
		bridge.LEDTx:     names.Tx,
		bridge.LEDStatus: names.Status,
	} {
		if name == "" {
			continue
		}
		path := filepath.Join(root, name, "brightness")
		ok, err := afero.Exists(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to check led %s: %w", name, err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoSuchLED, name)
		}
		s.paths[led] = path
	}
	return s, nil
}

func (s *Sysfs) Set(led bridge.LED, on bool) {
	if led < 0 || int(led) >= len(s.paths) || s.paths[led] == "" {
		return
	}
	value := []byte("0")
	if on {
		value = []byte("1")
	}
	err := afero.WriteFile(s.fs, s.paths[led], value, 0o644)
	if err != nil {
		if !s.failed[led] {
			s.failed[led] = true
			log.Warn().Err(err).Stringer("led", led).Msg("failed to set led")
		}
		return
	}
	s.failed[led] = false
}

// Off turns every configured light off.
func (s *Sysfs) Off() {
	for i := range s.paths {
		s.Set(bridge.LED(i), false)
	}
}

// Available lists the LED names present under root.
func Available(fs afero.Fs, root string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, fmt.Errorf("failed to list leds: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}
