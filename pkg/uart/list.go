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

package uart

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Name         string `json:"name"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serialNumber,omitempty"`
	Product      string `json:"product,omitempty"`
	IsUSB        bool   `json:"isUsb"`
}

type usbID struct {
	vid string
	pid string
}

// ignoredDevices are USB serial devices that are never consoles.
var ignoredDevices = []usbID{
	// Sinden Lightgun
	{vid: "16c0", pid: "0f38"},
	{vid: "16c0", pid: "0f39"},
	{vid: "16c0", pid: "0f01"},
	{vid: "16c0", pid: "0f02"},
	{vid: "16d0", pid: "0f38"},
	{vid: "16d0", pid: "0f39"},
	{vid: "16d0", pid: "0f01"},
	{vid: "16d0", pid: "0f02"},
}

var linuxPrefixes = []string{"/dev/ttyUSB", "/dev/ttyACM", "/dev/ttyAMA", "/dev/ttyS", "/dev/serial"}

// ListPorts enumerates serial devices usable as a bridge line.
func ListPorts() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return filterPorts(ports, runtime.GOOS), nil
}

func filterPorts(ports []*enumerator.PortDetails, goos string) []PortInfo {
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		if p == nil || !nameAllowed(p.Name, goos) {
			continue
		}
		if p.IsUSB && ignored(p.VID, p.PID) {
			log.Debug().Str("port", p.Name).Msg("ignoring known non-console device")
			continue
		}
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          strings.ToLower(p.VID),
			PID:          strings.ToLower(p.PID),
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return out
}

func nameAllowed(name, goos string) bool {
	switch goos {
	case "linux":
		for _, prefix := range linuxPrefixes {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		}
		return false
	case "darwin":
		return strings.HasPrefix(name, "/dev/tty.") || strings.HasPrefix(name, "/dev/cu.")
	case "windows":
		return strings.HasPrefix(name, "COM")
	default:
		return true
	}
}

func ignored(vid, pid string) bool {
	vid = strings.ToLower(vid)
	pid = strings.ToLower(pid)
	for _, d := range ignoredDevices {
		if d.vid == vid && d.pid == pid {
			return true
		}
	}
	return false
}
