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

package helpers

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"net"
	"os"
)

// TokenLength matches the auth token length of the original hardware.
const TokenLength = 16

const tokenCharset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!/?_=;':"

// GenerateToken returns n characters drawn from the token charset.
func GenerateToken(n int) (string, error) {
	b := make([]byte, n)
	limit := big.NewInt(int64(len(tokenCharset)))
	for i := range b {
		randInt, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate secure random token: %w", err)
		}
		b[i] = tokenCharset[randInt.Int64()]
	}
	return string(b), nil
}

// DeviceName is title if set, otherwise the hostname.
func DeviceName(title string) string {
	if title != "" {
		return title
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "bridge"
	}
	return host
}

// GetAllLocalIPs returns all non-loopback private IPv4 addresses
func GetAllLocalIPs() []string {
	var ips []string

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok &&
			!ipnet.IP.IsLoopback() && ipnet.IP.IsPrivate() {
			if ipnet.IP.To4() != nil {
				ips = append(ips, ipnet.IP.String())
			}
		}
	}

	return ips
}
