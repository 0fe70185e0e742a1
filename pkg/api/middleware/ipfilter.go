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


package middleware

import (
	"net"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ParseRemoteIP extracts the IP from a RemoteAddr string (IP:port format).
func ParseRemoteIP(remoteAddr string) net.IP {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	return net.ParseIP(host)
}

func IsLoopbackAddr(remoteAddr string) bool {
	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

// IsLocalNetwork reports loopback, RFC 1918 and IPv6 ULA/link-local
// addresses.
func IsLocalNetwork(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// IPFilter admits HTTP and WebSocket connections by source address.
type IPFilter struct {
	allowedNets  []*net.IPNet
	allowedAddrs []net.IP
	privateOnly  bool
}

// NewIPFilter builds a filter from a list of IPs and CIDRs. An empty list
// allows any address. With privateOnly set, public addresses are refused
// even if the list would admit them.
func NewIPFilter(allowedIPs []string, privateOnly bool) *IPFilter {
	filter := &IPFilter{
		allowedNets:  make([]*net.IPNet, 0, len(allowedIPs)),
		allowedAddrs: make([]net.IP, 0, len(allowedIPs)),
		privateOnly:  privateOnly,
	}

	for _, entry := range allowedIPs {
		// Accept "192.168.1.1:7681" pasted from a browser bar.
		if host, _, err := net.SplitHostPort(entry); err == nil {
			entry = host
		}

		if _, network, err := net.ParseCIDR(entry); err == nil {
			filter.allowedNets = append(filter.allowedNets, network)
			continue
		}
		if ip := net.ParseIP(entry); ip != nil {
			filter.allowedAddrs = append(filter.allowedAddrs, ip)
			continue
		}

		log.Warn().Str("ip", entry).Msg("invalid IP or CIDR in allowed_ips, skipping")
	}

	return filter
}

// Restricted reports whether the filter refuses anything at all.
func (f *IPFilter) Restricted() bool {
	return f.privateOnly || len(f.allowedNets) > 0 || len(f.allowedAddrs) > 0
}

func (f *IPFilter) IsAllowed(remoteAddr string) bool {
	if !f.Restricted() {
		return true
	}

	ip := ParseRemoteIP(remoteAddr)
	if ip == nil {
		log.Warn().Str("addr", remoteAddr).Msg("failed to parse IP address")
		return false
	}

	if f.privateOnly && !IsLocalNetwork(ip) {
		return false
	}
	if len(f.allowedNets) == 0 && len(f.allowedAddrs) == 0 {
		return true
	}

	for _, allowed := range f.allowedAddrs {
		if ip.Equal(allowed) {
			return true
		}
	}
	for _, network := range f.allowedNets {
		if network.Contains(ip) {
			return true
		}
	}

	return false
}

// HTTPIPFilterMiddleware answers 403 to requests from refused addresses.
// WebSocket upgrades are plain GETs at this point and are filtered too.
func HTTPIPFilterMiddleware(filter *IPFilter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !filter.IsAllowed(r.RemoteAddr) {
				log.Debug().
					Str("remote", r.RemoteAddr).
					Str("path", r.URL.Path).
					Str("method", r.Method).
					Msg("request from blocked IP")

				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
