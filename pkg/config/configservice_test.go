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
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadService(t *testing.T, body string) *Instance {
	t.Helper()

	fs := afero.NewMemMapFs()
	path := writeConfig(t, fs, fmt.Sprintf("config_schema = %d\n\n[service]\n%s", SchemaVersion, body))
	cfg := &Instance{fs: fs, cfgPath: path, vals: BaseDefaults, defaults: BaseDefaults}
	require.NoError(t, cfg.Load())
	return cfg
}

func TestAPIListen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		port   *int
		name   string
		listen string
		want   string
	}{
		{name: "all interfaces on the default port", want: ":7681"},
		{name: "custom port", port: intPtr(8080), want: ":8080"},
		{name: "bare host gets the api port", listen: "127.0.0.1", port: intPtr(9000), want: "127.0.0.1:9000"},
		{name: "bare ipv6 host is bracketed", listen: "::1", want: "[::1]:7681"},
		{name: "explicit host and port win", listen: "0.0.0.0:1234", port: intPtr(9000), want: "0.0.0.0:1234"},
		{name: "explicit ipv6 host and port", listen: "[fe80::1]:80", want: "[fe80::1]:80"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := &Instance{}
			cfg.vals.Service.APIListen = tt.listen
			cfg.vals.Service.APIPort = tt.port
			assert.Equal(t, tt.want, cfg.APIListen())
		})
	}
}

func TestSetAPIPortFeedsListen(t *testing.T) {
	t.Parallel()

	cfg := NewInstance(BaseDefaults)
	cfg.SetAPIPort(7700)
	assert.Equal(t, 7700, cfg.APIPort())
	assert.Equal(t, ":7700", cfg.APIListen())
}

func TestNetworkAccessFromFile(t *testing.T) {
	t.Parallel()

	cfg := loadService(t, `private_networks_only = true
allowed_ips = ["192.168.1.0/24", "10.0.0.5"]
allowed_origins = ["http://bench.local"]
`)

	assert.True(t, cfg.PrivateNetworksOnly())
	assert.Equal(t, []string{"192.168.1.0/24", "10.0.0.5"}, cfg.AllowedIPs())
	assert.Equal(t, []string{"http://bench.local"}, cfg.AllowedOrigins())
}

func TestNetworkAccessDefaultsOpen(t *testing.T) {
	t.Parallel()

	cfg := loadService(t, "")
	assert.False(t, cfg.PrivateNetworksOnly())
	assert.Empty(t, cfg.AllowedIPs())
	assert.Empty(t, cfg.AllowedOrigins())
	assert.False(t, cfg.AuthEnabled())
	assert.True(t, cfg.DiscoveryEnabled(), "mdns is on unless disabled")
}

func TestAuthFromFile(t *testing.T) {
	t.Parallel()

	cfg := loadService(t, `
[service.auth]
enabled = true
username = "admin"
password = "hunter2"
token = "ABCDEFGHJKLMNPQR"
`)

	assert.True(t, cfg.AuthEnabled())
	user, pass := cfg.BasicAuth()
	assert.Equal(t, "admin", user)
	assert.Equal(t, "hunter2", pass)
	assert.Equal(t, "ABCDEFGHJKLMNPQR", cfg.AuthToken())
}

func TestSetAuthTokenIsSaved(t *testing.T) {
	t.Parallel()

	cfg := loadService(t, "[service.auth]\nenabled = true\n")
	require.Empty(t, cfg.AuthToken())

	cfg.SetAuthToken("0123456789abcdef")
	require.NoError(t, cfg.Save())
	require.NoError(t, cfg.Load())
	assert.Equal(t, "0123456789abcdef", cfg.AuthToken())
}

func TestDiscoveryFromFile(t *testing.T) {
	t.Parallel()

	cfg := loadService(t, `
[service.discovery]
enabled = false
instance_name = "bench-uart"
`)

	assert.False(t, cfg.DiscoveryEnabled())
	assert.Equal(t, "bench-uart", cfg.DiscoveryInstanceName())
}
