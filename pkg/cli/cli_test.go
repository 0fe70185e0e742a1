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


package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() (*flag.FlagSet, *Flags) {
	fs := flag.NewFlagSet("zaparoo-bridge", flag.ContinueOnError)
	fs.SetOutput(&bytes.Buffer{})
	return fs, SetupFlags(fs)
}

func TestPreVersion(t *testing.T) {
	t.Parallel()

	fs, f := newFlags()
	var out bytes.Buffer
	exit, err := f.Pre(fs, []string{"-version"}, &out)
	require.NoError(t, err)
	assert.True(t, exit)
	assert.Equal(t, "Zaparoo Bridge v"+config.AppVersion+"\n", out.String())
}

func TestPreNoFlags(t *testing.T) {
	t.Parallel()

	fs, f := newFlags()
	exit, err := f.Pre(fs, nil, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
	assert.False(t, *f.Daemon)
}

func TestPreUnknownFlag(t *testing.T) {
	t.Parallel()

	fs, f := newFlags()
	exit, err := f.Pre(fs, []string{"-write", "x"}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, exit)
}

func TestPreConfigPath(t *testing.T) {
	t.Setenv(config.CfgEnv, "")

	fs, f := newFlags()
	exit, err := f.Pre(fs, []string{"-config", "/etc/zaparoo-bridge.toml"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, "/etc/zaparoo-bridge.toml", os.Getenv(config.CfgEnv))
}

func TestPrintPorts(t *testing.T) {
	t.Parallel()

	ports := []uart.PortInfo{
		{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", Product: "FT232R USB UART"},
		{Name: "/dev/ttyS0"},
	}

	tests := []struct {
		name  string
		want  []string
		ports []uart.PortInfo
	}{
		{name: "none", ports: nil, want: []string{"no serial ports found"}},
		{
			name:  "table",
			ports: ports,
			want:  []string{"PORT", "/dev/ttyUSB0", "0403:6001", "FT232R USB UART", "/dev/ttyS0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var out bytes.Buffer
			require.NoError(t, PrintPorts(&out, tt.ports, false))
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}
}

func TestPrintPortsJSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, PrintPorts(&out, nil, true))
	assert.JSONEq(t, `[]`, out.String())

	out.Reset()
	require.NoError(t, PrintPorts(&out, []uart.PortInfo{{Name: "/dev/ttyACM0", IsUSB: true}}, true))
	var got []uart.PortInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "/dev/ttyACM0", got[0].Name)
}

func TestPostWithoutDetectBaud(t *testing.T) {
	t.Parallel()

	fs, f := newFlags()
	_, err := f.Pre(fs, nil, &bytes.Buffer{})
	require.NoError(t, err)

	exit, err := f.Post(context.Background(), config.NewInstance(config.BaseDefaults), &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
}

func TestSetup(t *testing.T) {
	// Not parallel: Setup replaces the global logger and reads env.
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	root := t.TempDir()
	dirs := helpers.Dirs{
		ConfigDir: filepath.Join(root, "config"),
		TempDir:   filepath.Join(root, "tmp"),
		LogDir:    filepath.Join(root, "logs"),
	}
	t.Setenv(config.CfgEnv, "")

	cfg, err := Setup(dirs, config.BaseDefaults, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dirs.ConfigDir, config.CfgFile), cfg.Path())
	assert.NotEmpty(t, cfg.DeviceID())
	assert.FileExists(t, cfg.Path())
	assert.DirExists(t, dirs.LogDir)
}
