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


// Package cli holds the flags and start-up steps shared by every build of
// the bridge.
package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/ZaparooProject/zaparoo-bridge/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/service"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

type Flags struct {
	Version    *bool
	Config     *string
	ListPorts  *bool
	JSON       *bool
	DetectBaud *bool
	Daemon     *bool
}

// SetupFlags defines the common flags on fs.
func SetupFlags(fs *flag.FlagSet) *Flags {
	return &Flags{
		Version: fs.Bool(
			"version",
			false,
			"print version and exit",
		),
		Config: fs.String(
			"config",
			"",
			"path to the config file (overrides "+config.CfgEnv+")",
		),
		ListPorts: fs.Bool(
			"list-ports",
			false,
			"list detected serial ports and exit",
		),
		JSON: fs.Bool(
			"json",
			false,
			"print -list-ports output as JSON",
		),
		DetectBaud: fs.Bool(
			"detect-baud",
			false,
			"sample the serial line, print its baud rate and exit",
		),
		Daemon: fs.Bool(
			"daemon",
			false,
			"run as a background service: JSON logs on stderr and a pid file",
		),
	}
}

// Pre parses args and runs the flags that need no environment. It returns
// true when the process should exit.
func (f *Flags) Pre(fs *flag.FlagSet, args []string, out io.Writer) (exit bool, err error) {
	if err := fs.Parse(args); err != nil {
		return true, fmt.Errorf("failed to parse flags: %w", err)
	}

	if *f.Version {
		_, _ = fmt.Fprintf(out, "Zaparoo Bridge v%s\n", config.AppVersion)
		return true, nil
	}

	if *f.Config != "" {
		if err := os.Setenv(config.CfgEnv, *f.Config); err != nil {
			return true, fmt.Errorf("failed to set config path: %w", err)
		}
	}

	if *f.ListPorts {
		ports, err := uart.ListPorts()
		if err != nil {
			return true, err //nolint:wrapcheck // already describes the failure
		}
		return true, PrintPorts(out, ports, *f.JSON)
	}

	return false, nil
}

// PrintPorts writes ports as a table, or as a JSON array when asJSON is set.
func PrintPorts(out io.Writer, ports []uart.PortInfo, asJSON bool) error {
	if asJSON {
		if ports == nil {
			ports = []uart.PortInfo{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(ports); err != nil {
			return fmt.Errorf("failed to encode ports: %w", err)
		}
		return nil
	}

	if len(ports) == 0 {
		_, _ = fmt.Fprintln(out, "no serial ports found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PORT\tUSB ID\tPRODUCT")
	for _, p := range ports {
		id := "-"
		if p.IsUSB {
			id = p.VID + ":" + p.PID
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", p.Name, id, p.Product)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write ports: %w", err)
	}
	return nil
}

// Post runs the flags that need config and logging. It returns true when
// the process should exit.
func (f *Flags) Post(ctx context.Context, cfg *config.Instance, out io.Writer) (exit bool, err error) {
	if !*f.DetectBaud {
		return false, nil
	}

	rate, err := service.DetectBaudRate(ctx, service.Options{Config: cfg})
	if err != nil {
		return true, err //nolint:wrapcheck // already describes the failure
	}
	_, _ = fmt.Fprintf(out, "%d\n", rate)
	return true, nil
}

// Setup creates the working directories and initializes logging, config
// and error reporting, in that order.
//
//nolint:gocritic // config struct copied for immutability
func Setup(
	dirs helpers.Dirs,
	defaults config.Values,
	writers []io.Writer,
) (*config.Instance, error) {
	if err := helpers.EnsureDirectories(dirs); err != nil {
		return nil, fmt.Errorf("creating directories: %w", err)
	}

	logOut, err := helpers.InitLogging(dirs, writers)
	if err != nil {
		return nil, fmt.Errorf("initializing logging: %w", err)
	}

	cfg, err := config.NewConfig(afero.NewOsFs(), dirs.ConfigDir, defaults)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.ApplyLogLevel(cfg.DebugLogging())

	err = telemetry.Init(telemetry.Options{
		Base:     logOut,
		Enabled:  cfg.ErrorReporting(),
		DeviceID: cfg.DeviceID(),
		Version:  config.AppVersion,
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize error reporting")
	}

	return cfg, nil
}
