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


package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/zaparoo-bridge/internal/telemetry"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/cli"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := cli.SetupFlags(flag.CommandLine)
	exit, err := flags.Pre(flag.CommandLine, os.Args[1:], os.Stdout)
	if exit || err != nil {
		return err
	}

	dirs := helpers.DefaultDirs()
	logWriters := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr}}
	if *flags.Daemon {
		logWriters = []io.Writer{os.Stderr}
	}

	cfg, err := cli.Setup(dirs, config.BaseDefaults, logWriters)
	if err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}
	defer telemetry.Close()

	defer func() {
		if err := recover(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Panic: %s\n", err)
			telemetry.Flush()
			log.Fatal().Msgf("panic: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if exit, err := flags.Post(ctx, cfg, os.Stdout); exit || err != nil {
		return err //nolint:wrapcheck // already describes the failure
	}

	if *flags.Daemon {
		pid := helpers.NewPidFile(dirs)
		if pid.Running() {
			return errors.New("bridge already running")
		}
		if err := pid.Create(); err != nil {
			return fmt.Errorf("error creating pid file: %w", err)
		}
		defer func() {
			if err := pid.Remove(); err != nil {
				log.Warn().Err(err).Msg("error removing pid file")
			}
		}()
		log.Info().Msg("started in daemon mode")
	}

	err = service.Run(ctx, service.Options{Config: cfg})
	if errors.Is(err, bridge.ErrStalled) {
		log.Error().Err(err).Msg("exiting so the supervisor can restart the bridge")
		telemetry.Flush()
	}
	if err != nil {
		return fmt.Errorf("bridge: %w", err)
	}
	return nil
}
