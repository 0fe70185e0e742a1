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


// Package service wires the serial line, the bridge engine and every
// surrounding service together and runs them until shutdown.
package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime/debug"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/leds"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/memory"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/service/broker"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/service/discovery"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/service/publishers"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/transport"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	TokenLength         = 16
	notificationBacklog = 64
	subscriberBacklog   = 100
	hubShutdownTimeout  = 5 * time.Second
	configApplyTimeout  = 5 * time.Second
)

type Options struct {
	Config *config.Instance
	// Fs is where sysfs LEDs are looked up. Defaults to the OS filesystem.
	Fs afero.Fs
	// Factory opens the serial line. Defaults to resolving the configured
	// port.
	Factory uart.PortFactory
	// Listener is used instead of binding the configured API address.
	Listener net.Listener
	// Ports lists serial devices for auto-detection.
	Ports PortLister
	// Discovery overrides how mDNS services are registered.
	Discovery []discovery.Option
}

func (o *Options) defaults() {
	if o.Fs == nil {
		o.Fs = afero.NewOsFs()
	}
	if o.Ports == nil {
		o.Ports = uart.ListPorts
	}
}

// EngineConfig maps the config file onto engine tuning.
func EngineConfig(cfg *config.Instance, token string) bridge.Config {
	rxBuffer := cfg.RxBufferSize()
	bc := bridge.DefaultConfig(rxBuffer)

	bc.AuthToken = token
	bc.Title = helpers.DeviceName(cfg.Title())
	bc.Preferences = cfg.Preferences()
	bc.Line = cfg.LineParams()
	bc.MaxClients = cfg.MaxClients()
	bc.SendBufferSize = cfg.SendBufferSize()
	bc.FragmentBufferSize = cfg.FragmentBufferSize()

	bc.RxSoftMin = bc.SendBufferSize * 3 / 2
	bc.LowWatermark = bc.RxSoftMin + 1
	bc.HighWatermark = rxBuffer - bc.SendBufferSize
	low, high := cfg.Watermarks()
	if low > 0 {
		bc.LowWatermark = low
	}
	if high > 0 {
		bc.HighWatermark = high
	}

	bc.MemoryLowWatermark, bc.MemoryHighWatermark = cfg.MemoryWatermarks()
	bc.PingInterval = cfg.PingInterval()
	bc.BlockExpiry = cfg.BlockExpiry()
	bc.AuthTimeout = cfg.AuthTimeout()
	bc.LocalMaxStop = cfg.LocalMaxStop()
	bc.MemoryMaxStop = cfg.MemoryMaxStop()
	bc.StatsInterval = cfg.StatsInterval()
	bc.LEDOnTime, bc.LEDOffTime = cfg.LEDTimes()
	bc.SoftwareFlowControl = cfg.SoftwareFlowControl()
	return bc
}

// terminalToken returns the configured token, generating one for this run
// when auth is on and none is set. Empty when auth is off.
func terminalToken(cfg *config.Instance) (string, error) {
	if !cfg.AuthEnabled() {
		return "", nil
	}
	if token := cfg.AuthToken(); token != "" {
		return token, nil
	}
	token, err := helpers.GenerateToken(TokenLength)
	if err != nil {
		return "", fmt.Errorf("failed to generate auth token: %w", err)
	}
	cfg.SetAuthToken(token)
	log.Info().Msg("generated terminal auth token for this session")
	return token, nil
}

func indicator(fs afero.Fs, cfg *config.Instance) bridge.Indicator {
	rx, tx, status := cfg.LEDNames()
	if rx == "" && tx == "" && status == "" {
		return nil
	}
	ind, err := leds.NewSysfs(fs, leds.SysfsRoot, leds.Names{Rx: rx, Tx: tx, Status: status})
	if err != nil {
		log.Warn().Err(err).Msg("status LEDs unavailable")
		return nil
	}
	return ind
}

func openPort(opts *Options) (*uart.Port, error) {
	cfg := opts.Config
	path := cfg.SerialPort()
	factory := opts.Factory
	if factory == nil {
		var err error
		path, factory, err = resolvePort(path, opts.Ports)
		if err != nil {
			return nil, err
		}
	}

	port, err := uart.Open(uart.Options{
		Factory:      factory,
		Path:         path,
		Params:       cfg.LineParams(),
		RxBufferSize: cfg.RxBufferSize(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial line %s: %w", path, err)
	}
	return port, nil
}

// openLine opens the serial line and, when autobaud is on, moves it to the
// detected rate.
func openLine(ctx context.Context, opts *Options) (*uart.Port, error) {
	port, err := openPort(opts)
	if err != nil {
		return nil, err
	}
	if !opts.Config.Autobaud() {
		return port, nil
	}

	cfg := opts.Config
	params := cfg.LineParams()
	rate, err := uart.DetectBaudRate(ctx, port, params, uart.AutobaudOptions{})
	switch {
	case err == nil:
		params.BaudRate = rate
		cfg.SetLineParams(params)
		log.Info().Int("baud", rate).Msg("autobaud detected line rate")
	case errors.Is(err, uart.ErrBaudNotDetected):
		log.Warn().Int("baud", params.BaudRate).Msg("autobaud found no traffic, keeping configured rate")
	default:
		_ = port.Close()
		return nil, fmt.Errorf("autobaud: %w", err)
	}
	return port, nil
}

// DetectBaudRate opens the configured line, samples it for a recognisable
// rate and closes it again.
func DetectBaudRate(ctx context.Context, opts Options) (int, error) {
	opts.defaults()
	port, err := openPort(&opts)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Debug().Err(err).Msg("closing serial line after autobaud")
		}
	}()

	rate, err := uart.DetectBaudRate(ctx, port, opts.Config.LineParams(), uart.AutobaudOptions{})
	if err != nil {
		return 0, fmt.Errorf("autobaud: %w", err)
	}
	return rate, nil
}

// Run starts the bridge and blocks until ctx is cancelled or a component
// fails. bridge.ErrStalled is returned as is so the caller can exit with an
// error status.
func Run(ctx context.Context, opts Options) error {
	opts.defaults()
	cfg := opts.Config
	log.Info().Msgf("version: %s", config.AppVersion)

	if limit := cfg.MemoryLimit(); limit > 0 {
		debug.SetMemoryLimit(limit)
		log.Info().Int64("bytes", limit).Msg("runtime memory limit set")
	}

	token, err := terminalToken(cfg)
	if err != nil {
		return err
	}

	port, err := openLine(ctx, &opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := port.Close(); err != nil {
			log.Warn().Err(err).Msg("closing serial line")
		}
	}()

	hub := transport.NewHub(transport.Options{
		CheckOrigin: api.CheckOrigin(cfg.AllowedOrigins()),
		QueueSize:   cfg.SendQueueSize(),
		Window:      cfg.SendBufferSize(),
		ReadTimeout: 2 * cfg.PingInterval(),
	})

	ns := make(chan models.Notification, notificationBacklog)
	probe := memory.New()
	engineOpts := []bridge.Option{
		bridge.WithMemoryProbe(probe),
		bridge.WithNotifications(ns),
	}
	if ind := indicator(opts.Fs, cfg); ind != nil {
		engineOpts = append(engineOpts, bridge.WithIndicator(ind))
		if sysfs, ok := ind.(*leds.Sysfs); ok {
			defer sysfs.Off()
		}
	}

	engineCfg := EngineConfig(cfg, token)
	engine, err := bridge.New(engineCfg, port, hub, engineOpts...)
	if err != nil {
		return fmt.Errorf("failed to create bridge engine: %w", err)
	}

	ln := opts.Listener
	if ln == nil {
		ln, err = api.Listen(cfg)
		if err != nil {
			return err
		}
	}

	server := api.NewServer(api.Options{
		Config:   cfg,
		Engine:   engine,
		Terminal: hub,
		Breaker:  port,
		Token:    token,
		Device:   engineCfg.Title,
	})

	notifBroker := broker.New(ns)
	apiNotifications, _ := notifBroker.Subscribe(subscriberBacklog)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return engine.Run(gctx, hub.Events())
	})
	g.Go(func() error {
		return probe.Run(gctx)
	})
	g.Go(func() error {
		return notifBroker.Run(gctx)
	})
	g.Go(func() error {
		return server.Serve(gctx, ln)
	})
	g.Go(func() error {
		server.Broadcast(gctx, apiNotifications)
		return nil
	})

	log.Info().Msg("starting publishers")
	for _, pub := range publishers.FromConfig(cfg) {
		sub, _ := notifBroker.Subscribe(subscriberBacklog)
		g.Go(func() error {
			if err := pub.Run(gctx, sub); err != nil {
				log.Error().Err(err).Msg("mqtt publisher stopped")
			}
			return nil
		})
	}

	disc := discovery.New(cfg, opts.Discovery...)
	g.Go(func() error {
		return disc.Run(gctx)
	})

	if cfg.Path() != "" {
		g.Go(func() error {
			err := cfg.Watch(gctx, func() { applyConfig(gctx, cfg, engine) })
			if err != nil {
				log.Error().Err(err).Msg("config hot reload unavailable")
			}
			return nil
		})
	}

	if cfg.Autobaud() {
		// The line is already at the detected rate; this tells clients.
		g.Go(func() error {
			if err := engine.Announce(gctx); err != nil && gctx.Err() == nil {
				log.Warn().Err(err).Msg("announcing detected baud rate")
			}
			return nil
		})
	}

	log.Info().
		Str("addr", ln.Addr().String()).
		Str("line", engineCfg.Line.String()).
		Msg("bridge started")

	err = g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), hubShutdownTimeout)
	defer cancel()
	if hubErr := hub.Shutdown(shutdownCtx); hubErr != nil {
		log.Warn().Err(hubErr).Msg("transport shutdown")
	}

	if err != nil {
		log.Error().Err(err).Msg("bridge stopped with error")
		return err
	}
	log.Info().Msg("bridge stopped")
	return nil
}

// applyConfig pushes reloaded serial parameters to the engine when they
// differ from what the line is running at.
func applyConfig(ctx context.Context, cfg *config.Instance, engine api.Engine) {
	ctx, cancel := context.WithTimeout(ctx, configApplyTimeout)
	defer cancel()

	st, err := engine.Status(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("reading engine status after config reload")
		return
	}
	params := cfg.LineParams()
	if params == st.Line {
		return
	}
	if err := engine.Stty(ctx, params); err != nil {
		log.Error().Err(err).Str("line", params.String()).Msg("applying reloaded serial parameters")
	}
}
