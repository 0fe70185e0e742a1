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


// Package discovery advertises the bridge over mDNS so terminals on the
// LAN can find it without knowing its address.
package discovery

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"
	"github.com/grandcat/zeroconf"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	// ServiceType is the bridge's own DNS-SD type.
	ServiceType = "_zaparoo-bridge._tcp"
	// HTTPServiceType lets generic browsers list the landing page.
	HTTPServiceType = "_http._tcp"

	retryInterval    = 30 * time.Second
	maxRetryDuration = 5 * time.Minute
)

// virtualInterfacePrefixes are container and VPN interfaces mDNS should
// not be announced on.
var virtualInterfacePrefixes = []string{
	"docker", "br-", "veth", "virbr", "lxc", "lxd",
	"cni", "flannel", "cali", "tunl", "wg",
}

// Registration is a live announcement. *zeroconf.Server satisfies it.
type Registration interface {
	Shutdown()
}

// RegisterFunc announces one service instance.
type RegisterFunc func(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (Registration, error)

func zeroconfRegister(
	instance, service, domain string,
	port int,
	text []string,
	ifaces []net.Interface,
) (Registration, error) {
	srv, err := zeroconf.Register(instance, service, domain, port, text, ifaces)
	if err != nil {
		return nil, fmt.Errorf("zeroconf register %s: %w", service, err)
	}
	return srv, nil
}

func filterInterfaces(ifaces []net.Interface) []net.Interface {
	var preferred []net.Interface
	for _, iface := range ifaces {
		switch {
		case iface.Flags&net.FlagUp == 0,
			iface.Flags&net.FlagLoopback != 0,
			iface.Flags&net.FlagMulticast == 0,
			isVirtualInterface(iface.Name):
			continue
		}
		preferred = append(preferred, iface)
	}
	return preferred
}

func isVirtualInterface(name string) bool {
	lowerName := strings.ToLower(name)
	for _, prefix := range virtualInterfacePrefixes {
		if strings.HasPrefix(lowerName, prefix) {
			return true
		}
	}
	return false
}

type Option func(*Service)

func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithRegister(fn RegisterFunc) Option {
	return func(s *Service) { s.register = fn }
}

func WithInterfaces(fn func() ([]net.Interface, error)) Option {
	return func(s *Service) { s.interfaces = fn }
}

// Service announces the bridge for as long as Run is running.
type Service struct {
	clock        clockwork.Clock
	register     RegisterFunc
	interfaces   func() ([]net.Interface, error)
	cfg          *config.Instance
	instanceName string
	servers      []Registration
	mu           syncutil.Mutex
}

func New(cfg *config.Instance, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		clock:      clockwork.NewRealClock(),
		register:   zeroconfRegister,
		interfaces: net.Interfaces,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run registers the services and keeps them up until ctx is done. When
// the network is not ready it retries every 30s for up to five minutes,
// then gives up without failing the bridge.
func (s *Service) Run(ctx context.Context) error {
	if !s.cfg.DiscoveryEnabled() {
		log.Info().Msg("mDNS discovery disabled by configuration")
		return nil
	}
	s.instanceName = s.resolveInstanceName()
	defer s.stop()

	if !s.tryRegister() {
		log.Info().
			Dur("retryInterval", retryInterval).
			Dur("maxDuration", maxRetryDuration).
			Msg("mDNS registration failed, retrying in background (network may not be ready)")

		if !s.retry(ctx) {
			return nil
		}
	}

	<-ctx.Done()
	return nil
}

func (s *Service) retry(ctx context.Context) bool {
	ticker := s.clock.NewTicker(retryInterval)
	defer ticker.Stop()
	deadline := s.clock.Now().Add(maxRetryDuration)

	for {
		select {
		case <-ctx.Done():
			return false
		case now := <-ticker.Chan():
			if s.tryRegister() {
				log.Info().Msg("mDNS registration succeeded after retry")
				return true
			}
			if !now.Before(deadline) {
				log.Warn().Msg("mDNS registration retry timed out, discovery will not be available")
				return false
			}
		}
	}
}

// TXTRecords describes the bridge to browsers of the service type.
func (s *Service) TXTRecords() []string {
	auth := "0"
	if s.cfg.AuthEnabled() {
		auth = "1"
	}
	return []string{
		"id=" + s.cfg.DeviceID(),
		"version=" + config.AppVersion,
		"path=/",
		"ws=/ws",
		"protocol=tty",
		"auth=" + auth,
	}
}

func (s *Service) tryRegister() bool {
	all, err := s.interfaces()
	if err != nil {
		log.Debug().Err(err).Msg("failed to list network interfaces")
		return false
	}
	ifaces := filterInterfaces(all)
	if len(ifaces) == 0 {
		log.Debug().Msg("no suitable network interfaces found for mDNS")
		return false
	}

	names := make([]string, len(ifaces))
	for i, iface := range ifaces {
		names[i] = iface.Name
	}

	port := s.cfg.APIPort()
	txt := s.TXTRecords()

	servers := make([]Registration, 0, 2)
	for _, svcType := range []string{ServiceType, HTTPServiceType} {
		srv, err := s.register(s.instanceName, svcType, "local.", port, txt, ifaces)
		if err != nil {
			log.Debug().Err(err).Str("type", svcType).Msg("mDNS registration attempt failed")
			for _, done := range servers {
				done.Shutdown()
			}
			return false
		}
		servers = append(servers, srv)
	}

	s.mu.Lock()
	s.servers = servers
	s.mu.Unlock()

	log.Info().
		Str("instance", s.instanceName).
		Int("port", port).
		Str("type", ServiceType).
		Strs("interfaces", names).
		Msg("mDNS service advertising started")
	return true
}

// stop sends goodbye packets for every registered service.
func (s *Service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, srv := range s.servers {
		srv.Shutdown()
	}
	if len(s.servers) > 0 {
		log.Debug().Msg("stopped mDNS service advertising")
	}
	s.servers = nil
}

// InstanceName is empty until Run has started.
func (s *Service) InstanceName() string {
	return s.instanceName
}

// resolveInstanceName prefers the configured name, then the hostname.
func (s *Service) resolveInstanceName() string {
	if name := s.cfg.DiscoveryInstanceName(); name != "" {
		return name
	}

	hostname, err := os.Hostname()
	if err == nil && hostname != "" {
		return hostname
	}
	log.Warn().Err(err).Msg("failed to get hostname, using fallback")

	deviceID := s.cfg.DeviceID()
	if len(deviceID) >= 8 {
		return "zaparoo-bridge-" + deviceID[:8]
	}
	return "zaparoo-bridge"
}
