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
	"net"
	"strconv"
)

const DefaultAPIPort = 7681

type Service struct {
	APIPort             *int       `toml:"api_port,omitempty"`
	Discovery           Discovery  `toml:"discovery,omitempty"`
	Auth                Auth       `toml:"auth,omitempty"`
	DeviceID            string     `toml:"device_id"`
	APIListen           string     `toml:"api_listen,omitempty"`
	AllowedOrigins      []string   `toml:"allowed_origins,omitempty"`
	AllowedIPs          []string   `toml:"allowed_ips,omitempty"`
	Publishers          Publishers `toml:"publishers,omitempty"`
	PrivateNetworksOnly bool       `toml:"private_networks_only"`
}

// Auth guards the HTTP endpoints with basic auth and the terminal with a
// token. An empty token is generated at start-up.
type Auth struct {
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
	Token    string `toml:"token,omitempty"`
	Enabled  bool   `toml:"enabled"`
}

type Publishers struct {
	MQTT []MQTTPublisher `toml:"mqtt,omitempty"`
}

type MQTTPublisher struct {
	Enabled *bool    `toml:"enabled,omitempty"`
	Broker  string   `toml:"broker"`
	Topic   string   `toml:"topic"`
	Filter  []string `toml:"filter,omitempty,multiline"`
}

type Discovery struct {
	Enabled      *bool  `toml:"enabled,omitempty"`
	InstanceName string `toml:"instance_name,omitempty"`
}

func (c *Instance) APIPort() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiPortLocked()
}

// apiPortLocked returns the API port. Caller must hold mu (read or write).
func (c *Instance) apiPortLocked() int {
	if c.vals.Service.APIPort == nil {
		return DefaultAPIPort
	}
	return *c.vals.Service.APIPort
}

func (c *Instance) SetAPIPort(port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.APIPort = &port
}

// APIListen returns the listen address. A bare host gets the API port.
func (c *Instance) APIListen() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	port := strconv.Itoa(c.apiPortLocked())
	listen := c.vals.Service.APIListen
	if listen == "" {
		return ":" + port
	}
	if _, _, err := net.SplitHostPort(listen); err == nil {
		return listen
	}
	return net.JoinHostPort(listen, port)
}

func (c *Instance) AllowedOrigins() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.AllowedOrigins
}

func (c *Instance) AllowedIPs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.AllowedIPs
}

func (c *Instance) PrivateNetworksOnly() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.PrivateNetworksOnly
}

func (c *Instance) DeviceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.DeviceID
}

func (c *Instance) AuthEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Auth.Enabled
}

func (c *Instance) BasicAuth() (username, password string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Auth.Username, c.vals.Service.Auth.Password
}

func (c *Instance) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Auth.Token
}

func (c *Instance) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Service.Auth.Token = token
}

func (c *Instance) GetMQTTPublishers() []MQTTPublisher {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Publishers.MQTT
}

func (c *Instance) DiscoveryEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return boolOr(c.vals.Service.Discovery.Enabled, true)
}

func (c *Instance) DiscoveryInstanceName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Service.Discovery.InstanceName
}
