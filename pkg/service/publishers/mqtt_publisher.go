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


// Package publishers forwards engine notifications to external sinks.
package publishers

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250
)

// ClientFactory builds an MQTT client. Tests swap in a mock.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// MQTTPublisher publishes notification params, without the JSON-RPC
// envelope, to a single broker topic.
type MQTTPublisher struct {
	client    mqtt.Client
	newClient ClientFactory
	broker    string
	topic     string
	filter    []string
}

// NewMQTTPublisher returns a publisher for broker and topic. An empty
// filter publishes every notification method.
func NewMQTTPublisher(broker, topic string, filter []string) *MQTTPublisher {
	return &MQTTPublisher{
		broker:    broker,
		topic:     topic,
		filter:    filter,
		newClient: mqtt.NewClient,
	}
}

// FromConfig builds a publisher for every enabled entry with a broker and
// topic set.
func FromConfig(cfg *config.Instance) []*MQTTPublisher {
	var pubs []*MQTTPublisher
	for _, p := range cfg.GetMQTTPublishers() {
		if p.Enabled != nil && !*p.Enabled {
			continue
		}
		if p.Broker == "" || p.Topic == "" {
			log.Warn().Str("broker", p.Broker).Msg("mqtt publisher: broker and topic are required, skipping")
			continue
		}
		pubs = append(pubs, NewMQTTPublisher(p.Broker, p.Topic, p.Filter))
	}
	return pubs
}

func (p *MQTTPublisher) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker("tcp://" + p.broker)
	opts.SetClientID("zaparoo-bridge-" + uuid.New().String()[:8])
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(connectTimeout)

	opts.OnConnect = func(_ mqtt.Client) {
		log.Info().Msgf("mqtt publisher: connected to %s", p.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Msg("mqtt publisher: connection lost")
	}
	return opts
}

// Run connects and forwards notifications until the channel closes or ctx
// is done. Publish failures are logged and never stop the loop.
func (p *MQTTPublisher) Run(ctx context.Context, notifications <-chan models.Notification) error {
	p.client = p.newClient(p.clientOptions())

	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		// ConnectRetry keeps trying in the background.
		log.Warn().Str("broker", p.broker).Msg("mqtt publisher: broker not reachable yet")
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	defer p.disconnect()

	for {
		select {
		case <-ctx.Done():
			return nil
		case notif, ok := <-notifications:
			if !ok {
				log.Debug().Msg("mqtt publisher: notification channel closed")
				return nil
			}
			p.publish(notif)
		}
	}
}

func (p *MQTTPublisher) publish(notif models.Notification) {
	if !p.matchesFilter(notif.Method) {
		return
	}

	payload := []byte(notif.Params)
	if len(payload) == 0 {
		payload = []byte("null")
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		log.Warn().Str("method", notif.Method).Msg("mqtt publisher: publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		log.Error().Err(err).Msg("mqtt publisher: failed to publish message")
		return
	}
	log.Debug().Msgf("mqtt publisher: published %s notification", notif.Method)
}

func (p *MQTTPublisher) disconnect() {
	if p.client != nil && p.client.IsConnected() {
		log.Debug().Msg("mqtt publisher: disconnecting")
		p.client.Disconnect(disconnectQuiesce)
	}
}

func (p *MQTTPublisher) matchesFilter(method string) bool {
	return len(p.filter) == 0 || slices.Contains(p.filter, method)
}
