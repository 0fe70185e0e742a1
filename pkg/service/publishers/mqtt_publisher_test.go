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


package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/testing/mocks"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func withClient(p *MQTTPublisher, client mqtt.Client) *MQTTPublisher {
	p.newClient = func(*mqtt.ClientOptions) mqtt.Client {
		return client
	}
	return p
}

func notification(method, params string) models.Notification {
	return models.Notification{Method: method, Params: json.RawMessage(params)}
}

func TestMatchesFilter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		filter []string
		want   bool
	}{
		{name: "no filter", method: models.NotificationStats, want: true},
		{name: "empty filter", method: models.NotificationStty, filter: []string{}, want: true},
		{
			name:   "listed",
			method: models.NotificationClients,
			filter: []string{models.NotificationClients, models.NotificationFlow},
			want:   true,
		},
		{
			name:   "not listed",
			method: models.NotificationStats,
			filter: []string{models.NotificationClients},
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := NewMQTTPublisher("localhost:1883", "bridge/events", tt.filter)
			assert.Equal(t, tt.want, p.matchesFilter(tt.method))
		})
	}
}

func TestClientOptions(t *testing.T) {
	t.Parallel()

	opts := NewMQTTPublisher("broker.lan:1883", "t", nil).clientOptions()
	reader := mqtt.NewOptionsReader(opts)

	require.Len(t, reader.Servers(), 1)
	assert.Equal(t, "tcp://broker.lan:1883", reader.Servers()[0].String())
	assert.Regexp(t, `^zaparoo-bridge-[0-9a-f]{8}$`, reader.ClientID())
	assert.True(t, reader.AutoReconnect())
	assert.Equal(t, connectTimeout, reader.ConnectTimeout())
}

func TestRunPublishesFilteredParams(t *testing.T) {
	t.Parallel()

	client := &mocks.MockMQTTClient{}
	client.On("Connect").Return(mocks.NewToken(nil))
	client.On("Publish", "bridge/events", byte(0), false, []byte(`{"id":3}`)).
		Return(mocks.NewToken(nil)).Once()
	client.On("IsConnected").Return(true)
	client.On("Disconnect", uint(disconnectQuiesce)).Return()

	p := withClient(NewMQTTPublisher("localhost:1883", "bridge/events", []string{models.NotificationClients}), client)

	ns := make(chan models.Notification, 2)
	ns <- notification(models.NotificationStats, `{"txBps":1}`)
	ns <- notification(models.NotificationClients, `{"id":3}`)
	close(ns)

	require.NoError(t, p.Run(context.Background(), ns))
	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRunConnectError(t *testing.T) {
	t.Parallel()

	client := &mocks.MockMQTTClient{}
	client.On("Connect").Return(mocks.NewToken(errors.New("connection refused")))

	p := withClient(NewMQTTPublisher("localhost:1883", "t", nil), client)
	err := p.Run(context.Background(), make(chan models.Notification))
	require.Error(t, err)
	client.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunSurvivesPublishError(t *testing.T) {
	t.Parallel()

	client := &mocks.MockMQTTClient{}
	client.On("Connect").Return(mocks.NewToken(nil))
	client.On("Publish", "t", byte(0), false, mock.Anything).
		Return(mocks.NewToken(errors.New("not connected"))).Twice()
	client.On("IsConnected").Return(false)

	p := withClient(NewMQTTPublisher("localhost:1883", "t", nil), client)

	ns := make(chan models.Notification, 2)
	ns <- notification(models.NotificationFlow, `{"paused":true}`)
	ns <- notification(models.NotificationFlow, `{"paused":false}`)
	close(ns)

	require.NoError(t, p.Run(context.Background(), ns))
	client.AssertExpectations(t)
	client.AssertNotCalled(t, "Disconnect", mock.Anything)
}

func TestRunEmptyParams(t *testing.T) {
	t.Parallel()

	client := &mocks.MockMQTTClient{}
	client.On("Connect").Return(mocks.NewToken(nil))
	client.On("Publish", "t", byte(0), false, []byte("null")).Return(mocks.NewToken(nil)).Once()
	client.On("IsConnected").Return(false)

	p := withClient(NewMQTTPublisher("localhost:1883", "t", nil), client)
	ns := make(chan models.Notification, 1)
	ns <- models.Notification{Method: models.NotificationStty}
	close(ns)

	require.NoError(t, p.Run(context.Background(), ns))
	client.AssertExpectations(t)
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	client := &mocks.MockMQTTClient{}
	client.On("Connect").Return(mocks.NewToken(nil))
	client.On("IsConnected").Return(true)
	client.On("Disconnect", uint(disconnectQuiesce)).Return().Once()

	p := withClient(NewMQTTPublisher("localhost:1883", "t", nil), client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, make(chan models.Notification)) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	client.AssertExpectations(t)
}

func TestFromConfig(t *testing.T) {
	t.Parallel()

	off := false
	vals := config.BaseDefaults
	vals.Service.Publishers.MQTT = []config.MQTTPublisher{
		{Broker: "a:1883", Topic: "one"},
		{Broker: "b:1883", Topic: "two", Enabled: &off},
		{Broker: "", Topic: "three"},
		{Broker: "d:1883", Topic: "four", Filter: []string{models.NotificationStty}},
	}

	pubs := FromConfig(config.NewInstance(vals))
	require.Len(t, pubs, 2)
	assert.Equal(t, "one", pubs[0].topic)
	assert.Equal(t, "four", pubs[1].topic)
	assert.Equal(t, []string{models.NotificationStty}, pubs[1].filter)
}
