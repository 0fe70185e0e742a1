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

package notifications

import (
	"encoding/json"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/rs/zerolog/log"
)

// sendNotification never blocks: the engine loop calls these helpers and a
// slow subscriber must not stall serial traffic.
func sendNotification(ns chan<- models.Notification, method string, payload any) {
	if ns == nil {
		return
	}

	var params json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("method", method).Msg("failed to marshal notification params")
			return
		}
		params = b
	}

	select {
	case ns <- models.Notification{Method: method, Params: params}:
	default:
		log.Warn().Str("method", method).Msg("notification channel full, dropping notification")
	}
}

func ClientsChanged(ns chan<- models.Notification, payload models.ClientsParams) {
	sendNotification(ns, models.NotificationClients, payload)
}

func FlowChanged(ns chan<- models.Notification, payload models.FlowParams) {
	sendNotification(ns, models.NotificationFlow, payload)
}

func Stats(ns chan<- models.Notification, payload models.StatsParams) {
	sendNotification(ns, models.NotificationStats, payload)
}

func SttyChanged(ns chan<- models.Notification, payload models.SttyParams) {
	sendNotification(ns, models.NotificationStty, payload)
}
