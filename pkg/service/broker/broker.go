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


// Package broker fans engine notifications out to the events feed and the
// MQTT publishers without letting a slow consumer hold up the engine.
package broker

import (
	"context"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"
	"github.com/rs/zerolog/log"
)

type subscriber struct {
	ch      chan models.Notification
	dropped uint64
}

type Broker struct {
	source      <-chan models.Notification
	subscribers map[int]*subscriber
	mu          syncutil.RWMutex
	nextID      int
	closed      bool
}

func New(source <-chan models.Notification) *Broker {
	return &Broker{
		source:      source,
		subscribers: make(map[int]*subscriber),
	}
}

// Run copies every notification from the source to each subscriber until
// the source closes or ctx is done. Subscriber channels are closed on
// return.
func (b *Broker) Run(ctx context.Context) error {
	defer b.closeAll()

	for {
		select {
		case notif, ok := <-b.source:
			if !ok {
				log.Debug().Msg("broker: source channel closed")
				return nil
			}
			b.publish(notif)
		case <-ctx.Done():
			log.Debug().Msg("broker: context cancelled, shutting down")
			return nil
		}
	}
}

// publish never blocks. A full subscriber misses the notification.
func (b *Broker) publish(notif models.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		select {
		case sub.ch <- notif:
		default:
			sub.dropped++
			log.Warn().
				Int("subscriber_id", id).
				Str("method", notif.Method).
				Uint64("dropped", sub.dropped).
				Msg("subscriber channel full, dropping notification")
		}
	}
}

// Subscribe returns a channel buffered to size and the id to unsubscribe
// with. Subscribing after Run has returned yields a closed channel.
func (b *Broker) Subscribe(size int) (notifications <-chan models.Notification, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id = b.nextID
	b.nextID++

	ch := make(chan models.Notification, size)
	if b.closed {
		close(ch)
		return ch, id
	}
	b.subscribers[id] = &subscriber{ch: ch}

	log.Debug().Int("subscriber_id", id).Int("buffer_size", size).Msg("new subscriber registered")
	return ch, id
}

// Unsubscribe closes the subscription. Unknown ids are ignored.
func (b *Broker) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(sub.ch)
		log.Debug().Int("subscriber_id", id).Msg("subscriber unsubscribed")
	}
}

// Dropped reports how many notifications subscriber id has missed.
func (b *Broker) Dropped(id int) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if sub, ok := b.subscribers[id]; ok {
		return sub.dropped
	}
	return 0
}

func (b *Broker) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, sub := range b.subscribers {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.closed = true
}
