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

package bridge

import (
	"time"

	"github.com/rs/zerolog/log"
)

type blockedEntry struct {
	at time.Time
	id ClientID
}

// BlockedSet remembers recently removed clients so frames still in flight
// for them are dropped instead of re-admitting the id. Entries are kept in
// blocking order and expire after a fixed window.
type BlockedSet struct {
	entries []blockedEntry
	expiry  time.Duration
}

func NewBlockedSet(capacity int, expiry time.Duration) *BlockedSet {
	return &BlockedSet{
		entries: make([]blockedEntry, 0, capacity),
		expiry:  expiry,
	}
}

func (b *BlockedSet) Len() int { return len(b.entries) }

// Add blocks id from now on. A full set drops its oldest entry.
func (b *BlockedSet) Add(id ClientID, now time.Time) {
	b.sweep(now)
	for i := range b.entries {
		if b.entries[i].id == id {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			break
		}
	}
	if len(b.entries) == cap(b.entries) {
		log.Warn().Uint32("client", uint32(b.entries[0].id)).Msg("blocked set full, evicting oldest entry")
		b.entries = append(b.entries[:0], b.entries[1:]...)
	}
	b.entries = append(b.entries, blockedEntry{id: id, at: now})
}

// Contains reports whether id is still blocked at now.
func (b *BlockedSet) Contains(id ClientID, now time.Time) bool {
	b.sweep(now)
	for _, e := range b.entries {
		if e.id == id {
			return true
		}
	}
	return false
}

func (b *BlockedSet) sweep(now time.Time) {
	n := 0
	for _, e := range b.entries {
		if now.Sub(e.at) <= b.expiry {
			b.entries[n] = e
			n++
		} else {
			log.Trace().Uint32("client", uint32(e.id)).Msg("client unblocked")
		}
	}
	b.entries = b.entries[:n]
}
