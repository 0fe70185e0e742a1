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

import "time"

// Registry tracks connected clients. Pending clients have connected but not
// yet authenticated; they count against capacity but receive no broadcast.
type Registry struct {
	ids          []ClientID
	lastSeen     []time.Time
	pending      []ClientID
	pendingSince []time.Time
	max          int
}

func NewRegistry(maxClients int) *Registry {
	return &Registry{
		ids:          make([]ClientID, 0, maxClients),
		lastSeen:     make([]time.Time, 0, maxClients),
		pending:      make([]ClientID, 0, maxClients),
		pendingSince: make([]time.Time, 0, maxClients),
		max:          maxClients,
	}
}

func (r *Registry) Len() int     { return len(r.ids) }
func (r *Registry) Pending() int { return len(r.pending) }
func (r *Registry) Cap() int     { return r.max }

// Full reports whether no further connection can be admitted.
func (r *Registry) Full() bool {
	return len(r.ids)+len(r.pending) >= r.max
}

// IDs returns the authenticated clients in admission order. The slice is
// owned by the registry and is only valid until the next mutation.
func (r *Registry) IDs() []ClientID {
	return r.ids
}

func (r *Registry) index(id ClientID) int {
	for i, c := range r.ids {
		if c == id {
			return i
		}
	}
	return -1
}

func (r *Registry) pendingIndex(id ClientID) int {
	for i, c := range r.pending {
		if c == id {
			return i
		}
	}
	return -1
}

// IsAuthenticated reports whether id is in the registry proper.
func (r *Registry) IsAuthenticated(id ClientID) bool {
	return r.index(id) >= 0
}

func (r *Registry) IsPending(id ClientID) bool {
	return r.pendingIndex(id) >= 0
}

// Known reports whether id is pending or authenticated.
func (r *Registry) Known(id ClientID) bool {
	return r.IsAuthenticated(id) || r.IsPending(id)
}

// AddPending admits id in the pending state, admitted at now.
func (r *Registry) AddPending(id ClientID, now time.Time) bool {
	if r.Known(id) || r.Full() {
		return false
	}
	r.pending = append(r.pending, id)
	r.pendingSince = append(r.pendingSince, now)
	return true
}

func (r *Registry) dropPending(i int) {
	r.pending = append(r.pending[:i], r.pending[i+1:]...)
	r.pendingSince = append(r.pendingSince[:i], r.pendingSince[i+1:]...)
}

// Authenticate promotes a pending client.
func (r *Registry) Authenticate(id ClientID, now time.Time) bool {
	i := r.pendingIndex(id)
	if i < 0 || len(r.ids) >= r.max {
		return false
	}
	r.dropPending(i)
	r.ids = append(r.ids, id)
	r.lastSeen = append(r.lastSeen, now)
	return true
}

// Seen refreshes the last-seen time of an authenticated client.
func (r *Registry) Seen(id ClientID, now time.Time) {
	if i := r.index(id); i >= 0 {
		r.lastSeen[i] = now
	}
}

func (r *Registry) LastSeen(id ClientID) (time.Time, bool) {
	i := r.index(id)
	if i < 0 {
		return time.Time{}, false
	}
	return r.lastSeen[i], true
}

// Remove drops id from both sets, keeping the remaining entries dense and in
// order. It reports whether id was present.
func (r *Registry) Remove(id ClientID) bool {
	found := false
	if i := r.pendingIndex(id); i >= 0 {
		r.dropPending(i)
		found = true
	}
	if i := r.index(id); i >= 0 {
		r.ids = append(r.ids[:i], r.ids[i+1:]...)
		r.lastSeen = append(r.lastSeen[:i], r.lastSeen[i+1:]...)
		found = true
	}
	return found
}

// Expired appends to dst the authenticated clients not seen since cutoff.
func (r *Registry) Expired(dst []ClientID, cutoff time.Time) []ClientID {
	for i, id := range r.ids {
		if r.lastSeen[i].Before(cutoff) {
			dst = append(dst, id)
		}
	}
	return dst
}

// ExpiredPending appends to dst the pending clients admitted before cutoff.
func (r *Registry) ExpiredPending(dst []ClientID, cutoff time.Time) []ClientID {
	for i, id := range r.pending {
		if r.pendingSince[i].Before(cutoff) {
			dst = append(dst, id)
		}
	}
	return dst
}
