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


package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Credentials are the HTTP basic auth user and password.
type Credentials struct {
	Username string
	Password string
}

// Match compares in constant time. Both fields are hashed first so the
// comparison does not leak their lengths.
func (c Credentials) Match(username, password string) bool {
	wantUser := sha256.Sum256([]byte(c.Username))
	wantPass := sha256.Sum256([]byte(c.Password))
	gotUser := sha256.Sum256([]byte(username))
	gotPass := sha256.Sum256([]byte(password))

	userOK := subtle.ConstantTimeCompare(wantUser[:], gotUser[:])
	passOK := subtle.ConstantTimeCompare(wantPass[:], gotPass[:])
	return userOK&passOK == 1
}

type AuthOptions struct {
	Realm       string
	Credentials Credentials
	// TrustLoopback lets requests from this machine through without a
	// password.
	TrustLoopback bool
}

// BasicAuth challenges every request that does not carry the configured
// credentials.
func BasicAuth(opts AuthOptions) func(http.Handler) http.Handler {
	challenge := `Basic realm="` + opts.Realm + `", charset="UTF-8"`

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.TrustLoopback && IsLoopbackAddr(r.RemoteAddr) {
				next.ServeHTTP(w, r)
				return
			}

			user, pass, ok := r.BasicAuth()
			if ok && opts.Credentials.Match(user, pass) {
				next.ServeHTTP(w, r)
				return
			}

			if ok {
				log.Warn().
					Str("remote", r.RemoteAddr).
					Str("path", r.URL.Path).
					Str("user_agent", r.Header.Get("User-Agent")).
					Msg("SECURITY: invalid basic auth credentials")
			}

			w.Header().Set("WWW-Authenticate", challenge)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
		})
	}
}
