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


// Package telemetry provides opt-in error reporting via Sentry.
// Paths, device serial numbers and tokens are scrubbed before anything
// leaves the machine.
package telemetry

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"runtime"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	sentryzerolog "github.com/getsentry/sentry-go/zerolog"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const flushTimeout = 2 * time.Second

// DSN is set at build time. Reporting stays off in builds without one.
var DSN = ""

var ErrNoDSN = errors.New("no error reporting DSN in this build")

var (
	enabled      bool
	sentryWriter *sentryzerolog.Writer
	closeOnce    sync.Once

	homePathRe    = regexp.MustCompile(`(?i)/home/[^/]+/`)
	usersPathRe   = regexp.MustCompile(`(?i)/Users/[^/]+/`)
	windowsUserRe = regexp.MustCompile(`(?i)[a-zA-Z]:\\Users\\[^\\]+\\`)
	// USB adapters embed their serial number in the by-id link name.
	serialByIDRe = regexp.MustCompile(`/dev/serial/by-(id|path)/[^\s:"']+`)
	tokenRe      = regexp.MustCompile(`(?i)(token|password)=[^\s&"']+`)
)

// Options configure Init.
type Options struct {
	// Base is the writer the global logger already uses. Sentry is added
	// alongside it.
	Base     io.Writer
	DeviceID string
	Version  string
	Enabled  bool
}

// Init sets up Sentry and hooks it into the global zerolog logger. With
// Enabled false nothing is touched.
func Init(opts Options) error {
	if !opts.Enabled {
		log.Debug().Msg("error reporting disabled")
		return nil
	}
	if DSN == "" {
		return ErrNoDSN
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              DSN,
		Release:          "zaparoo-bridge@" + opts.Version,
		Environment:      runtime.GOOS,
		AttachStacktrace: true,
		SendDefaultPII:   false,
		ServerName:       "",
		MaxBreadcrumbs:   0,
		HTTPClient:       &http.Client{Timeout: 30 * time.Second},
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return sanitizeEvent(event)
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize sentry: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: opts.DeviceID})
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
	})

	sentryWriter, err = sentryzerolog.NewWithHub(sentry.CurrentHub(), sentryzerolog.Options{
		Levels:          []zerolog.Level{zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel},
		FlushTimeout:    flushTimeout,
		WithBreadcrumbs: false,
	})
	if err != nil {
		return fmt.Errorf("failed to create sentry zerolog writer: %w", err)
	}

	base := opts.Base
	if base == nil {
		base = os.Stderr
	}
	log.Logger = log.Output(zerolog.MultiLevelWriter(base, sentryWriter)).
		With().Timestamp().Caller().Logger()

	enabled = true
	log.Info().Msg("error reporting enabled")
	return nil
}

// Close flushes pending events and shuts down Sentry. Safe to call more
// than once.
func Close() {
	if !enabled {
		return
	}
	closeOnce.Do(func() {
		_ = sentryWriter.Close()
		sentry.Flush(flushTimeout)
	})
}

// Flush blocks until queued events are sent or the timeout passes. Call it
// before os.Exit.
func Flush() {
	if !enabled {
		return
	}
	sentry.Flush(flushTimeout)
}

func Enabled() bool {
	return enabled
}

func sanitizeEvent(event *sentry.Event) *sentry.Event {
	// The SDK may fill this in even with ServerName unset.
	event.ServerName = ""

	for i := range event.Exception {
		event.Exception[i].Value = scrub(event.Exception[i].Value)
		if event.Exception[i].Stacktrace == nil {
			continue
		}
		for j := range event.Exception[i].Stacktrace.Frames {
			frame := &event.Exception[i].Stacktrace.Frames[j]
			frame.AbsPath = scrub(frame.AbsPath)
			frame.Filename = scrub(frame.Filename)
		}
	}

	event.Message = scrub(event.Message)

	for k, v := range event.Extra {
		if s, ok := v.(string); ok {
			event.Extra[k] = scrub(s)
		}
	}
	for k, v := range event.Tags {
		event.Tags[k] = scrub(v)
	}

	return event
}

func scrub(s string) string {
	if s == "" {
		return s
	}

	s = homePathRe.ReplaceAllString(s, "/home/<user>/")
	s = usersPathRe.ReplaceAllString(s, "/Users/<user>/")
	s = windowsUserRe.ReplaceAllString(s, "C:\\Users\\<user>\\")
	s = serialByIDRe.ReplaceAllString(s, "/dev/serial/by-$1/<device>")
	s = tokenRe.ReplaceAllString(s, "$1=<redacted>")

	return s
}
