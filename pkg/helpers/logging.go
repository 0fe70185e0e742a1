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

package helpers

import (
	"io"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// InitLogging points the global logger at a rotating file in the log
// directory plus any extra writers. The combined writer is returned so
// error reporting can be layered on top of it.
func InitLogging(d Dirs, writers []io.Writer) (io.Writer, error) {
	if err := EnsureDirectories(d); err != nil {
		return nil, err
	}

	logWriters := []io.Writer{&lumberjack.Logger{
		Filename:   filepath.Join(d.LogDir, config.LogFile),
		MaxSize:    1,
		MaxBackups: 2,
	}}

	if len(writers) > 0 {
		logWriters = append(logWriters, writers...)
	}

	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	out := io.MultiWriter(logWriters...)
	log.Logger = log.Output(out).
		With().Timestamp().Caller().Logger()

	return out, nil
}
