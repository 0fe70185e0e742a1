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
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
)

// Dirs are the directories the bridge writes to.
type Dirs struct {
	ConfigDir string
	TempDir   string
	LogDir    string
}

// DefaultDirs follows the XDG locations for the current user, falling back
// to the executable's directory when no config home exists.
func DefaultDirs() Dirs {
	cfgDir, err := os.UserConfigDir()
	if err != nil {
		cfgDir = ExeDir()
	}
	tempDir := filepath.Join(os.TempDir(), config.AppName)

	logDir := filepath.Join(tempDir, "logs")
	if cacheDir, err := os.UserCacheDir(); err == nil {
		logDir = filepath.Join(cacheDir, config.AppName, "logs")
	}

	return Dirs{
		ConfigDir: filepath.Join(cfgDir, config.AppName),
		TempDir:   tempDir,
		LogDir:    logDir,
	}
}

// EnsureDirectories creates the temp and log directories.
func EnsureDirectories(d Dirs) error {
	if err := os.MkdirAll(d.TempDir, 0o750); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	if err := os.MkdirAll(d.LogDir, 0o750); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func ExeDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}

	return filepath.Dir(exe)
}
