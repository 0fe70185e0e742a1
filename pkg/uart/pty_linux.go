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

//go:build linux

package uart

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
	"golang.org/x/sys/unix"
)

// PTYPath selects a virtual line instead of a device when used as the
// configured port path.
const PTYPath = "pty"

// ptyPort exposes the master side of a pseudo-terminal as a SerialPort. The
// slave side is left in raw mode for another program to open.
type ptyPort struct {
	master  *os.File
	slave   *os.File
	timeout time.Duration
}

// OpenPTY creates a pseudo-terminal pair and returns the master as a
// SerialPort along with the slave device path.
func OpenPTY() (SerialPort, string, error) {
	master, slave, err := pty.Open()
	if err != nil {
		return nil, "", fmt.Errorf("failed to open pty: %w", err)
	}

	if err := control(slave, makeRaw); err != nil {
		_ = master.Close()
		_ = slave.Close()
		return nil, "", err
	}

	return &ptyPort{master: master, slave: slave}, slave.Name(), nil
}

// PTYFactory is a PortFactory that ignores the path and mode and creates a
// fresh pseudo-terminal.
func PTYFactory(_ string, _ *serial.Mode) (SerialPort, error) {
	sp, name, err := OpenPTY()
	if err != nil {
		return nil, err
	}
	log.Info().Str("slave", name).Msg("virtual serial line ready")
	return sp, nil
}

func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("failed to get pty termios: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return fmt.Errorf("failed to set pty termios: %w", err)
	}
	return nil
}

func (p *ptyPort) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		_ = p.master.SetReadDeadline(time.Now().Add(p.timeout))
	}
	n, err := p.master.Read(b)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	if err != nil {
		return n, fmt.Errorf("pty read: %w", err)
	}
	return n, nil
}

func (p *ptyPort) Write(b []byte) (int, error) {
	n, err := p.master.Write(b)
	if err != nil {
		return n, fmt.Errorf("pty write: %w", err)
	}
	return n, nil
}

func (p *ptyPort) Close() error {
	return errors.Join(p.master.Close(), p.slave.Close())
}

// SetMode is accepted and ignored; a pseudo-terminal has no line rate.
func (*ptyPort) SetMode(*serial.Mode) error {
	return nil
}

func (p *ptyPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

func (p *ptyPort) Break(time.Duration) error {
	err := control(p.master, func(fd int) error {
		return unix.IoctlSetInt(fd, unix.TCSBRK, 0)
	})
	if err != nil {
		return fmt.Errorf("pty break: %w", err)
	}
	return nil
}

func (*ptyPort) Drain() error {
	return nil
}

func (p *ptyPort) ResetInputBuffer() error {
	err := control(p.master, func(fd int) error {
		return unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)
	})
	if err != nil {
		return fmt.Errorf("pty flush: %w", err)
	}
	return nil
}

// control runs fn on the raw descriptor without taking the file out of
// non-blocking mode, so read deadlines keep working.
func control(f *os.File, fn func(fd int) error) error {
	rc, err := f.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to get raw conn: %w", err)
	}
	var opErr error
	if err := rc.Control(func(fd uintptr) {
		opErr = fn(int(fd))
	}); err != nil {
		return fmt.Errorf("failed to control descriptor: %w", err)
	}
	return opErr
}
