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

package uart

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

const (
	DefaultRxBufferSize      = 10240
	DefaultReadTimeout       = 50 * time.Millisecond
	DefaultReconnectInterval = time.Second
	DefaultBreakDuration     = 10 * time.Millisecond
	readChunkSize            = 4096
)

var (
	ErrDisconnected = errors.New("serial port disconnected")
	ErrClosed       = errors.New("serial port closed")
)

// SerialPort is the subset of go.bug.st/serial.Port the adapter drives.
type SerialPort interface {
	io.ReadWriteCloser
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Break(d time.Duration) error
	Drain() error
	ResetInputBuffer() error
}

// PortFactory opens the device at path with the given mode.
type PortFactory func(path string, mode *serial.Mode) (SerialPort, error)

// DefaultPortFactory opens a real serial device.
func DefaultPortFactory(path string, mode *serial.Mode) (SerialPort, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	return port, nil
}

type Options struct {
	Factory           PortFactory
	Clock             clockwork.Clock
	Path              string
	Params            LineParams
	RxBufferSize      int
	ReadTimeout       time.Duration
	ReconnectInterval time.Duration
}

// Port is a serial line with a background reader. Read and Available never
// block; Ready fires whenever new bytes land in the receive ring.
type Port struct {
	port   SerialPort
	opts   Options
	rx     *ring
	ready  *syncutil.Notifier
	space  *syncutil.Notifier
	done   chan struct{}
	params LineParams
	wg     sync.WaitGroup
	mu     syncutil.Mutex
	closed bool
}

// Open opens the device and starts the background reader.
func Open(opts Options) (*Port, error) {
	if opts.Factory == nil {
		opts.Factory = DefaultPortFactory
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.RxBufferSize <= 0 {
		opts.RxBufferSize = DefaultRxBufferSize
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = DefaultReconnectInterval
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}

	sp, err := opts.Factory(opts.Path, opts.Params.mode())
	if err != nil {
		return nil, err
	}
	if err := sp.SetReadTimeout(opts.ReadTimeout); err != nil {
		_ = sp.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	p := &Port{
		port:   sp,
		opts:   opts,
		params: opts.Params,
		rx:     newRing(opts.RxBufferSize),
		ready:  syncutil.NewNotifier(),
		space:  syncutil.NewNotifier(),
		done:   make(chan struct{}),
	}

	p.wg.Add(1)
	go p.readLoop()

	log.Info().
		Str("path", opts.Path).
		Int("baud", opts.Params.BaudRate).
		Str("format", opts.Params.Format()).
		Msg("opened serial port")
	return p, nil
}

func (p *Port) Path() string {
	return p.opts.Path
}

func (p *Port) Params() LineParams {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.params
}

// Ready receives a value whenever data arrived since the last receive.
func (p *Port) Ready() <-chan struct{} {
	return p.ready.C()
}

// Available returns the number of buffered receive bytes.
func (p *Port) Available() int {
	return p.rx.Len()
}

// Read drains up to len(b) buffered bytes. It never blocks.
func (p *Port) Read(b []byte) (int, error) {
	n := p.rx.Read(b)
	if n > 0 {
		p.space.Notify()
	}
	return n, nil
}

func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrClosed
	}
	if p.port == nil {
		return 0, ErrDisconnected
	}

	n, err := p.port.Write(b)
	if err != nil {
		if isDisconnectionError(err) {
			p.dropLocked(err)
			return n, fmt.Errorf("%w: %w", ErrDisconnected, err)
		}
		return n, fmt.Errorf("failed to write to serial port: %w", err)
	}
	return n, nil
}

// Configure drains pending output, switches the line to params and discards
// anything received at the old framing.
func (p *Port) Configure(params LineParams) error {
	if err := params.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.port != nil {
		if err := p.port.Drain(); err != nil {
			log.Debug().Err(err).Msg("failed to drain serial output before reconfigure")
		}
		if err := p.port.SetMode(params.mode()); err != nil {
			return fmt.Errorf("failed to set serial mode: %w", err)
		}
		if err := p.port.ResetInputBuffer(); err != nil {
			log.Debug().Err(err).Msg("failed to reset serial input buffer")
		}
	}
	p.params = params
	p.rx.Reset()
	p.space.Notify()
	return nil
}

// Break holds the line in the break condition for d.
func (p *Port) Break(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.port == nil {
		return ErrDisconnected
	}
	if err := p.port.Break(d); err != nil {
		return fmt.Errorf("failed to send break: %w", err)
	}
	return nil
}

// Close stops the reader and closes the device.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	var err error
	if p.port != nil {
		err = p.port.Close()
		p.port = nil
	}
	p.mu.Unlock()

	p.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

func (p *Port) current() SerialPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.port
}

func (p *Port) dropLocked(err error) {
	if p.port == nil {
		return
	}
	log.Warn().Err(err).Str("path", p.opts.Path).Msg("serial port disconnected")
	_ = p.port.Close()
	p.port = nil
}

func (p *Port) readLoop() {
	defer p.wg.Done()

	buf := make([]byte, readChunkSize)
	for {
		select {
		case <-p.done:
			return
		default:
		}

		port := p.current()
		if port == nil {
			if !p.reconnect() {
				return
			}
			continue
		}

		free := p.rx.Free()
		if free == 0 {
			select {
			case <-p.done:
				return
			case <-p.space.C():
			case <-p.opts.Clock.After(p.opts.ReadTimeout):
			}
			continue
		}

		n, err := port.Read(buf[:min(len(buf), free)])
		if n > 0 {
			p.rx.Write(buf[:n])
			p.ready.Notify()
		}
		if err == nil {
			continue
		}

		select {
		case <-p.done:
			return
		default:
		}

		if isDisconnectionError(err) {
			p.mu.Lock()
			if p.port == port {
				p.dropLocked(err)
			}
			p.mu.Unlock()
			continue
		}

		log.Warn().Err(err).Msg("serial read failed")
		select {
		case <-p.done:
			return
		case <-p.opts.Clock.After(p.opts.ReadTimeout):
		}
	}
}

func (p *Port) reconnect() bool {
	for {
		select {
		case <-p.done:
			return false
		case <-p.opts.Clock.After(p.opts.ReconnectInterval):
		}

		params := p.Params()
		sp, err := p.opts.Factory(p.opts.Path, params.mode())
		if err != nil {
			log.Debug().Err(err).Str("path", p.opts.Path).Msg("serial port not available yet")
			continue
		}
		if err := sp.SetReadTimeout(p.opts.ReadTimeout); err != nil {
			log.Warn().Err(err).Msg("failed to set read timeout on reconnected port")
			_ = sp.Close()
			continue
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			_ = sp.Close()
			return false
		}
		p.port = sp
		p.mu.Unlock()

		log.Info().Str("path", p.opts.Path).Msg("serial port reconnected")
		return true
	}
}

func isDisconnectionError(err error) bool {
	if err == nil {
		return false
	}

	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		switch portErr.Code() {
		case serial.PortNotFound, serial.PortClosed, serial.InvalidSerialPort:
			return true
		default:
			return false
		}
	}

	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, ErrClosed)
}
