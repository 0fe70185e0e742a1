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
	"fmt"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/notifications"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
)

// stty applies new line parameters and tells connected clients.
func (e *Engine) stty(params uart.LineParams) error {
	if err := params.Validate(); err != nil {
		return err
	}
	if err := e.serial.Configure(params); err != nil {
		return fmt.Errorf("configure serial line: %w", err)
	}
	e.cfg.Line = params

	ev := log.Info().Int("baud", params.BaudRate).Str("format", params.Format())
	if !uart.IsStandardRate(params.BaudRate) {
		ev = ev.Int("closestStandard", uart.ClosestStandardRate(params.BaudRate))
	}
	ev.Msg("serial line configured")

	e.announce()
	return nil
}

// announce tells clients and subscribers the current line parameters
// without touching the port.
func (e *Engine) announce() {
	if e.registry.Len() > 0 {
		e.broadcast(append([]byte{CmdSetTitle}, e.windowTitle()...))
	}
	notifications.SttyChanged(e.ns, SttyParams(e.cfg.Line))
}

func (e *Engine) windowTitle() string {
	p := e.cfg.Line
	return fmt.Sprintf("%dbps %s (%s) - Zaparoo Bridge", p.BaudRate, p.Format(), e.cfg.Title)
}

// SttyParams converts line parameters to their wire form.
func SttyParams(p uart.LineParams) models.SttyParams {
	parity := -1
	switch p.Parity {
	case uart.ParityEven:
		parity = 0
	case uart.ParityOdd:
		parity = 1
	case uart.ParityNone:
	}
	stop := 1
	if p.StopBits == uart.StopBits2 {
		stop = 2
	}
	return models.SttyParams{
		BaudRate: p.BaudRate,
		Bits:     p.DataBits,
		Parity:   parity,
		Stop:     stop,
	}
}

// ApplySttyRequest overlays the fields present in req onto p.
func ApplySttyRequest(p uart.LineParams, req models.SttyRequest) uart.LineParams {
	if req.BaudRate != nil {
		p.BaudRate = *req.BaudRate
	}
	if req.Bits != nil {
		p.DataBits = *req.Bits
	}
	if req.Parity != nil {
		switch *req.Parity {
		case 0:
			p.Parity = uart.ParityEven
		case 1:
			p.Parity = uart.ParityOdd
		default:
			p.Parity = uart.ParityNone
		}
	}
	if req.Stop != nil {
		if *req.Stop == 2 {
			p.StopBits = uart.StopBits2
		} else {
			p.StopBits = uart.StopBits1
		}
	}
	return p
}
