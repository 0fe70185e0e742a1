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


package api

import (
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/models"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/api/validation"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/bridge"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/config"
	"github.com/ZaparooProject/zaparoo-bridge/pkg/uart"
	"github.com/rs/zerolog/log"
)

//go:embed index.html
var indexHTML string

var indexTmpl = template.Must(template.New("index").Parse(indexHTML))

type indexData struct {
	Device  string
	Version string
	Line    string
	Clients int
	Max     int
	Auth    bool
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing json response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Engine.Status(r.Context())
	if err != nil {
		http.Error(w, "bridge unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = indexTmpl.Execute(w, indexData{
		Device:  s.opts.Device,
		Version: config.AppVersion,
		Line:    st.Line.String(),
		Clients: st.Clients,
		Max:     st.MaxClients,
		Auth:    s.opts.Token != "",
	})
	if err != nil {
		log.Error().Err(err).Msg("rendering index page")
	}
}

func (s *Server) handleSttyGet(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, bridge.SttyParams(st.Line))
}

// handleSttyPost applies the fields present in the body on top of the
// current line settings.
func (s *Server) handleSttyPost(w http.ResponseWriter, r *http.Request) {
	var req models.SttyRequest
	if err := validation.Decode(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	st, err := s.opts.Engine.Status(ctx)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	params := bridge.ApplySttyRequest(st.Line, req)
	if req.BaudRate != nil || req.Bits != nil || req.Parity != nil || req.Stop != nil {
		if err := s.opts.Engine.Stty(ctx, params); err != nil {
			if errors.Is(err, uart.ErrInvalidParams) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			log.Error().Err(err).Msg("stty failed")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if params != st.Line {
			s.persistLine(params)
		}
	}

	if req.Break {
		if s.opts.Breaker == nil {
			writeError(w, http.StatusNotImplemented, "break not supported")
			return
		}
		if err := s.opts.Breaker.Break(uart.DefaultBreakDuration); err != nil {
			log.Error().Err(err).Msg("sending break")
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Info().Msg("sent break on serial line")
	}

	writeJSON(w, http.StatusOK, bridge.SttyParams(params))
}

func (s *Server) persistLine(params uart.LineParams) {
	cfg := s.opts.Config
	if cfg.Path() == "" {
		return
	}
	cfg.SetLineParams(params)
	if err := cfg.Save(); err != nil {
		log.Warn().Err(err).Msg("failed to save line settings")
	}
}

func (s *Server) handleToken(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, models.TokenResponse{Token: s.opts.Token})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Engine.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	up, err := s.opts.Uptime()
	if err != nil {
		log.Warn().Err(err).Msg("failed to get system uptime, using 0")
		up = 0
	}

	writeJSON(w, http.StatusOK, models.StatusResponse{
		Version: config.AppVersion,
		Device:  s.opts.Device,
		Line:    bridge.SttyParams(st.Line),
		Flow: models.FlowStatus{
			UARTLocal:  st.UARTLocal,
			UARTRemote: st.UARTRemote,
			WebSocket:  st.WSStopped,
		},
		Stats: models.StatsParams{
			TxBps:   st.TxBps,
			RxBps:   st.RxBps,
			TxTotal: st.TxTotal,
			RxTotal: st.RxTotal,
			Clients: st.Clients,
		},
		Uptime:  int64(up.Seconds()),
		Clients: st.Clients,
		Pending: st.Pending,
		Max:     st.MaxClients,
	})
}
