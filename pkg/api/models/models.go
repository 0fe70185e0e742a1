package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

const (
	NotificationClients = "bridge.clients"
	NotificationFlow    = "bridge.flow"
	NotificationStats   = "bridge.stats"
	NotificationStty    = "bridge.stty"
)

const (
	ClientConnected     = "connected"
	ClientAuthenticated = "authenticated"
	ClientRemoved       = "removed"
)

const (
	FlowUART      = "uart"
	FlowWebSocket = "websocket"
)

type Notification struct {
	Method string
	Params json.RawMessage
}

// RequestObject is the JSON-RPC envelope notifications are delivered in on
// the events feed.
type RequestObject struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *uuid.UUID      `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
