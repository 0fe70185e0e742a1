package models

type ClientsParams struct {
	Event   string `json:"event"`
	Client  uint32 `json:"client"`
	Code    int    `json:"code,omitempty"`
	Clients int    `json:"clients"`
	Pending int    `json:"pending"`
}

type FlowParams struct {
	Direction string `json:"direction"`
	Source    string `json:"source,omitempty"`
	Stopped   bool   `json:"stopped"`
}

type StatsParams struct {
	TxBps   uint64 `json:"txBps"`
	RxBps   uint64 `json:"rxBps"`
	TxTotal uint64 `json:"txTotal"`
	RxTotal uint64 `json:"rxTotal"`
	Clients int    `json:"clients"`
}

// SttyParams is the wire form of the serial line parameters. Parity is -1
// for none, 0 for even and 1 for odd.
type SttyParams struct {
	BaudRate int `json:"baudrate"`
	Bits     int `json:"bits"`
	Parity   int `json:"parity"`
	Stop     int `json:"stop"`
}

// SttyRequest is a partial update; absent fields keep their value.
type SttyRequest struct {
	BaudRate *int `json:"baudrate,omitempty" validate:"omitempty,baudrate"`
	Bits     *int `json:"bits,omitempty" validate:"omitempty,oneof=5 6 7 8"`
	Parity   *int `json:"parity,omitempty" validate:"omitempty,oneof=-1 0 1"`
	Stop     *int `json:"stop,omitempty" validate:"omitempty,oneof=1 2"`
	Break    bool `json:"break,omitempty"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type FlowStatus struct {
	UARTLocal  bool `json:"uartLocal"`
	UARTRemote bool `json:"uartRemote"`
	WebSocket  bool `json:"websocket"`
}

type StatusResponse struct {
	Version string      `json:"version"`
	Device  string      `json:"device"`
	Line    SttyParams  `json:"line"`
	Flow    FlowStatus  `json:"flow"`
	Stats   StatsParams `json:"stats"`
	Uptime  int64       `json:"uptime"`
	Clients int         `json:"clients"`
	Pending int         `json:"pending"`
	Max     int         `json:"maxClients"`
}
