// Package types contains request and response types for the API.
package types

import "time"

// APIResponse is the standard error response wrapper.
type APIResponse struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

// AuthResponse is returned after a successful login.
type AuthResponse struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SerialResponse reports the serial pair.
type SerialResponse struct {
	Current uint32 `json:"current"`
	Served  uint32 `json:"served"`
}

// MoveSerialResponse reports the outcome of a serial move.
type MoveSerialResponse struct {
	Changed bool   `json:"changed"`
	Current uint32 `json:"current"`
}

// SerialsResponse lists the serials that can be served.
type SerialsResponse struct {
	Serials []uint32 `json:"serials"`
}

// TransferInfo describes one answered transfer.
type TransferInfo struct {
	ConnID       string    `json:"conn_id"`
	Client       string    `json:"client"`
	QType        string    `json:"qtype"`
	ClientSerial uint32    `json:"client_serial,omitempty"`
	Serial       uint32    `json:"serial"`
	Full         bool      `json:"full"`
	Records      int       `json:"records"`
	Time         time.Time `json:"time"`
}

// TransfersResponse lists recent transfers, oldest first.
type TransfersResponse struct {
	Transfers []TransferInfo `json:"transfers"`
	Total     int            `json:"total"`
}
