package types

// LoginRequest is the request body for login.
type LoginRequest struct {
	Password string `json:"password"`
}

// MoveSerialRequest is the request body for moving to a new serial.
type MoveSerialRequest struct {
	Serial *uint32 `json:"serial"`
}
