package io

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize is the largest DNS message a 2-byte length prefix can describe.
const MaxMessageSize = 65535

// Framing errors.
var (
	ErrEmptyMessage    = errors.New("zero-length DNS message")
	ErrMessageTooLarge = errors.New("DNS message exceeds 65535 bytes")
)

// ReadMessage reads one length-prefixed DNS message (RFC 1035 Section 4.2.2).
// It returns io.EOF unchanged when the peer closed before sending a length,
// so callers can tell a clean close from a truncated message.
// The returned slice aliases buf when it is large enough.
func ReadMessage(r io.Reader, buf []byte) ([]byte, error) {
	var lengthBuf [2]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}

	messageLen := int(binary.BigEndian.Uint16(lengthBuf[:]))
	if messageLen == 0 {
		return nil, ErrEmptyMessage
	}

	if len(buf) < messageLen {
		buf = make([]byte, messageLen)
	}

	if _, err := io.ReadFull(r, buf[:messageLen]); err != nil {
		return nil, fmt.Errorf("failed to read %d byte message: %w", messageLen, err)
	}

	return buf[:messageLen], nil
}

// WriteMessage writes msg with a 2-byte big-endian length prefix in a single write.
func WriteMessage(w io.Writer, msg []byte) error {
	if len(msg) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(msg))
	}

	responseBuf := make([]byte, 2+len(msg))
	binary.BigEndian.PutUint16(responseBuf, uint16(len(msg)))
	copy(responseBuf[2:], msg)

	if _, err := w.Write(responseBuf); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
