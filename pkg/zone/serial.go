package zone

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Serial state errors.
var (
	ErrSerialSequence = errors.New("requested serial is not the immediate successor of the current serial")
	ErrUnknownSerial  = errors.New("no zone snapshot for requested serial")
)

// SnapshotLookup reports whether a snapshot exists for a serial.
type SnapshotLookup interface {
	Has(serial uint32) bool
}

// SerialState tracks the serial being served and the serial last transmitted.
// Both start at 0, which means nothing is being served yet.
// The current serial only moves through Advance, one step at a time.
type SerialState struct {
	current atomic.Uint32
	served  atomic.Uint32

	// mu serialises Advance so two callers cannot both step from the same base
	mu sync.Mutex

	snapshots SnapshotLookup
}

// NewSerialState creates a serial state backed by the given snapshot lookup.
func NewSerialState(snapshots SnapshotLookup) *SerialState {
	return &SerialState{
		snapshots: snapshots,
	}
}

// Current returns the serial queries are answered with.
func (s *SerialState) Current() uint32 {
	return s.current.Load()
}

// Served returns the serial of the last transfer written to a client.
func (s *SerialState) Served() uint32 {
	return s.served.Load()
}

// Advance moves the current serial to newSerial.
// Requesting the current serial again is a no-op and returns false.
// Any other value must be exactly current+1 and have a snapshot.
func (s *SerialState) Advance(newSerial uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if newSerial == cur {
		return false, nil
	}

	if newSerial != cur+1 {
		return false, fmt.Errorf("%w: asked to serve %d, already serving %d", ErrSerialSequence, newSerial, cur)
	}

	if !s.snapshots.Has(newSerial) {
		return false, fmt.Errorf("%w: %d", ErrUnknownSerial, newSerial)
	}

	s.current.Store(newSerial)

	return true, nil
}

// MarkServed records that a reply built for serial has been written to a client.
func (s *SerialState) MarkServed(serial uint32) {
	s.served.Store(serial)
}
