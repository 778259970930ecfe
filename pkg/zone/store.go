package zone

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"slices"
)

// Store errors.
var (
	ErrDuplicateSerial = errors.New("duplicate snapshot serial")
	ErrOriginMismatch  = errors.New("snapshot origin does not match zone origin")
	ErrEmptyStore      = errors.New("no zone snapshots configured")
)

// Store maps serial numbers to zone snapshots.
// It is populated once at construction and is read-only afterwards,
// so it needs no locking.
type Store struct {
	origin    string
	snapshots map[uint32]*Snapshot
	serials   []uint32
}

// NewStore creates a store from already parsed snapshots.
// All snapshots must describe the same zone origin.
func NewStore(snapshots ...*Snapshot) (*Store, error) {
	if len(snapshots) == 0 {
		return nil, ErrEmptyStore
	}

	s := &Store{
		origin:    snapshots[0].Origin,
		snapshots: make(map[uint32]*Snapshot, len(snapshots)),
		serials:   make([]uint32, 0, len(snapshots)),
	}

	for _, snap := range snapshots {
		if _, exists := s.snapshots[snap.Serial]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateSerial, snap.Serial)
		}
		if snap.Origin != s.origin {
			return nil, fmt.Errorf("%w: serial %d has %s, expected %s",
				ErrOriginMismatch, snap.Serial, snap.Origin, s.origin)
		}

		s.snapshots[snap.Serial] = snap
		s.serials = append(s.serials, snap.Serial)
	}

	slices.Sort(s.serials)

	return s, nil
}

// LoadStore parses zone text for every serial and builds a store.
func LoadStore(origin string, texts map[uint32]string) (*Store, error) {
	snapshots := make([]*Snapshot, 0, len(texts))
	for _, serial := range sortedKeys(texts) {
		snap, err := ParseSnapshotText(serial, origin, texts[serial])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return NewStore(snapshots...)
}

// LoadStoreFiles parses one zone file per serial and builds a store.
func LoadStoreFiles(origin string, paths map[uint32]string) (*Store, error) {
	snapshots := make([]*Snapshot, 0, len(paths))
	for _, serial := range sortedKeys(paths) {
		snap, err := loadZoneFile(serial, origin, paths[serial])
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}

	return NewStore(snapshots...)
}

// loadZoneFile parses a single zone file into a snapshot.
func loadZoneFile(serial uint32, origin, path string) (*Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open zone file: %w", err)
	}
	defer file.Close()

	return ParseSnapshot(serial, origin, bufio.NewReader(file), path)
}

// Get returns the snapshot for serial.
func (s *Store) Get(serial uint32) (*Snapshot, bool) {
	snap, ok := s.snapshots[serial]
	return snap, ok
}

// Has reports whether a snapshot exists for serial.
func (s *Store) Has(serial uint32) bool {
	_, ok := s.snapshots[serial]
	return ok
}

// Origin returns the zone origin shared by all snapshots.
func (s *Store) Origin() string {
	return s.origin
}

// Serials returns the stored serials in ascending order.
func (s *Store) Serials() []uint32 {
	return slices.Clone(s.serials)
}

// Len returns the number of stored snapshots.
func (s *Store) Len() int {
	return len(s.snapshots)
}

func sortedKeys(m map[uint32]string) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	return keys
}
