package zone

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/miekg/dns"
)

// ErrMissingSOA is returned when zone text does not contain an SOA record.
var ErrMissingSOA = errors.New("zone has no SOA record")

// Snapshot is the complete, immutable content of the zone at one serial.
type Snapshot struct {
	// Serial is the version number the snapshot is stored under
	Serial uint32

	// Origin is the zone apex (e.g., "example.com.")
	Origin string

	// RRsets holds the zone's records grouped by owner, class and type.
	// RRsets[0] is always the SOA RRset.
	RRsets [][]dns.RR
}

// rrsetKey identifies an RRset within a zone.
type rrsetKey struct {
	owner  string
	class  uint16
	rrType uint16
}

// NewSnapshot builds a snapshot from a flat list of records.
// Records are grouped into RRsets in order of first appearance of their owner name
// and, within an owner, of their type. The SOA RRset is moved to the front.
func NewSnapshot(serial uint32, origin string, records []dns.RR) (*Snapshot, error) {
	var (
		owners  []string
		byOwner = make(map[string][]rrsetKey)
		sets    = make(map[rrsetKey][]dns.RR)
		soaKey  *rrsetKey
	)

	for _, rr := range records {
		hdr := rr.Header()
		owner := strings.ToLower(dns.Fqdn(hdr.Name))
		key := rrsetKey{owner: owner, class: hdr.Class, rrType: hdr.Rrtype}

		if _, seen := byOwner[owner]; !seen {
			owners = append(owners, owner)
		}
		if _, exists := sets[key]; !exists {
			byOwner[owner] = append(byOwner[owner], key)
		}
		sets[key] = append(sets[key], dns.Copy(rr))

		if hdr.Rrtype == dns.TypeSOA && soaKey == nil {
			k := key
			soaKey = &k
		}
	}

	if soaKey == nil {
		return nil, fmt.Errorf("%w: serial %d", ErrMissingSOA, serial)
	}

	if origin == "" {
		origin = soaKey.owner
	}

	snap := &Snapshot{
		Serial: serial,
		Origin: dns.Fqdn(strings.ToLower(origin)),
		RRsets: make([][]dns.RR, 0, len(sets)),
	}

	snap.RRsets = append(snap.RRsets, sets[*soaKey])
	for _, owner := range owners {
		for _, key := range byOwner[owner] {
			if key == *soaKey {
				continue
			}
			snap.RRsets = append(snap.RRsets, sets[key])
		}
	}

	return snap, nil
}

// ParseSnapshot parses zone text in master file format into a snapshot.
// Relative names are resolved against origin; an empty origin requires absolute names.
func ParseSnapshot(serial uint32, origin string, r io.Reader, filename string) (*Snapshot, error) {
	if origin != "" {
		origin = dns.Fqdn(origin)
	}

	var records []dns.RR
	zp := dns.NewZoneParser(r, origin, filename)
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		records = append(records, rr)
	}

	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("zone parse error for serial %d: %w", serial, err)
	}

	return NewSnapshot(serial, origin, records)
}

// ParseSnapshotText is a convenience wrapper around ParseSnapshot for in-memory zone text.
func ParseSnapshotText(serial uint32, origin, text string) (*Snapshot, error) {
	return ParseSnapshot(serial, origin, strings.NewReader(text), "")
}

// SOA returns a copy of the SOA RRset.
func (s *Snapshot) SOA() []dns.RR {
	return copyRRs(s.RRsets[0])
}

// Records returns copies of all records in RRset order, SOA first.
func (s *Snapshot) Records() []dns.RR {
	result := make([]dns.RR, 0, s.RecordCount())
	for _, set := range s.RRsets {
		result = append(result, copyRRs(set)...)
	}

	return result
}

// FullTransfer returns the record sequence of a full transfer:
// every RRset in order followed by the SOA RRset once more.
func (s *Snapshot) FullTransfer() []dns.RR {
	return append(s.Records(), s.SOA()...)
}

// RecordCount returns the number of records in the snapshot.
func (s *Snapshot) RecordCount() int {
	count := 0
	for _, set := range s.RRsets {
		count += len(set)
	}

	return count
}

// SOASerial returns the serial carried by the SOA record itself, which may
// differ from the key the snapshot is stored under.
func (s *Snapshot) SOASerial() uint32 {
	if soa, ok := s.RRsets[0][0].(*dns.SOA); ok {
		return soa.Serial
	}

	return 0
}

func copyRRs(rrs []dns.RR) []dns.RR {
	result := make([]dns.RR, len(rrs))
	for i, rr := range rrs {
		result[i] = dns.Copy(rr)
	}

	return result
}
