package zone

import (
	"fmt"

	"github.com/miekg/dns"
)

// TransferQuery is a validated AXFR or IXFR request.
type TransferQuery struct {
	// Name is the queried zone name
	Name string

	// Type is dns.TypeAXFR or dns.TypeIXFR
	Type uint16

	// ClientSerial is the serial from the IXFR authority section (0 for AXFR)
	ClientSerial uint32
}

// ParseTransferQuery validates a decoded TCP query and extracts its transfer parameters.
// The query must have exactly one question of type AXFR or IXFR, and an IXFR
// must carry the client's SOA in the authority section (RFC 1995 Section 3).
func ParseTransferQuery(query *dns.Msg) (*TransferQuery, error) {
	if len(query.Question) != 1 {
		return nil, fmt.Errorf("%w: qdcount is %d", ErrMalformedQuery, len(query.Question))
	}

	q := query.Question[0]
	tq := &TransferQuery{
		Name:         q.Name,
		Type:         q.Qtype,
		ClientSerial: 0,
	}

	switch q.Qtype {
	case dns.TypeAXFR:
		return tq, nil
	case dns.TypeIXFR:
		serial, ok := ExtractClientSerial(query)
		if !ok {
			return nil, fmt.Errorf("%w: IXFR without SOA in authority section", ErrMalformedQuery)
		}
		tq.ClientSerial = serial

		return tq, nil
	default:
		return nil, fmt.Errorf("%w: qtype is %s", ErrMalformedQuery, dns.Type(q.Qtype).String())
	}
}

// ValidateSOAQuery validates a decoded UDP query: exactly one question of type SOA.
func ValidateSOAQuery(query *dns.Msg) error {
	if len(query.Question) != 1 {
		return fmt.Errorf("%w: qdcount is %d", ErrMalformedQuery, len(query.Question))
	}

	if qtype := query.Question[0].Qtype; qtype != dns.TypeSOA {
		return fmt.Errorf("%w: qtype is %s", ErrMalformedQuery, dns.Type(qtype).String())
	}

	return nil
}

// ExtractClientSerial extracts the client's serial number from an IXFR query.
// RFC 1995 Section 3: the client puts its current SOA in the authority section.
func ExtractClientSerial(query *dns.Msg) (uint32, bool) {
	if len(query.Ns) == 0 {
		return 0, false
	}

	if soa, ok := query.Ns[0].(*dns.SOA); ok {
		return soa.Serial, true
	}

	return 0, false
}
