// Package zone implements the zone snapshot store, the serial state machine
// and the AXFR/IXFR responder built on top of them.
package zone

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Package-level errors for transfers.
var (
	ErrNoZoneAvailable = errors.New("no zone available for current serial")
	ErrMalformedQuery  = errors.New("malformed query")
)

// TransferAnswer is the reply to a single transfer query.
type TransferAnswer struct {
	// Serial is the current serial the reply was built from
	Serial uint32

	// Msg is the reply message
	Msg *dns.Msg

	// Full is true when the reply carries the whole zone, false for a bare SOA
	Full bool
}

// Responder builds AXFR/IXFR and SOA replies from the store and serial state.
type Responder struct {
	store *Store
	state *SerialState
}

// NewResponder creates a responder.
func NewResponder(store *Store, state *SerialState) *Responder {
	return &Responder{
		store: store,
		state: state,
	}
}

// BuildAnswer answers a validated transfer query.
//
// AXFR queries, and IXFR queries whose client serial is behind, get the full
// snapshot with the SOA appended again at the end. An IXFR from a client that
// is already current gets only the SOA. The current serial is read once, so a
// concurrent Advance can never produce a reply mixing two versions.
func (r *Responder) BuildAnswer(req *dns.Msg, q *TransferQuery) (*TransferAnswer, error) {
	cur := r.state.Current()

	snap, ok := r.store.Get(cur)
	if !ok {
		return nil, fmt.Errorf("%w: serial %d", ErrNoZoneAvailable, cur)
	}

	msg := createReply(req)
	answer := &TransferAnswer{
		Serial: cur,
		Msg:    msg,
		Full:   false,
	}

	if q.Type == dns.TypeAXFR || q.ClientSerial < cur {
		msg.Answer = snap.FullTransfer()
		answer.Full = true
	} else {
		msg.Answer = snap.SOA()
	}

	return answer, nil
}

// SOAAnswer answers a UDP SOA query with the SOA of the current serial,
// or REFUSED when no snapshot exists for it. The serial used is returned.
func (r *Responder) SOAAnswer(req *dns.Msg) (*dns.Msg, uint32) {
	cur := r.state.Current()
	msg := createReply(req)

	snap, ok := r.store.Get(cur)
	if !ok {
		msg.Authoritative = false
		msg.Rcode = dns.RcodeRefused

		return msg, cur
	}

	msg.Answer = snap.SOA()

	return msg, cur
}

// createReply creates a base authoritative reply to req.
func createReply(req *dns.Msg) *dns.Msg {
	msg := new(dns.Msg)
	msg.SetReply(req)
	msg.Authoritative = true
	msg.Compress = true

	return msg
}
