// Package edns0 handles the OPT pseudo-record (RFC 6891) on UDP SOA polls.
package edns0

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// Default values per RFC 6891.
const (
	MinimumUDPSize   = 512 // RFC 1035 minimum
	MaxSupportedEDNS = 0   // Maximum EDNS version we support
)

// Errors returned by Parse.
var (
	ErrMultipleOPT = errors.New("multiple OPT records in query")
	ErrBadOPTName  = errors.New("OPT record name must be root")
	ErrBadVersion  = errors.New("unsupported EDNS version")
)

// Info holds EDNS0 parameters from a query.
type Info struct {
	Present bool   // Whether EDNS0 is present in the query
	UDPSize uint16 // Client's UDP payload size, at least 512
	DO      bool   // DNSSEC OK bit
	Version uint8  // EDNS version
}

// Parse validates and extracts the EDNS0 parameters of msg.
// A query without OPT is valid and reported with Present false.
// ErrBadVersion is returned together with the parsed info so a BADVERS
// reply can be built.
func Parse(msg *dns.Msg) (*Info, error) {
	info := &Info{UDPSize: MinimumUDPSize}

	var opt *dns.OPT
	for _, rr := range msg.Extra {
		if o, ok := rr.(*dns.OPT); ok {
			if opt != nil {
				return nil, ErrMultipleOPT
			}
			opt = o
		}
	}

	if opt == nil {
		return info, nil
	}

	if opt.Hdr.Name != "." {
		return nil, ErrBadOPTName
	}

	info.Present = true
	info.DO = opt.Do()
	info.Version = opt.Version()
	// Values below 512 are treated as 512
	info.UDPSize = max(opt.UDPSize(), MinimumUDPSize)

	if info.Version > MaxSupportedEDNS {
		return info, fmt.Errorf("%w %d (max: %d)", ErrBadVersion, info.Version, MaxSupportedEDNS)
	}

	return info, nil
}

// AddOPT adds an OPT record advertising bufferSize to msg, replacing any existing one.
func AddOPT(msg *dns.Msg, bufferSize uint16) {
	extra := msg.Extra[:0:0]
	for _, rr := range msg.Extra {
		if _, ok := rr.(*dns.OPT); !ok {
			extra = append(extra, rr)
		}
	}

	opt := &dns.OPT{
		Hdr: dns.RR_Header{
			Name:   ".",
			Rrtype: dns.TypeOPT,
		},
	}
	opt.SetUDPSize(max(bufferSize, MinimumUDPSize))
	opt.SetVersion(MaxSupportedEDNS)

	msg.Extra = append(extra, opt)
}

// BadVersionReply builds the BADVERS reply for a query whose EDNS version is unsupported.
func BadVersionReply(query *dns.Msg, bufferSize uint16) *dns.Msg {
	reply := new(dns.Msg)
	reply.SetReply(query)
	AddOPT(reply, bufferSize)
	// Pack moves the upper rcode bits into the OPT record
	reply.Rcode = dns.RcodeBadVers

	return reply
}
