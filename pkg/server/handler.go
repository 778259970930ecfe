package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"go.uber.org/zap"

	"github.com/piwi3910/xfrserver/pkg/edns0"
	dnsio "github.com/piwi3910/xfrserver/pkg/io"
	"github.com/piwi3910/xfrserver/pkg/metrics"
	"github.com/piwi3910/xfrserver/pkg/zone"
)

// ServeConn answers exactly one AXFR or IXFR query on conn.
// Any failure closes the connection without a reply.
func (s *Server) ServeConn(ctx context.Context, conn net.Conn) {
	connID := uuid.NewString()
	logger := s.logger.With(zap.String("conn_id", connID), zap.Stringer("client", conn.RemoteAddr()))

	buf := s.bufferPool.Get()
	defer s.bufferPool.Put(buf)

	payload, err := dnsio.ReadMessage(conn, buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			logger.Debug("Connection closed before query")
			return
		}
		logger.Warn("Failed to read query", zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonRead)
		return
	}

	req := new(dns.Msg)
	if err := req.Unpack(payload); err != nil {
		logger.Warn("Failed to decode query", zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonMalformed)
		return
	}

	q, err := zone.ParseTransferQuery(req)
	if err != nil {
		logger.Warn("Rejected query", zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonMalformed)
		return
	}

	answer, err := s.responder.BuildAnswer(req, q)
	if err != nil {
		logger.Warn("No answer for transfer", zap.String("qtype", dns.Type(q.Type).String()), zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonNoZone)
		return
	}

	wire, err := answer.Msg.Pack()
	if err != nil {
		logger.Error("Failed to encode answer", zap.Uint32("serial", answer.Serial), zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonPack)
		return
	}

	if err := dnsio.WriteMessage(conn, wire); err != nil {
		logger.Warn("Failed to send answer", zap.Uint32("serial", answer.Serial), zap.Error(err))
		s.metrics.ObserveTransferFailure(metrics.ReasonWrite)
		return
	}

	s.state.MarkServed(answer.Serial)
	s.metrics.SetServedSerial(answer.Serial)

	qtype := dns.Type(q.Type).String()
	s.metrics.ObserveTransfer(qtype, answer.Full)
	s.history.add(TransferRecord{
		ConnID:       connID,
		Client:       conn.RemoteAddr().String(),
		QType:        qtype,
		ClientSerial: q.ClientSerial,
		Serial:       answer.Serial,
		Full:         answer.Full,
		Records:      len(answer.Msg.Answer),
		Time:         time.Now(),
	})

	logger.Info("Served transfer",
		zap.String("qtype", qtype),
		zap.Uint32("client_serial", q.ClientSerial),
		zap.Uint32("serial", answer.Serial),
		zap.Bool("full", answer.Full),
		zap.Int("records", len(answer.Msg.Answer)),
		zap.Int("bytes", len(wire)))
}

// HandleQuery answers a UDP SOA query for the current serial, or REFUSED
// when there is nothing to serve yet. Malformed queries return an error.
func (s *Server) HandleQuery(ctx context.Context, query []byte, addr net.Addr) ([]byte, error) {
	req := new(dns.Msg)
	if err := req.Unpack(query); err != nil {
		return nil, fmt.Errorf("%w: %w", zone.ErrMalformedQuery, err)
	}

	if err := zone.ValidateSOAQuery(req); err != nil {
		return nil, err
	}

	bufferSize := uint16(max(s.config.UDPSize, edns0.MinimumUDPSize))

	ednsInfo, err := edns0.Parse(req)
	if errors.Is(err, edns0.ErrBadVersion) {
		s.metrics.ObserveUDPQuery(dns.RcodeToString[dns.RcodeBadVers])
		return edns0.BadVersionReply(req, bufferSize).Pack()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", zone.ErrMalformedQuery, err)
	}

	reply, serial := s.responder.SOAAnswer(req)
	if ednsInfo.Present {
		edns0.AddOPT(reply, bufferSize)
	}

	wire, err := reply.Pack()
	if err != nil {
		return nil, fmt.Errorf("failed to encode SOA answer: %w", err)
	}

	rcode := dns.RcodeToString[reply.Rcode]
	s.metrics.ObserveUDPQuery(rcode)
	s.logger.Debug("Answered SOA query",
		zap.Stringer("client", addr),
		zap.Uint32("serial", serial),
		zap.String("rcode", rcode))

	return wire, nil
}
