// Package server answers zone transfers over TCP and SOA polls over UDP
// from a fixed set of zone snapshots, and lets a controller step the
// served serial forward one version at a time.
package server

import (
	"errors"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/piwi3910/xfrserver/pkg/config"
	dnsio "github.com/piwi3910/xfrserver/pkg/io"
	"github.com/piwi3910/xfrserver/pkg/metrics"
	"github.com/piwi3910/xfrserver/pkg/zone"
)

// Config holds the DNS listener settings of a Server.
type Config struct {
	// Address is shared by the TCP and UDP listeners
	Address string

	// ReusePort sets SO_REUSEPORT on both sockets
	ReusePort bool

	// MaxConnections limits concurrent TCP transfers (0 = unlimited)
	MaxConnections int

	// ReadTimeout bounds reading a TCP query (0 = wait forever)
	ReadTimeout time.Duration

	// WriteTimeout bounds writing a TCP reply (0 = no deadline)
	WriteTimeout time.Duration

	// UDPWorkers is the number of UDP sockets
	UDPWorkers int

	// UDPSize is the largest UDP query read
	UDPSize int

	// StopOnMalformed ends the UDP receive loop on the first bad datagram
	StopOnMalformed bool

	// TransferHistory is the number of transfers kept for Transfers
	TransferHistory int
}

// DefaultConfig returns listener settings for address with sensible defaults.
func DefaultConfig(address string) Config {
	return Config{
		Address:         address,
		ReusePort:       true,
		MaxConnections:  1000,
		ReadTimeout:     0,
		WriteTimeout:    0,
		UDPWorkers:      1,
		UDPSize:         dnsio.DefaultUDPSize,
		StopOnMalformed: false,
		TransferHistory: DefaultTransferHistory,
	}
}

// FromConfig maps the file configuration onto listener settings.
func FromConfig(cfg *config.Config) Config {
	return Config{
		Address:         cfg.Server.ListenAddress,
		ReusePort:       cfg.Server.ReusePort,
		MaxConnections:  cfg.Server.MaxConnections,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		UDPWorkers:      cfg.UDP.Workers,
		UDPSize:         cfg.UDP.BufferSize,
		StopOnMalformed: cfg.UDP.StopOnMalformed,
		TransferHistory: cfg.Server.TransferHistory,
	}
}

// Server serves one zone as a sequence of snapshots.
type Server struct {
	config    Config
	store     *zone.Store
	state     *zone.SerialState
	responder *zone.Responder
	history   *history
	metrics   *metrics.Metrics
	logger    *zap.Logger

	bufferPool *dnsio.BufferPool

	tcp *dnsio.TCPListener
	udp *dnsio.UDPListener
}

// New creates a server for store. Both serials start at 0.
// A nil logger discards logs and nil metrics are not exported.
func New(store *zone.Store, cfg Config, logger *zap.Logger, m *metrics.Metrics) (*Server, error) {
	if store == nil {
		return nil, errors.New("server requires a snapshot store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New(nil)
	}

	state := zone.NewSerialState(store)

	return &Server{
		config:     cfg,
		store:      store,
		state:      state,
		responder:  zone.NewResponder(store, state),
		history:    newHistory(cfg.TransferHistory),
		metrics:    m,
		logger:     logger,
		bufferPool: dnsio.NewBufferPool(dnsio.DefaultBufferSize),
	}, nil
}

// Start binds the TCP and UDP listeners.
// If either cannot bind, nothing is left running and the error is returned.
func (s *Server) Start() error {
	tcpConfig := s.listenerConfig()
	tcp, err := dnsio.NewTCPListener(tcpConfig, s, s.logger)
	if err != nil {
		return err
	}
	if err := tcp.Start(); err != nil {
		return err
	}

	udpConfig := s.listenerConfig()
	udpConfig.NumWorkers = max(s.config.UDPWorkers, 1)
	udpConfig.UDPSize = s.config.UDPSize
	udpConfig.StopOnError = s.config.StopOnMalformed
	udp, err := dnsio.NewUDPListener(udpConfig, s, s.logger)
	if err != nil {
		_ = tcp.Stop()
		return err
	}
	if err := udp.Start(); err != nil {
		_ = tcp.Stop()
		return err
	}

	s.tcp = tcp
	s.udp = udp

	s.logger.Info("Serving zone",
		zap.String("origin", s.store.Origin()),
		zap.Uint32s("serials", s.store.Serials()),
		zap.Stringer("tcp", tcp.Addr()),
		zap.Stringer("udp", udp.Addr()))

	return nil
}

func (s *Server) listenerConfig() *dnsio.ListenerConfig {
	cfg := dnsio.DefaultListenerConfig(s.config.Address)
	cfg.ReusePort = s.config.ReusePort
	cfg.MaxConnections = s.config.MaxConnections
	cfg.ReadTimeout = s.config.ReadTimeout
	cfg.WriteTimeout = s.config.WriteTimeout

	return cfg
}

// Stop closes both listeners and waits for in-flight connections.
func (s *Server) Stop() error {
	if s.tcp != nil {
		_ = s.tcp.Stop()
	}
	if s.udp != nil {
		_ = s.udp.Stop()
	}

	return nil
}

// TCPAddr returns the bound TCP address, or nil before Start.
func (s *Server) TCPAddr() net.Addr {
	if s.tcp == nil {
		return nil
	}
	return s.tcp.Addr()
}

// UDPAddr returns the bound UDP address, or nil before Start.
func (s *Server) UDPAddr() net.Addr {
	if s.udp == nil {
		return nil
	}
	return s.udp.Addr()
}

// MoveToSerial advances the current serial to newSerial.
// It returns false without error when newSerial is already current, and
// zone.ErrSerialSequence or zone.ErrUnknownSerial when the move is refused.
func (s *Server) MoveToSerial(newSerial uint32) (bool, error) {
	cur := s.state.Current()
	s.logger.Info("Moving to serial", zap.Uint32("current", cur), zap.Uint32("serial", newSerial))

	changed, err := s.state.Advance(newSerial)
	if err != nil {
		s.logger.Warn("Serial move refused", zap.Uint32("current", cur), zap.Uint32("requested", newSerial), zap.Error(err))
		return false, err
	}

	if changed {
		s.metrics.SetCurrentSerial(newSerial)
	}

	return changed, nil
}

// CurrentSerial returns the serial now offered to clients.
func (s *Server) CurrentSerial() uint32 {
	return s.state.Current()
}

// ServedSerial returns the serial of the last transfer written to a client.
func (s *Server) ServedSerial() uint32 {
	return s.state.Served()
}

// Serials returns the serials available in the store, ascending.
func (s *Server) Serials() []uint32 {
	return s.store.Serials()
}

// Transfers returns the most recent answered transfers, oldest first.
func (s *Server) Transfers() []TransferRecord {
	return s.history.list()
}
