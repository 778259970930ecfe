// Package io provides the TCP and UDP listeners that carry zone transfers and SOA polls.
package io

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ListenerConfig holds configuration for DNS listeners
type ListenerConfig struct {
	// Address to listen on (e.g., "127.0.0.1:5300")
	Address string

	// NumWorkers is the number of UDP sockets/goroutines
	NumWorkers int

	// ReusePort enables SO_REUSEPORT so a restarted server can rebind immediately
	ReusePort bool

	// ReadBufferSize is the socket receive buffer size (0 keeps the OS default)
	ReadBufferSize int

	// WriteBufferSize is the socket send buffer size (0 keeps the OS default)
	WriteBufferSize int

	// UDPSize is the largest UDP datagram read
	UDPSize int

	// MaxConnections limits concurrent TCP connections (0 = unlimited)
	MaxConnections int

	// ReadTimeout bounds how long a TCP peer may take to send its query (0 = wait forever)
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the TCP reply (0 = no deadline)
	WriteTimeout time.Duration

	// StopOnError ends a UDP worker's receive loop on the first handler error
	StopOnError bool
}

// DefaultListenerConfig returns a configuration with sensible defaults
func DefaultListenerConfig(address string) *ListenerConfig {
	return &ListenerConfig{
		Address:         address,
		NumWorkers:      1,
		ReusePort:       true,
		ReadBufferSize:  256 * 1024,
		WriteBufferSize: 256 * 1024,
		UDPSize:         DefaultUDPSize,
		MaxConnections:  1000,
		ReadTimeout:     0,
		WriteTimeout:    0,
		StopOnError:     false,
	}
}

// QueryHandler processes a single UDP datagram.
// A nil response with a nil error sends nothing.
type QueryHandler interface {
	HandleQuery(ctx context.Context, query []byte, addr net.Addr) ([]byte, error)
}

// ConnHandler serves one accepted TCP connection.
// The listener closes the connection after ServeConn returns.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn)
}

// socketControl returns a net.ListenConfig control function applying cfg's socket options.
func socketControl(cfg *ListenerConfig) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			if cfg.ReusePort {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
					return
				}
			}

			if cfg.ReadBufferSize > 0 {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.ReadBufferSize); err != nil {
					sockErr = fmt.Errorf("failed to set SO_RCVBUF: %w", err)
					return
				}
			}

			if cfg.WriteBufferSize > 0 {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.WriteBufferSize); err != nil {
					sockErr = fmt.Errorf("failed to set SO_SNDBUF: %w", err)
					return
				}
			}
		})

		if err != nil {
			return err
		}
		return sockErr
	}
}

// UDPListener answers SOA polls on one or more UDP sockets
type UDPListener struct {
	config  *ListenerConfig
	conns   []*net.UDPConn
	handler QueryHandler
	logger  *zap.Logger
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewUDPListener creates a new UDP listener with the given configuration
func NewUDPListener(config *ListenerConfig, handler QueryHandler, logger *zap.Logger) (*UDPListener, error) {
	if config == nil {
		config = DefaultListenerConfig("127.0.0.1:53")
	}
	if handler == nil {
		return nil, errors.New("udp listener requires a query handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &UDPListener{
		config:  config,
		conns:   make([]*net.UDPConn, 0, max(config.NumWorkers, 1)),
		handler: handler,
		logger:  logger.Named("udp"),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start binds the UDP sockets and starts one receive loop per socket.
func (ul *UDPListener) Start() error {
	lc := net.ListenConfig{Control: socketControl(ul.config)}

	address := ul.config.Address
	for i := 0; i < max(ul.config.NumWorkers, 1); i++ {
		packetConn, err := lc.ListenPacket(context.Background(), "udp", address)
		if err != nil {
			ul.Stop()
			return fmt.Errorf("failed to create UDP socket %d: %w", i, err)
		}

		conn := packetConn.(*net.UDPConn)
		ul.conns = append(ul.conns, conn)

		// Further sockets must share the first one's port when it was chosen by the kernel
		address = conn.LocalAddr().String()

		ul.wg.Add(1)
		go ul.worker(i, conn)
	}

	return nil
}

// worker is the receive loop for a single UDP socket
func (ul *UDPListener) worker(id int, conn *net.UDPConn) {
	defer ul.wg.Done()

	size := ul.config.UDPSize
	if size <= 0 {
		size = DefaultUDPSize
	}
	bufferPool := NewBufferPool(size)
	logger := ul.logger.With(zap.Int("worker", id))

	for {
		buf := bufferPool.Get()

		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			bufferPool.Put(buf)
			if ul.ctx.Err() != nil {
				return
			}
			logger.Warn("UDP read failed", zap.Error(err))
			continue
		}

		response, err := ul.handler.HandleQuery(ul.ctx, buf[:n], addr)
		bufferPool.Put(buf)
		if err != nil {
			if ul.config.StopOnError {
				logger.Error("Stopping UDP receive loop", zap.Stringer("client", addr), zap.Error(err))
				return
			}
			logger.Warn("Dropping UDP query", zap.Stringer("client", addr), zap.Error(err))
			continue
		}

		if response != nil {
			if _, err := conn.WriteToUDP(response, addr); err != nil {
				logger.Warn("UDP write failed", zap.Stringer("client", addr), zap.Error(err))
			}
		}
	}
}

// Stop closes all sockets and waits for the receive loops to exit
func (ul *UDPListener) Stop() error {
	ul.cancel()

	for _, conn := range ul.conns {
		if conn != nil {
			conn.Close()
		}
	}

	ul.wg.Wait()

	return nil
}

// Addr returns the listener address
func (ul *UDPListener) Addr() net.Addr {
	if len(ul.conns) > 0 && ul.conns[0] != nil {
		return ul.conns[0].LocalAddr()
	}
	return nil
}

// TCPListener accepts transfer connections and hands each to its own goroutine
type TCPListener struct {
	config   *ListenerConfig
	listener net.Listener
	handler  ConnHandler
	logger   *zap.Logger
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc

	// Connection management
	activeConns map[net.Conn]struct{}
	connMutex   sync.Mutex
}

// NewTCPListener creates a new TCP listener with the given configuration
func NewTCPListener(config *ListenerConfig, handler ConnHandler, logger *zap.Logger) (*TCPListener, error) {
	if config == nil {
		config = DefaultListenerConfig("127.0.0.1:53")
	}
	if handler == nil {
		return nil, errors.New("tcp listener requires a connection handler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &TCPListener{
		config:      config,
		handler:     handler,
		logger:      logger.Named("tcp"),
		ctx:         ctx,
		cancel:      cancel,
		activeConns: make(map[net.Conn]struct{}),
	}, nil
}

// Start begins listening for TCP connections
func (tl *TCPListener) Start() error {
	lc := net.ListenConfig{Control: socketControl(tl.config)}

	listener, err := lc.Listen(context.Background(), "tcp", tl.config.Address)
	if err != nil {
		return fmt.Errorf("failed to create TCP listener: %w", err)
	}

	tl.listener = listener

	tl.wg.Add(1)
	go tl.acceptLoop()

	return nil
}

// acceptLoop accepts new TCP connections and spawns handlers
func (tl *TCPListener) acceptLoop() {
	defer tl.wg.Done()

	for {
		conn, err := tl.listener.Accept()
		if err != nil {
			if tl.ctx.Err() != nil {
				return
			}
			tl.logger.Warn("Accept failed", zap.Error(err))
			continue
		}

		if !tl.acquire(conn) {
			conn.Close()
			if tl.ctx.Err() != nil {
				return
			}
			tl.logger.Warn("Connection limit reached, rejecting", zap.Stringer("client", conn.RemoteAddr()))
			continue
		}

		tl.wg.Add(1)
		go tl.handleConnection(conn)
	}
}

// acquire reserves a connection slot for conn.
// It refuses once Stop has begun, since Stop only closes connections it can see.
func (tl *TCPListener) acquire(conn net.Conn) bool {
	tl.connMutex.Lock()
	defer tl.connMutex.Unlock()

	if tl.ctx.Err() != nil {
		return false
	}
	if tl.config.MaxConnections > 0 && len(tl.activeConns) >= tl.config.MaxConnections {
		return false
	}
	tl.activeConns[conn] = struct{}{}

	return true
}

// handleConnection applies deadlines, runs the handler and closes the connection
func (tl *TCPListener) handleConnection(conn net.Conn) {
	defer tl.wg.Done()
	defer conn.Close()
	defer func() {
		tl.connMutex.Lock()
		delete(tl.activeConns, conn)
		tl.connMutex.Unlock()
	}()

	if tl.config.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(tl.config.ReadTimeout))
	}
	if tl.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(tl.config.ReadTimeout + tl.config.WriteTimeout))
	}

	tl.handler.ServeConn(tl.ctx, conn)
}

// Stop stops accepting connections, closes in-flight ones and waits for their handlers.
func (tl *TCPListener) Stop() error {
	tl.cancel()

	if tl.listener != nil {
		tl.listener.Close()
	}

	tl.connMutex.Lock()
	for conn := range tl.activeConns {
		conn.Close()
	}
	tl.connMutex.Unlock()

	tl.wg.Wait()

	return nil
}

// Addr returns the listener address
func (tl *TCPListener) Addr() net.Addr {
	if tl.listener != nil {
		return tl.listener.Addr()
	}
	return nil
}

// ActiveConnections returns the number of connections currently being served
func (tl *TCPListener) ActiveConnections() int {
	tl.connMutex.Lock()
	defer tl.connMutex.Unlock()

	return len(tl.activeConns)
}
