// Package control provides the gRPC control service for stepping the served
// serial, and a client for harnesses that drive it.
package control

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/piwi3910/xfrserver/pkg/zone"
)

// Controller is the serial control surface exposed over gRPC.
type Controller interface {
	MoveToSerial(newSerial uint32) (bool, error)
	CurrentSerial() uint32
	ServedSerial() uint32
}

// Server implements the Control gRPC service.
type Server struct {
	controller Controller
	logger     *zap.Logger

	grpcServer *grpc.Server
	listener   net.Listener
}

// NewServer creates a control server backed by controller.
func NewServer(controller Controller, logger *zap.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		controller: controller,
		logger:     logger.Named("control"),
	}

	opts = append(opts, grpc.ChainUnaryInterceptor(s.logInterceptor))
	s.grpcServer = grpc.NewServer(opts...)
	RegisterControlServer(s.grpcServer, s)

	return s
}

// Start binds address and serves in the background.
func (s *Server) Start(address string) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", address, err)
	}

	s.listener = listener

	s.logger.Info("Control gRPC server listening", zap.Stringer("address", listener.Addr()))
	go s.Serve(listener)

	return nil
}

// Serve serves on listener until Stop.
func (s *Server) Serve(listener net.Listener) error {
	if err := s.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		s.logger.Error("Control server failed", zap.Error(err))
		return err
	}
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully stops the control server.
func (s *Server) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
}

// MoveToSerial advances the served serial.
func (s *Server) MoveToSerial(ctx context.Context, req *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error) {
	changed, err := s.controller.MoveToSerial(req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}

	return wrapperspb.Bool(changed), nil
}

// GetCurrentSerial returns the serial now offered to clients.
func (s *Server) GetCurrentSerial(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	return wrapperspb.UInt32(s.controller.CurrentSerial()), nil
}

// GetServedSerial returns the serial of the last completed transfer.
func (s *Server) GetServedSerial(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt32Value, error) {
	return wrapperspb.UInt32(s.controller.ServedSerial()), nil
}

func (s *Server) logInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn("Control call failed", zap.String("method", info.FullMethod), zap.Error(err))
	} else {
		s.logger.Debug("Control call", zap.String("method", info.FullMethod))
	}
	return resp, err
}

// toStatus maps serial errors onto gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, zone.ErrSerialSequence):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, zone.ErrUnknownSerial):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
