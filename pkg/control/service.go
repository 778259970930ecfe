package control

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "xfrserver.v1.Control"

// Full method names.
const (
	MoveToSerialMethod     = "/" + ServiceName + "/MoveToSerial"
	GetCurrentSerialMethod = "/" + ServiceName + "/GetCurrentSerial"
	GetServedSerialMethod  = "/" + ServiceName + "/GetServedSerial"
)

// ControlServer is the server API for the Control service.
// Messages are protobuf well-known types.
type ControlServer interface {
	MoveToSerial(context.Context, *wrapperspb.UInt32Value) (*wrapperspb.BoolValue, error)
	GetCurrentSerial(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
	GetServedSerial(context.Context, *emptypb.Empty) (*wrapperspb.UInt32Value, error)
}

// RegisterControlServer registers srv on s.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&controlServiceDesc, srv)
}

var controlServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "MoveToSerial",
			Handler:    moveToSerialHandler,
		},
		{
			MethodName: "GetCurrentSerial",
			Handler:    getCurrentSerialHandler,
		},
		{
			MethodName: "GetServedSerial",
			Handler:    getServedSerialHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "xfrserver/v1/control.proto",
}

func moveToSerialHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.UInt32Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).MoveToSerial(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MoveToSerialMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).MoveToSerial(ctx, req.(*wrapperspb.UInt32Value))
	}
	return interceptor(ctx, in, info, handler)
}

func getCurrentSerialHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetCurrentSerial(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetCurrentSerialMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetCurrentSerial(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func getServedSerialHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).GetServedSerial(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: GetServedSerialMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ControlServer).GetServedSerial(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}
