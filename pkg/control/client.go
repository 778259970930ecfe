package control

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/piwi3910/xfrserver/pkg/zone"
)

// Client calls a remote Control service.
// Refused serial moves come back as zone.ErrSerialSequence or zone.ErrUnknownSerial.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

// Dial connects to the control service at target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)

	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", target, err)
	}

	return &Client{cc: conn, conn: conn}, nil
}

// NewClient wraps an existing connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close closes the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// MoveToSerial asks the server to advance to serial.
func (c *Client) MoveToSerial(ctx context.Context, serial uint32) (bool, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, MoveToSerialMethod, wrapperspb.UInt32(serial), out); err != nil {
		return false, fromStatus(err)
	}
	return out.GetValue(), nil
}

// CurrentSerial returns the serial the server now offers.
func (c *Client) CurrentSerial(ctx context.Context) (uint32, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.cc.Invoke(ctx, GetCurrentSerialMethod, &emptypb.Empty{}, out); err != nil {
		return 0, fromStatus(err)
	}
	return out.GetValue(), nil
}

// ServedSerial returns the serial of the server's last completed transfer.
func (c *Client) ServedSerial(ctx context.Context) (uint32, error) {
	out := new(wrapperspb.UInt32Value)
	if err := c.cc.Invoke(ctx, GetServedSerialMethod, &emptypb.Empty{}, out); err != nil {
		return 0, fromStatus(err)
	}
	return out.GetValue(), nil
}

func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", zone.ErrSerialSequence, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", zone.ErrUnknownSerial, st.Message())
	default:
		return err
	}
}
