package control_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/piwi3910/xfrserver/pkg/control"
	"github.com/piwi3910/xfrserver/pkg/server"
	"github.com/piwi3910/xfrserver/pkg/zone"
)

func newController(t *testing.T) *server.Server {
	t.Helper()

	store, err := zone.LoadStore("example.com.", map[uint32]string{
		1: "$ORIGIN example.com.\n@ 3600 IN SOA ns1.example.com. admin.example.com. 1 3600 600 86400 300\n",
		2: "$ORIGIN example.com.\n@ 3600 IN SOA ns1.example.com. admin.example.com. 2 3600 600 86400 300\n",
	})
	require.NoError(t, err)

	srv, err := server.New(store, server.DefaultConfig("127.0.0.1:0"), nil, nil)
	require.NoError(t, err)

	return srv
}

func startBufconn(t *testing.T, ctrl control.Controller) *grpc.ClientConn {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := control.NewServer(ctrl, nil)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func TestClient_MoveToSerial(t *testing.T) {
	ctrl := newController(t)
	client := control.NewClient(startBufconn(t, ctrl))
	ctx := context.Background()

	changed, err := client.MoveToSerial(ctx, 1)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = client.MoveToSerial(ctx, 1)
	require.NoError(t, err)
	assert.False(t, changed)

	current, err := client.CurrentSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), current)

	served, err := client.ServedSerial(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), served)
}

func TestClient_ErrorMapping(t *testing.T) {
	ctrl := newController(t)
	client := control.NewClient(startBufconn(t, ctrl))
	ctx := context.Background()

	_, err := client.MoveToSerial(ctx, 2)
	assert.True(t, errors.Is(err, zone.ErrSerialSequence), "got %v", err)

	_, err = client.MoveToSerial(ctx, 1)
	require.NoError(t, err)
	_, err = client.MoveToSerial(ctx, 2)
	require.NoError(t, err)

	_, err = client.MoveToSerial(ctx, 3)
	assert.True(t, errors.Is(err, zone.ErrUnknownSerial), "got %v", err)

	assert.Equal(t, uint32(2), ctrl.CurrentSerial())
}

func TestServer_StatusCodes(t *testing.T) {
	conn := startBufconn(t, newController(t))
	ctx := context.Background()

	out := new(wrapperspb.BoolValue)
	err := conn.Invoke(ctx, control.MoveToSerialMethod, wrapperspb.UInt32(7), out)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	// Unknown methods on the service are rejected by gRPC itself
	err = conn.Invoke(ctx, "/"+control.ServiceName+"/Reset", wrapperspb.UInt32(0), out)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestServer_StartTCP(t *testing.T) {
	srv := control.NewServer(newController(t), nil)
	require.NoError(t, srv.Start("127.0.0.1:0"))
	defer srv.Stop()

	client, err := control.Dial(srv.Addr().String())
	require.NoError(t, err)
	defer client.Close()

	current, err := client.CurrentSerial(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint32(0), current)
}
