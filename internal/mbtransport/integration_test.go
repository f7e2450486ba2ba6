package mbtransport

import (
	"context"
	"net"
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comsrv/comsrv/packet"
	"github.com/comsrv/comsrv/server"
)

// stubHandler answers every FC3 read with a fixed register pair, grounding
// this round-trip test on the reference library's own server_test.go
// pattern (mbServer.Handle).
type stubHandler struct{}

func (stubHandler) Handle(ctx context.Context, received packet.Request) (packet.Response, error) {
	req, ok := received.(*packet.ReadHoldingRegistersRequestTCP)
	if !ok {
		return nil, packet.NewErrorParseTCP(packet.ErrIllegalFunction, "unsupported in stub")
	}
	return &packet.ReadHoldingRegistersResponseTCP{
		MBAPHeader: req.MBAPHeader,
		ReadHoldingRegistersResponse: packet.ReadHoldingRegistersResponse{
			UnitID:          req.UnitID,
			RegisterByteLen: 2,
			Data:            []byte{0x00, 0x64}, // 100
		},
	}, nil
}

func TestTCPTransport_RoundTripAgainstInProcessServer(t *testing.T) {
	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer listener.Close()

	tCtx, tCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer tCancel()
	ctx, cancel := signal.NotifyContext(tCtx, os.Interrupt)
	defer cancel()

	srv := &server.Server{}
	go func() {
		_ = srv.Serve(ctx, listener, stubHandler{})
	}()
	defer srv.Shutdown(context.Background())

	transport, err := New(Config{Kind: KindTCP, Address: listener.Addr().String()})
	require.NoError(t, err)
	require.NoError(t, transport.Connect(ctx))
	defer transport.Close()

	req, err := packet.NewReadHoldingRegistersRequestTCP(1, 0, 1)
	require.NoError(t, err)

	resp, err := transport.Do(ctx, req)
	require.NoError(t, err)

	registers, err := resp.(*packet.ReadHoldingRegistersResponseTCP).AsRegisters(0)
	require.NoError(t, err)
	value, err := registers.Uint16(0)
	require.NoError(t, err)
	assert.Equal(t, uint16(100), value)
}
