package tunnel

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/knxscan/internal/knx"
)

// mockGateway is a minimal KNXnet/IP tunnel server used to drive the
// Tunnel actor through the handshake, data, and teardown paths without
// a real gateway on the wire.
type mockGateway struct {
	t    *testing.T
	conn *net.UDPConn

	channelID uint8
	peer      *net.UDPAddr

	// onTunnellingRequest lets a test customise the reply to an
	// inbound TUNNELLING_REQUEST (e.g. to withhold the ACK once).
	onTunnellingRequest func(req knx.TunnellingRequest)
}

func newMockGateway(t *testing.T) *mockGateway {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	return &mockGateway{t: t, conn: conn, channelID: 1}
}

func (g *mockGateway) addr() *net.UDPAddr {
	return g.conn.LocalAddr().(*net.UDPAddr)
}

func (g *mockGateway) close() { g.conn.Close() }

// serve answers the CONNECT handshake and then loops, handing every
// subsequent frame to the per-test handler until the connection closes.
func (g *mockGateway) serve(handle func(service knx.ServiceType, body []byte, from *net.UDPAddr)) {
	buf := make([]byte, 2048)

	for {
		_ = g.conn.SetReadDeadline(time.Now().Add(3 * time.Second))

		n, from, err := g.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}

		g.peer = from

		service, body, err := knx.DecodeFrame(buf[:n])
		if err != nil {
			continue
		}

		handle(service, append([]byte{}, body...), from)
	}
}

func (g *mockGateway) send(service knx.ServiceType, body []byte) {
	_, _ = g.conn.WriteToUDP(knx.EncodeFrame(service, body), g.peer)
}

// acceptConnect answers CONNECT_REQUEST with CONNECT_RESPONSE carrying
// channelID and an arbitrary data HPAI, handing control back to run
// for everything after.
func (g *mockGateway) acceptConnect(service knx.ServiceType, body []byte) {
	if service != knx.ServiceTypeConnectRequest {
		return
	}

	resp := knx.ConnectResponse{
		ChannelID: g.channelID,
		Status:    knx.EnoError,
		Data:      knx.HPAI{Protocol: knx.ProtocolUDP, IP: g.addr().IP, Port: uint16(g.addr().Port)},
	}
	respBody, err := resp.Encode()
	require.NoError(g.t, err)

	g.send(knx.ServiceTypeConnectResponse, respBody)
}

func Test_ConnectAndDisconnect(t *testing.T) {
	// spec.md §8 scenario (b).
	gw := newMockGateway(t)
	defer gw.close()

	done := make(chan struct{})

	go gw.serve(func(service knx.ServiceType, body []byte, from *net.UDPAddr) {
		switch service {
		case knx.ServiceTypeConnectRequest:
			gw.acceptConnect(service, body)
		case knx.ServiceTypeDisconnectRequest:
			req, err := knx.DecodeDisconnectRequest(body)
			require.NoError(t, err)

			resp := knx.DisconnectResponse{ChannelID: req.ChannelID, Status: knx.EnoError}
			respBody, _ := resp.Encode()
			gw.send(knx.ServiceTypeDisconnectResponse, respBody)
			close(done)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tun, err := Connect(ctx, gw.addr())
	require.NoError(t, err)
	assert.Equal(t, Open, tun.Phase())
	assert.Equal(t, gw.channelID, tun.ChannelID())

	require.NoError(t, tun.Disconnect(ctx))
	assert.Equal(t, Closed, tun.Phase())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("gateway never observed DISCONNECT_REQUEST")
	}
}

func Test_ConnectRefused(t *testing.T) {
	gw := newMockGateway(t)
	defer gw.close()

	go gw.serve(func(service knx.ServiceType, body []byte, from *net.UDPAddr) {
		if service != knx.ServiceTypeConnectRequest {
			return
		}

		resp := knx.ConnectResponse{Status: knx.Status(0x24)} // E_NO_MORE_CONNECTIONS
		respBody, _ := resp.Encode()
		gw.send(knx.ServiceTypeConnectResponse, respBody)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := Connect(ctx, gw.addr())
	require.Error(t, err)

	var refused *ConnectionRefused
	require.ErrorAs(t, err, &refused)
}

func Test_SendCemiRetriesOnAckTimeout(t *testing.T) {
	// spec.md §8 scenario (d): the first TUNNELLING_REQUEST is dropped,
	// the retried one is ACKed and answered.
	gw := newMockGateway(t)
	defer gw.close()

	var requestsSeen int

	go gw.serve(func(service knx.ServiceType, body []byte, from *net.UDPAddr) {
		switch service {
		case knx.ServiceTypeConnectRequest:
			gw.acceptConnect(service, body)
		case knx.ServiceTypeTunnellingRequest:
			requestsSeen++

			req, err := knx.DecodeTunnellingRequest(body)
			require.NoError(t, err)

			if requestsSeen == 1 {
				return // drop the first attempt, forcing a retry
			}

			ack := knx.TunnellingAck{ChannelID: gw.channelID, Seq: req.Seq, Status: knx.EnoError}
			ackBody, _ := ack.Encode()
			gw.send(knx.ServiceTypeTunnellingAck, ackBody)

			cemi := knx.Cemi{MsgCode: knx.LDataCon, Ctrl1: knx.DefaultCtrl1, Ctrl2: knx.DefaultHopCount}
			cemiBody, _ := cemi.Encode()
			confirm := knx.TunnellingRequest{ChannelID: gw.channelID, Seq: req.Seq, Cemi: cemiBody}
			confirmBody, _ := confirm.Encode()
			gw.send(knx.ServiceTypeTunnellingRequest, confirmBody)
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	tun, err := Connect(ctx, gw.addr())
	require.NoError(t, err)
	defer tun.Disconnect(ctx)

	_, err = tun.SendCemi(ctx, knx.Cemi{MsgCode: knx.LDataReq, Ctrl1: knx.DefaultCtrl1, Ctrl2: knx.DefaultHopCount})
	require.NoError(t, err)
	assert.Equal(t, 2, requestsSeen)
}

func Test_GatewayInitiatedDisconnect(t *testing.T) {
	// spec.md §8 scenario (f).
	gw := newMockGateway(t)
	defer gw.close()

	go gw.serve(func(service knx.ServiceType, body []byte, from *net.UDPAddr) {
		if service != knx.ServiceTypeConnectRequest {
			return
		}

		gw.acceptConnect(service, body)

		go func() {
			time.Sleep(100 * time.Millisecond)

			req := knx.DisconnectRequest{
				ChannelID: gw.channelID,
				Control:   knx.HPAI{Protocol: knx.ProtocolUDP, IP: gw.addr().IP, Port: uint16(gw.addr().Port)},
			}
			reqBody, _ := req.Encode()
			gw.send(knx.ServiceTypeDisconnectRequest, reqBody)
		}()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	tun, err := Connect(ctx, gw.addr())
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for tun.Phase() != Closed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, Closed, tun.Phase())
}
