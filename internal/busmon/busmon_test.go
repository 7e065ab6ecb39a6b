package busmon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

// mockGateway drives a real tunnel.Tunnel through CONNECT and then lets
// the test push arbitrary cEMI frames down as TUNNELLING_REQUESTs.
type mockGateway struct {
	t         *testing.T
	conn      *net.UDPConn
	channelID uint8
	peer      *net.UDPAddr
	seq       uint8
}

func newMockGateway(t *testing.T) *mockGateway {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	return &mockGateway{t: t, conn: conn, channelID: 7}
}

func (g *mockGateway) addr() *net.UDPAddr { return g.conn.LocalAddr().(*net.UDPAddr) }

func (g *mockGateway) close() { g.conn.Close() }

func (g *mockGateway) send(service knx.ServiceType, body []byte) {
	_, _ = g.conn.WriteToUDP(knx.EncodeFrame(service, body), g.peer)
}

func (g *mockGateway) serveConnectThenIndicate(cemis []knx.Cemi) {
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

		switch service {
		case knx.ServiceTypeConnectRequest:
			resp := knx.ConnectResponse{
				ChannelID: g.channelID,
				Status:    knx.EnoError,
				Data:      knx.HPAI{Protocol: knx.ProtocolUDP, IP: g.addr().IP, Port: uint16(g.addr().Port)},
			}
			respBody, _ := resp.Encode()
			g.send(knx.ServiceTypeConnectResponse, respBody)

			for _, cemi := range cemis {
				cemiBody, err := cemi.Encode()
				require.NoError(g.t, err)

				req := knx.TunnellingRequest{ChannelID: g.channelID, Seq: g.seq, Cemi: cemiBody}
				reqBody, _ := req.Encode()
				g.send(knx.ServiceTypeTunnellingRequest, reqBody)
				g.seq++
			}
		case knx.ServiceTypeTunnellingAck:
			// the tunnel ACKing our indications; nothing to do.
		case knx.ServiceTypeDisconnectRequest:
			req, _ := knx.DecodeDisconnectRequest(body)
			resp := knx.DisconnectResponse{ChannelID: req.ChannelID, Status: knx.EnoError}
			respBody, _ := resp.Encode()
			g.send(knx.ServiceTypeDisconnectResponse, respBody)
		}
	}
}

func Test_MonitorSurfacesLDataInd(t *testing.T) {
	gw := newMockGateway(t)
	defer gw.close()

	indication := knx.Cemi{
		MsgCode:            knx.LDataInd,
		Ctrl1:              knx.DefaultCtrl1,
		Ctrl2:              knx.DefaultHopCount | 0x80, // group destination
		Source:             knx.PackAddress(1, 1, 5),
		Destination:        0x0001, // 0/0/1
		IsGroupDestination: true,
		TPCI:               knx.TpciUDP,
		HasApci:            true,
		Apci:               knx.AGroupValueWrite,
		Data:               []byte{0x01},
	}

	go gw.serveConnectThenIndicate([]knx.Cemi{indication})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tun, err := tunnel.Connect(ctx, gw.addr())
	require.NoError(t, err)
	defer tun.Disconnect(ctx)

	frames, _ := Monitor(ctx, tun, false)

	select {
	case frame := <-frames:
		assert.Equal(t, "1.1.5", frame.Source.String())
		assert.True(t, frame.IsGroup)
		assert.Equal(t, knx.AGroupValueWrite, frame.Apci)
	case <-time.After(2 * time.Second):
		t.Fatal("no frame surfaced")
	}
}

func Test_MonitorGroupOnlyFiltersIndividualDestinations(t *testing.T) {
	gw := newMockGateway(t)
	defer gw.close()

	individual := knx.Cemi{
		MsgCode:            knx.LDataInd,
		Ctrl1:              knx.DefaultCtrl1,
		Ctrl2:              knx.DefaultHopCount,
		Source:             knx.PackAddress(1, 1, 5),
		Destination:        uint16(knx.PackAddress(1, 1, 1)),
		IsGroupDestination: false,
		TPCI:               knx.TpciNDP,
		HasApci:            true,
		Apci:               knx.ADeviceDescriptorResponse,
		Data:               []byte{0x00, 0x12},
	}

	go gw.serveConnectThenIndicate([]knx.Cemi{individual})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tun, err := tunnel.Connect(ctx, gw.addr())
	require.NoError(t, err)
	defer tun.Disconnect(ctx)

	frames, _ := Monitor(ctx, tun, true)

	select {
	case frame := <-frames:
		t.Fatalf("unexpected frame surfaced with groupOnly set: %+v", frame)
	case <-time.After(500 * time.Millisecond):
	}
}
