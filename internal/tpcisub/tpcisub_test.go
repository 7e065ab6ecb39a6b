package tpcisub

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/knxscan/internal/apci"
	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

// mockBusGateway answers the tunnel handshake, ACKs and confirms every
// TUNNELLING_REQUEST it receives, and — for NDP frames carrying
// A_DeviceDescriptor_Read — injects a bus-device L_Data.ind response.
type mockBusGateway struct {
	conn      *net.UDPConn
	channelID uint8
	peer      *net.UDPAddr

	ourAddr    knx.Address
	targetAddr knx.Address
}

func newMockBusGateway(t *testing.T, ourAddr, targetAddr knx.Address) *mockBusGateway {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	return &mockBusGateway{conn: conn, channelID: 0x25, ourAddr: ourAddr, targetAddr: targetAddr}
}

func (g *mockBusGateway) addr() *net.UDPAddr { return g.conn.LocalAddr().(*net.UDPAddr) }
func (g *mockBusGateway) close()             { g.conn.Close() }

func (g *mockBusGateway) send(service knx.ServiceType, body []byte) {
	_, _ = g.conn.WriteToUDP(knx.EncodeFrame(service, body), g.peer)
}

func (g *mockBusGateway) serve() {
	buf := make([]byte, 2048)

	var outSeq uint8

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
				Address:   g.ourAddr,
			}
			respBody, _ := resp.Encode()
			g.send(knx.ServiceTypeConnectResponse, respBody)

		case knx.ServiceTypeDisconnectRequest:
			req, _ := knx.DecodeDisconnectRequest(body)
			resp := knx.DisconnectResponse{ChannelID: req.ChannelID, Status: knx.EnoError}
			respBody, _ := resp.Encode()
			g.send(knx.ServiceTypeDisconnectResponse, respBody)

		case knx.ServiceTypeTunnellingRequest:
			req, err := knx.DecodeTunnellingRequest(body)
			if err != nil {
				continue
			}

			ack := knx.TunnellingAck{ChannelID: g.channelID, Seq: req.Seq, Status: knx.EnoError}
			ackBody, _ := ack.Encode()
			g.send(knx.ServiceTypeTunnellingAck, ackBody)

			reqCemi, err := knx.DecodeCemi(req.Cemi)
			if err != nil {
				continue
			}

			con := knx.Cemi{MsgCode: knx.LDataCon, Ctrl1: knx.DefaultCtrl1, Ctrl2: knx.DefaultHopCount}
			conBody, _ := con.Encode()
			confirm := knx.TunnellingRequest{ChannelID: g.channelID, Seq: outSeq, Cemi: conBody}
			confirmBody, _ := confirm.Encode()
			g.send(knx.ServiceTypeTunnellingRequest, confirmBody)
			outSeq++

			if reqCemi.TPCI == knx.TpciNDP && reqCemi.HasApci && reqCemi.Apci == knx.ADeviceDescriptorRead {
				ind := knx.Cemi{
					MsgCode:     knx.LDataInd,
					Ctrl1:       knx.DefaultCtrl1,
					Ctrl2:       knx.DefaultHopCount,
					Source:      g.targetAddr,
					Destination: uint16(g.ourAddr),
					TPCI:        knx.TpciNDP,
					Seq:         reqCemi.Seq,
					HasApci:     true,
					Apci:        knx.ADeviceDescriptorResponse,
					Data:        []byte{0x00, 0x12},
				}
				indBody, _ := ind.Encode()
				indFrame := knx.TunnellingRequest{ChannelID: g.channelID, Seq: outSeq, Cemi: indBody}
				indFrameBody, _ := indFrame.Encode()
				g.send(knx.ServiceTypeTunnellingRequest, indFrameBody)
				outSeq++
			}
		}
	}
}

func Test_OpenSendDeviceDescriptorClose(t *testing.T) {
	ourAddr := knx.PackAddress(1, 1, 1)
	targetAddr := knx.PackAddress(1, 1, 2)

	gw := newMockBusGateway(t, ourAddr, targetAddr)
	defer gw.close()

	go gw.serve()

	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	tun, err := tunnel.Connect(ctx, gw.addr())
	require.NoError(t, err)
	defer tun.Disconnect(ctx)

	conn, err := Open(ctx, tun, targetAddr)
	require.NoError(t, err)
	assert.Equal(t, Connected, conn.Phase())

	resp, err := conn.SendNDP(ctx, apciReq(), knx.ADeviceDescriptorResponse)
	require.NoError(t, err)
	assert.Equal(t, knx.ADeviceDescriptorResponse, resp.Apci)
	assert.Equal(t, knx.DeviceDescriptor(0x0012).String(), "System 1 (BCU1)")
	assert.Equal(t, uint8(1), conn.Seq())

	conn.Close(ctx)
	assert.Equal(t, Closed, conn.Phase())
}

func apciReq() knx.Cemi {
	return apci.DeviceDescriptorRead()
}
