package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doismellburning/knxscan/internal/knx"
)

// mockGatewayDescription answers every DESCRIPTION_REQUEST it receives
// with a fixed DESCRIPTION_RESPONSE until ctx is cancelled.
func mockGatewayDescription(t *testing.T, ctx context.Context, resp knx.DescriptionResponse) *net.UDPAddr {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)

	go func() {
		defer conn.Close()

		buf := make([]byte, 2048)

		for {
			_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))

			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				select {
				case <-ctx.Done():
					return
				default:
					continue
				}
			}

			service, _, err := knx.DecodeFrame(buf[:n])
			if err != nil || service != knx.ServiceTypeDescriptionRequest {
				continue
			}

			body, err := resp.Encode()
			if err != nil {
				return
			}

			frame := knx.EncodeFrame(knx.ServiceTypeDescriptionResponse, body)
			_, _ = conn.WriteToUDP(frame, from)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func Test_DescribeScenario(t *testing.T) {
	// spec.md §8 scenario (a).
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp := knx.DescriptionResponse{
		Device: knx.DIBDeviceInfo{
			Medium:     knx.MediumTP,
			KnxAddress: knx.PackAddress(1, 1, 1),
		},
	}

	addr := mockGatewayDescription(t, ctx, resp)

	gateways, err := Describe(ctx, []ScanTarget{{Host: addr.IP, Port: uint16(addr.Port)}}, DescribeOptions{
		Timeout:    500 * time.Millisecond,
		Retries:    1,
		MaxWorkers: 4,
	})
	require.NoError(t, err)
	require.Len(t, gateways, 1)

	got := gateways[0]
	assert.Equal(t, "KNX TP", got.Device.Medium.String())
	assert.Equal(t, "1.1.1", got.Device.KnxAddress.String())
}

func Test_DescribeUnreachableTargetSkipped(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Nothing listens on this port; Describe should return an empty
	// result rather than an error.
	gateways, err := Describe(ctx, []ScanTarget{{Host: net.IPv4(127, 0, 0, 1), Port: 1}}, DescribeOptions{
		Timeout:    100 * time.Millisecond,
		Retries:    0,
		MaxWorkers: 1,
	})
	require.NoError(t, err)
	assert.Empty(t, gateways)
}

func Test_DescribeNoTargets(t *testing.T) {
	gateways, err := Describe(context.Background(), nil, DefaultDescribeOptions())
	require.NoError(t, err)
	assert.Empty(t, gateways)
}
