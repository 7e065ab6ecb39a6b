package discovery

/*------------------------------------------------------------------
 *
 * Purpose:	Multicast SEARCH (spec.md §4.2): broadcast a SEARCH_REQUEST
 *		to 224.0.23.12:3671 and collect SEARCH_RESPONSEs for a
 *		configurable window.
 *
 * Description:	net.ListenUDP/net.JoinMulticastGroup-style helpers don't
 *		expose SO_REUSEADDR or a bind-to-device option, both of
 *		which are needed when multiple processes on the host
 *		listen on the same multicast group. We build the socket
 *		by hand with golang.org/x/sys/unix, following the same
 *		raw-syscall idiom the pack uses for custom socket options,
 *		then hand the fd to net.FilePacketConn for ordinary
 *		ReadFrom/WriteTo/deadline use.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/doismellburning/knxscan/internal/knx"
)

// SearchOptions configures multicast SEARCH.
type SearchOptions struct {
	Iface  string        // interface name to bind to, "" for any
	Window time.Duration // response collection window, default 5s
}

// DefaultSearchOptions returns the spec.md §4.2 defaults.
func DefaultSearchOptions() SearchOptions {
	return SearchOptions{Window: 5 * time.Second}
}

// Search sends one SEARCH_REQUEST to 224.0.23.12:3671 and returns one
// Gateway per unique (ip,port) SEARCH_RESPONSE received before the
// collection window closes.
func Search(ctx context.Context, opts SearchOptions) ([]Gateway, error) {
	if opts.Window <= 0 {
		opts.Window = 5 * time.Second
	}

	conn, localPort, err := newMulticastConn(opts.Iface)
	if err != nil {
		return nil, fmt.Errorf("knx: SEARCH socket setup: %w", err)
	}
	defer conn.Close()

	localIP, err := localInterfaceAddr(opts.Iface)
	if err != nil {
		return nil, err
	}

	req := knx.SearchRequest{Discovery: knx.HPAI{
		Protocol: knx.ProtocolUDP,
		IP:       localIP,
		Port:     localPort,
	}}

	body, err := req.Encode()
	if err != nil {
		return nil, err
	}

	frame := knx.EncodeFrame(knx.ServiceTypeSearchRequest, body)

	dest, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", knx.MulticastAddr, knx.DefaultPort))
	if err != nil {
		return nil, err
	}

	if _, err := conn.WriteTo(frame, dest); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(opts.Window)

	seen := map[string]Gateway{}
	buf := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			return gatewaysOf(seen), ctx.Err()
		default:
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}

		if err := conn.SetReadDeadline(time.Now().Add(remaining)); err != nil {
			return nil, err
		}

		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			break // deadline hit
		}

		udpFrom, ok := from.(*net.UDPAddr)
		if !ok {
			continue
		}

		service, respBody, err := knx.DecodeFrame(buf[:n])
		if err != nil || service != knx.ServiceTypeSearchResponse {
			continue
		}

		resp, err := knx.DecodeSearchResponse(respBody)
		if err != nil {
			continue
		}

		gw := Gateway{
			Host:     udpFrom.IP,
			Port:     uint16(udpFrom.Port),
			Device:   resp.Device,
			Families: resp.Families,
			Source:   "search",
		}
		seen[gw.Key()] = gw
	}

	return gatewaysOf(seen), nil
}

func gatewaysOf(seen map[string]Gateway) []Gateway {
	out := make([]Gateway, 0, len(seen))
	for _, gw := range seen {
		out = append(out, gw)
	}

	return out
}

// newMulticastConn opens a UDP socket bound to an ephemeral port, with
// SO_REUSEADDR set and joined to the KNXnet/IP multicast group, optionally
// bound to a specific interface.
func newMulticastConn(iface string) (net.PacketConn, uint16, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, 0, err
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)

		return nil, 0, err
	}

	if iface != "" {
		if err := unix.SetsockoptString(fd, unix.SOL_SOCKET, unix.SO_BINDTODEVICE, iface); err != nil {
			unix.Close(fd)

			return nil, 0, err
		}
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: 0}); err != nil {
		unix.Close(fd)

		return nil, 0, err
	}

	mreq := &unix.IPMreq{}
	copy(mreq.Multiaddr[:], net.ParseIP(knx.MulticastAddr).To4())

	if err := unix.SetsockoptIPMreq(fd, unix.IPPROTO_IP, unix.IP_ADD_MEMBERSHIP, mreq); err != nil {
		unix.Close(fd)

		return nil, 0, err
	}

	sa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)

		return nil, 0, err
	}

	sa4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		unix.Close(fd)

		return nil, 0, fmt.Errorf("knx: unexpected sockaddr type %T", sa)
	}

	file := os.NewFile(uintptr(fd), "knx-search")

	conn, err := net.FilePacketConn(file)
	file.Close() // FilePacketConn dup()s the fd; this copy is no longer needed

	if err != nil {
		return nil, 0, err
	}

	return conn, uint16(sa4.Port), nil
}

func localInterfaceAddr(iface string) (net.IP, error) {
	if iface == "" {
		return net.IPv4zero, nil
	}

	ifi, err := net.InterfaceByName(iface)
	if err != nil {
		return nil, err
	}

	addrs, err := ifi.Addrs()
	if err != nil {
		return nil, err
	}

	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}

	return nil, fmt.Errorf("knx: interface %s has no IPv4 address", iface)
}
