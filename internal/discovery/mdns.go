package discovery

/*------------------------------------------------------------------
 *
 * Purpose:	[ADD] Supplemental mDNS-assisted gateway discovery. Some
 *		KNXnet/IP gateways (notably ones built on embedded Linux
 *		stacks with Avahi) also advertise a Bonjour/mDNS service
 *		alongside the KNXnet/IP multicast SEARCH responder. This
 *		browses for that service using the same pure-Go
 *		github.com/brutella/dnssd package the teacher uses for
 *		DNS-SD announcement (src/dns_sd.go), here for browsing
 *		instead of announcing.
 *
 * Description:	mDNS alone only yields a (host,port) hit, not decoded
 *		DIB_DEVICE_INFO — there's no cEMI payload in a TXT record.
 *		Hits found here are handed to Describe() to fill in the
 *		GatewayReport fields, exactly as if they'd been supplied
 *		on the command line.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/brutella/dnssd"
)

// mdnsServiceType is the Bonjour service type some gateways register
// under. This is vendor convention, not part of the KNX standard.
const mdnsServiceType = "_knxnetip._udp.local."

// LookupMDNS browses for mdnsServiceType for the given window and
// returns one ScanTarget per distinct host/port seen.
func LookupMDNS(ctx context.Context, window time.Duration) ([]ScanTarget, error) {
	if window <= 0 {
		window = 5 * time.Second
	}

	lookupCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	var (
		mu      sync.Mutex
		targets = map[string]ScanTarget{}
	)

	add := func(e dnssd.BrowseEntry) {
		if len(e.IPs) == 0 {
			return
		}

		t := ScanTarget{Host: firstIPv4(e.IPs), Port: uint16(e.Port)}

		mu.Lock()
		targets[t.String()] = t
		mu.Unlock()
	}

	remove := func(dnssd.BrowseEntry) {}

	err := dnssd.LookupType(lookupCtx, mdnsServiceType, add, remove)
	if err != nil && lookupCtx.Err() == nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()

	out := make([]ScanTarget, 0, len(targets))
	for _, t := range targets {
		out = append(out, t)
	}

	return out, nil
}

func firstIPv4(ips []net.IP) net.IP {
	for _, ip := range ips {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}

	return ips[0]
}
