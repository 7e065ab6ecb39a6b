package discovery

/*------------------------------------------------------------------
 *
 * Purpose:	Shared types for gateway discovery: the network target
 *		a probe is sent to, and the decoded gateway response
 *		collected by SEARCH, DESCRIPTION, or mDNS.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"net"

	"github.com/doismellburning/knxscan/internal/knx"
)

// ScanTarget is a single (host, port) a DESCRIPTION probe is sent to.
type ScanTarget struct {
	Host net.IP
	Port uint16
}

func (t ScanTarget) String() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// Gateway is a decoded SEARCH_RESPONSE or DESCRIPTION_RESPONSE, tagged
// with the endpoint it arrived from. The scan package turns this into
// the user-facing GatewayReport.
type Gateway struct {
	Host     net.IP
	Port     uint16
	Device   knx.DIBDeviceInfo
	Families knx.DIBSuppSvcFamilies

	// Source names which discovery mode produced this hit: "search" or
	// "description". mDNS hits are resolved by a DESCRIPTION probe and
	// carry "description".
	Source string
}

// Key identifies a gateway by endpoint, for deduplication across
// discovery modes.
func (g Gateway) Key() string {
	return fmt.Sprintf("%s:%d", g.Host, g.Port)
}
