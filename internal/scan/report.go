package scan

/*------------------------------------------------------------------
 *
 * Purpose:	User-facing result entities (spec.md §3 Report entities):
 *		GatewayReport and BusDeviceReport, built from a decoded
 *		discovery.Gateway plus whatever the bus walk finds.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"net"
	"strings"

	"github.com/doismellburning/knxscan/internal/discovery"
	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/manuf"
)

// GatewayReport is one discovered gateway plus every bus device found
// by walking its tunnel, if a bus scan was requested.
type GatewayReport struct {
	Host         net.IP
	Port         uint16
	MAC          [6]byte
	KnxAddress   knx.Address
	Serial       [6]byte
	FriendlyName string
	DeviceStatus uint8
	KnxMedium    knx.KnxMedium
	ProjectID    uint16
	Families     []knx.SupportedServiceFamily
	Source       string

	BusDevices []BusDeviceReport
}

// BusDeviceReport is one live bus device found during a gateway's walk.
type BusDeviceReport struct {
	Address          knx.Address
	DeviceTypeString string
	SerialHex        string
	ManufacturerName string
}

// NewGatewayReport builds the display-ready report from a decoded
// discovery.Gateway. FriendlyName is null-padded on the wire and
// printable-quoted here per spec.md §3.
func NewGatewayReport(gw discovery.Gateway) GatewayReport {
	name := strings.TrimRight(string(gw.Device.FriendlyName[:]), "\x00")

	return GatewayReport{
		Host:         gw.Host,
		Port:         gw.Port,
		MAC:          gw.Device.MAC,
		KnxAddress:   gw.Device.KnxAddress,
		Serial:       gw.Device.SerialNumber,
		FriendlyName: name,
		DeviceStatus: gw.Device.Status,
		KnxMedium:    gw.Device.Medium,
		ProjectID:    gw.Device.ProjectInstallID,
		Families:     gw.Families.Families,
		Source:       gw.Source,
	}
}

// String renders the friendly name quoted, per spec.md §3's display rule.
func (r GatewayReport) String() string {
	return fmt.Sprintf("%s:%d %s (%s) %q", r.Host, r.Port, r.KnxAddress, r.KnxMedium, r.FriendlyName)
}

// NewBusDeviceReport builds a BusDeviceReport from a device descriptor,
// serial number bytes, and manufacturer id resolved during the walk.
func NewBusDeviceReport(addr knx.Address, desc knx.DeviceDescriptor, serial []byte, manufacturerID uint16) BusDeviceReport {
	return BusDeviceReport{
		Address:          addr,
		DeviceTypeString: desc.String(),
		SerialHex:        fmt.Sprintf("% x", serial),
		ManufacturerName: manuf.Name(manufacturerID),
	}
}
