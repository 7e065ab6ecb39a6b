package main

/*------------------------------------------------------------------
 *
 * Purpose:	Render scan.GatewayReport/scan.BusDeviceReport as the
 *		plain-text report table spec.md §3/§6 describes.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"io"

	"github.com/doismellburning/knxscan/internal/scan"
)

// serviceFamilyNames maps DIB_SUPP_SVC_FAMILIES family codes to their
// KNXnet/IP spec names, for a readable --bus-info-free report.
var serviceFamilyNames = map[uint8]string{
	0x02: "Core",
	0x03: "Device Management",
	0x04: "Tunnelling",
	0x05: "Routing",
	0x06: "Remote Logging",
	0x07: "Remote Configuration and Diagnosis",
	0x08: "Object Server",
}

func printReports(w io.Writer, reports []scan.GatewayReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, "no gateways found")
		return
	}

	for _, r := range reports {
		fmt.Fprintln(w, r.String())
		fmt.Fprintf(w, "  MAC: % x  Serial: % x  status: 0x%02x  project: %d\n",
			r.MAC, r.Serial, r.DeviceStatus, r.ProjectID)

		if len(r.Families) > 0 {
			fmt.Fprint(w, "  services:")

			for _, f := range r.Families {
				name, ok := serviceFamilyNames[f.Family]
				if !ok {
					name = fmt.Sprintf("0x%02x", f.Family)
				}

				fmt.Fprintf(w, " %s/%d.%d", name, f.Version/10, f.Version%10)
			}

			fmt.Fprintln(w)
		}

		if len(r.BusDevices) == 0 {
			continue
		}

		fmt.Fprintln(w, "  bus devices:")

		for _, d := range r.BusDevices {
			fmt.Fprintf(w, "    %-9s %-24s serial %-17s %s\n",
				d.Address, d.DeviceTypeString, d.SerialHex, d.ManufacturerName)
		}
	}
}
