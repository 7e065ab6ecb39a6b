package scan

/*------------------------------------------------------------------
 *
 * Purpose:	Own gateway_q and per-gateway bus_q (spec.md §4.6): a
 *		bounded worker pool drains gateway_q via description
 *		workers, then one bus-walk task per discovered gateway is
 *		spawned — within a gateway the bus is walked sequentially
 *		by a single worker, since one tunnel may not run multiple
 *		concurrent TPCI connections safely.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/knxscan/internal/apci"
	"github.com/doismellburning/knxscan/internal/discovery"
	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/tpcisub"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

// Options bundles every scheduler knob, spec.md §4.6/§5.
type Options struct {
	Discover discovery.DiscoverOptions

	MaxWorkers int // bounds gateway_q drain concurrency, default 100

	BusScan    bool
	BusTargets []knx.Address // already range-expanded by the CLI adapter

	TunnelPort uint16 // default 3671
}

// DefaultOptions returns the spec.md §5 defaults.
func DefaultOptions() Options {
	return Options{MaxWorkers: 100, TunnelPort: 3671}
}

// Run discovers gateways per opts.Discover, then — if opts.BusScan is
// set — walks opts.BusTargets on each discovered gateway's tunnel, one
// gateway at a time per tunnel but all gateways concurrently, bounded
// by opts.MaxWorkers. Cancellation is cooperative: ctx cancellation
// stops spawning new bus-walks and gives each open tunnel a bounded
// grace period to disconnect.
func Run(ctx context.Context, opts Options) ([]GatewayReport, error) {
	gateways, err := discovery.Discover(ctx, opts.Discover)
	if err != nil {
		return nil, err
	}

	reports := make([]GatewayReport, len(gateways))
	for i, gw := range gateways {
		reports[i] = NewGatewayReport(gw)
	}

	if !opts.BusScan || len(opts.BusTargets) == 0 {
		return reports, nil
	}

	workers := opts.MaxWorkers
	if workers <= 0 || workers > len(reports) {
		workers = len(reports)
	}

	if workers == 0 {
		return reports, nil
	}

	sem := make(chan struct{}, workers)

	var wg sync.WaitGroup

	for i := range reports {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()

			reports[i].BusDevices = walkGateway(ctx, reports[i], opts)
		}(i)
	}

	wg.Wait()

	return reports, nil
}

// walkGateway opens one tunnel to gw and sequentially walks every bus
// target, skipping unreachable ones and continuing (spec.md §4.6,
// §7 TargetUnreachable). Any open tunnel is always given a bounded
// grace period to disconnect, even on ctx cancellation.
func walkGateway(ctx context.Context, gw GatewayReport, opts Options) []BusDeviceReport {
	port := opts.TunnelPort
	if port == 0 {
		port = 3671
	}

	addr := &net.UDPAddr{IP: gw.Host, Port: int(port)}

	t, err := tunnel.Connect(ctx, addr)
	if err != nil {
		log.Warn("scan: tunnel connect failed", "gateway", gw.Host, "err", err)

		return nil
	}

	defer func() {
		grace, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		_ = t.Disconnect(grace)
	}()

	var devices []BusDeviceReport

	for _, target := range opts.BusTargets {
		select {
		case <-ctx.Done():
			return devices
		default:
		}

		if report, ok := walkTarget(ctx, t, target); ok {
			devices = append(devices, report)
		}
	}

	return devices
}

// walkTarget opens a TPCI connection to target and issues the request
// sequence spec.md §4.5 defines, resolving the manufacturer id and
// serial number via whichever path the device descriptor selects.
func walkTarget(ctx context.Context, t *tunnel.Tunnel, target knx.Address) (BusDeviceReport, bool) {
	conn, err := tpcisub.Open(ctx, t, target)
	if err != nil {
		log.Debug("scan: target unreachable", "target", target)

		return BusDeviceReport{}, false
	}
	defer conn.Close(ctx)

	descResp, err := conn.SendNDP(ctx, apci.DeviceDescriptorRead(), knx.ADeviceDescriptorResponse)
	if err != nil || len(descResp.Data) < 2 {
		return BusDeviceReport{}, false
	}

	desc := knx.DeviceDescriptor(uint16(descResp.Data[0])<<8 | uint16(descResp.Data[1]))

	var manufacturerID uint16

	var serial []byte

	if desc > knx.MaskBCU1Boundary {
		manufacturerID, serial = walkViaProperties(ctx, conn)
	} else {
		manufacturerID, serial = walkViaMemory(ctx, conn)
	}

	return NewBusDeviceReport(target, desc, serial, manufacturerID), true
}

// walkViaProperties reads PID_MANUFACTURER_ID then PID_SERIAL_NUMBER on
// interface object 0, for devices whose descriptor indicates they have
// interface objects (spec.md §4.5 step 2).
func walkViaProperties(ctx context.Context, conn *tpcisub.Connection) (uint16, []byte) {
	var manufacturerID uint16

	var serial []byte

	if resp, err := conn.SendNDP(ctx, apci.PropertyValueRead(0, knx.PIDManufacturerID), knx.APropertyValueResponse); err == nil && len(resp.Data) >= 6 {
		manufacturerID = uint16(resp.Data[4])<<8 | uint16(resp.Data[5])
	}

	if resp, err := conn.SendNDP(ctx, apci.PropertyValueRead(0, knx.PIDSerialNumber), knx.APropertyValueResponse); err == nil && len(resp.Data) > 4 {
		serial = resp.Data[4:]
	}

	return manufacturerID, serial
}

// walkViaMemory reads the manufacturer id and application program
// directly from System 1/2 memory, for devices without interface
// objects (spec.md §4.5 step 3).
func walkViaMemory(ctx context.Context, conn *tpcisub.Connection) (uint16, []byte) {
	var manufacturerID uint16

	var serial []byte

	if resp, err := conn.SendNDP(ctx, apci.MemoryRead(knx.MemAddrManufacturerID, 1), knx.AMemoryResponse); err == nil && len(resp.Data) >= 1 {
		manufacturerID = uint16(resp.Data[len(resp.Data)-1])
	}

	if resp, err := conn.SendNDP(ctx, apci.MemoryRead(knx.MemAddrApplicationProgram, 4), knx.AMemoryResponse); err == nil {
		serial = resp.Data
	}

	return manufacturerID, serial
}
