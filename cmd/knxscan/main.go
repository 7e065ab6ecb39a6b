package main

/*------------------------------------------------------------------
 *
 * Purpose:	Main program for knxscan, a KNXnet/IP gateway discovery
 *		and bus scanning tool.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/doismellburning/knxscan/internal/busmon"
	"github.com/doismellburning/knxscan/internal/config"
	"github.com/doismellburning/knxscan/internal/discovery"
	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/logging"
	"github.com/doismellburning/knxscan/internal/scan"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

func main() {
	var configFile = pflag.StringP("config", "c", "", "YAML config file for scan defaults.")
	var search = pflag.Bool("search", false, "Discover gateways by multicast SEARCH in addition to unicast DESCRIPTION.")
	var busInfo = pflag.Bool("bus-info", false, "After discovery, walk the bus target range on each gateway.")
	var iface = pflag.String("iface", "", "Interface to bind SEARCH's multicast socket to.")
	var workers = pflag.Int("workers", 0, "Max concurrent DESCRIPTION workers. 0 uses the config/default.")
	var descTimeout = pflag.Duration("desc-timeout", 0, "DESCRIPTION_REQUEST timeout. 0 uses the config/default.")
	var descRetries = pflag.Int("desc-retries", -1, "DESCRIPTION_REQUEST retries. -1 uses the config/default.")
	var searchTimeout = pflag.Duration("search-timeout", 0, "SEARCH collection window. 0 uses the config/default.")
	var busRange = pflag.String("bus-range", "", "Bus target range, e.g. 1.1.1-1.1.255.")
	var busMonitor = pflag.Bool("bus-monitor", false, "Monitor every L_Data.ind on the single given gateway instead of scanning.")
	var groupMonitor = pflag.Bool("group-monitor", false, "Like --bus-monitor, but only group-addressed frames.")
	var logLevel = pflag.String("log-level", "info", "Log level: debug, info, warn, error.")
	var resultLog = pflag.String("result-log", "", "strftime pattern for an optional result/monitor log file, e.g. knxscan-%Y%m%d-%H%M%S.log.")
	var help = pflag.BoolP("help", "h", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "knxscan - KNXnet/IP gateway discovery and bus scanning tool.\n\n")
		fmt.Fprintf(os.Stderr, "Usage: knxscan [options] target [target...]\n")
		fmt.Fprintf(os.Stderr, "  target is an IPv4 address or CIDR range.\n\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(1)
	}

	logging.Init(*logLevel)

	out := io.Writer(os.Stdout)

	if *resultLog != "" {
		f, err := logging.OpenResultLog(*resultLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "knxscan: %s\n", err)
			os.Exit(1)
		}
		defer f.Close()

		out = io.MultiWriter(os.Stdout, f)
	}

	cfg := config.Default()

	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "knxscan: %s\n", err)
			os.Exit(1)
		}

		cfg = loaded
	}

	targets, err := expandTargets(append(pflag.Args(), cfg.Targets...))
	if err != nil {
		fmt.Fprintf(os.Stderr, "knxscan: %s\n", err)
		os.Exit(1)
	}

	if *busMonitor || *groupMonitor {
		if len(targets) != 1 {
			fmt.Fprintf(os.Stderr, "knxscan: --bus-monitor/--group-monitor take exactly one gateway target\n")
			os.Exit(1)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := runBusMonitor(ctx, out, targets[0], *groupMonitor); err != nil {
			fmt.Fprintf(os.Stderr, "knxscan: %s\n", err)
			os.Exit(1)
		}

		return
	}

	if len(targets) == 0 && !*search {
		fmt.Fprintf(os.Stderr, "knxscan: no targets given and --search not set\n")
		pflag.Usage()
		os.Exit(1)
	}

	opts := scan.DefaultOptions()
	opts.Discover.ExplicitTargets = targets
	opts.Discover.UseSearch = *search
	if *iface != "" {
		opts.Discover.Search.Iface = *iface
	} else {
		opts.Discover.Search.Iface = cfg.Iface
	}

	if *searchTimeout > 0 {
		opts.Discover.Search.Window = *searchTimeout
	} else {
		opts.Discover.Search.Window = cfg.SearchTimeout
	}

	opts.Discover.Describe = discovery.DefaultDescribeOptions()
	if *descTimeout > 0 {
		opts.Discover.Describe.Timeout = *descTimeout
	} else {
		opts.Discover.Describe.Timeout = cfg.DescribeTimeout
	}

	if *descRetries >= 0 {
		opts.Discover.Describe.Retries = *descRetries
	} else {
		opts.Discover.Describe.Retries = cfg.DescribeRetries
	}

	if *workers > 0 {
		opts.MaxWorkers = *workers
		opts.Discover.Describe.MaxWorkers = *workers
	} else {
		opts.MaxWorkers = cfg.Workers
		opts.Discover.Describe.MaxWorkers = cfg.Workers
	}

	if *busInfo {
		if *busRange == "" {
			fmt.Fprintf(os.Stderr, "knxscan: --bus-info requires --bus-range\n")
			os.Exit(1)
		}

		busTargets, err := knx.ParseTargetRange(*busRange)
		if err != nil {
			fmt.Fprintf(os.Stderr, "knxscan: %s\n", err)
			os.Exit(1)
		}

		opts.BusScan = true
		opts.BusTargets = busTargets
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reports, err := scan.Run(ctx, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "knxscan: scan failed: %s\n", err)
		os.Exit(1)
	}

	printReports(out, reports)

	if len(reports) == 0 {
		os.Exit(1)
	}
}

// runBusMonitor connects directly to target's tunnel (bypassing the scan
// scheduler, since monitor mode issues no requests) and prints every
// decoded L_Data.ind until ctx is cancelled or the tunnel closes
// (spec.md §2.8, §6 --bus-monitor/--group-monitor).
func runBusMonitor(ctx context.Context, w io.Writer, target discovery.ScanTarget, groupOnly bool) error {
	addr := &net.UDPAddr{IP: target.Host, Port: int(target.Port)}

	tun, err := tunnel.Connect(ctx, addr)
	if err != nil {
		return fmt.Errorf("bus monitor: connect to %s: %w", addr, err)
	}
	defer tun.Disconnect(ctx)

	log.Info("bus monitor connected", "gateway", addr, "own_address", tun.OwnAddress(), "group_only", groupOnly)

	frames, errs := busmon.Monitor(ctx, tun, groupOnly)

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return nil
			}

			dest := any(knx.Address(frame.Destination))
			if frame.IsGroup {
				dest = knx.GroupAddress{Value: frame.Destination, Levels: 3}
			}

			fmt.Fprintf(w, "%s -> %s %s %x\n", frame.Source, dest, frame.Apci, frame.Data)
		case err, ok := <-errs:
			if ok && err != nil {
				log.Warn("bus monitor", "err", err)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// expandTargets turns CLI-supplied IPv4/CIDR strings into discovery
// targets on KNXnet/IP's standard port. CIDR expansion is a trivial
// input adapter, per spec.md §1.
func expandTargets(args []string) ([]discovery.ScanTarget, error) {
	var targets []discovery.ScanTarget

	for _, arg := range args {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}

		if !strings.Contains(arg, "/") {
			ip := net.ParseIP(arg)
			if ip == nil {
				return nil, fmt.Errorf("invalid target %q", arg)
			}

			targets = append(targets, discovery.ScanTarget{Host: ip, Port: 3671})

			continue
		}

		ip, ipnet, err := net.ParseCIDR(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", arg, err)
		}

		for cur := ip.Mask(ipnet.Mask); ipnet.Contains(cur); incIP(cur) {
			targets = append(targets, discovery.ScanTarget{Host: append(net.IP{}, cur...), Port: 3671})
		}
	}

	return targets, nil
}

func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			return
		}
	}
}
