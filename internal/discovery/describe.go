package discovery

/*------------------------------------------------------------------
 *
 * Purpose:	Unicast DESCRIPTION probing (spec.md §4.2): for each
 *		candidate (ip,port), send DESCRIPTION_REQUEST and await
 *		DESCRIPTION_RESPONSE with a timeout and retry budget,
 *		bounded by a worker pool sized min(max_workers, |targets|).
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/knxscan/internal/knx"
)

// DescribeOptions configures unicast DESCRIPTION probing.
type DescribeOptions struct {
	Timeout    time.Duration // per-attempt response wait, default 2s
	Retries    int           // additional attempts after the first, default 2
	MaxWorkers int           // worker pool cap, default 100
}

// DefaultDescribeOptions returns the spec.md §4.2 defaults.
func DefaultDescribeOptions() DescribeOptions {
	return DescribeOptions{Timeout: 2 * time.Second, Retries: 2, MaxWorkers: 100}
}

// Describe probes every target in targets and returns one Gateway per
// target that answered, in no particular order. A target that never
// answers within Retries+1 attempts is silently omitted, mirroring
// SEARCH's "collect window" behavior rather than failing the whole run.
func Describe(ctx context.Context, targets []ScanTarget, opts DescribeOptions) ([]Gateway, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Second
	}

	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 100
	}

	workers := opts.MaxWorkers
	if workers > len(targets) {
		workers = len(targets)
	}

	if workers == 0 {
		return nil, nil
	}

	jobs := make(chan ScanTarget)
	results := make(chan Gateway, len(targets))

	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for target := range jobs {
				gw, err := describeOne(ctx, target, opts)
				if err != nil {
					log.Debug("describe: target unreachable", "target", target, "err", err)

					continue
				}

				results <- gw
			}
		}()
	}

	go func() {
		defer close(jobs)

		for _, t := range targets {
			select {
			case jobs <- t:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	gateways := make([]Gateway, 0, len(targets))
	for gw := range results {
		gateways = append(gateways, gw)
	}

	return gateways, nil
}

func describeOne(ctx context.Context, target ScanTarget, opts DescribeOptions) (Gateway, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return Gateway{}, err
	}
	defer conn.Close()

	localAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return Gateway{}, knx.ErrMalformed
	}

	req := knx.DescriptionRequest{Control: knx.HPAI{
		Protocol: knx.ProtocolUDP,
		IP:       localAddr.IP,
		Port:     uint16(localAddr.Port),
	}}

	body, err := req.Encode()
	if err != nil {
		return Gateway{}, err
	}

	frame := knx.EncodeFrame(knx.ServiceTypeDescriptionRequest, body)

	dest := &net.UDPAddr{IP: target.Host, Port: int(target.Port)}

	attempts := opts.Retries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return Gateway{}, ctx.Err()
		default:
		}

		if _, err := conn.WriteToUDP(frame, dest); err != nil {
			return Gateway{}, err
		}

		if err := conn.SetReadDeadline(time.Now().Add(opts.Timeout)); err != nil {
			return Gateway{}, err
		}

		buf := make([]byte, 2048)

		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue // timeout, retry
		}

		service, respBody, err := knx.DecodeFrame(buf[:n])
		if err != nil || service != knx.ServiceTypeDescriptionResponse {
			continue
		}

		resp, err := knx.DecodeDescriptionResponse(respBody)
		if err != nil {
			continue
		}

		return Gateway{
			Host:     from.IP,
			Port:     uint16(from.Port),
			Device:   resp.Device,
			Families: resp.Families,
			Source:   "description",
		}, nil
	}

	return Gateway{}, context.DeadlineExceeded
}
