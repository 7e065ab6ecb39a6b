package discovery

/*------------------------------------------------------------------
 *
 * Purpose:	Combine multicast SEARCH, supplemental mDNS browsing, and
 *		unicast DESCRIPTION into the single discovery entry point
 *		the scan scheduler calls.
 *
 *------------------------------------------------------------------*/

import (
	"context"

	"github.com/charmbracelet/log"
)

// DiscoverOptions bundles every discovery mode's knobs.
type DiscoverOptions struct {
	Search      SearchOptions
	Describe    DescribeOptions
	ExplicitTargets []ScanTarget // targets supplied directly, e.g. by CLI
	UseSearch   bool
	UseMDNS     bool
}

// Discover runs every enabled discovery mode and merges results,
// deduplicated by (ip,port). Explicit targets and mDNS hits are always
// resolved via a DESCRIPTION probe since neither carries DIB_DEVICE_INFO.
func Discover(ctx context.Context, opts DiscoverOptions) ([]Gateway, error) {
	seen := map[string]Gateway{}

	if opts.UseSearch {
		gws, err := Search(ctx, opts.Search)
		if err != nil {
			log.Warn("discover: SEARCH failed", "err", err)
		}

		for _, gw := range gws {
			seen[gw.Key()] = gw
		}
	}

	targets := append([]ScanTarget{}, opts.ExplicitTargets...)

	if opts.UseMDNS {
		mdnsTargets, err := LookupMDNS(ctx, opts.Search.Window)
		if err != nil {
			log.Warn("discover: mDNS browse failed", "err", err)
		}

		targets = append(targets, mdnsTargets...)
	}

	if len(targets) > 0 {
		gws, err := Describe(ctx, targets, opts.Describe)
		if err != nil {
			return nil, err
		}

		for _, gw := range gws {
			if _, dup := seen[gw.Key()]; !dup {
				seen[gw.Key()] = gw
			}
		}
	}

	return gatewaysOf(seen), nil
}
