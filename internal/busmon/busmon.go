package busmon

/*------------------------------------------------------------------
 *
 * Purpose:	A simpler variant of the tunnel that issues no requests,
 *		just decodes and surfaces inbound L_Data.ind frames
 *		(spec.md §2.8, §4.7). L_Busmon.ind decoding is
 *		unimplemented in v1 (spec.md §9): the frame codec rejects
 *		it as unsupported and the tunnel logs and drops it, so it
 *		never reaches this package.
 *
 *------------------------------------------------------------------*/

import (
	"context"

	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

// Frame is one decoded bus event surfaced to a monitor consumer.
type Frame struct {
	Source      knx.Address
	Destination uint16
	IsGroup     bool
	Apci        knx.Apci
	Data        []byte
}

// Monitor decodes every L_Data.ind the tunnel receives into Frame and
// publishes it on the returned channel until ctx is cancelled or the
// tunnel closes. An L_Busmon.ind never arrives here: the frame codec
// rejects it with ErrUnsupported and the tunnel logs the error at debug
// level and drops the frame. Nothing is ever sent on errs; it is only
// closed when the monitor stops.
func Monitor(ctx context.Context, t *tunnel.Tunnel, groupOnly bool) (<-chan Frame, <-chan error) {
	frames := make(chan Frame, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(frames)
		defer close(errs)

		for {
			select {
			case <-ctx.Done():
				return
			case cemi, ok := <-t.Indications():
				if !ok {
					return
				}

				if cemi.MsgCode != knx.LDataInd {
					continue
				}

				if groupOnly && !cemi.IsGroupDestination {
					continue
				}

				frame := Frame{
					Source:      cemi.Source,
					Destination: cemi.Destination,
					IsGroup:     cemi.IsGroupDestination,
					Apci:        cemi.Apci,
					Data:        cemi.Data,
				}

				select {
				case frames <- frame:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return frames, errs
}
