package tunnel

/*------------------------------------------------------------------
 *
 * Purpose:	The CONNECTIONSTATE heartbeat (spec.md §4.3): every 60s
 *		send CONNECTIONSTATE_REQUEST; two consecutive misses close
 *		the tunnel.
 *
 *------------------------------------------------------------------*/

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/knxscan/internal/knx"
)

// sendHeartbeat sends one CONNECTIONSTATE_REQUEST and waits up to
// HeartbeatTimeout for a status-OK response. Called from run(), so it
// shares the single reader channel rx with every other inbound frame.
func (t *Tunnel) sendHeartbeat(rx <-chan rxDatagram) bool {
	req := knx.ConnectionstateRequest{ChannelID: t.channelID, Control: t.controlEndpoint}

	body, err := req.Encode()
	if err != nil {
		log.Warn("tunnel: heartbeat encode failed", "err", err)

		return false
	}

	if _, err := t.conn.Write(knx.EncodeFrame(knx.ServiceTypeConnectionstateRequest, body)); err != nil {
		log.Warn("tunnel: heartbeat send failed", "err", err)

		return false
	}

	deadline := time.Now().Add(HeartbeatTimeout)

	var lastInboundSeq uint8

	var haveLast bool

	for time.Now().Before(deadline) {
		select {
		case dg, ok := <-rx:
			if !ok || dg.err != nil {
				return false
			}

			ev := t.handleInbound(dg.buf, &lastInboundSeq, &haveLast)
			if ev.kind == evHeartbeatAck {
				if !ev.status.OK() {
					log.Warn("tunnel: heartbeat rejected", "status", ev.status)

					return false
				}

				return true
			}
		case <-time.After(time.Until(deadline)):
			return false
		}
	}

	return false
}
