package tpcisub

/*------------------------------------------------------------------
 *
 * Purpose:	Per-bus-target connection-oriented transport sublayer on
 *		top of a tunnel (spec.md §4.4): UCD open/close, NDP data
 *		with mod-16 sequencing, and the NCD ack the bus device's
 *		retransmission policy requires after every response.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/knxscan/internal/apci"
	"github.com/doismellburning/knxscan/internal/knx"
	"github.com/doismellburning/knxscan/internal/tunnel"
)

// ResponseTimeout is the spec.md §5 "TPCI response" row: 3s, no retry.
const ResponseTimeout = 3 * time.Second

// ErrUnreachable marks a target that failed to open or stopped
// responding; the bus scan skips it and continues (spec.md §7).
var ErrUnreachable = errors.New("tpcisub: target unreachable")

// Phase is the TPCI connection's lifecycle state.
type Phase int

const (
	Closed Phase = iota
	Connected
	AwaitingAck
)

// Connection is a TPCI connection-oriented transport to one bus target
// over an already-open tunnel.
type Connection struct {
	tunnel *tunnel.Tunnel
	target knx.Address

	seq   uint8 // mod-16
	phase Phase
}

// Open sends UCD T_Connect to target and returns a Connection once the
// tunnel confirms the send, observing the confirm per spec.md §4.4.
// Open never blocks on a bus-level response: no ACK is expected at the
// TPCI layer for T_Connect.
func Open(ctx context.Context, t *tunnel.Tunnel, target knx.Address) (*Connection, error) {
	c := knx.Cemi{
		MsgCode:     knx.LDataReq,
		Ctrl1:       knx.DefaultCtrl1,
		Ctrl2:       knx.DefaultHopCount,
		Destination: uint16(target),
		TPCI:        knx.TpciUCD,
		UCDControl:  knx.UCDConnect,
	}

	if _, err := t.SendCemi(ctx, c); err != nil {
		log.Debug("tpcisub: open failed", "target", target, "err", err)

		return nil, ErrUnreachable
	}

	return &Connection{tunnel: t, target: target, phase: Connected}, nil
}

// SendNDP sends req (built by internal/apci) with the connection's
// current sequence number, waits up to ResponseTimeout for the matching
// L_Data.ind via the tunnel's indications fan-out, ACKs it, and
// advances seq mod 16. On any failure the connection closes.
func (c *Connection) SendNDP(ctx context.Context, req knx.Cemi, expected knx.Apci) (knx.Cemi, error) {
	if c.phase == Closed {
		return knx.Cemi{}, ErrUnreachable
	}

	req.Destination = uint16(c.target)
	req.TPCI = knx.TpciNDP
	req.Seq = c.seq

	c.phase = AwaitingAck

	if _, err := c.tunnel.SendCemi(ctx, req); err != nil {
		log.Debug("tpcisub: send_ndp failed", "target", c.target, "seq", c.seq, "err", err)
		c.phase = Closed

		return knx.Cemi{}, ErrUnreachable
	}

	resp, err := apci.Await(ctx, c.tunnel.Indications(), c.target, c.tunnel.OwnAddress(), c.seq, expected, ResponseTimeout)
	if err != nil {
		log.Debug("tpcisub: no response", "target", c.target, "seq", c.seq)
		c.phase = Closed

		return knx.Cemi{}, ErrUnreachable
	}

	if err := c.sendAck(ctx); err != nil {
		log.Debug("tpcisub: ack failed", "target", c.target, "seq", c.seq, "err", err)
	}

	c.seq = (c.seq + 1) % 16
	c.phase = Connected

	return resp, nil
}

// sendAck sends NCD T_Ack at the connection's current sequence number,
// required after every NDP-carrying response per spec.md §4.4.
func (c *Connection) sendAck(ctx context.Context) error {
	ack := knx.Cemi{
		MsgCode:     knx.LDataReq,
		Ctrl1:       knx.DefaultCtrl1,
		Ctrl2:       knx.DefaultHopCount,
		Destination: uint16(c.target),
		TPCI:        knx.TpciNCD,
		Seq:         c.seq,
		NCDControl:  knx.NCDAck,
	}

	_, err := c.tunnel.SendCemi(ctx, ack)

	return err
}

// Close sends UCD T_Disconnect and marks the connection Closed.
func (c *Connection) Close(ctx context.Context) {
	if c.phase == Closed {
		return
	}

	req := knx.Cemi{
		MsgCode:     knx.LDataReq,
		Ctrl1:       knx.DefaultCtrl1,
		Ctrl2:       knx.DefaultHopCount,
		Destination: uint16(c.target),
		TPCI:        knx.TpciUCD,
		UCDControl:  knx.UCDDisconnect,
	}

	if _, err := c.tunnel.SendCemi(ctx, req); err != nil {
		log.Debug("tpcisub: close send failed", "target", c.target, "err", err)
	}

	c.phase = Closed
}

// Phase reports the connection's current lifecycle state.
func (c *Connection) Phase() Phase { return c.phase }

// Seq reports the connection's current mod-16 sequence number.
func (c *Connection) Seq() uint8 { return c.seq }
