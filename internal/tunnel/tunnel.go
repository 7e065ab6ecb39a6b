package tunnel

/*------------------------------------------------------------------
 *
 * Purpose:	Per-gateway KNXnet/IP tunnel connection (spec.md §4.3):
 *		the CONNECT/DISCONNECT handshake, TUNNELLING_REQUEST/ACK
 *		sequencing, and cEMI frame dispatch.
 *
 * Description:	Each tunnel owns one UDP socket and one goroutine (run)
 *		that is the sole reader/writer of connection state —
 *		the actor model called for in spec.md §9 ("model each
 *		tunnel as an actor with an inbox of parsed frames and an
 *		outbox of pending response-waiters"), built with a
 *		channel + select loop instead of futures. Callers never
 *		touch the socket or the sequence counters directly; they
 *		go through SendCemi/Disconnect, which hand a request to
 *		the loop and block on a private reply channel.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/doismellburning/knxscan/internal/knx"
)

// Phase is the tunnel's connection state (spec.md §3 ConnectionState.phase).
type Phase int

const (
	Closed Phase = iota
	Connecting
	Open
	Closing
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case Open:
		return "Open"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Timeouts, spec.md §5 table.
const (
	ConnectTimeout       = 10 * time.Second
	DisconnectTimeout    = 1 * time.Second
	TunnellingAckTimeout = 1 * time.Second
	CemiConfirmTimeout   = 3 * time.Second
	HeartbeatTimeout     = 10 * time.Second
	HeartbeatInterval    = 60 * time.Second
)

var (
	// ErrClosed is returned by calls made after the tunnel has closed.
	ErrClosed = errors.New("knx: tunnel closed")
	// ErrCancelled marks a request abandoned by cooperative shutdown or
	// a gateway-initiated disconnect, never a failure (spec.md §7).
	ErrCancelled = errors.New("knx: request cancelled")
)

// atomicPhase lets Phase() be read from any goroutine while run() is the
// only writer.
type atomicPhase struct {
	v atomic.Int32
}

func (a *atomicPhase) set(p Phase) { a.v.Store(int32(p)) }
func (a *atomicPhase) get() Phase  { return Phase(a.v.Load()) }

// ConnectionRefused is returned by Connect when CONNECT_RESPONSE carries
// a non-zero status.
type ConnectionRefused struct{ Status knx.Status }

func (e *ConnectionRefused) Error() string {
	return fmt.Sprintf("knx: connect refused: %s", e.Status)
}

// Tunnel is a live KNXnet/IP tunnel connection to one gateway.
type Tunnel struct {
	conn      *net.UDPConn
	channelID uint8
	ownAddr   knx.Address // individual address the gateway assigned this connection

	controlEndpoint knx.HPAI
	dataEndpoint    knx.HPAI

	sendReq chan sendCemiRequest
	discReq chan chan error

	indications chan knx.Cemi // fan-out of every decoded inbound L_Data.ind/.con

	done chan struct{}

	phase atomicPhase
}

type sendCemiRequest struct {
	cemi  knx.Cemi
	reply chan sendCemiResult
}

type sendCemiResult struct {
	cemi knx.Cemi
	err  error
}

// Connect opens a UDP socket to addr and performs the CONNECT_REQUEST /
// CONNECT_RESPONSE handshake (spec.md §4.3).
func Connect(ctx context.Context, addr *net.UDPAddr) (*Tunnel, error) {
	conn, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		return nil, err
	}

	local, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		conn.Close()

		return nil, fmt.Errorf("knx: unexpected local addr type")
	}

	hpai := knx.HPAI{Protocol: knx.ProtocolUDP, IP: local.IP, Port: uint16(local.Port)}

	req := knx.ConnectRequest{Control: hpai, Data: hpai, CRI: knx.DefaultTunnelCRI()}

	body, err := req.Encode()
	if err != nil {
		conn.Close()

		return nil, err
	}

	if err := conn.SetDeadline(time.Now().Add(ConnectTimeout)); err != nil {
		conn.Close()

		return nil, err
	}

	if _, err := conn.Write(knx.EncodeFrame(knx.ServiceTypeConnectRequest, body)); err != nil {
		conn.Close()

		return nil, err
	}

	buf := make([]byte, 2048)

	n, err := conn.Read(buf)
	if err != nil {
		conn.Close()

		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("knx: CONNECT_REQUEST: %w", context.DeadlineExceeded)
		}

		return nil, err
	}

	service, respBody, err := knx.DecodeFrame(buf[:n])
	if err != nil || service != knx.ServiceTypeConnectResponse {
		conn.Close()

		return nil, fmt.Errorf("knx: expected CONNECT_RESPONSE, got service 0x%04x (err=%v)", service, err)
	}

	resp, err := knx.DecodeConnectResponse(respBody)
	if err != nil {
		conn.Close()

		return nil, err
	}

	if !resp.Status.OK() {
		conn.Close()

		return nil, &ConnectionRefused{Status: resp.Status}
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()

		return nil, err
	}

	t := &Tunnel{
		conn:            conn,
		channelID:       resp.ChannelID,
		ownAddr:         resp.Address,
		controlEndpoint: hpai,
		dataEndpoint:    resp.Data,
		sendReq:         make(chan sendCemiRequest),
		discReq:         make(chan chan error),
		indications:     make(chan knx.Cemi, 32),
		done:            make(chan struct{}),
	}
	t.phase.set(Open)

	rx := make(chan rxDatagram, 8)
	go t.readLoop(rx)
	go t.run(rx)

	log.Info("tunnel: connected", "gateway", addr, "channel_id", resp.ChannelID)

	return t, nil
}

// Phase reports the tunnel's current connection phase.
func (t *Tunnel) Phase() Phase { return t.phase.get() }

// ChannelID is the channel id assigned by the gateway at CONNECT time.
func (t *Tunnel) ChannelID() uint8 { return t.channelID }

// OwnAddress is the individual address the gateway assigned this tunnel
// connection in the CONNECT_RESPONSE CRD.
func (t *Tunnel) OwnAddress() knx.Address { return t.ownAddr }

// Indications returns the channel every decoded inbound L_Data.ind/.con
// cEMI frame is published on, for consumers (the TPCI sublayer) that
// need to observe frames outside of a specific SendCemi call.
func (t *Tunnel) Indications() <-chan knx.Cemi { return t.indications }

// SendCemi wraps cemi in a TUNNELLING_REQUEST, waits for the matching
// TUNNELLING_ACK (one retry on a 1s timeout), then waits up to 3s for
// the next inbound cEMI frame and returns it. That frame is not matched
// against the request: it is whichever cEMI the gateway delivers first.
func (t *Tunnel) SendCemi(ctx context.Context, cemi knx.Cemi) (knx.Cemi, error) {
	reply := make(chan sendCemiResult, 1)

	select {
	case t.sendReq <- sendCemiRequest{cemi: cemi, reply: reply}:
	case <-t.done:
		return knx.Cemi{}, ErrClosed
	case <-ctx.Done():
		return knx.Cemi{}, ctx.Err()
	}

	select {
	case res := <-reply:
		return res.cemi, res.err
	case <-t.done:
		return knx.Cemi{}, ErrClosed
	case <-ctx.Done():
		return knx.Cemi{}, ctx.Err()
	}
}

// Disconnect sends DISCONNECT_REQUEST and waits up to 1s for
// DISCONNECT_RESPONSE, unconditionally transitioning to Closed.
func (t *Tunnel) Disconnect(ctx context.Context) error {
	reply := make(chan error, 1)

	select {
	case t.discReq <- reply:
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-reply:
		return err
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type rxDatagram struct {
	buf []byte
	err error
}

func (t *Tunnel) readLoop(rx chan<- rxDatagram) {
	buf := make([]byte, 2048)

	for {
		n, err := t.conn.Read(buf)
		if err != nil {
			select {
			case rx <- rxDatagram{err: err}:
			case <-t.done:
			}

			return
		}

		cp := append([]byte(nil), buf[:n]...)

		select {
		case rx <- rxDatagram{buf: cp}:
		case <-t.done:
			return
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error

	return errors.As(err, &ne) && ne.Timeout()
}

// inboundEvent is the result of decoding one datagram read off the wire.
type inboundEvent struct {
	kind   inboundKind
	seq    uint8
	status knx.Status
	cemi   knx.Cemi
}

type inboundKind int

const (
	evUnknown inboundKind = iota
	evAck
	evCemi
	evDuplicateCemi
	evDisconnectRequest
	evHeartbeatAck
	evCodecError
)

// handleInbound decodes one datagram and, for TUNNELLING_REQUEST and
// gateway-initiated DISCONNECT_REQUEST, performs the mandatory immediate
// reply (ACK or DISCONNECT_RESPONSE) before returning the classified
// event to the caller.
func (t *Tunnel) handleInbound(buf []byte, lastInboundSeq *uint8, haveLast *bool) inboundEvent {
	service, body, err := knx.DecodeFrame(buf)
	if err != nil {
		log.Debug("tunnel: dropping malformed frame", "err", err)

		return inboundEvent{kind: evCodecError}
	}

	switch service {
	case knx.ServiceTypeTunnellingRequest:
		req, err := knx.DecodeTunnellingRequest(body)
		if err != nil {
			return inboundEvent{kind: evCodecError}
		}

		ack := knx.TunnellingAck{ChannelID: t.channelID, Seq: req.Seq, Status: knx.EnoError}
		if ackBody, err := ack.Encode(); err == nil {
			_, _ = t.conn.Write(knx.EncodeFrame(knx.ServiceTypeTunnellingAck, ackBody))
		}

		duplicate := *haveLast && req.Seq == *lastInboundSeq
		*lastInboundSeq = req.Seq
		*haveLast = true

		if duplicate {
			return inboundEvent{kind: evDuplicateCemi}
		}

		cemi, err := knx.DecodeCemi(req.Cemi)
		if err != nil {
			log.Debug("tunnel: dropping malformed cEMI", "err", err)

			return inboundEvent{kind: evCodecError}
		}

		select {
		case t.indications <- cemi:
		default:
			log.Warn("tunnel: indications channel full, dropping frame")
		}

		return inboundEvent{kind: evCemi, cemi: cemi}

	case knx.ServiceTypeTunnellingAck:
		ack, err := knx.DecodeTunnellingAck(body)
		if err != nil {
			return inboundEvent{kind: evCodecError}
		}

		return inboundEvent{kind: evAck, seq: ack.Seq, status: ack.Status}

	case knx.ServiceTypeDisconnectRequest:
		req, err := knx.DecodeDisconnectRequest(body)
		if err != nil || req.ChannelID != t.channelID {
			return inboundEvent{kind: evUnknown}
		}

		resp := knx.DisconnectResponse{ChannelID: t.channelID, Status: knx.EnoError}
		if respBody, err := resp.Encode(); err == nil {
			_, _ = t.conn.Write(knx.EncodeFrame(knx.ServiceTypeDisconnectResponse, respBody))
		}

		return inboundEvent{kind: evDisconnectRequest}

	case knx.ServiceTypeConnectionstateResponse:
		resp, err := knx.DecodeConnectionstateResponse(body)
		if err != nil {
			return inboundEvent{kind: evCodecError}
		}

		return inboundEvent{kind: evHeartbeatAck, status: resp.Status}

	default:
		return inboundEvent{kind: evUnknown}
	}
}

// run is the tunnel's actor loop: the only goroutine that touches the
// socket, the sequence counters, and the phase after Connect returns.
func (t *Tunnel) run(rx <-chan rxDatagram) {
	var outboundSeq uint8

	var lastInboundSeq uint8

	var haveLastInboundSeq bool

	var heartbeatMisses int

	heartbeatTimer := time.NewTimer(HeartbeatInterval)
	defer heartbeatTimer.Stop()

	for {
		select {
		case req := <-t.sendReq:
			cemi, err := t.sendAndAwait(rx, outboundSeq, req.cemi, &lastInboundSeq, &haveLastInboundSeq)
			if err == nil {
				outboundSeq++
			}

			req.reply <- sendCemiResult{cemi: cemi, err: err}

			if errors.Is(err, ErrCancelled) {
				log.Info("tunnel: gateway-initiated disconnect", "channel_id", t.channelID)
				t.finish(Closed)

				return
			}

		case reply := <-t.discReq:
			err := t.doDisconnect(rx)
			reply <- err
			t.finish(Closed)

			return

		case dg := <-rx:
			if dg.err != nil {
				log.Warn("tunnel: connection lost", "err", dg.err)
				t.finish(Closed)

				return
			}

			ev := t.handleInbound(dg.buf, &lastInboundSeq, &haveLastInboundSeq)
			if ev.kind == evDisconnectRequest {
				log.Info("tunnel: gateway-initiated disconnect", "channel_id", t.channelID)
				t.finish(Closed)

				return
			}

		case <-heartbeatTimer.C:
			if t.sendHeartbeat(rx) {
				heartbeatMisses = 0
			} else {
				heartbeatMisses++

				if heartbeatMisses >= 2 {
					log.Warn("tunnel: two consecutive heartbeat timeouts, closing")
					t.phase.set(Closing)
					_ = t.doDisconnect(rx)
					t.finish(Closed)

					return
				}
			}

			heartbeatTimer.Reset(HeartbeatInterval)
		}
	}
}

// finish transitions to phase, closes the socket, and releases every
// goroutine blocked on t.done.
func (t *Tunnel) finish(phase Phase) {
	t.phase.set(phase)
	t.conn.Close()
	close(t.done)
}

// sendAndAwait sends one TUNNELLING_REQUEST carrying cemi at seq,
// retries once on a 1s ACK timeout, then waits up to 3s for the next
// inbound cEMI frame of any kind.
func (t *Tunnel) sendAndAwait(rx <-chan rxDatagram, seq uint8, cemi knx.Cemi, lastInboundSeq *uint8, haveLast *bool) (knx.Cemi, error) {
	body, err := cemi.Encode()
	if err != nil {
		return knx.Cemi{}, err
	}

	req := knx.TunnellingRequest{ChannelID: t.channelID, Seq: seq, Cemi: body}

	frame, err := req.Encode()
	if err != nil {
		return knx.Cemi{}, err
	}

	encoded := knx.EncodeFrame(knx.ServiceTypeTunnellingRequest, frame)

	acked := false

	for attempt := 0; attempt < 2 && !acked; attempt++ {
		if _, err := t.conn.Write(encoded); err != nil {
			return knx.Cemi{}, err
		}

		deadline := time.Now().Add(TunnellingAckTimeout)

		for time.Now().Before(deadline) {
			select {
			case dg, ok := <-rx:
				if !ok || dg.err != nil {
					return knx.Cemi{}, ErrClosed
				}

				ev := t.handleInbound(dg.buf, lastInboundSeq, haveLast)
				if ev.kind == evAck && ev.seq == seq {
					acked = true
				}

				if ev.kind == evDisconnectRequest {
					return knx.Cemi{}, ErrCancelled
				}
			case <-time.After(time.Until(deadline)):
			}

			if acked {
				break
			}
		}
	}

	if !acked {
		return knx.Cemi{}, fmt.Errorf("knx: TUNNELLING_ACK seq=%d: %w", seq, context.DeadlineExceeded)
	}

	confirmDeadline := time.Now().Add(CemiConfirmTimeout)

	for time.Now().Before(confirmDeadline) {
		select {
		case dg, ok := <-rx:
			if !ok || dg.err != nil {
				return knx.Cemi{}, ErrClosed
			}

			ev := t.handleInbound(dg.buf, lastInboundSeq, haveLast)

			switch ev.kind {
			case evCemi:
				return ev.cemi, nil
			case evDisconnectRequest:
				return knx.Cemi{}, ErrCancelled
			}
		case <-time.After(time.Until(confirmDeadline)):
		}
	}

	return knx.Cemi{}, fmt.Errorf("knx: cEMI confirm/ind: %w", context.DeadlineExceeded)
}

// doDisconnect sends DISCONNECT_REQUEST and waits up to 1s for the
// response. It always returns nil: spec.md §4.3 transitions to Closed
// unconditionally.
func (t *Tunnel) doDisconnect(rx <-chan rxDatagram) error {
	req := knx.DisconnectRequest{ChannelID: t.channelID, Control: t.controlEndpoint}

	body, err := req.Encode()
	if err == nil {
		_, _ = t.conn.Write(knx.EncodeFrame(knx.ServiceTypeDisconnectRequest, body))
	}

	deadline := time.Now().Add(DisconnectTimeout)

	var lastInboundSeq uint8

	var haveLast bool

	for time.Now().Before(deadline) {
		select {
		case dg, ok := <-rx:
			if !ok || dg.err != nil {
				return nil
			}

			service, respBody, err := knx.DecodeFrame(dg.buf)
			if err == nil && service == knx.ServiceTypeDisconnectResponse {
				_, _ = knx.DecodeDisconnectResponse(respBody)

				return nil
			}

			t.handleInbound(dg.buf, &lastInboundSeq, &haveLast)
		case <-time.After(time.Until(deadline)):
			return nil
		}
	}

	return nil
}
