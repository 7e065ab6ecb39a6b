package apci

/*------------------------------------------------------------------
 *
 * Purpose:	Match inbound L_Data.ind cEMI frames against an outstanding
 *		APCI request (spec.md §4.5): source == target, destination ==
 *		our assigned individual address, TPCI seq == our last sent
 *		seq, and APCI == the expected response opcode.
 *
 *------------------------------------------------------------------*/

import (
	"context"
	"errors"
	"time"

	"github.com/doismellburning/knxscan/internal/knx"
)

// ErrNoMatch is returned by Await when the wait deadline elapses without
// a correlated response.
var ErrNoMatch = errors.New("apci: no matching response within deadline")

// Match reports whether cemi is the response to a request sent to
// source, addressed back to ownAddr, with sequence seq and expected
// response opcode expected.
func Match(cemi knx.Cemi, source knx.Address, ownAddr knx.Address, seq uint8, expected knx.Apci) bool {
	if cemi.MsgCode != knx.LDataInd {
		return false
	}

	if cemi.Source != source {
		return false
	}

	if cemi.IsGroupDestination || knx.Address(cemi.Destination) != ownAddr {
		return false
	}

	if cemi.TPCI != knx.TpciNDP || cemi.Seq != seq {
		return false
	}

	return cemi.HasApci && cemi.Apci == expected
}

// Await drains indications until a frame matching source/ownAddr/seq/
// expected arrives, ctx is cancelled, or timeout elapses, whichever
// first. Non-matching frames are discarded; callers needing those too
// should consume indications themselves instead of sharing this wait.
func Await(ctx context.Context, indications <-chan knx.Cemi, source knx.Address, ownAddr knx.Address, seq uint8, expected knx.Apci, timeout time.Duration) (knx.Cemi, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case cemi, ok := <-indications:
			if !ok {
				return knx.Cemi{}, ErrNoMatch
			}

			if Match(cemi, source, ownAddr, seq, expected) {
				return cemi, nil
			}
		case <-timer.C:
			return knx.Cemi{}, ErrNoMatch
		case <-ctx.Done():
			return knx.Cemi{}, ctx.Err()
		}
	}
}
