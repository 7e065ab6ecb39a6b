package knx

/*------------------------------------------------------------------
 *
 * Purpose:	Encode and decode cEMI frames: L_Data.req/con/ind and the
 *		other primitives listed in spec.md §3, including the
 *		embedded TPCI/APCI bit fields of the NPDU.
 *
 * Description:	Wire layout (spec.md §6):
 *
 *		msg_code | add_info_len | add_info[...] | ctrl1 | ctrl2 |
 *		src[2] | dst[2] | npdu_len | tpci_apci[>=2] | data[...]
 *
 *		npdu_len counts every byte from tpci_apci onward. TPCI
 *		occupies the top 2 bits of npdu[0]; for NDP/NCD the next
 *		4 bits are the mod-16 sequence number and the low 2 bits
 *		are the top 2 bits of the 10-bit APCI field. For UCD the
 *		low 2 bits of npdu[0] instead select T_Connect/T_Disconnect.
 *		npdu[1]'s top 2 bits are the next 2 APCI bits; its low 6
 *		bits are either the remaining 6 APCI bits (long form) or
 *		an inline data value (short form, A_GroupValue_* only).
 *
 *------------------------------------------------------------------*/

import "fmt"

// DefaultCtrl1 is ctrl1 for a client-built L_Data.req: standard frame,
// no repeat, broadcast, normal priority, no ack, no confirm.
const DefaultCtrl1 = 0xbc

// DefaultHopCount is ctrl2's low 4 bits when unspecified.
const DefaultHopCount = 6

// groupDestinationBit is ctrl2's high bit: set when the destination
// address is a group address rather than an individual address.
const groupDestinationBit = 0x80

// Cemi is a decoded cEMI frame.
type Cemi struct {
	MsgCode CemiMsgCode
	AddInfo []byte // raw additional-info TLV bytes, usually empty

	Ctrl1 uint8
	Ctrl2 uint8

	Source      Address
	Destination uint16 // raw 16-bit; group vs individual per IsGroupDestination

	IsGroupDestination bool

	TPCI TpciClass
	Seq  uint8 // valid for NDP/NCD only, 4 bits

	// UCDControl holds UCDConnect/UCDDisconnect for TPCI==TpciUCD.
	UCDControl uint8
	// NCDControl holds NCDAck/NCDNack for TPCI==TpciNCD.
	NCDControl uint8

	HasApci bool // false for UCD/NCD frames, which carry no APCI; a UDP/NDP frame encoded with it unset has a one-octet NPDU
	Apci    Apci
	Data    []byte
}

// Encode serializes c to its cEMI wire form.
func (c Cemi) Encode() ([]byte, error) {
	if len(c.AddInfo) > 255 {
		return nil, fmt.Errorf("knx: cEMI additional info too long (%d bytes)", len(c.AddInfo))
	}

	npdu, err := c.encodeNPDU()
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, 8+len(c.AddInfo)+len(npdu))
	buf = append(buf, byte(c.MsgCode), byte(len(c.AddInfo)))
	buf = append(buf, c.AddInfo...)
	buf = append(buf, c.Ctrl1, c.Ctrl2)
	buf = append(buf, byte(c.Source>>8), byte(c.Source))
	buf = append(buf, byte(c.Destination>>8), byte(c.Destination))
	buf = append(buf, byte(len(npdu)))
	buf = append(buf, npdu...)

	return buf, nil
}

func (c Cemi) encodeNPDU() ([]byte, error) {
	npdu0 := byte(c.TPCI) << 6

	switch c.TPCI {
	case TpciNDP, TpciNCD:
		npdu0 |= (c.Seq & 0x0f) << 2
	case TpciUCD:
		npdu0 |= c.UCDControl & 0x03

		return []byte{npdu0}, nil
	case TpciUDP:
		// no seq, no control bits
	}

	if c.TPCI == TpciNCD {
		npdu0 |= c.NCDControl & 0x03

		return []byte{npdu0}, nil
	}

	if !c.HasApci {
		return []byte{npdu0}, nil
	}

	apci := uint16(c.Apci)
	npdu0 |= byte((apci >> 8) & 0x03)

	if c.Apci.IsShort() {
		if len(c.Data) > 1 {
			return nil, fmt.Errorf("knx: short APCI %v can only carry one inline data byte, got %d", c.Apci, len(c.Data))
		}

		var inline byte
		if len(c.Data) == 1 {
			if c.Data[0] > 0x3f {
				return nil, fmt.Errorf("knx: short APCI %v inline data 0x%x overflows 6 bits", c.Apci, c.Data[0])
			}

			inline = c.Data[0]
		}

		npdu1 := byte(apci&0xc0) | inline

		return []byte{npdu0, npdu1}, nil
	}

	npdu1 := byte(apci & 0xff)
	out := []byte{npdu0, npdu1}
	out = append(out, c.Data...)

	return out, nil
}

// DecodeCemi parses a cEMI frame from buf.
func DecodeCemi(buf []byte) (Cemi, error) {
	if len(buf) < 2 {
		return Cemi{}, newCodecError(ErrTruncated, "cEMI header", buf)
	}

	msgCode := CemiMsgCode(buf[0])
	if msgCode == LBusmonInd {
		return Cemi{}, newCodecError(ErrUnsupported, "L_Busmon.ind decoding is unimplemented in v1", buf)
	}

	addInfoLen := int(buf[1])
	if len(buf) < 2+addInfoLen {
		return Cemi{}, newCodecError(ErrTruncated, "cEMI additional info", buf)
	}

	addInfo := append([]byte{}, buf[2:2+addInfoLen]...)
	rest := buf[2+addInfoLen:]

	if len(rest) < 7 {
		return Cemi{}, newCodecError(ErrTruncated, "cEMI fixed fields", buf)
	}

	c := Cemi{MsgCode: msgCode, AddInfo: addInfo}
	c.Ctrl1 = rest[0]
	c.Ctrl2 = rest[1]
	c.Source = Address(uint16(rest[2])<<8 | uint16(rest[3]))
	c.Destination = uint16(rest[4])<<8 | uint16(rest[5])
	c.IsGroupDestination = c.Ctrl2&groupDestinationBit != 0

	npduLen := int(rest[6])
	npdu := rest[7:]

	if len(npdu) < npduLen {
		return Cemi{}, newCodecError(ErrTruncated, "cEMI NPDU", buf)
	}

	npdu = npdu[:npduLen]

	if err := c.decodeNPDU(npdu); err != nil {
		return Cemi{}, err
	}

	return c, nil
}

func (c *Cemi) decodeNPDU(npdu []byte) error {
	if len(npdu) < 1 {
		return newCodecError(ErrTruncated, "empty NPDU", npdu)
	}

	c.TPCI = TpciClass(npdu[0] >> 6)

	switch c.TPCI {
	case TpciNDP, TpciNCD:
		c.Seq = (npdu[0] >> 2) & 0x0f
	}

	switch c.TPCI {
	case TpciUCD:
		c.UCDControl = npdu[0] & 0x03

		return nil
	case TpciNCD:
		c.NCDControl = npdu[0] & 0x03

		return nil
	case TpciUDP, TpciNDP:
		// fall through to APCI decoding below
	default:
		return newCodecError(ErrMalformed, fmt.Sprintf("impossible TPCI class %d", c.TPCI), npdu)
	}

	if len(npdu) < 2 {
		return newCodecError(ErrTruncated, "NPDU missing APCI byte", npdu)
	}

	top2 := uint16(npdu[0]&0x03) << 8
	combined := Apci(top2 | uint16(npdu[1]))

	prefix := Apci(uint16(combined) &^ 0x3f)
	if shortApciPrefixes[prefix] {
		c.HasApci = true
		c.Apci = prefix
		c.Data = []byte{npdu[1] & 0x3f}

		return nil
	}

	c.HasApci = true
	c.Apci = combined
	c.Data = append([]byte{}, npdu[2:]...)

	return nil
}

// NewLDataReq builds an L_Data.req cEMI frame with the default control
// fields (spec.md §6), addressed to an individual destination.
func NewLDataReq(source, destination Address, tpci TpciClass, seq uint8) Cemi {
	return Cemi{
		MsgCode:     LDataReq,
		Ctrl1:       DefaultCtrl1,
		Ctrl2:       DefaultHopCount,
		Source:      source,
		Destination: uint16(destination),
		TPCI:        tpci,
		Seq:         seq,
	}
}
