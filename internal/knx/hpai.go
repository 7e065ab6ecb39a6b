package knx

/*------------------------------------------------------------------
 *
 * Purpose:	Encode and decode the Host Protocol Address Info (HPAI)
 *		structure that appears in CONNECT, CONNECTIONSTATE,
 *		DISCONNECT, SEARCH and DESCRIPTION frames.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
	"net"
)

// ProtocolID is the HPAI protocol octet.
type ProtocolID uint8

const (
	ProtocolUDP ProtocolID = 0x01
	ProtocolTCP ProtocolID = 0x02
)

// HPAILength is the fixed on-wire length of an HPAI structure.
const HPAILength = 8

// HPAI is an 8-octet {length=8, protocol, ipv4, port} address descriptor.
type HPAI struct {
	Protocol ProtocolID
	IP       net.IP // 4-byte IPv4
	Port     uint16
}

// Encode serializes h to its 8-octet wire form.
func (h HPAI) Encode() ([]byte, error) {
	ip4 := h.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("knx: HPAI requires an IPv4 address, got %v", h.IP)
	}

	buf := make([]byte, HPAILength)
	buf[0] = HPAILength
	buf[1] = byte(h.Protocol)
	copy(buf[2:6], ip4)
	buf[6] = byte(h.Port >> 8)
	buf[7] = byte(h.Port)

	return buf, nil
}

// DecodeHPAI reads an 8-octet HPAI from the front of buf, returning the
// parsed structure and the number of bytes consumed.
func DecodeHPAI(buf []byte) (HPAI, int, error) {
	if len(buf) < HPAILength {
		return HPAI{}, 0, fmt.Errorf("%w: HPAI needs %d bytes, got %d", ErrTruncated, HPAILength, len(buf))
	}

	length := buf[0]
	if length != HPAILength {
		return HPAI{}, 0, fmt.Errorf("%w: HPAI length byte %d != %d", ErrMalformed, length, HPAILength)
	}

	h := HPAI{
		Protocol: ProtocolID(buf[1]),
		IP:       net.IPv4(buf[2], buf[3], buf[4], buf[5]),
		Port:     uint16(buf[6])<<8 | uint16(buf[7]),
	}

	return h, HPAILength, nil
}
