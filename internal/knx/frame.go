package knx

/*------------------------------------------------------------------
 *
 * Purpose:	Encode and decode the KNXnet/IP frame header and the
 *		service bodies used by gateway discovery and tunnel
 *		management: SEARCH, DESCRIPTION, CONNECT, CONNECTIONSTATE,
 *		DISCONNECT, and the TUNNELLING envelope.
 *
 * Description:	All frames are big-endian. The codec rejects wrong
 *		version, header_size != 6, total_length disagreeing with
 *		the body, and short/truncated buffers. On encode,
 *		total_length is always computed from the serialized body;
 *		callers never set it directly.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"
)

const (
	ProtocolVersion10 uint8 = 0x10
	HeaderSize10      uint8 = 0x06
	DefaultPort              = 3671
	MulticastAddr            = "224.0.23.12"
)

// EncodeFrame wraps body in a KNXnet/IP header for the given service
// type. total_length is computed here; the caller never supplies it.
func EncodeFrame(service ServiceType, body []byte) []byte {
	total := int(HeaderSize10) + len(body)

	buf := make([]byte, 0, total)
	buf = append(buf, ProtocolVersion10, HeaderSize10)
	buf = append(buf, byte(service>>8), byte(service))
	buf = append(buf, byte(total>>8), byte(total))
	buf = append(buf, body...)

	return buf
}

// DecodeFrame validates the header and returns the service type and the
// body slice (a view into buf, not copied).
func DecodeFrame(buf []byte) (ServiceType, []byte, error) {
	if len(buf) < int(HeaderSize10) {
		return 0, nil, newCodecError(ErrTruncated, "short header", buf)
	}

	version := buf[0]
	if version != ProtocolVersion10 {
		return 0, nil, newCodecError(ErrMalformed, fmt.Sprintf("version 0x%02x != 0x10", version), buf)
	}

	headerSize := buf[1]
	if headerSize != HeaderSize10 {
		return 0, nil, newCodecError(ErrMalformed, fmt.Sprintf("header_size %d != 6", headerSize), buf)
	}

	service := ServiceType(uint16(buf[2])<<8 | uint16(buf[3]))
	total := int(uint16(buf[4])<<8 | uint16(buf[5]))

	if total != len(buf) {
		return 0, nil, newCodecError(ErrMalformed, fmt.Sprintf("total_length %d != buffer %d", total, len(buf)), buf)
	}

	return service, buf[6:], nil
}

// ---- DIB_DEVICE_INFO / DIB_SUPP_SVC_FAMILIES ----

// DIBDeviceInfo is the DIB_DEVICE_INFO sub-block embedded in SEARCH and
// DESCRIPTION responses.
type DIBDeviceInfo struct {
	Medium           KnxMedium
	Status           uint8
	KnxAddress       Address
	ProjectInstallID uint16
	SerialNumber     [6]byte
	MulticastAddress [4]byte
	MAC              [6]byte
	FriendlyName     [30]byte
}

const dibDeviceInfoLength = 54

func (d DIBDeviceInfo) encode() []byte {
	buf := make([]byte, dibDeviceInfoLength)
	buf[0] = dibDeviceInfoLength
	buf[1] = 0x01 // DIB_DEVICE_INFO type code
	buf[2] = byte(d.Medium)
	buf[3] = d.Status
	buf[4] = byte(d.KnxAddress >> 8)
	buf[5] = byte(d.KnxAddress)
	buf[6] = byte(d.ProjectInstallID >> 8)
	buf[7] = byte(d.ProjectInstallID)
	copy(buf[8:14], d.SerialNumber[:])
	copy(buf[14:18], d.MulticastAddress[:])
	copy(buf[18:24], d.MAC[:])
	copy(buf[24:54], d.FriendlyName[:])

	return buf
}

func decodeDIBDeviceInfo(buf []byte) (DIBDeviceInfo, error) {
	if len(buf) < dibDeviceInfoLength {
		return DIBDeviceInfo{}, newCodecError(ErrTruncated, "DIB_DEVICE_INFO", buf)
	}

	length := buf[0]
	if int(length) != dibDeviceInfoLength {
		return DIBDeviceInfo{}, newCodecError(ErrMalformed, "DIB_DEVICE_INFO length", buf)
	}

	var d DIBDeviceInfo
	d.Medium = KnxMedium(buf[2])
	d.Status = buf[3]
	d.KnxAddress = Address(uint16(buf[4])<<8 | uint16(buf[5]))
	d.ProjectInstallID = uint16(buf[6])<<8 | uint16(buf[7])
	copy(d.SerialNumber[:], buf[8:14])
	copy(d.MulticastAddress[:], buf[14:18])
	copy(d.MAC[:], buf[18:24])
	copy(d.FriendlyName[:], buf[24:54])

	return d, nil
}

// SupportedServiceFamily is one (family, version) pair from
// DIB_SUPP_SVC_FAMILIES.
type SupportedServiceFamily struct {
	Family  uint8
	Version uint8
}

// DIBSuppSvcFamilies is the DIB_SUPP_SVC_FAMILIES sub-block.
type DIBSuppSvcFamilies struct {
	Families []SupportedServiceFamily
}

func (d DIBSuppSvcFamilies) encode() []byte {
	length := 2 + 2*len(d.Families)
	buf := make([]byte, 2, length)
	buf[0] = byte(length)
	buf[1] = 0x02 // DIB_SUPP_SVC_FAMILIES type code

	for _, f := range d.Families {
		buf = append(buf, f.Family, f.Version)
	}

	return buf
}

func decodeDIBSuppSvcFamilies(buf []byte) (DIBSuppSvcFamilies, int, error) {
	if len(buf) < 2 {
		return DIBSuppSvcFamilies{}, 0, newCodecError(ErrTruncated, "DIB_SUPP_SVC_FAMILIES", buf)
	}

	length := int(buf[0])
	if length < 2 || length > len(buf) || length%2 != 0 {
		return DIBSuppSvcFamilies{}, 0, newCodecError(ErrMalformed, "DIB_SUPP_SVC_FAMILIES length", buf)
	}

	var d DIBSuppSvcFamilies
	for i := 2; i < length; i += 2 {
		d.Families = append(d.Families, SupportedServiceFamily{Family: buf[i], Version: buf[i+1]})
	}

	return d, length, nil
}

// ---- SEARCH ----

// SearchRequest is the SEARCH_REQUEST body: a single HPAI naming the
// endpoint the caller wants SEARCH_RESPONSEs sent to.
type SearchRequest struct {
	Discovery HPAI
}

func (r SearchRequest) Encode() ([]byte, error) {
	return r.Discovery.Encode()
}

func DecodeSearchRequest(body []byte) (SearchRequest, error) {
	h, _, err := DecodeHPAI(body)
	if err != nil {
		return SearchRequest{}, err
	}

	return SearchRequest{Discovery: h}, nil
}

// SearchResponse is the SEARCH_RESPONSE body.
type SearchResponse struct {
	Control  HPAI
	Device   DIBDeviceInfo
	Families DIBSuppSvcFamilies
}

func DecodeSearchResponse(body []byte) (SearchResponse, error) {
	h, n, err := DecodeHPAI(body)
	if err != nil {
		return SearchResponse{}, err
	}

	rest := body[n:]

	dev, err := decodeDIBDeviceInfo(rest)
	if err != nil {
		return SearchResponse{}, err
	}

	rest = rest[dibDeviceInfoLength:]

	families, _, err := decodeDIBSuppSvcFamilies(rest)
	if err != nil {
		return SearchResponse{}, err
	}

	return SearchResponse{Control: h, Device: dev, Families: families}, nil
}

func (r SearchResponse) Encode() ([]byte, error) {
	h, err := r.Control.Encode()
	if err != nil {
		return nil, err
	}

	buf := append(h, r.Device.encode()...)
	buf = append(buf, r.Families.encode()...)

	return buf, nil
}

// ---- DESCRIPTION ----

// DescriptionRequest is the DESCRIPTION_REQUEST body (unicast probe).
type DescriptionRequest struct {
	Control HPAI
}

func (r DescriptionRequest) Encode() ([]byte, error) {
	return r.Control.Encode()
}

func DecodeDescriptionRequest(body []byte) (DescriptionRequest, error) {
	h, _, err := DecodeHPAI(body)
	if err != nil {
		return DescriptionRequest{}, err
	}

	return DescriptionRequest{Control: h}, nil
}

// DescriptionResponse is the DESCRIPTION_RESPONSE body.
type DescriptionResponse struct {
	Device   DIBDeviceInfo
	Families DIBSuppSvcFamilies
}

func DecodeDescriptionResponse(body []byte) (DescriptionResponse, error) {
	dev, err := decodeDIBDeviceInfo(body)
	if err != nil {
		return DescriptionResponse{}, err
	}

	rest := body[dibDeviceInfoLength:]

	families, _, err := decodeDIBSuppSvcFamilies(rest)
	if err != nil {
		return DescriptionResponse{}, err
	}

	return DescriptionResponse{Device: dev, Families: families}, nil
}

func (r DescriptionResponse) Encode() ([]byte, error) {
	buf := append([]byte{}, r.Device.encode()...)
	buf = append(buf, r.Families.encode()...)

	return buf, nil
}

// ---- CONNECT ----

// ConnectionRequestInformation (CRI) for a tunnel connection: tunnel
// connection type, TUNNEL_LINKLAYER layer, and two reserved bytes.
type CRI struct {
	ConnectionType uint8
	LayerByte      uint8
}

const (
	ConnectionTypeTunnel = 0x04
	TunnelLinkLayer      = 0x02
)

func DefaultTunnelCRI() CRI {
	return CRI{ConnectionType: ConnectionTypeTunnel, LayerByte: TunnelLinkLayer}
}

func (c CRI) encode() []byte {
	return []byte{4, c.ConnectionType, c.LayerByte, 0x00}
}

// ConnectRequest is the CONNECT_REQUEST body.
type ConnectRequest struct {
	Control HPAI
	Data    HPAI
	CRI     CRI
}

func (r ConnectRequest) Encode() ([]byte, error) {
	c, err := r.Control.Encode()
	if err != nil {
		return nil, err
	}

	d, err := r.Data.Encode()
	if err != nil {
		return nil, err
	}

	buf := append(c, d...)
	buf = append(buf, r.CRI.encode()...)

	return buf, nil
}

func DecodeConnectRequest(body []byte) (ConnectRequest, error) {
	c, n, err := DecodeHPAI(body)
	if err != nil {
		return ConnectRequest{}, err
	}

	d, m, err := DecodeHPAI(body[n:])
	if err != nil {
		return ConnectRequest{}, err
	}

	cri := body[n+m:]
	if len(cri) < 4 {
		return ConnectRequest{}, newCodecError(ErrTruncated, "CRI", body)
	}

	return ConnectRequest{Control: c, Data: d, CRI: CRI{ConnectionType: cri[1], LayerByte: cri[2]}}, nil
}

// ConnectResponse is the CONNECT_RESPONSE body.
type ConnectResponse struct {
	ChannelID uint8
	Status    Status
	Data      HPAI
	// Address is the individual address the gateway assigned this tunnel
	// connection, carried in the Connection Response Data Block (CRD).
	// Every client-built L_Data.req source and every response match
	// against "our" address (spec.md §3 Cemi invariant, §4.5) uses this.
	Address Address
}

func (r ConnectResponse) Encode() ([]byte, error) {
	if !r.Status.OK() {
		return []byte{r.ChannelID, byte(r.Status)}, nil // no HPAI/CRD on error, mirroring DecodeConnectResponse
	}

	d, err := r.Data.Encode()
	if err != nil {
		return nil, err
	}

	buf := []byte{r.ChannelID, byte(r.Status)}
	buf = append(buf, d...)
	buf = append(buf, 4, ConnectionTypeTunnel, byte(r.Address>>8), byte(r.Address))

	return buf, nil
}

func DecodeConnectResponse(body []byte) (ConnectResponse, error) {
	if len(body) < 2 {
		return ConnectResponse{}, newCodecError(ErrTruncated, "CONNECT_RESPONSE", body)
	}

	r := ConnectResponse{ChannelID: body[0], Status: Status(body[1])}

	if !r.Status.OK() {
		return r, nil // no HPAI/CRD present on error per KNX spec
	}

	d, n, err := DecodeHPAI(body[2:])
	if err != nil {
		return ConnectResponse{}, err
	}

	r.Data = d

	crd := body[2+n:]
	if len(crd) >= 4 {
		r.Address = Address(uint16(crd[2])<<8 | uint16(crd[3]))
	}

	return r, nil
}

// ---- CONNECTIONSTATE ----

type ConnectionstateRequest struct {
	ChannelID uint8
	Control   HPAI
}

func (r ConnectionstateRequest) Encode() ([]byte, error) {
	h, err := r.Control.Encode()
	if err != nil {
		return nil, err
	}

	return append([]byte{r.ChannelID, 0x00}, h...), nil
}

func DecodeConnectionstateRequest(body []byte) (ConnectionstateRequest, error) {
	if len(body) < 2 {
		return ConnectionstateRequest{}, newCodecError(ErrTruncated, "CONNECTIONSTATE_REQUEST", body)
	}

	h, _, err := DecodeHPAI(body[2:])
	if err != nil {
		return ConnectionstateRequest{}, err
	}

	return ConnectionstateRequest{ChannelID: body[0], Control: h}, nil
}

type ConnectionstateResponse struct {
	ChannelID uint8
	Status    Status
}

func (r ConnectionstateResponse) Encode() ([]byte, error) {
	return []byte{r.ChannelID, byte(r.Status)}, nil
}

func DecodeConnectionstateResponse(body []byte) (ConnectionstateResponse, error) {
	if len(body) < 2 {
		return ConnectionstateResponse{}, newCodecError(ErrTruncated, "CONNECTIONSTATE_RESPONSE", body)
	}

	return ConnectionstateResponse{ChannelID: body[0], Status: Status(body[1])}, nil
}

// ---- DISCONNECT ----

type DisconnectRequest struct {
	ChannelID uint8
	Control   HPAI
}

func (r DisconnectRequest) Encode() ([]byte, error) {
	h, err := r.Control.Encode()
	if err != nil {
		return nil, err
	}

	return append([]byte{r.ChannelID, 0x00}, h...), nil
}

func DecodeDisconnectRequest(body []byte) (DisconnectRequest, error) {
	if len(body) < 2 {
		return DisconnectRequest{}, newCodecError(ErrTruncated, "DISCONNECT_REQUEST", body)
	}

	h, _, err := DecodeHPAI(body[2:])
	if err != nil {
		return DisconnectRequest{}, err
	}

	return DisconnectRequest{ChannelID: body[0], Control: h}, nil
}

type DisconnectResponse struct {
	ChannelID uint8
	Status    Status
}

func (r DisconnectResponse) Encode() ([]byte, error) {
	return []byte{r.ChannelID, byte(r.Status)}, nil
}

func DecodeDisconnectResponse(body []byte) (DisconnectResponse, error) {
	if len(body) < 2 {
		return DisconnectResponse{}, newCodecError(ErrTruncated, "DISCONNECT_RESPONSE", body)
	}

	return DisconnectResponse{ChannelID: body[0], Status: Status(body[1])}, nil
}

// ---- TUNNELLING envelope ----

// TunnellingRequest wraps a cEMI frame with the channel id and sequence
// counter, per spec.md §6's "04 | channel_id | seq | 00 | <cEMI>" body.
type TunnellingRequest struct {
	ChannelID uint8
	Seq       uint8
	Cemi      []byte // already-encoded cEMI body
}

func (r TunnellingRequest) Encode() ([]byte, error) {
	buf := []byte{4, r.ChannelID, r.Seq, 0x00}

	return append(buf, r.Cemi...), nil
}

func DecodeTunnellingRequest(body []byte) (TunnellingRequest, error) {
	if len(body) < 4 {
		return TunnellingRequest{}, newCodecError(ErrTruncated, "TUNNELLING_REQUEST", body)
	}

	structLen := body[0]
	if structLen != 4 {
		return TunnellingRequest{}, newCodecError(ErrMalformed, "TUNNELLING_REQUEST connection header length", body)
	}

	return TunnellingRequest{ChannelID: body[1], Seq: body[2], Cemi: body[4:]}, nil
}

type TunnellingAck struct {
	ChannelID uint8
	Seq       uint8
	Status    Status
}

func (r TunnellingAck) Encode() ([]byte, error) {
	return []byte{4, r.ChannelID, r.Seq, byte(r.Status)}, nil
}

func DecodeTunnellingAck(body []byte) (TunnellingAck, error) {
	if len(body) < 4 {
		return TunnellingAck{}, newCodecError(ErrTruncated, "TUNNELLING_ACK", body)
	}

	return TunnellingAck{ChannelID: body[1], Seq: body[2], Status: Status(body[3])}, nil
}
