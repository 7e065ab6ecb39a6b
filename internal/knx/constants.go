package knx

/*------------------------------------------------------------------
 *
 * Purpose:	Static constant tables for the KNXnet/IP and cEMI wire
 *		formats: service type codes, status codes, cEMI message
 *		codes, TPCI classes, the APCI opcode table, device
 *		descriptor names and KNX medium names.
 *
 * Description:	The source keeps forward (name->code) and reverse
 *		(code->name) dictionaries as separate twin containers.
 *		Here each table is a single map keyed by the typed
 *		numeric constant; the name is derived from that one
 *		map through the String accessors below, so there is
 *		exactly one source of truth per table. Lookup runs
 *		code->name only; there is no name->code accessor.
 *
 *------------------------------------------------------------------*/

import "fmt"

// ServiceType is the 16-bit KNXnet/IP header service type field.
type ServiceType uint16

// The constants below carry a ServiceType prefix because the service
// bodies they identify (frame.go) are Go structs named after the same
// KNXnet/IP service, e.g. ServiceTypeSearchRequest frames a SearchRequest.
const (
	ServiceTypeSearchRequest              ServiceType = 0x0201
	ServiceTypeSearchResponse             ServiceType = 0x0202
	ServiceTypeDescriptionRequest         ServiceType = 0x0203
	ServiceTypeDescriptionResponse        ServiceType = 0x0204
	ServiceTypeConnectRequest             ServiceType = 0x0205
	ServiceTypeConnectResponse            ServiceType = 0x0206
	ServiceTypeConnectionstateRequest     ServiceType = 0x0207
	ServiceTypeConnectionstateResponse    ServiceType = 0x0208
	ServiceTypeDisconnectRequest          ServiceType = 0x0209
	ServiceTypeDisconnectResponse         ServiceType = 0x020a
	ServiceTypeDeviceConfigurationRequest ServiceType = 0x0310
	ServiceTypeDeviceConfigurationAck     ServiceType = 0x0311
	ServiceTypeTunnellingRequest          ServiceType = 0x0420
	ServiceTypeTunnellingAck              ServiceType = 0x0421
	ServiceTypeRoutingIndication          ServiceType = 0x0530
	ServiceTypeRoutingLostMessage         ServiceType = 0x0531
	ServiceTypeRoutingBusy                ServiceType = 0x0532
)

var serviceTypeNames = map[ServiceType]string{
	ServiceTypeSearchRequest:              "SEARCH_REQUEST",
	ServiceTypeSearchResponse:             "SEARCH_RESPONSE",
	ServiceTypeDescriptionRequest:         "DESCRIPTION_REQUEST",
	ServiceTypeDescriptionResponse:        "DESCRIPTION_RESPONSE",
	ServiceTypeConnectRequest:             "CONNECT_REQUEST",
	ServiceTypeConnectResponse:            "CONNECT_RESPONSE",
	ServiceTypeConnectionstateRequest:     "CONNECTIONSTATE_REQUEST",
	ServiceTypeConnectionstateResponse:    "CONNECTIONSTATE_RESPONSE",
	ServiceTypeDisconnectRequest:          "DISCONNECT_REQUEST",
	ServiceTypeDisconnectResponse:         "DISCONNECT_RESPONSE",
	ServiceTypeDeviceConfigurationRequest: "DEVICE_CONFIGURATION_REQUEST",
	ServiceTypeDeviceConfigurationAck:     "DEVICE_CONFIGURATION_ACK",
	ServiceTypeTunnellingRequest:          "TUNNELLING_REQUEST",
	ServiceTypeTunnellingAck:              "TUNNELLING_ACK",
	ServiceTypeRoutingIndication:          "ROUTING_INDICATION",
	ServiceTypeRoutingLostMessage:         "ROUTING_LOST_MESSAGE",
	ServiceTypeRoutingBusy:                "ROUTING_BUSY",
}

func (s ServiceType) String() string {
	if name, ok := serviceTypeNames[s]; ok {
		return name
	}

	return fmt.Sprintf("SERVICE_0x%04x", uint16(s))
}

// Known reports whether s is one of the service types this scanner
// understands on the wire.
func (s ServiceType) Known() bool {
	_, ok := serviceTypeNames[s]

	return ok
}

// Status is a KNXnet/IP error/status byte carried in *_RESPONSE frames.
type Status uint8

const (
	EnoError               Status = 0x00
	EhostProtocolType      Status = 0x01
	EversionNotSupported   Status = 0x02
	EsequenceNumber        Status = 0x04
	EconnectionID          Status = 0x21
	EconnectionType        Status = 0x22
	EconnectionOption      Status = 0x23
	EnoMoreConnections     Status = 0x24
	EdataConnection        Status = 0x26
	EknxConnection         Status = 0x27
	EtunnellingLayer       Status = 0x29
)

var statusNames = map[Status]string{
	EnoError:             "E_NO_ERROR",
	EhostProtocolType:    "E_HOST_PROTOCOL_TYPE",
	EversionNotSupported: "E_VERSION_NOT_SUPPORTED",
	EsequenceNumber:      "E_SEQUENCE_NUMBER",
	EconnectionID:        "E_CONNECTION_ID",
	EconnectionType:      "E_CONNECTION_TYPE",
	EconnectionOption:    "E_CONNECTION_OPTION",
	EnoMoreConnections:   "E_NO_MORE_CONNECTIONS",
	EdataConnection:      "E_DATA_CONNECTION",
	EknxConnection:       "E_KNX_CONNECTION",
	EtunnellingLayer:     "E_TUNNELLING_LAYER",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return fmt.Sprintf("E_UNKNOWN_0x%02x", uint8(s))
}

func (s Status) OK() bool {
	return s == EnoError
}

// CemiMsgCode selects the cEMI frame variant (the first octet of the body).
type CemiMsgCode uint8

const (
	LRawReq        CemiMsgCode = 0x10
	LDataReq       CemiMsgCode = 0x11
	LPollDataReq   CemiMsgCode = 0x13
	LPollDataCon   CemiMsgCode = 0x25
	LDataCon       CemiMsgCode = 0x2e
	LDataInd       CemiMsgCode = 0x29
	LBusmonInd     CemiMsgCode = 0x2b
	LRawInd        CemiMsgCode = 0x2d
	LRawCon        CemiMsgCode = 0x2f
	MPropReadCon   CemiMsgCode = 0xfb
	MPropReadReq   CemiMsgCode = 0xfc
)

var cemiMsgCodeNames = map[CemiMsgCode]string{
	LRawReq:      "L_Raw.req",
	LDataReq:     "L_Data.req",
	LPollDataReq: "L_Poll_Data.req",
	LPollDataCon: "L_Poll_Data.con",
	LDataCon:     "L_Data.con",
	LDataInd:     "L_Data.ind",
	LBusmonInd:   "L_Busmon.ind",
	LRawInd:      "L_Raw.ind",
	LRawCon:      "L_Raw.con",
	MPropReadCon: "M_PropRead.con",
	MPropReadReq: "M_PropRead.req",
}

func (c CemiMsgCode) String() string {
	if name, ok := cemiMsgCodeNames[c]; ok {
		return name
	}

	return fmt.Sprintf("CEMI_0x%02x", uint8(c))
}

// TpciClass is the 2-bit transport layer packet class.
type TpciClass uint8

const (
	TpciUDP TpciClass = 0x00 // Unnumbered Data Packet
	TpciNDP TpciClass = 0x01 // Numbered Data Packet
	TpciUCD TpciClass = 0x02 // Unnumbered Control Data
	TpciNCD TpciClass = 0x03 // Numbered Control Data
)

var tpciClassNames = map[TpciClass]string{
	TpciUDP: "UDP",
	TpciNDP: "NDP",
	TpciUCD: "UCD",
	TpciNCD: "NCD",
}

func (t TpciClass) String() string {
	if name, ok := tpciClassNames[t]; ok {
		return name
	}

	return fmt.Sprintf("TPCI_0x%x", uint8(t))
}

// UCD control-bit values, carried in the low 2 bits of NPDU[0] for UCD frames.
const (
	UCDConnect    uint8 = 0x00
	UCDDisconnect uint8 = 0x01
)

// NCD control-bit values.
const (
	NCDAck  uint8 = 0x02
	NCDNack uint8 = 0x03
)

// Apci identifies an application-layer service. The value is the full
// 10-bit opcode; "short" APCIs (those that fit the 4-bit prefix table)
// are the low members of this space and carry 6 bits of inline data
// instead of a trailing data field.
type Apci uint16

// The GroupValue trio below is deliberately encoded using the real KNX
// "4-bit prefix" short APCI convention (values that are multiples of
// 0x40, i.e. zero in their low 6 bits) rather than the small sequential
// indices a constant table might suggest, because the wire codec in
// cemi.go packs these three into the top 4 bits of the APCI field and
// reuses the low 6 bits of NPDU[1] for an inline data value (spec.md
// §4.1, §6). See shortApciPrefixes below.
const (
	AGroupValueRead                     Apci = 0x000
	AGroupValueResponse                 Apci = 0x040
	AGroupValueWrite                    Apci = 0x080
	AADCRead                            Apci = 0x180
	AIndividualAddressWrite              Apci = 0x0c0
	AIndividualAddressRead               Apci = 0x100
	AIndividualAddressResponse           Apci = 0x140
	AADCResponse                        Apci = 0x1c0
	ASystemNetworkParameterRead          Apci = 0x1c4
	ASystemNetworkParameterResponse      Apci = 0x1c9
	ASystemNetworkParameterWrite         Apci = 0x1ca
	AMemoryRead                         Apci = 0x200
	AMemoryResponse                     Apci = 0x240
	AMemoryWrite                        Apci = 0x280
	AUserMemoryRead                     Apci = 0x2c0
	AUserMemoryResponse                 Apci = 0x2c1
	AUserMemoryWrite                    Apci = 0x2c2
	AUserManufacturerInfoRead            Apci = 0x2c5
	AUserManufacturerInfoResponse        Apci = 0x2c6
	AFunctionPropertyCommand             Apci = 0x2c7
	AFunctionPropertyStateRead           Apci = 0x2c8
	AFunctionPropertyStateResponse       Apci = 0x2c9
	ADeviceDescriptorRead                Apci = 0x300
	ADeviceDescriptorResponse            Apci = 0x340
	ARestart                            Apci = 0x380
	AAuthorizeRequest                   Apci = 0x3d1
	AAuthorizeResponse                  Apci = 0x3d2
	AKeyWrite                           Apci = 0x3d3
	AKeyResponse                        Apci = 0x3d4
	APropertyValueRead                   Apci = 0x3d5
	APropertyValueResponse               Apci = 0x3d6
	APropertyValueWrite                  Apci = 0x3d7
	APropertyDescriptionRead             Apci = 0x3d8
	APropertyDescriptionResponse         Apci = 0x3d9
	ANetworkParameterRead                Apci = 0x3da
	ANetworkParameterResponse            Apci = 0x3db
	AIndividualAddressSerialNumberRead   Apci = 0x3dc
	AIndividualAddressSerialNumberResponse Apci = 0x3dd
	AIndividualAddressSerialNumberWrite  Apci = 0x3df
	ADomainAddressWrite                  Apci = 0x3e0
	ADomainAddressRead                   Apci = 0x3e1
	ADomainAddressResponse               Apci = 0x3e2
	ADomainAddressSelectiveRead          Apci = 0x3e3
	ANetworkParameterWrite               Apci = 0x3e4
	ALinkRead                           Apci = 0x3e5
	ALinkResponse                       Apci = 0x3e6
	ALinkWrite                          Apci = 0x3e7
	AGroupPropValueRead                  Apci = 0x3e8
	AGroupPropValueResponse              Apci = 0x3e9
	AGroupPropValueWrite                 Apci = 0x3ea
	AGroupPropValueInfoReport            Apci = 0x3eb
	ADomainAddressSerialNumberRead       Apci = 0x3ec
	ADomainAddressSerialNumberResponse   Apci = 0x3ed
	ADomainAddressSerialNumberWrite      Apci = 0x3ee
	AFileStreamInfoReport                Apci = 0x3f0
)

var apciNames = map[Apci]string{
	AGroupValueRead:                        "A_GroupValue_Read",
	AGroupValueResponse:                    "A_GroupValue_Response",
	AGroupValueWrite:                       "A_GroupValue_Write",
	AADCRead:                                "A_ADC_Read",
	AIndividualAddressWrite:                 "A_IndividualAddress_Write",
	AIndividualAddressRead:                  "A_IndividualAddress_Read",
	AIndividualAddressResponse:              "A_IndividualAddress_Response",
	AADCResponse:                            "A_ADC_Response",
	ASystemNetworkParameterRead:             "A_SystemNetworkParameter_Read",
	ASystemNetworkParameterResponse:         "A_SystemNetworkParameter_Response",
	ASystemNetworkParameterWrite:            "A_SystemNetworkParameter_Write",
	AMemoryRead:                             "A_Memory_Read",
	AMemoryResponse:                         "A_Memory_Response",
	AMemoryWrite:                            "A_Memory_Write",
	AUserMemoryRead:                         "A_UserMemory_Read",
	AUserMemoryResponse:                     "A_UserMemory_Response",
	AUserMemoryWrite:                        "A_UserMemory_Write",
	AUserManufacturerInfoRead:               "A_UserManufacturerInfo_Read",
	AUserManufacturerInfoResponse:           "A_UserManufacturerInfo_Response",
	AFunctionPropertyCommand:                "A_FunctionPropertyCommand",
	AFunctionPropertyStateRead:              "A_FunctionPropertyState_Read",
	AFunctionPropertyStateResponse:          "A_FunctionPropertyState_Response",
	ADeviceDescriptorRead:                   "A_DeviceDescriptor_Read",
	ADeviceDescriptorResponse:               "A_DeviceDescriptor_Response",
	ARestart:                                "A_Restart",
	AAuthorizeRequest:                       "A_Authorize_Request",
	AAuthorizeResponse:                      "A_Authorize_Response",
	AKeyWrite:                               "A_Key_Write",
	AKeyResponse:                            "A_Key_Response",
	APropertyValueRead:                      "A_PropertyValue_Read",
	APropertyValueResponse:                  "A_PropertyValue_Response",
	APropertyValueWrite:                     "A_PropertyValue_Write",
	APropertyDescriptionRead:                "A_PropertyDescription_Read",
	APropertyDescriptionResponse:            "A_PropertyDescription_Response",
	ANetworkParameterRead:                   "A_NetworkParameter_Read",
	ANetworkParameterResponse:               "A_NetworkParameter_Response",
	AIndividualAddressSerialNumberRead:      "A_IndividualAddressSerialNumber_Read",
	AIndividualAddressSerialNumberResponse:  "A_IndividualAddressSerialNumber_Response",
	AIndividualAddressSerialNumberWrite:     "A_IndividualAddressSerialNumber_Write",
	ADomainAddressWrite:                     "A_DomainAddress_Write",
	ADomainAddressRead:                      "A_DomainAddress_Read",
	ADomainAddressResponse:                  "A_DomainAddress_Response",
	ADomainAddressSelectiveRead:             "A_DomainAddressSelective_Read",
	ANetworkParameterWrite:                  "A_NetworkParameter_Write",
	ALinkRead:                               "A_Link_Read",
	ALinkResponse:                           "A_Link_Response",
	ALinkWrite:                              "A_Link_Write",
	AGroupPropValueRead:                     "A_GroupPropValue_Read",
	AGroupPropValueResponse:                 "A_GroupPropValue_Response",
	AGroupPropValueWrite:                    "A_GroupPropValue_Write",
	AGroupPropValueInfoReport:               "A_GroupPropValue_InfoReport",
	ADomainAddressSerialNumberRead:          "A_DomainAddressSerialNumber_Read",
	ADomainAddressSerialNumberResponse:      "A_DomainAddressSerialNumber_Response",
	ADomainAddressSerialNumberWrite:         "A_DomainAddressSerialNumber_Write",
	AFileStreamInfoReport:                   "A_FileStream_InfoReport",
}

func (a Apci) String() string {
	if name, ok := apciNames[a]; ok {
		return name
	}

	return fmt.Sprintf("A_UNKNOWN_0x%03x", uint16(a))
}

// Known reports whether a is in the opcode table this scanner recognizes.
func (a Apci) Known() bool {
	_, ok := apciNames[a]

	return ok
}

// shortApciPrefixes is the set of APCI opcodes whose wire encoding uses
// only the top 4 bits of the 10-bit field (i.e. the value itself is a
// multiple of 0x40), leaving the low 6 bits of NPDU[1] free to carry an
// inline data value instead of a trailing data octet string. Per
// spec.md §4.1, this only applies to A_GroupValue_Read/Response/Write
// for single-bit/small values; every other opcode in this table is
// encoded "long" (explicit trailing data) even if the real KNX standard
// also shortens a few others, since the bus scan never issues them.
var shortApciPrefixes = map[Apci]bool{
	AGroupValueRead:     true,
	AGroupValueResponse: true,
	AGroupValueWrite:    true,
}

// IsShort reports whether a uses the 4-bit short APCI encoding with 6
// bits of data packed into NPDU[1] rather than a separate data field.
func (a Apci) IsShort() bool {
	return shortApciPrefixes[a]
}

// responseFor maps a *_Read request opcode to the *_Response opcode the
// scanner expects back, per the fixed request/response pairing table in
// the application-layer response matcher.
var responseFor = map[Apci]Apci{
	ADeviceDescriptorRead: ADeviceDescriptorResponse,
	APropertyValueRead:    APropertyValueResponse,
	AMemoryRead:           AMemoryResponse,
	AAuthorizeRequest:     AAuthorizeResponse,
	AGroupValueRead:       AGroupValueResponse,
	AIndividualAddressRead: AIndividualAddressResponse,
}

// ExpectedResponse returns the response APCI paired with request APCI a,
// and whether a pairing is defined.
func (a Apci) ExpectedResponse() (Apci, bool) {
	r, ok := responseFor[a]

	return r, ok
}

// KnxMedium is the DIB_DEVICE_INFO medium code.
type KnxMedium uint8

const (
	MediumReserved1 KnxMedium = 0x01
	MediumTP        KnxMedium = 0x02
	MediumPL110     KnxMedium = 0x04
	MediumReserved2 KnxMedium = 0x08
	MediumRF        KnxMedium = 0x10
	MediumIP        KnxMedium = 0x20
)

var knxMediumNames = map[KnxMedium]string{
	MediumReserved1: "reserved",
	MediumTP:        "KNX TP",
	MediumPL110:     "KNX PL110",
	MediumReserved2: "reserved",
	MediumRF:        "KNX RF",
	MediumIP:        "KNX IP",
}

func (m KnxMedium) String() string {
	if name, ok := knxMediumNames[m]; ok {
		return name
	}

	return fmt.Sprintf("MEDIUM_0x%02x", uint8(m))
}

// DeviceDescriptor is the 16-bit value read by A_DeviceDescriptor_Read,
// naming the device's mask/system type. The name is looked up by the
// value shifted right by 4, i.e. its top 12 bits (0x0012 -> 0x01); the
// low nibble distinguishes sub-variants the name table doesn't break out.
type DeviceDescriptor uint16

var deviceDescriptorNames = map[uint16]string{
	0x01: "System 1 (BCU1)",
	0x02: "System 2 (BCU2)",
	0x70: "System 7 (BIM M 112)",
	0x7b: "System B",
	0x30: "LTE",
	0x91: "TP1 Line/area coupler - Repeater",
	0x90: "Media coupler TP1-PL110",
}

func (d DeviceDescriptor) String() string {
	if name, ok := deviceDescriptorNames[uint16(d)>>4]; ok {
		return name
	}

	return fmt.Sprintf("Unknown (0x%04x)", uint16(d))
}

// MaskBCU1Boundary is the largest device descriptor value that indicates
// a System 1/2 device without interface objects, per A_DeviceDescriptor
// semantics used by the bus-scan APCI sequencing (spec.md §4.5).
const MaskBCU1Boundary DeviceDescriptor = 0x0013

// ApciPID is a device/interface object property identifier (PID_*).
type ApciPID uint8

// Device object property IDs used by the bus scan (DEVICE_OBJECTS table).
const (
	PIDManufacturerID ApciPID = 0x0c
	PIDSerialNumber   ApciPID = 0x0b
)

// Memory addresses used by the low-descriptor (System 1/2) bus-scan path.
const (
	MemAddrManufacturerID     uint16 = 0x0104
	MemAddrApplicationProgram uint16 = 0x0104
)
