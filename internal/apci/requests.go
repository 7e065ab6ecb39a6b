package apci

/*------------------------------------------------------------------
 *
 * Purpose:	One builder function per application-layer request kind
 *		used by the bus scan (spec.md §4.5), each producing the
 *		NDP-carrying cEMI L_Data.req the TPCI sublayer sends.
 *
 *------------------------------------------------------------------*/

import "github.com/doismellburning/knxscan/internal/knx"

// request wraps cemi with Ctrl1/Ctrl2 defaults and TPCI=NDP; only
// APCI/Data vary between the builders below. The TPCI sublayer fills in Source,
// Destination and Seq before sending.
func request(apci knx.Apci, data []byte) knx.Cemi {
	return knx.Cemi{
		MsgCode: knx.LDataReq,
		Ctrl1:   knx.DefaultCtrl1,
		Ctrl2:   knx.DefaultHopCount,
		TPCI:    knx.TpciNDP,
		HasApci: true,
		Apci:    apci,
		Data:    data,
	}
}

// DeviceDescriptorRead builds A_DeviceDescriptor_Read(descriptor_type=0),
// the first request issued against every bus target.
func DeviceDescriptorRead() knx.Cemi {
	return request(knx.ADeviceDescriptorRead, []byte{0x00})
}

// PropertyValueRead builds A_PropertyValue_Read for one element of
// property id on interface object objectIndex.
func PropertyValueRead(objectIndex uint8, property knx.ApciPID) knx.Cemi {
	const elementCount = 1

	const startIndex = 1

	data := []byte{
		objectIndex,
		byte(property),
		(elementCount << 4) | byte(startIndex>>8),
		byte(startIndex),
	}

	return request(knx.APropertyValueRead, data)
}

// MemoryRead builds A_Memory_Read for length bytes starting at address,
// used on the System 1/2 (BCU1/2) path that has no interface objects.
func MemoryRead(address uint16, length uint8) knx.Cemi {
	data := []byte{length & 0x3f, byte(address >> 8), byte(address)}

	return request(knx.AMemoryRead, data)
}

// AuthorizeRequest builds A_Authorize_Request carrying a 4-byte key.
func AuthorizeRequest(key [4]byte) knx.Cemi {
	data := append([]byte{0x00}, key[:]...)

	return request(knx.AAuthorizeRequest, data)
}
