package transport

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// ControlRequest is the setup packet of a control transfer. Index is
// filled in by the device with its interface number.
type ControlRequest struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
}

// Still-image class requests.
const (
	RequestCancel               uint8 = 0x64
	RequestGetExtendedEventData uint8 = 0x65
	RequestDeviceReset          uint8 = 0x66
	RequestGetDeviceStatus      uint8 = 0x67
)

// bmRequestType values for class requests addressed to the interface.
const (
	RequestTypeClassOut uint8 = 0x21
	RequestTypeClassIn  uint8 = 0xA1
)

// DefaultControlTimeout bounds class requests.
const DefaultControlTimeout = 2 * time.Second

// CancelRequest builds the Cancel request for transaction tid.
func CancelRequest(tid uint32) (ControlRequest, []byte) {
	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:2], uint16(ptp.EventCancelTransaction))
	binary.LittleEndian.PutUint32(data[2:6], tid)
	return ControlRequest{RequestType: RequestTypeClassOut, Request: RequestCancel}, data
}

// ParseCancelRequest extracts the transaction id from a Cancel payload.
func ParseCancelRequest(data []byte) (uint32, error) {
	if len(data) < 6 || binary.LittleEndian.Uint16(data[0:2]) != uint16(ptp.EventCancelTransaction) {
		return 0, fmt.Errorf("%w: cancel payload % X", ErrUnexpectedContainer, data)
	}
	return binary.LittleEndian.Uint32(data[2:6]), nil
}

// Cancel asks the device to abort transaction tid.
func Cancel(dev Device, tid uint32) error {
	req, data := CancelRequest(tid)
	if _, err := dev.Control(req, data, DefaultControlTimeout); err != nil {
		return fmt.Errorf("cancel transaction %d: %w", tid, err)
	}
	return nil
}

// DeviceStatus is the reply to Get Device Status.
type DeviceStatus struct {
	Code   ptp.ResponseCode
	Params []uint32
}

// GetDeviceStatus queries the device status. Devices report DeviceBusy
// while they are still unwinding a cancelled transaction.
func GetDeviceStatus(dev Device) (DeviceStatus, error) {
	buf := make([]byte, 32)
	req := ControlRequest{RequestType: RequestTypeClassIn, Request: RequestGetDeviceStatus}
	n, err := dev.Control(req, buf, DefaultControlTimeout)
	if err != nil {
		return DeviceStatus{}, fmt.Errorf("get device status: %w", err)
	}
	return ParseDeviceStatus(buf[:n])
}

// ParseDeviceStatus decodes a Get Device Status payload:
// wLength u16, code u16, then u32 params.
func ParseDeviceStatus(data []byte) (DeviceStatus, error) {
	if len(data) < 4 {
		return DeviceStatus{}, fmt.Errorf("%w: device status %d bytes", ErrContainerTruncated, len(data))
	}
	length := int(binary.LittleEndian.Uint16(data[0:2]))
	if length > len(data) || length < 4 {
		length = len(data)
	}
	st := DeviceStatus{Code: ptp.ResponseCode(binary.LittleEndian.Uint16(data[2:4]))}
	for off := 4; off+4 <= length; off += 4 {
		st.Params = append(st.Params, binary.LittleEndian.Uint32(data[off:]))
	}
	return st, nil
}

// EncodeDeviceStatus is the inverse of ParseDeviceStatus.
func EncodeDeviceStatus(st DeviceStatus) []byte {
	data := make([]byte, 4+4*len(st.Params))
	binary.LittleEndian.PutUint16(data[0:2], uint16(len(data)))
	binary.LittleEndian.PutUint16(data[2:4], uint16(st.Code))
	for i, p := range st.Params {
		binary.LittleEndian.PutUint32(data[4+4*i:], p)
	}
	return data
}

// Reset issues Device Reset, returning the device to its idle state.
func Reset(dev Device) error {
	req := ControlRequest{RequestType: RequestTypeClassOut, Request: RequestDeviceReset}
	if _, err := dev.Control(req, nil, DefaultControlTimeout); err != nil {
		return fmt.Errorf("device reset: %w", err)
	}
	return nil
}
