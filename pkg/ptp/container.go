package ptp

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ContainerType distinguishes the phases of a transaction.
type ContainerType uint16

const (
	// ContainerCommand carries an operation request.
	ContainerCommand ContainerType = 1
	// ContainerData carries a data phase payload.
	ContainerData ContainerType = 2
	// ContainerResponse carries the operation result.
	ContainerResponse ContainerType = 3
	// ContainerEvent carries an asynchronous event.
	ContainerEvent ContainerType = 4
)

// String returns the container type name.
func (t ContainerType) String() string {
	switch t {
	case ContainerCommand:
		return "COMMAND"
	case ContainerData:
		return "DATA"
	case ContainerResponse:
		return "RESPONSE"
	case ContainerEvent:
		return "EVENT"
	default:
		return "UNKNOWN"
	}
}

// Container layout constants.
const (
	// HeaderSize is the size of the generic container header.
	HeaderSize = 12

	// MaxParams is the maximum number of parameters in a command or response.
	MaxParams = 5

	// LengthUnknown is the length field value used by data phases larger
	// than what a u32 can describe.
	LengthUnknown uint32 = 0xFFFFFFFF
)

// Container errors.
var (
	ErrShortContainer = errors.New("container shorter than header")
	ErrTooManyParams  = errors.New("too many container parameters")
	ErrBadLength      = errors.New("container length does not match payload")
)

// Header is the generic container header.
type Header struct {
	Length        uint32
	Type          ContainerType
	Code          uint16
	TransactionID uint32
}

// PutHeader writes h into the first HeaderSize bytes of buf.
func PutHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Length)
	binary.LittleEndian.PutUint16(buf[4:6], uint16(h.Type))
	binary.LittleEndian.PutUint16(buf[6:8], h.Code)
	binary.LittleEndian.PutUint32(buf[8:12], h.TransactionID)
}

// ParseHeader decodes the header at the start of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, ErrShortContainer
	}
	return Header{
		Length:        binary.LittleEndian.Uint32(buf[0:4]),
		Type:          ContainerType(binary.LittleEndian.Uint16(buf[4:6])),
		Code:          binary.LittleEndian.Uint16(buf[6:8]),
		TransactionID: binary.LittleEndian.Uint32(buf[8:12]),
	}, nil
}

// DataHeader returns the header that opens a data phase of size bytes.
func DataHeader(code uint16, tid uint32, size uint64) Header {
	length := LengthUnknown
	if size+HeaderSize < uint64(LengthUnknown) {
		length = uint32(size + HeaderSize)
	}
	return Header{Length: length, Type: ContainerData, Code: code, TransactionID: tid}
}

// Container is a command, response or event container.
type Container struct {
	Type          ContainerType
	Code          uint16
	TransactionID uint32
	Params        []uint32
}

// Request builds a command container.
func Request(op OperationCode, tid uint32, params ...uint32) Container {
	return Container{Type: ContainerCommand, Code: uint16(op), TransactionID: tid, Params: params}
}

// Operation returns the code as an operation (command containers).
func (c Container) Operation() OperationCode {
	return OperationCode(c.Code)
}

// Response returns the code as a response code (response containers).
func (c Container) Response() ResponseCode {
	return ResponseCode(c.Code)
}

// Param returns parameter i, or 0 if absent.
func (c Container) Param(i int) uint32 {
	if i < 0 || i >= len(c.Params) {
		return 0
	}
	return c.Params[i]
}

// Encode serializes the container.
func (c Container) Encode() ([]byte, error) {
	if len(c.Params) > MaxParams {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyParams, len(c.Params), MaxParams)
	}
	buf := make([]byte, HeaderSize+4*len(c.Params))
	PutHeader(buf, Header{
		Length:        uint32(len(buf)),
		Type:          c.Type,
		Code:          c.Code,
		TransactionID: c.TransactionID,
	})
	for i, p := range c.Params {
		binary.LittleEndian.PutUint32(buf[HeaderSize+4*i:], p)
	}
	return buf, nil
}

// DecodeContainer parses a complete command, response or event container.
func DecodeContainer(buf []byte) (Container, error) {
	h, err := ParseHeader(buf)
	if err != nil {
		return Container{}, err
	}
	if int(h.Length) != len(buf) || (h.Length-HeaderSize)%4 != 0 {
		return Container{}, fmt.Errorf("%w: header says %d, got %d", ErrBadLength, h.Length, len(buf))
	}
	n := int(h.Length-HeaderSize) / 4
	if n > MaxParams {
		return Container{}, fmt.Errorf("%w: %d > %d", ErrTooManyParams, n, MaxParams)
	}
	c := Container{Type: h.Type, Code: h.Code, TransactionID: h.TransactionID}
	if n > 0 {
		c.Params = make([]uint32, n)
		for i := range c.Params {
			c.Params[i] = binary.LittleEndian.Uint32(buf[HeaderSize+4*i:])
		}
	}
	return c, nil
}
