package log

import (
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// SessionID uniquely identifies the device session (UUID).
	SessionID string `cbor:"2,keyasint"`

	// Direction indicates data flow relative to the host.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Device is the "vvvv:pppp" USB id of the peer.
	Device string `cbor:"6,keyasint,omitempty"`

	// StorageID is the storage the event relates to, if any.
	StorageID uint32 `cbor:"7,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Container   *ContainerEvent   `cbor:"10,keyasint,omitempty"` // Transport layer
	Transaction *TransactionEvent `cbor:"11,keyasint,omitempty"` // Protocol layer
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"` // Session/transfer state
	Control     *ControlEvent     `cbor:"13,keyasint,omitempty"` // Class requests
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
	Transfer    *TransferEvent    `cbor:"15,keyasint,omitempty"` // Completed transfers
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates device to host.
	DirectionIn Direction = 0
	// DirectionOut indicates host to device.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerTransport is the bulk container layer.
	LayerTransport Layer = 0
	// LayerProtocol is the PTP transaction layer.
	LayerProtocol Layer = 1
	// LayerSession is the session and object layer.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerProtocol:
		return "PROTOCOL"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a container or transaction.
	CategoryMessage Category = 0
	// CategoryControl indicates a USB class control request.
	CategoryControl Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
	// CategoryTransfer indicates a finished object transfer.
	CategoryTransfer Category = 4
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryControl:
		return "CONTROL"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryTransfer:
		return "TRANSFER"
	default:
		return "UNKNOWN"
	}
}

// ContainerEvent captures a bulk container at the transport layer.
// For data phases, Size is the declared payload size and Data holds at
// most the first chunk.
type ContainerEvent struct {
	// Type is the container type.
	Type ptp.ContainerType `cbor:"1,keyasint"`

	// Code is the operation or response code.
	Code uint16 `cbor:"2,keyasint"`

	// TransactionID correlates the phases of one transaction.
	TransactionID uint32 `cbor:"3,keyasint"`

	// Size is the container size in bytes including the header.
	Size uint64 `cbor:"4,keyasint"`

	// Data is the raw container bytes (may be truncated).
	Data []byte `cbor:"5,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"6,keyasint,omitempty"`
}

// TransactionEvent captures a completed PTP transaction.
type TransactionEvent struct {
	// Operation is the requested operation.
	Operation ptp.OperationCode `cbor:"1,keyasint"`

	// TransactionID of the command.
	TransactionID uint32 `cbor:"2,keyasint"`

	// Params are the command parameters.
	Params []uint32 `cbor:"3,keyasint,omitempty"`

	// Response is the device response code (nil if no response arrived).
	Response *ptp.ResponseCode `cbor:"4,keyasint,omitempty"`

	// DataBytes is the size of the data phase, if any.
	DataBytes uint64 `cbor:"5,keyasint,omitempty"`

	// Duration from command send to response receipt. Stored as nanoseconds.
	Duration *time.Duration `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures session and transfer lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntitySession indicates a session state change.
	StateEntitySession StateEntity = 0
	// StateEntityTransfer indicates a transfer state change.
	StateEntityTransfer StateEntity = 1
	// StateEntityStorage indicates a storage selection change.
	StateEntityStorage StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntitySession:
		return "SESSION"
	case StateEntityTransfer:
		return "TRANSFER"
	case StateEntityStorage:
		return "STORAGE"
	default:
		return "UNKNOWN"
	}
}

// ControlEvent captures a still-image class control request.
type ControlEvent struct {
	// Type of control request.
	Type ControlType `cbor:"1,keyasint"`

	// TransactionID targeted by a cancel request.
	TransactionID uint32 `cbor:"2,keyasint,omitempty"`
}

// ControlType indicates the type of control request.
type ControlType uint8

const (
	// ControlCancel indicates a Cancel request.
	ControlCancel ControlType = 0
	// ControlDeviceStatus indicates a Get Device Status request.
	ControlDeviceStatus ControlType = 1
	// ControlReset indicates a Device Reset request.
	ControlReset ControlType = 2
)

// String returns the control request name.
func (c ControlType) String() string {
	switch c {
	case ControlCancel:
		return "CANCEL"
	case ControlDeviceStatus:
		return "DEVICE_STATUS"
	case ControlReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// TransferEvent summarises a finished upload or download.
type TransferEvent struct {
	// ObjectID of the device object.
	ObjectID uint32 `cbor:"1,keyasint"`

	// Path of the device object.
	Path string `cbor:"2,keyasint,omitempty"`

	// Bytes actually moved.
	Bytes uint64 `cbor:"3,keyasint"`

	// Total bytes expected.
	Total uint64 `cbor:"4,keyasint"`

	// Digest is the BLAKE2b-256 of the moved bytes.
	Digest []byte `cbor:"5,keyasint,omitempty"`

	// Duration of the data phase. Stored as nanoseconds.
	Duration time.Duration `cbor:"6,keyasint,omitempty"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the PTP response code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// containerCodeName renders the code of c as an operation or response name.
func containerCodeName(c *ContainerEvent) string {
	switch c.Type {
	case ptp.ContainerResponse:
		return ptp.ResponseCode(c.Code).String()
	default:
		return ptp.OperationCode(c.Code).String()
	}
}
