package transport

import "errors"

// Transport errors. Device implementations wrap their native errors with
// these so the session can classify them.
var (
	// ErrNoDevice indicates no matching device is attached.
	ErrNoDevice = errors.New("no device found")

	// ErrAccess indicates the interface could not be claimed for lack of
	// permission.
	ErrAccess = errors.New("device access denied")

	// ErrBusy indicates the interface is claimed by another driver or
	// process.
	ErrBusy = errors.New("device busy")

	// ErrDisconnected indicates the device went away.
	ErrDisconnected = errors.New("device disconnected")

	// ErrTimeout indicates a transfer timed out.
	ErrTimeout = errors.New("transfer timed out")

	// ErrStall indicates the endpoint stalled.
	ErrStall = errors.New("endpoint stalled")

	// ErrClosed indicates use of a closed device.
	ErrClosed = errors.New("device closed")
)

// Framing errors.
var (
	// ErrShortData indicates the source of a data phase ended early.
	ErrShortData = errors.New("data source shorter than declared size")

	// ErrUnexpectedContainer indicates a container of the wrong type or
	// transaction arrived.
	ErrUnexpectedContainer = errors.New("unexpected container")

	// ErrContainerTruncated indicates a transfer ended inside a container.
	ErrContainerTruncated = errors.New("container truncated")
)
