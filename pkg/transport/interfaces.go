package transport

import (
	"fmt"
	"io"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// DeviceDescriptor identifies an attached device. Produced by enumeration
// and immutable.
type DeviceDescriptor struct {
	VendorID  uint16
	ProductID uint16
	Vendor    string
	Product   string
	Bus       int
	Address   int
}

// ID returns the "vvvv:pppp" form used in logs and state files.
func (d DeviceDescriptor) ID() string {
	return fmt.Sprintf("%04x:%04x", d.VendorID, d.ProductID)
}

// String returns a human readable description.
func (d DeviceDescriptor) String() string {
	name := d.Product
	if d.Vendor != "" {
		name = d.Vendor + " " + d.Product
	}
	return fmt.Sprintf("%s (%s) bus %d addr %d", name, d.ID(), d.Bus, d.Address)
}

// Matches reports whether d has the given ids. Zero ids match anything.
func (d DeviceDescriptor) Matches(vendorID, productID uint16) bool {
	if vendorID != 0 && d.VendorID != vendorID {
		return false
	}
	if productID != 0 && d.ProductID != productID {
		return false
	}
	return true
}

// Enumerator lists and opens MTP-capable devices.
// Implemented by usb.Enumerator and simdevice.Enumerator.
type Enumerator interface {
	// Enumerate lists attached devices. Calling it has no side effects.
	Enumerate() ([]DeviceDescriptor, error)

	// Open claims the device's still-image interface. The returned Device
	// is owned exclusively by the caller.
	Open(desc DeviceDescriptor) (Device, error)
}

// Device is an opened device exposing bulk and control transfers.
type Device interface {
	// BulkSend performs one bulk OUT transfer. An empty data slice sends a
	// zero-length packet.
	BulkSend(data []byte, timeout time.Duration) (int, error)

	// BulkReceive performs one bulk IN transfer of at most len(buf) bytes.
	BulkReceive(buf []byte, timeout time.Duration) (int, error)

	// Control performs a control transfer on the claimed interface.
	Control(req ControlRequest, data []byte, timeout time.Duration) (int, error)

	// MaxPacketSize returns the bulk endpoint's max packet size.
	MaxPacketSize() int

	// Close releases the interface. Safe to call more than once.
	Close() error
}

// ContainerSender sends command and data containers.
// Implemented by ContainerWriter.
type ContainerSender interface {
	// WriteContainer sends a command container.
	WriteContainer(c ptp.Container) error

	// WriteData sends a data phase of size bytes read from r.
	WriteData(code uint16, tid uint32, r io.Reader, size uint64, onChunk ChunkFunc) (uint64, error)
}

// ContainerReceiver receives data and response containers.
// Implemented by ContainerReader.
type ContainerReceiver interface {
	// ReadContainer reads a response or event container.
	ReadContainer() (ptp.Container, error)

	// ReadData reads a data phase into w.
	ReadData(w io.Writer, limit uint64, onChunk ChunkFunc) (DataResult, error)
}

// Compile-time interface satisfaction checks.
var (
	_ ContainerSender   = (*ContainerWriter)(nil)
	_ ContainerReceiver = (*ContainerReader)(nil)
)
