// Package simdevice provides an in-memory MTP device for tests and for the
// CLI's --simulate mode. A Device speaks the bulk container protocol of a
// real device, so everything above pkg/transport runs unmodified against it.
package simdevice

import (
	"fmt"
	"sync"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// DefaultPacketSize is the bulk max packet size of a high-speed device.
const DefaultPacketSize = 512

// Config describes the identity of a simulated device.
type Config struct {
	VendorID   uint16
	ProductID  uint16
	Vendor     string
	Product    string
	Serial     string
	Version    string
	PacketSize int
}

// Device is a simulated MTP device. It implements transport.Device and is
// safe for concurrent use.
type Device struct {
	cfg   Config
	store *Store

	mu   sync.Mutex
	desc transport.DeviceDescriptor
	srv  *interaction.Server

	open      bool
	unplugged bool
	claimed   bool
	denied    bool
	closeErr  error

	// Bytes left before the cable is pulled, -1 for never.
	cutAfter int64

	opens   int
	cancels []uint32
	resets  int
}

var _ transport.Device = (*Device)(nil)

// New creates a device serving store.
func New(cfg Config, store *Store) *Device {
	if cfg.PacketSize <= 0 {
		cfg.PacketSize = DefaultPacketSize
	}
	d := &Device{
		cfg:      cfg,
		store:    store,
		cutAfter: -1,
		desc: transport.DeviceDescriptor{
			VendorID:  cfg.VendorID,
			ProductID: cfg.ProductID,
			Vendor:    cfg.Vendor,
			Product:   cfg.Product,
		},
	}
	d.srv = interaction.NewServer(store, d.DeviceInfo, cfg.PacketSize)
	return d
}

// Store returns the object store behind the device.
func (d *Device) Store() *Store {
	return d.store
}

// Descriptor returns the enumeration descriptor.
func (d *Device) Descriptor() transport.DeviceDescriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.desc
}

// DeviceInfo returns the DeviceInfo dataset the device reports.
func (d *Device) DeviceInfo() *ptp.DeviceInfo {
	return &ptp.DeviceInfo{
		StandardVersion:     100,
		VendorExtensionID:   0x00000006,
		VendorExtensionDesc: "microsoft.com: 1.0;",
		OperationsSupported: d.store.Supported(),
		EventsSupported:     []ptp.EventCode{ptp.EventObjectAdded, ptp.EventObjectRemoved},
		PlaybackFormats:     []ptp.ObjectFormat{ptp.FormatUndefined, ptp.FormatAssociation, ptp.FormatText, ptp.FormatMP3},
		Manufacturer:        d.cfg.Vendor,
		Model:               d.cfg.Product,
		DeviceVersion:       d.cfg.Version,
		SerialNumber:        d.cfg.Serial,
	}
}

// attach claims the device for a host handle.
func (d *Device) attach() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch {
	case d.unplugged:
		return transport.ErrNoDevice
	case d.denied:
		return fmt.Errorf("%s: %w", d.desc, transport.ErrAccess)
	case d.claimed || d.open:
		return fmt.Errorf("%s: %w", d.desc, transport.ErrBusy)
	}
	d.open = true
	d.opens++
	return nil
}

func (d *Device) check() error {
	switch {
	case d.unplugged:
		return transport.ErrDisconnected
	case !d.open:
		return transport.ErrClosed
	}
	return nil
}

// consume counts n bytes against the disconnect fault.
func (d *Device) consume(n int) error {
	if d.cutAfter < 0 {
		return nil
	}
	d.cutAfter -= int64(n)
	if d.cutAfter < 0 {
		d.unplugged = true
		return transport.ErrDisconnected
	}
	return nil
}

// BulkSend delivers one bulk OUT transfer to the responder.
func (d *Device) BulkSend(data []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	if err := d.consume(len(data)); err != nil {
		return 0, err
	}
	if err := d.srv.Receive(data); err != nil {
		return 0, fmt.Errorf("%w: %v", transport.ErrStall, err)
	}
	return len(data), nil
}

// BulkReceive returns the next queued bulk IN transfer. With nothing
// queued it times out immediately.
func (d *Device) BulkReceive(buf []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	n, ok := d.srv.Transmit(buf)
	if !ok {
		return 0, transport.ErrTimeout
	}
	if err := d.consume(n); err != nil {
		return 0, err
	}
	return n, nil
}

// Control handles the still-image class requests.
func (d *Device) Control(req transport.ControlRequest, data []byte, _ time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	switch req.Request {
	case transport.RequestCancel:
		tid, err := transport.ParseCancelRequest(data)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", transport.ErrStall, err)
		}
		d.cancels = append(d.cancels, tid)
		d.srv.Cancel(tid)
		return len(data), nil
	case transport.RequestGetDeviceStatus:
		code := ptp.RespOK
		if d.srv.Busy() {
			code = ptp.RespDeviceBusy
		}
		return copy(data, transport.EncodeDeviceStatus(transport.DeviceStatus{Code: code})), nil
	case transport.RequestDeviceReset:
		d.resets++
		d.srv.Reset()
		return 0, nil
	}
	return 0, transport.ErrStall
}

// MaxPacketSize returns the bulk endpoint packet size.
func (d *Device) MaxPacketSize() int {
	return d.cfg.PacketSize
}

// Close releases the host handle. The session state on the device
// survives, as it does on real hardware.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return transport.ErrClosed
	}
	d.open = false
	return d.closeErr
}

// Unplug simulates pulling the cable. Open handles fail with
// ErrDisconnected and the device disappears from enumeration.
func (d *Device) Unplug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unplugged = true
	d.open = false
	d.srv.Reset()
}

// Replug makes an unplugged device available again with a fresh responder.
func (d *Device) Replug() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.unplugged = false
	d.cutAfter = -1
	d.srv = interaction.NewServer(d.store, d.DeviceInfo, d.cfg.PacketSize)
}

// Unplugged reports whether the device is disconnected.
func (d *Device) Unplugged() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unplugged
}

// SetClaimed simulates another process holding the interface.
func (d *Device) SetClaimed(claimed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.claimed = claimed
}

// SetAccessDenied makes Open fail with a permission error.
func (d *Device) SetAccessDenied(denied bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied = denied
}

// DisconnectAfter unplugs the device once n more bulk bytes have moved in
// either direction.
func (d *Device) DisconnectAfter(n int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cutAfter = n
}

// FailClose makes Close return err after releasing the handle.
func (d *Device) FailClose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeErr = err
}

// IsOpen reports whether a host handle is attached.
func (d *Device) IsOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// SessionOpen reports whether the responder has a session open.
func (d *Device) SessionOpen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv.SessionOpen()
}

// Busy reports whether the responder is inside a transaction.
func (d *Device) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.srv.Busy()
}

// Opens returns how many times the device was opened.
func (d *Device) Opens() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.opens
}

// Cancels returns the transaction ids of received Cancel requests.
func (d *Device) Cancels() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.cancels...)
}
