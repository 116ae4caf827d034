// Package usb implements the transport on real USB devices through
// libusb, using gousb.
//
// An Enumerator lists devices exposing a still-image (PTP) interface, or a
// vendor-specific interface with the same endpoint layout as many phones
// use for MTP, and opens them by bus and address.
package usb

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/gousb"
	"github.com/google/gousb/usbid"

	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// Interface classes carrying MTP.
const (
	classImage      gousb.Class    = 0x06
	subclassStill   gousb.Class    = 0x01
	classVendorSpec gousb.Class    = 0xFF
	protocolPTP     gousb.Protocol = 0x01
)

// Option configures an Enumerator.
type Option func(*Enumerator)

// WithLogger sets the logger for device selection details.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enumerator) { e.logger = logger }
}

// WithDebug sets the libusb debug level, 0 to 4.
func WithDebug(level int) Option {
	return func(e *Enumerator) { e.debug = level }
}

// Enumerator finds and opens MTP devices. The libusb context is created
// on first use so that constructing an Enumerator never fails.
type Enumerator struct {
	mu     sync.Mutex
	ctx    *gousb.Context
	logger *slog.Logger
	debug  int
}

var _ transport.Enumerator = (*Enumerator)(nil)

// NewEnumerator creates an Enumerator.
func NewEnumerator(opts ...Option) *Enumerator {
	e := &Enumerator{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Enumerator) context() *gousb.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		e.ctx = gousb.NewContext()
		e.ctx.Debug(e.debug)
	}
	return e.ctx
}

// Close releases the libusb context. Devices opened through the
// Enumerator must be closed first.
func (e *Enumerator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil
	}
	err := e.ctx.Close()
	e.ctx = nil
	return err
}

// Enumerate lists attached devices with an MTP interface. Devices are not
// opened.
func (e *Enumerator) Enumerate() ([]transport.DeviceDescriptor, error) {
	var descs []transport.DeviceDescriptor
	_, err := e.context().OpenDevices(func(d *gousb.DeviceDesc) bool {
		if _, ok := findInterface(d); ok {
			descs = append(descs, descriptorFrom(d))
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate: %w", mapError(err))
	}
	sort.Slice(descs, func(i, j int) bool {
		if descs[i].Bus != descs[j].Bus {
			return descs[i].Bus < descs[j].Bus
		}
		return descs[i].Address < descs[j].Address
	})
	return descs, nil
}

// Open opens the device at desc's bus and address and claims its MTP
// interface.
func (e *Enumerator) Open(desc transport.DeviceDescriptor) (transport.Device, error) {
	devs, err := e.context().OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == desc.Bus && d.Address == desc.Address &&
			uint16(d.Vendor) == desc.VendorID && uint16(d.Product) == desc.ProductID
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", desc, mapOpenError(err))
		}
		return nil, fmt.Errorf("open %s: %w", desc, transport.ErrNoDevice)
	}
	for _, extra := range devs[1:] {
		extra.Close()
	}
	dev := devs[0]

	sel, ok := findInterface(dev.Desc)
	if !ok {
		dev.Close()
		return nil, fmt.Errorf("open %s: %w", desc, transport.ErrNoDevice)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		e.logger.Debug("auto detach unavailable", "device", desc.ID(), "error", err)
	}
	d, err := claim(dev, sel)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("open %s: %w", desc, mapOpenError(err))
	}
	e.logger.Debug("device opened",
		"device", desc.ID(),
		"config", sel.config,
		"interface", sel.iface,
		"in", sel.in,
		"out", sel.out,
		"packet_size", sel.packetSize)
	return d, nil
}

// selection is the interface and endpoints an MTP session runs on.
type selection struct {
	config     int
	iface      int
	alt        int
	in         int
	out        int
	packetSize int
}

// findInterface picks the first interface with a bulk IN and bulk OUT
// endpoint that is either still-image class or vendor-specific with an
// interrupt endpoint, as MTP phones present it.
func findInterface(d *gousb.DeviceDesc) (selection, bool) {
	configs := make([]int, 0, len(d.Configs))
	for n := range d.Configs {
		configs = append(configs, n)
	}
	sort.Ints(configs)

	for _, n := range configs {
		for _, intf := range d.Configs[n].Interfaces {
			for _, alt := range intf.AltSettings {
				sel := selection{config: n, iface: intf.Number, alt: alt.Alternate, in: -1, out: -1}
				interrupt := false
				for _, ep := range alt.Endpoints {
					switch {
					case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionIn && sel.in < 0:
						sel.in = ep.Number
						sel.packetSize = ep.MaxPacketSize
					case ep.TransferType == gousb.TransferTypeBulk && ep.Direction == gousb.EndpointDirectionOut && sel.out < 0:
						sel.out = ep.Number
					case ep.TransferType == gousb.TransferTypeInterrupt && ep.Direction == gousb.EndpointDirectionIn:
						interrupt = true
					}
				}
				if sel.in < 0 || sel.out < 0 {
					continue
				}
				still := alt.Class == classImage && alt.SubClass == subclassStill && alt.Protocol == protocolPTP
				vendor := alt.Class == classVendorSpec && interrupt
				if still || vendor {
					return sel, true
				}
			}
		}
	}
	return selection{}, false
}

// descriptorFrom builds a descriptor, naming vendor and product from the
// usb.ids database when they are listed.
func descriptorFrom(d *gousb.DeviceDesc) transport.DeviceDescriptor {
	desc := transport.DeviceDescriptor{
		VendorID:  uint16(d.Vendor),
		ProductID: uint16(d.Product),
		Bus:       d.Bus,
		Address:   d.Address,
	}
	if v, ok := usbid.Vendors[d.Vendor]; ok {
		desc.Vendor = v.Name
		if p, ok := v.Product[d.Product]; ok {
			desc.Product = p.Name
		}
	}
	return desc
}
