package simdevice

import (
	"sync"

	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// Enumerator is a simulated USB bus. It implements transport.Enumerator.
type Enumerator struct {
	mu      sync.Mutex
	devices []*Device
	next    int
	err     error
}

var _ transport.Enumerator = (*Enumerator)(nil)

// NewEnumerator creates a bus with devices attached.
func NewEnumerator(devices ...*Device) *Enumerator {
	e := &Enumerator{}
	for _, d := range devices {
		e.Add(d)
	}
	return e
}

// Add attaches d and assigns it a bus address.
func (e *Enumerator) Add(d *Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	d.mu.Lock()
	d.desc.Bus = 1
	d.desc.Address = e.next
	d.mu.Unlock()
	e.devices = append(e.devices, d)
}

// Remove detaches d from the bus.
func (e *Enumerator) Remove(d *Device) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, dev := range e.devices {
		if dev == d {
			e.devices = append(e.devices[:i], e.devices[i+1:]...)
			return
		}
	}
}

// Devices returns the attached devices.
func (e *Enumerator) Devices() []*Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Device(nil), e.devices...)
}

// FailEnumerate makes Enumerate return err. nil clears the fault.
func (e *Enumerator) FailEnumerate(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// Enumerate lists the plugged-in devices in bus order.
func (e *Enumerator) Enumerate() ([]transport.DeviceDescriptor, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	var out []transport.DeviceDescriptor
	for _, d := range e.devices {
		if d.Unplugged() {
			continue
		}
		out = append(out, d.Descriptor())
	}
	return out, nil
}

// Open claims the device at desc's bus address.
func (e *Enumerator) Open(desc transport.DeviceDescriptor) (transport.Device, error) {
	e.mu.Lock()
	var dev *Device
	for _, d := range e.devices {
		got := d.Descriptor()
		if got.VendorID == desc.VendorID && got.ProductID == desc.ProductID &&
			got.Bus == desc.Bus && got.Address == desc.Address {
			dev = d
			break
		}
	}
	e.mu.Unlock()

	if dev == nil {
		return nil, transport.ErrNoDevice
	}
	if err := dev.attach(); err != nil {
		return nil, err
	}
	return dev, nil
}
