package usb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/gousb"

	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// Device is an opened USB device with its MTP interface claimed.
type Device struct {
	mu     sync.Mutex
	dev    *gousb.Device
	cfg    *gousb.Config
	intf   *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	iface  uint16
	packet int
	closed bool
}

var _ transport.Device = (*Device)(nil)

func claim(dev *gousb.Device, sel selection) (*Device, error) {
	cfg, err := dev.Config(sel.config)
	if err != nil {
		return nil, err
	}
	intf, err := cfg.Interface(sel.iface, sel.alt)
	if err != nil {
		cfg.Close()
		return nil, err
	}
	in, err := intf.InEndpoint(sel.in)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, err
	}
	out, err := intf.OutEndpoint(sel.out)
	if err != nil {
		intf.Close()
		cfg.Close()
		return nil, err
	}
	return &Device{
		dev:    dev,
		cfg:    cfg,
		intf:   intf,
		in:     in,
		out:    out,
		iface:  uint16(sel.iface),
		packet: sel.packetSize,
	}, nil
}

func (d *Device) check() error {
	if d.closed {
		return transport.ErrClosed
	}
	return nil
}

// BulkSend writes one bulk OUT transfer. An empty data slice is a
// zero-length packet.
func (d *Device) BulkSend(data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.out.WriteContext(ctx, data)
	if err != nil {
		return n, fmt.Errorf("bulk out: %w", transferError(ctx, err))
	}
	return n, nil
}

// BulkReceive reads one bulk IN transfer of at most len(buf) bytes.
func (d *Device) BulkReceive(buf []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	n, err := d.in.ReadContext(ctx, buf)
	if err != nil {
		return n, fmt.Errorf("bulk in: %w", transferError(ctx, err))
	}
	return n, nil
}

// Control sends a class request to the claimed interface.
func (d *Device) Control(req transport.ControlRequest, data []byte, timeout time.Duration) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(); err != nil {
		return 0, err
	}
	d.dev.ControlTimeout = timeout
	n, err := d.dev.Control(req.RequestType, req.Request, req.Value, d.iface, data)
	if err != nil {
		return n, fmt.Errorf("control 0x%02x: %w", req.Request, mapError(err))
	}
	return n, nil
}

// MaxPacketSize returns the bulk IN endpoint's max packet size.
func (d *Device) MaxPacketSize() int {
	return d.packet
}

// Close releases the interface, its configuration and the device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.intf.Close()
	cerr := d.cfg.Close()
	derr := d.dev.Close()
	return mapError(errors.Join(cerr, derr))
}

// transferError maps a transfer error, treating a cancellation by the
// timeout context as a timeout.
func transferError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(err, gousb.TransferCancelled) {
		return fmt.Errorf("%w: %v", transport.ErrTimeout, err)
	}
	return mapError(err)
}

// mapError wraps libusb errors with the transport error they stand for.
// gousb formats some errors with %v, so their text is matched as well.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var target error
	msg := err.Error()
	switch {
	case errors.Is(err, gousb.ErrorAccess), strings.Contains(msg, "access"):
		target = transport.ErrAccess
	case errors.Is(err, gousb.ErrorBusy), strings.Contains(msg, "busy"):
		target = transport.ErrBusy
	case errors.Is(err, gousb.ErrorNoDevice), errors.Is(err, gousb.TransferNoDevice), strings.Contains(msg, "no device"):
		target = transport.ErrDisconnected
	case errors.Is(err, gousb.ErrorTimeout), errors.Is(err, gousb.TransferTimedOut):
		target = transport.ErrTimeout
	case errors.Is(err, gousb.ErrorPipe), errors.Is(err, gousb.TransferStall):
		target = transport.ErrStall
	default:
		return err
	}
	return fmt.Errorf("%w: %v", target, err)
}

// mapOpenError is mapError where a missing device means it was never
// there rather than that it went away.
func mapOpenError(err error) error {
	err = mapError(err)
	if errors.Is(err, transport.ErrDisconnected) {
		return fmt.Errorf("%w: %v", transport.ErrNoDevice, err)
	}
	return err
}
