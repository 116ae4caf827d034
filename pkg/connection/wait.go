package connection

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// ErrWaitTimeout is returned when the context ends before a device shows
// up. It wraps the last attempt's error when there was one.
var ErrWaitTimeout = errors.New("gave up waiting for device")

// Lister enumerates attached devices.
type Lister interface {
	Enumerate() ([]transport.DeviceDescriptor, error)
}

// Connector opens sessions. *mtp.Manager implements it.
type Connector interface {
	Connect(ctx context.Context, opts mtp.ConnectOptions) (*mtp.Session, error)
}

// Waiter polls with backoff until a device is usable.
type Waiter struct {
	Backoff *Backoff
	Logger  *slog.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewWaiter returns a Waiter with the default backoff.
func NewWaiter(logger *slog.Logger) *Waiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Waiter{Backoff: NewBackoff(), Logger: logger, sleep: sleepCtx}
}

// WaitForDevice polls l until a device matching the ids is attached and
// returns its descriptor. Zero ids match any device.
func (w *Waiter) WaitForDevice(ctx context.Context, l Lister, vendorID, productID uint16) (transport.DeviceDescriptor, error) {
	var found transport.DeviceDescriptor
	err := w.retry(ctx, func() (bool, error) {
		descs, err := l.Enumerate()
		if err != nil {
			return true, err
		}
		for _, d := range descs {
			if d.Matches(vendorID, productID) {
				found = d
				return false, nil
			}
		}
		return true, nil
	})
	return found, err
}

// ConnectWithRetry calls c.Connect until it succeeds. No matching device
// and a device claimed elsewhere are retried; other errors are returned at
// once.
func (w *Waiter) ConnectWithRetry(ctx context.Context, c Connector, opts mtp.ConnectOptions) (*mtp.Session, error) {
	var s *mtp.Session
	err := w.retry(ctx, func() (bool, error) {
		var err error
		s, err = c.Connect(ctx, opts)
		switch mtp.KindOf(err) {
		case mtp.KindNoDeviceFound, mtp.KindDeviceBusy:
			return true, err
		}
		return false, err
	})
	return s, err
}

// retry runs attempt until it reports done, sleeping between attempts. The
// last retryable error is kept so a timeout says why it kept failing.
func (w *Waiter) retry(ctx context.Context, attempt func() (again bool, err error)) error {
	w.Backoff.Reset()
	var last error
	for {
		again, err := attempt()
		if !again {
			return err
		}
		last = err

		delay := w.Backoff.Next()
		w.Logger.Debug("device not ready",
			"attempt", w.Backoff.Attempts(),
			"delay", delay,
			"error", err)
		if err := w.sleep(ctx, delay); err != nil {
			if last != nil {
				return errors.Join(ErrWaitTimeout, last)
			}
			return errors.Join(ErrWaitTimeout, err)
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
