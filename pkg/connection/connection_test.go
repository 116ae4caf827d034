package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/internal/simdevice"
	"github.com/luck-mtp/mtp-go/pkg/mtp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			250 * time.Millisecond,
			500 * time.Millisecond,
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			5 * time.Second,
			5 * time.Second, // Should stay at max
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()
			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoff()
		limit := time.Duration(float64(InitialBackoff)*(1+JitterFactor)) + time.Millisecond
		for i := 0; i < 10; i++ {
			b.Reset()
			d := b.Next()
			if d < InitialBackoff || d > limit {
				t.Errorf("Sample %d: %v out of range [%v, %v]", i, d, InitialBackoff, limit)
			}
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}
		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()
		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial: 100 * time.Millisecond,
			Max:     300 * time.Millisecond,
		})

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			300 * time.Millisecond,
			300 * time.Millisecond,
		}
		for i, exp := range expected {
			if got := b.Next(); got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
	})

	t.Run("MaxBelowInitial", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{Initial: time.Second, Max: time.Millisecond})
		assert.Equal(t, time.Second, b.Next())
		assert.Equal(t, time.Second, b.Next())
	})
}

// scriptedWaiter runs each step in place of a sleep, then fails once the
// steps run out as if the context ended.
func scriptedWaiter(steps ...func()) (*Waiter, *int) {
	w := NewWaiter(nil)
	w.Backoff = NewBackoffWithConfig(BackoffConfig{Initial: time.Millisecond})
	sleeps := 0
	w.sleep = func(context.Context, time.Duration) error {
		if sleeps >= len(steps) {
			return context.DeadlineExceeded
		}
		steps[sleeps]()
		sleeps++
		return nil
	}
	return w, &sleeps
}

func TestWaitForDevice_AppearsLater(t *testing.T) {
	enum := simdevice.NewEnumerator()
	dev := simdevice.DefaultFixture().Devices[0].Build()

	w, sleeps := scriptedWaiter(func() {}, func() { enum.Add(dev) })
	desc, err := w.WaitForDevice(context.Background(), enum, 3725, 8221)
	require.NoError(t, err)
	assert.Equal(t, dev.Descriptor(), desc)
	assert.Equal(t, 2, *sleeps)
}

func TestWaitForDevice_FiltersByID(t *testing.T) {
	enum := simdevice.DefaultFixture().Build()

	w, _ := scriptedWaiter()
	_, err := w.WaitForDevice(context.Background(), enum, 0x1234, 0)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	desc, err := w.WaitForDevice(context.Background(), enum, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint16(3725), desc.VendorID)
}

func TestWaitForDevice_KeepsEnumerateError(t *testing.T) {
	enum := simdevice.NewEnumerator()
	enum.FailEnumerate(transport.ErrAccess)

	w, sleeps := scriptedWaiter(func() {})
	_, err := w.WaitForDevice(context.Background(), enum, 0, 0)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, transport.ErrAccess)
	assert.Equal(t, 1, *sleeps)
}

func TestWaitForDevice_ContextCancelled(t *testing.T) {
	w := NewWaiter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.WaitForDevice(ctx, simdevice.NewEnumerator(), 0, 0)
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectWithRetry_ClaimedDevice(t *testing.T) {
	enum := simdevice.DefaultFixture().Build()
	dev := enum.Devices()[0]
	dev.SetClaimed(true)
	m := mtp.NewManager(enum)
	t.Cleanup(func() { _ = m.Release() })

	w, sleeps := scriptedWaiter(func() {}, func() { dev.SetClaimed(false) })
	s, err := w.ConnectWithRetry(context.Background(), m, mtp.ConnectOptions{})
	require.NoError(t, err)
	assert.Equal(t, mtp.SessionOpen, s.State())
	assert.Equal(t, 2, *sleeps)
}

func TestConnectWithRetry_GivesUp(t *testing.T) {
	m := mtp.NewManager(simdevice.NewEnumerator())

	w, sleeps := scriptedWaiter(func() {}, func() {})
	_, err := w.ConnectWithRetry(context.Background(), m, mtp.ConnectOptions{VendorID: 3725})
	assert.ErrorIs(t, err, ErrWaitTimeout)
	assert.ErrorIs(t, err, mtp.ErrNoDeviceFound)
	assert.Equal(t, 2, *sleeps)
}

func TestConnectWithRetry_StopsOnOtherErrors(t *testing.T) {
	enum := simdevice.DefaultFixture().Build()
	enum.Devices()[0].SetAccessDenied(true)
	m := mtp.NewManager(enum)

	w, sleeps := scriptedWaiter(func() {})
	_, err := w.ConnectWithRetry(context.Background(), m, mtp.ConnectOptions{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrWaitTimeout))
	assert.Equal(t, mtp.KindTransport, mtp.KindOf(err))
	assert.Equal(t, 0, *sleeps)
}
