package mtp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/internal/simdevice"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// noInterleaving checks that nothing ran between announcing an object and
// sending its data.
func noInterleaving(t *testing.T, ops []ptp.OperationCode) {
	t.Helper()
	inside := false
	for _, op := range ops {
		switch op {
		case ptp.OpSendObjectInfo:
			inside = true
		case ptp.OpSendObject:
			inside = false
		default:
			assert.False(t, inside, "%s ran during an upload", op)
		}
	}
}

func TestSession_ReentrantCallback(t *testing.T) {
	for _, policy := range []BusyPolicy{BusyBlock, BusyFailFast} {
		t.Run(policy.String(), func(t *testing.T) {
			b := newBench(t, WithBusyPolicy(policy), WithChunkSize(MinChunkSize))
			ctx := context.Background()
			writeHost(t, b.fs, "/host/a.bin", simdevice.Pattern(20000))

			var listErr, closeErr error
			_, err := b.s.Upload(ctx, "/host/a.bin", "/DCIM", WithProgress(func(sent, _ uint64) {
				if listErr == nil {
					_, listErr = b.s.List(ctx, "/Music")
					closeErr = b.s.Close()
				}
			}))
			require.NoError(t, err)
			assert.ErrorIs(t, listErr, ErrBusy)
			assert.ErrorIs(t, listErr, errReentrant)
			assert.ErrorIs(t, closeErr, ErrBusy)
			assert.Equal(t, SessionOpen, b.s.State())
		})
	}
}

func TestSession_FailFastDuringTransfer(t *testing.T) {
	b := newBench(t, WithBusyPolicy(BusyFailFast), WithChunkSize(MinChunkSize))
	ctx := context.Background()
	writeHost(t, b.fs, "/host/a.bin", simdevice.Pattern(20000))

	var errs []error
	_, err := b.s.Upload(ctx, "/host/a.bin", "/DCIM", WithProgress(func(uint64, uint64) {
		done := make(chan error)
		go func() {
			_, err := b.s.List(ctx, "/Documents")
			done <- err
		}()
		errs = append(errs, <-done)
	}))
	require.NoError(t, err)
	require.NotEmpty(t, errs)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrBusy)
	}
	noInterleaving(t, b.store().Operations())
}

func TestSession_BlockDuringTransfer(t *testing.T) {
	b := newBench(t, WithChunkSize(MinChunkSize))
	ctx := context.Background()
	writeHost(t, b.fs, "/host/a.bin", simdevice.Pattern(64<<10))

	var once sync.Once
	var wg sync.WaitGroup
	var listErr error
	var recs []ObjectRecord
	_, err := b.s.Upload(ctx, "/host/a.bin", "/DCIM", WithProgress(func(uint64, uint64) {
		once.Do(func() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				recs, listErr = b.s.List(ctx, "/DCIM")
			}()
		})
	}))
	require.NoError(t, err)
	wg.Wait()

	// The call either waited for the upload or met the callback.
	if listErr != nil {
		assert.ErrorIs(t, listErr, ErrBusy)
	} else {
		assert.Equal(t, []string{"a.bin"}, names(recs))
	}
	noInterleaving(t, b.store().Operations())
}

func TestSession_BusyPolicies(t *testing.T) {
	t.Run("fail fast", func(t *testing.T) {
		b := newBench(t, WithBusyPolicy(BusyFailFast))
		require.True(t, b.s.sem.TryAcquire(1))
		defer b.s.sem.Release(1)

		_, err := b.s.List(context.Background(), "/")
		assert.ErrorIs(t, err, ErrBusy)
	})

	t.Run("block honours the context", func(t *testing.T) {
		b := newBench(t)
		require.True(t, b.s.sem.TryAcquire(1))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := b.s.List(ctx, "/")
		assert.ErrorIs(t, err, ErrCancelled)
		assert.ErrorIs(t, err, context.DeadlineExceeded)

		b.s.sem.Release(1)
		_, err = b.s.List(context.Background(), "/")
		assert.NoError(t, err)
	})
}

func TestSession_ConcurrentCallers(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()
	paths := []string{"/", "/Music", "/db", "/Documents", "/DCIM"}

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = b.s.List(ctx, paths[i%len(paths)])
		}(i)
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestSession_ChunkSize(t *testing.T) {
	b := newBench(t, WithChunkSize(5000))
	assert.Equal(t, 4608, b.s.ChunkSize())

	b = newBench(t, WithChunkSize(1))
	assert.Equal(t, MinChunkSize, b.s.ChunkSize())
}

func TestClampChunkSize(t *testing.T) {
	assert.Equal(t, DefaultChunkSize, ClampChunkSize(0))
	assert.Equal(t, MinChunkSize, ClampChunkSize(100))
	assert.Equal(t, MaxChunkSize, ClampChunkSize(1<<30))
	assert.Equal(t, 65536, ClampChunkSize(65536))
}
