package simdevice

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

func openDefault(t *testing.T) (*Enumerator, *Device, *interaction.Client) {
	t.Helper()
	e := DefaultFixture().Build()
	descs, err := e.Enumerate()
	require.NoError(t, err)
	require.Len(t, descs, 1)

	handle, err := e.Open(descs[0])
	require.NoError(t, err)
	c := interaction.NewClient(handle)
	require.NoError(t, c.OpenSession(context.Background()))
	return e, e.Devices()[0], c
}

func TestEnumeratorDescriptors(t *testing.T) {
	e := DefaultFixture().Build()
	first, err := e.Enumerate()
	require.NoError(t, err)
	second, err := e.Enumerate()
	require.NoError(t, err)
	assert.Equal(t, first, second)

	d := first[0]
	assert.Equal(t, "0e8d:201d", d.ID())
	assert.Equal(t, 1, d.Bus)
	assert.Equal(t, 1, d.Address)
	assert.True(t, d.Matches(3725, 8221))
}

func TestEnumeratorOpenErrors(t *testing.T) {
	e := DefaultFixture().Build()
	descs, _ := e.Enumerate()
	dev := e.Devices()[0]

	_, err := e.Open(transport.DeviceDescriptor{VendorID: 1, ProductID: 2})
	assert.ErrorIs(t, err, transport.ErrNoDevice)

	dev.SetAccessDenied(true)
	_, err = e.Open(descs[0])
	assert.ErrorIs(t, err, transport.ErrAccess)
	dev.SetAccessDenied(false)

	h, err := e.Open(descs[0])
	require.NoError(t, err)
	_, err = e.Open(descs[0])
	assert.ErrorIs(t, err, transport.ErrBusy)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Close(), transport.ErrClosed)
	_, err = e.Open(descs[0])
	assert.NoError(t, err)
	assert.Equal(t, 2, dev.Opens())
}

func TestEnumerateFault(t *testing.T) {
	e := DefaultFixture().Build()
	boom := errors.New("bus error")
	e.FailEnumerate(boom)
	_, err := e.Enumerate()
	assert.ErrorIs(t, err, boom)
}

func TestDeviceServesClient(t *testing.T) {
	_, dev, c := openDefault(t)
	ctx := context.Background()

	info, err := c.GetDeviceInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "MediaTek", info.Manufacturer)
	assert.True(t, info.Supports(ptp.OpCopyObject))

	ids, err := c.GetStorageIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0x00010001, 0x00020001}, ids)

	si, err := c.GetStorageInfo(ctx, ids[0])
	require.NoError(t, err)
	assert.Equal(t, "Internal shared storage", si.StorageDescription)
	assert.Less(t, si.FreeSpaceInBytes, si.MaxCapacity)

	root, err := c.GetObjectHandles(ctx, ids[0], 0, ptp.ParentFilterRoot)
	require.NoError(t, err)
	assert.Len(t, root, 4)

	track, ok := dev.Store().Find(ids[0], "Music/track01.mp3")
	require.True(t, ok)
	var buf bytes.Buffer
	n, err := c.GetObject(ctx, track.Handle, uint64(len(track.Data)), &buf, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(65536), n)
	assert.Equal(t, Pattern(65536), buf.Bytes())
}

func TestDeviceCancelledUpload(t *testing.T) {
	_, dev, c := openDefault(t)
	ctx := context.Background()

	_, _, h, err := c.SendObjectInfo(ctx, 0x00010001, ptp.HandleRootAlt, &ptp.ObjectInfo{
		ObjectFormat:   ptp.FormatUndefined,
		CompressedSize: 100000,
		Filename:       "partial.bin",
	})
	require.NoError(t, err)

	stop := errors.New("stop")
	c.SetChunkSize(4096)
	_, err = c.SendObject(ctx, bytes.NewReader(Pattern(100000)), 100000, func(int) error { return stop })
	assert.ErrorIs(t, err, stop)
	assert.Len(t, dev.Cancels(), 1)
	assert.False(t, dev.Busy())

	// The announced but unsent object is still there for the host to remove.
	require.NoError(t, c.DeleteObject(ctx, h))
}

func TestDeviceUnplug(t *testing.T) {
	e, dev, c := openDefault(t)
	dev.Unplug()

	_, err := c.GetStorageIDs(context.Background())
	assert.ErrorIs(t, err, transport.ErrDisconnected)
	assert.Empty(t, dev.Cancels())

	descs, err := e.Enumerate()
	require.NoError(t, err)
	assert.Empty(t, descs)

	dev.Replug()
	descs, err = e.Enumerate()
	require.NoError(t, err)
	assert.Len(t, descs, 1)
	assert.False(t, dev.SessionOpen())
}

func TestDeviceDisconnectMidTransfer(t *testing.T) {
	_, dev, c := openDefault(t)
	track, ok := dev.Store().Find(0x00010001, "Music/track01.mp3")
	require.True(t, ok)

	dev.DisconnectAfter(10000)
	c.SetChunkSize(4096)
	_, err := c.GetObject(context.Background(), track.Handle, 65536, &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, transport.ErrDisconnected)
	assert.True(t, dev.Unplugged())
}

func TestDeviceSessionSurvivesClose(t *testing.T) {
	e, dev, _ := openDefault(t)
	descs, _ := e.Enumerate()
	require.NoError(t, dev.Close())
	assert.True(t, dev.SessionOpen())

	// A new host handle finds the stale session and reopens it.
	h, err := e.Open(descs[0])
	require.NoError(t, err)
	c := interaction.NewClient(h)
	require.NoError(t, c.OpenSession(context.Background()))
	assert.True(t, c.IsOpen())
}

func TestDeviceStatusAndReset(t *testing.T) {
	_, dev, _ := openDefault(t)

	st, err := transport.GetDeviceStatus(dev)
	require.NoError(t, err)
	assert.Equal(t, ptp.RespOK, st.Code)

	require.NoError(t, transport.Reset(dev))
	assert.False(t, dev.SessionOpen())
}
