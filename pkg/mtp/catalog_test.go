package mtp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luck-mtp/mtp-go/internal/simdevice"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

func names(recs []ObjectRecord) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Name)
	}
	return out
}

func countOps(ops []ptp.OperationCode, op ptp.OperationCode) int {
	n := 0
	for _, o := range ops {
		if o == op {
			n++
		}
	}
	return n
}

func TestList_Root(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	for _, p := range []string{"", "/", "//"} {
		recs, err := b.s.List(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, []string{"db", "Music", "Documents", "DCIM"}, names(recs))
		for _, r := range recs {
			assert.Equal(t, TypeFolder, r.Type)
			assert.Equal(t, uint32(ptp.HandleRoot), r.ParentID)
			assert.Equal(t, uint32(internalStorage), r.StorageID)
			assert.Zero(t, r.Size)
		}
	}
}

func TestList_Folder(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	recs, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "track01.mp3", recs[0].Name)
	assert.Equal(t, uint64(65536), recs[0].Size)
	assert.Equal(t, TypeFile, recs[0].Type)
	assert.Equal(t, ptp.FormatMP3, recs[0].Format)
	assert.Equal(t, uint64(40000), recs[1].Size)

	empty, err := b.s.List(ctx, "/DCIM")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestList_Errors(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	_, err := b.s.List(ctx, "/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = b.s.List(ctx, "/db/settings.db")
	assert.ErrorIs(t, err, ErrNotAFolder)

	_, err = b.s.List(ctx, "/db/../Music")
	assert.ErrorIs(t, err, ErrInvalidPath)

	var e *Error
	_, err = b.s.List(ctx, "/Music/none")
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "list", e.Op)
	assert.Equal(t, "/Music/none", e.Path)
}

func TestStat_ParentMatchesListing(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	folder, err := b.s.Stat(ctx, "/Music")
	require.NoError(t, err)
	kids, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)

	for _, k := range kids {
		rec, err := b.s.Stat(ctx, "/Music/"+k.Name)
		require.NoError(t, err)
		assert.Equal(t, folder.ID, rec.ParentID)
		assert.Equal(t, k, rec)
	}
}

func TestStat_Errors(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	_, err := b.s.Stat(ctx, "/")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = b.s.Stat(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidPath)
	_, err = b.s.Stat(ctx, "/Music/track03.mp3")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = b.s.Stat(ctx, "/db/settings.db/inner")
	assert.ErrorIs(t, err, ErrNotAFolder)
	_, err = b.s.Stat(ctx, "/db\x00")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestCatalog_CachesListings(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	_, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	before := countOps(b.store().Operations(), ptp.OpGetObjectHandles)

	_, err = b.s.List(ctx, "/Music")
	require.NoError(t, err)
	_, err = b.s.Stat(ctx, "/Music/track02.mp3")
	require.NoError(t, err)
	assert.Equal(t, before, countOps(b.store().Operations(), ptp.OpGetObjectHandles))
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	recs, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	recs[0].Name = "changed"

	again, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	assert.Equal(t, "track01.mp3", again[0].Name)
}

func TestCatalog_DuplicateNames(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()
	first, ok := b.store().Find(internalStorage, "/Music/track01.mp3")
	require.True(t, ok)
	b.store().AddFile(internalStorage, first.Parent, "track01.mp3", []byte("second"))

	rec, err := b.s.Stat(ctx, "/Music/track01.mp3")
	require.NoError(t, err)
	assert.Equal(t, first.Handle, rec.ID)

	rec, err = b.s.Resolve(ctx, "/Music/track01.mp3")
	require.NoError(t, err)
	assert.Equal(t, first.Handle, rec.ID)
}

func TestCatalog_StrictNames(t *testing.T) {
	dev := simdevice.DefaultFixture().Devices[0].Build()
	music, ok := dev.Store().Find(internalStorage, "/Music")
	require.True(t, ok)
	dev.Store().AddFile(internalStorage, music.Handle, "track01.mp3", []byte("second"))
	b := newBenchFrom(t, dev, WithStrictNames(true))
	ctx := context.Background()

	_, err := b.s.Resolve(ctx, "/Music/track01.mp3")
	assert.ErrorIs(t, err, ErrAmbiguousMatch)

	// Stat keeps the first match.
	_, err = b.s.Stat(ctx, "/Music/track01.mp3")
	assert.NoError(t, err)

	_, err = b.s.Resolve(ctx, "/Music/track02.mp3")
	assert.NoError(t, err)
}

func TestCatalog_Corruption(t *testing.T) {
	t.Run("child reports another parent", func(t *testing.T) {
		b := newBench(t)
		track, _ := b.store().Find(internalStorage, "/Music/track01.mp3")
		db, _ := b.store().Find(internalStorage, "/db")
		b.store().Link(track.Handle, db.Handle)

		_, err := b.s.List(context.Background(), "/db")
		assert.ErrorIs(t, err, ErrCorruption)
		_, err = b.s.Stat(context.Background(), "/db/settings.db")
		assert.ErrorIs(t, err, ErrCorruption)
	})

	t.Run("folder lists itself", func(t *testing.T) {
		b := newBench(t)
		db, _ := b.store().Find(internalStorage, "/db")
		b.store().Link(db.Handle, db.Handle)

		_, err := b.s.List(context.Background(), "/db")
		assert.ErrorIs(t, err, ErrCorruption)
	})

	t.Run("handle listed twice", func(t *testing.T) {
		b := newBench(t)
		track, _ := b.store().Find(internalStorage, "/Music/track01.mp3")
		b.store().Link(track.Handle, track.Parent)

		_, err := b.s.List(context.Background(), "/Music")
		assert.ErrorIs(t, err, ErrCorruption)
	})
}

func TestStorage_Directory(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	storages, err := b.s.Storages(ctx)
	require.NoError(t, err)
	require.Len(t, storages, 2)
	assert.Equal(t, uint32(internalStorage), storages[0].ID)
	assert.Equal(t, "Internal shared storage", storages[0].Description)
	assert.Equal(t, "internal", storages[0].VolumeID)
	assert.Equal(t, uint64(1<<30), storages[0].Capacity)
	assert.Less(t, storages[0].Free, storages[0].Capacity)
	assert.False(t, storages[0].ReadOnly)
	assert.Equal(t, uint32(sdStorage), storages[1].ID)

	require.NoError(t, b.s.SetStorage(ctx, sdStorage))
	assert.Equal(t, "SD card", b.s.CurrentStorage().Description)
	recs, err := b.s.List(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, []string{"Android"}, names(recs))

	// Zero keeps the selection.
	require.NoError(t, b.s.SetStorage(ctx, 0))
	assert.Equal(t, uint32(sdStorage), b.s.CurrentStorage().ID)

	err = b.s.SetStorage(ctx, 0xDEAD0001)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, uint32(sdStorage), b.s.CurrentStorage().ID)

	require.NoError(t, b.s.SetStorage(ctx, internalStorage))
	recs, err = b.s.List(ctx, "/")
	require.NoError(t, err)
	assert.Len(t, recs, 4)
}

func TestStorage_SelectionRefreshesRoot(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	_, err := b.s.List(ctx, "/")
	require.NoError(t, err)
	b.store().AddFolder(internalStorage, ptp.HandleRoot, "Movies")

	recs, err := b.s.List(ctx, "/")
	require.NoError(t, err)
	assert.Len(t, recs, 4)

	require.NoError(t, b.s.SetStorage(ctx, internalStorage))
	recs, err = b.s.List(ctx, "/")
	require.NoError(t, err)
	assert.Contains(t, names(recs), "Movies")
}

func TestStorage_Refresh(t *testing.T) {
	b := newBench(t)
	ctx := context.Background()

	_, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	music, _ := b.store().Find(internalStorage, "/Music")
	b.store().AddFile(internalStorage, music.Handle, "track03.mp3", []byte("x"))

	storages, err := b.s.RefreshStorages(ctx)
	require.NoError(t, err)
	assert.Len(t, storages, 2)

	recs, err := b.s.List(ctx, "/Music")
	require.NoError(t, err)
	assert.Len(t, recs, 3)
}

func TestStorage_DeviceWithoutStorage(t *testing.T) {
	dev := simdevice.New(simdevice.Config{VendorID: 0x0e8d, ProductID: 0x201d, Product: "Empty"}, simdevice.NewStore())
	b := newBenchFrom(t, dev)
	ctx := context.Background()

	assert.Zero(t, b.s.CurrentStorage())
	storages, err := b.s.Storages(ctx)
	require.NoError(t, err)
	assert.Empty(t, storages)

	_, err = b.s.List(ctx, "/")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, errNoStorage)
}
