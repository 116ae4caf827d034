package mtp

import (
	"context"
	"errors"
	"hash"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/crypto/blake2b"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// TransferState is the state of one transfer.
type TransferState uint8

const (
	TransferIdle TransferState = iota
	TransferSendingMetadata
	TransferTransferringChunks
	TransferCompleted
	TransferFailed
)

var transferStateNames = map[TransferState]string{
	TransferIdle:               "IDLE",
	TransferSendingMetadata:    "SENDING_METADATA",
	TransferTransferringChunks: "TRANSFERRING_CHUNKS",
	TransferCompleted:          "COMPLETED",
	TransferFailed:             "FAILED",
}

func (t TransferState) String() string {
	if name, ok := transferStateNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}

// TransferResult describes a finished transfer. Digest is the BLAKE2b-256
// of the bytes streamed. Warning is set when an upload replaced a file
// of the same name but the old object could not be deleted; both then
// exist and the new one is ObjectID.
type TransferResult struct {
	ObjectID uint32
	Bytes    uint64
	Digest   []byte
	State    TransferState
	Warning  error
}

// MoveResult describes a finished move. Warning is set when the source
// could not be deleted after a copy; the copy is kept.
type MoveResult struct {
	ObjectID uint32
	Native   bool
	Warning  error
}

// transfer follows one transfer through its states.
type transfer struct {
	s       *Session
	path    string
	storage uint32
	state   TransferState
	start   time.Time
}

func (s *Session) newTransfer(path string, storage uint32) *transfer {
	return &transfer{s: s, path: path, storage: storage, state: TransferIdle, start: time.Now()}
}

func (t *transfer) to(state TransferState, reason string) {
	if state == t.state {
		return
	}
	t.s.logState(log.StateEntityTransfer, t.state.String(), state.String(), reason)
	t.s.logger.Debug("transfer state", "path", t.path, "from", t.state, "to", state)
	t.state = state
}

func (t *transfer) fail(err error) {
	t.to(TransferFailed, err.Error())
}

func newDigest() hash.Hash {
	// Only a key longer than 64 bytes makes New256 fail.
	h, _ := blake2b.New256(nil)
	return h
}

func applyTransferOptions(opts []TransferOption) transferConfig {
	var cfg transferConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// cleanupTimeout bounds the best-effort delete after a failed upload.
const cleanupTimeout = 5 * time.Second

// Upload sends the host file at localPath to remotePath.
//
// If remotePath is a folder the file goes into it under its local name.
// Otherwise the last component of remotePath names the new object in the
// folder before it. An existing file of that name is replaced: it is
// deleted only after the device has accepted the new object, so a failed
// or cancelled upload leaves it untouched. On failure after the object was
// announced, the new object is deleted again.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string, opts ...TransferOption) (res TransferResult, err error) {
	const op = "upload"
	cfg := applyTransferOptions(opts)
	prog := newProgress(cfg, 0, &s.inCallback)
	defer func() { prog.finish(err) }()

	done, err := s.begin(ctx, op)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	defer done()

	parent, parentPath, name, err := s.uploadTarget(ctx, op, remotePath, filepath.Base(localPath))
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	return s.upload(ctx, op, s.cfg.fs, localPath, parent, childPath(parentPath, name), name, prog)
}

// uploadTarget returns the folder, its path and the name an upload to
// remotePath creates.
func (s *Session) uploadTarget(ctx context.Context, op, remotePath, localName string) (ObjectRecord, string, string, error) {
	parts, err := splitPath(remotePath)
	if err != nil {
		return ObjectRecord{}, "", "", newError(KindInvalidPath, op, remotePath, err)
	}
	if len(parts) == 0 {
		root, err := s.lookupFolder(ctx, op, "/")
		return root, "/", localName, err
	}

	rec, err := s.lookup(ctx, op, remotePath, false)
	switch {
	case err == nil && rec.IsFolder():
		return rec, joinPath(parts), localName, nil
	case err == nil, KindOf(err) == KindNotFound:
		dir := joinPath(parts[:len(parts)-1])
		parent, err := s.lookupFolder(ctx, op, dir)
		return parent, dir, parts[len(parts)-1], err
	}
	return ObjectRecord{}, "", "", err
}

// upload streams localPath from fsys as name under parent, remote being
// the resulting device path. Callers hold the session.
func (s *Session) upload(ctx context.Context, op string, fsys afero.Fs, localPath string, parent ObjectRecord, remote, name string, prog *progress) (TransferResult, error) {
	t := s.newTransfer(remote, parent.StorageID)
	failed := func(err error) (TransferResult, error) {
		t.fail(err)
		return TransferResult{State: TransferFailed}, err
	}

	fi, err := fsys.Stat(localPath)
	if err != nil {
		return failed(newError(KindIO, op, localPath, err))
	}
	if fi.IsDir() {
		return failed(newError(KindIO, op, localPath, errIsFolder))
	}
	if err := checkName(name); err != nil {
		return failed(newError(KindInvalidPath, op, remote, err))
	}
	size := uint64(fi.Size())
	prog.total = size

	defer s.cache.invalidate(parent.StorageID, parent.ID)
	existing, exists, err := s.findChild(ctx, parent, name)
	if err != nil {
		return failed(wrap(op, remote, err))
	}
	if exists && existing.IsFolder() {
		return failed(newError(KindAlreadyExists, op, remote, errNameConflict))
	}

	f, err := fsys.Open(localPath)
	if err != nil {
		return failed(newError(KindIO, op, localPath, err))
	}
	defer f.Close()

	t.to(TransferSendingMetadata, "")
	info := &ptp.ObjectInfo{
		StorageID:        parent.StorageID,
		ObjectFormat:     ptp.FormatForName(name),
		CompressedSize:   uint32(min(size, 0xFFFFFFFF)),
		ParentObject:     parent.ID,
		Filename:         name,
		ModificationDate: fi.ModTime(),
	}
	_, _, handle, err := s.client.SendObjectInfo(ctx, parent.StorageID, sendParent(parent.ID), info)
	if err != nil {
		return failed(wrap(op, remote, err))
	}

	t.to(TransferTransferringChunks, "")
	digest := newDigest()
	n, err := s.client.SendObject(ctx, io.TeeReader(f, digest), size, prog.chunk)
	if err != nil {
		s.discard(handle)
		res, err := failed(wrap(op, remote, err))
		res.Bytes = n
		return res, err
	}
	prog.complete()
	t.to(TransferCompleted, "")

	res := TransferResult{ObjectID: handle, Bytes: n, Digest: digest.Sum(nil), State: TransferCompleted}
	if exists {
		if err := s.deleteRecord(ctx, op, remote, existing); err != nil {
			s.logger.Warn("upload: replaced file kept", "path", remote, "handle", existing.ID, "error", err)
			res.Warning = err
		}
	}
	s.logTransfer(log.DirectionOut, parent.StorageID, log.TransferEvent{
		ObjectID: handle,
		Path:     remote,
		Bytes:    n,
		Total:    size,
		Digest:   res.Digest,
		Duration: time.Since(t.start),
	})
	s.logger.Info("upload complete", "path", remote, "handle", handle, "bytes", n)
	return res, nil
}

// discard deletes a partially uploaded object on a best-effort basis.
func (s *Session) discard(handle uint32) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := s.client.DeleteObject(ctx, handle); err != nil {
		s.logger.Warn("could not remove partial object", "handle", handle, "error", err)
	}
}

// Download copies the file at remotePath to localPath. If localPath is a
// directory the file keeps its device name. The data lands in a
// temporary file that replaces the target only on success.
func (s *Session) Download(ctx context.Context, remotePath, localPath string, opts ...TransferOption) (res TransferResult, err error) {
	const op = "download"
	cfg := applyTransferOptions(opts)
	prog := newProgress(cfg, 0, &s.inCallback)
	defer func() { prog.finish(err) }()

	done, err := s.begin(ctx, op)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	defer done()

	rec, err := s.lookupObject(ctx, op, remotePath, false)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	if rec.IsFolder() {
		return TransferResult{State: TransferFailed}, newError(KindInvalidPath, op, remotePath, errIsFolder)
	}

	target := localPath
	if fi, err := s.cfg.fs.Stat(localPath); err == nil && fi.IsDir() {
		target = filepath.Join(localPath, rec.Name)
	}
	return s.download(ctx, op, rec, s.cfg.fs, target, remotePath, prog)
}

// download streams rec into target on fsys. Callers hold the session.
func (s *Session) download(ctx context.Context, op string, rec ObjectRecord, fsys afero.Fs, target, remote string, prog *progress) (TransferResult, error) {
	t := s.newTransfer(remote, rec.StorageID)
	failed := func(err error) (TransferResult, error) {
		t.fail(err)
		return TransferResult{State: TransferFailed}, err
	}
	prog.total = rec.Size

	dir := filepath.Dir(target)
	if di, err := fsys.Stat(dir); err != nil {
		return failed(newError(KindIO, op, dir, err))
	} else if !di.IsDir() {
		return failed(newError(KindIO, op, dir, errIsFile))
	}

	tmp, err := afero.TempFile(fsys, dir, "."+filepath.Base(target)+".*.part")
	if err != nil {
		return failed(newError(KindIO, op, target, err))
	}

	t.to(TransferTransferringChunks, "")
	digest := newDigest()
	n, err := s.client.GetObject(ctx, rec.ID, rec.Size, io.MultiWriter(tmp, digest), prog.chunk)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = newError(KindIO, op, target, cerr)
	}
	if err == nil {
		if rerr := fsys.Rename(tmp.Name(), target); rerr != nil {
			err = newError(KindIO, op, target, rerr)
		}
	}
	if err != nil {
		_ = fsys.Remove(tmp.Name())
		res, err := failed(wrap(op, remote, err))
		res.Bytes = n
		return res, err
	}
	prog.complete()
	t.to(TransferCompleted, "")

	res := TransferResult{ObjectID: rec.ID, Bytes: n, Digest: digest.Sum(nil), State: TransferCompleted}
	s.logTransfer(log.DirectionIn, rec.StorageID, log.TransferEvent{
		ObjectID: rec.ID,
		Path:     remote,
		Bytes:    n,
		Total:    rec.Size,
		Digest:   res.Digest,
		Duration: time.Since(t.start),
	})
	s.logger.Info("download complete", "path", remote, "target", target, "bytes", n)
	return res, nil
}

var errFolderCopy = errors.New("copying a folder needs a device with CopyObject")

// Copy copies the object at src into the folder at dstFolder. Devices
// without CopyObject get a round trip through host memory, which works
// for files only.
func (s *Session) Copy(ctx context.Context, src, dstFolder string, opts ...TransferOption) (res TransferResult, err error) {
	const op = "copy"
	cfg := applyTransferOptions(opts)
	prog := newProgress(cfg, 0, &s.inCallback)
	defer func() { prog.finish(err) }()

	done, err := s.begin(ctx, op)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	defer done()

	rec, err := s.lookupObject(ctx, op, src, false)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	dst, err := s.lookupFolder(ctx, op, dstFolder)
	if err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	return s.copyRecord(ctx, op, rec, dst, src, dstFolder, prog)
}

func (s *Session) copyRecord(ctx context.Context, op string, rec, dst ObjectRecord, src, dstPath string, prog *progress) (TransferResult, error) {
	target := childPath(dstPath, rec.Name)
	if rec.ID == dst.ID {
		return TransferResult{State: TransferFailed}, newError(KindInvalidPath, op, src, errors.New("cannot copy a folder into itself"))
	}
	defer s.cache.invalidate(dst.StorageID, dst.ID)
	if _, exists, err := s.findChild(ctx, dst, rec.Name); err != nil {
		return TransferResult{State: TransferFailed}, wrap(op, src, err)
	} else if exists {
		return TransferResult{State: TransferFailed}, newError(KindAlreadyExists, op, target, nil)
	}

	if s.nativeCopy {
		handle, err := s.client.CopyObject(ctx, rec.ID, dst.StorageID, dst.ID)
		if err != nil {
			return TransferResult{State: TransferFailed}, wrap(op, src, err)
		}
		prog.total = rec.Size
		prog.sent = rec.Size
		prog.complete()
		return TransferResult{ObjectID: handle, Bytes: rec.Size, State: TransferCompleted}, nil
	}

	if rec.IsFolder() {
		return TransferResult{State: TransferFailed}, newError(KindInvalidPath, op, src, errFolderCopy)
	}
	mem := afero.NewMemMapFs()
	staged := "/" + rec.Name
	silent := newProgress(transferConfig{}, rec.Size, &s.inCallback)
	if _, err := s.download(ctx, op, rec, mem, staged, src, silent); err != nil {
		return TransferResult{State: TransferFailed}, err
	}
	return s.upload(ctx, op, mem, staged, dst, target, rec.Name, prog)
}

// Move moves the object at src into the folder at dstFolder. Without
// MoveObject on the device it copies and then deletes the source. If
// that delete fails the move still succeeds, with the failure in
// MoveResult.Warning; the source is never lost.
func (s *Session) Move(ctx context.Context, src, dstFolder string, opts ...TransferOption) (res MoveResult, err error) {
	const op = "move"
	cfg := applyTransferOptions(opts)
	prog := newProgress(cfg, 0, &s.inCallback)
	defer func() { prog.finish(err) }()

	done, err := s.begin(ctx, op)
	if err != nil {
		return MoveResult{}, err
	}
	defer done()

	rec, err := s.lookupObject(ctx, op, src, false)
	if err != nil {
		return MoveResult{}, err
	}
	dst, err := s.lookupFolder(ctx, op, dstFolder)
	if err != nil {
		return MoveResult{}, err
	}
	if rec.ParentID == dst.ID && rec.StorageID == dst.StorageID {
		return MoveResult{ObjectID: rec.ID, Native: s.nativeMove}, nil
	}
	if rec.ID == dst.ID {
		return MoveResult{}, newError(KindInvalidPath, op, src, errors.New("cannot move a folder into itself"))
	}

	if !s.nativeMove {
		cp, err := s.copyRecord(ctx, op, rec, dst, src, dstFolder, prog)
		if err != nil {
			return MoveResult{}, err
		}
		if err := s.deleteRecord(ctx, op, src, rec); err != nil {
			s.logger.Warn("move: source kept after copy", "path", src, "error", err)
			return MoveResult{ObjectID: cp.ObjectID, Warning: err}, nil
		}
		return MoveResult{ObjectID: cp.ObjectID}, nil
	}

	defer s.cache.invalidate(rec.StorageID, rec.ParentID)
	defer s.cache.invalidate(dst.StorageID, dst.ID)
	if rec.IsFolder() {
		defer s.cache.invalidateTree(rec.StorageID, rec.ID)
	}
	if _, exists, err := s.findChild(ctx, dst, rec.Name); err != nil {
		return MoveResult{}, wrap(op, src, err)
	} else if exists {
		return MoveResult{}, newError(KindAlreadyExists, op, childPath(dstFolder, rec.Name), nil)
	}
	if err := s.client.MoveObject(ctx, rec.ID, dst.StorageID, dst.ID); err != nil {
		return MoveResult{}, wrap(op, src, err)
	}
	return MoveResult{ObjectID: rec.ID, Native: true}, nil
}
