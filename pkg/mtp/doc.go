// Package mtp is an MTP client: device selection, the session lifecycle,
// storage selection, path resolution and object transfers.
//
// # Sessions
//
// A Manager hands out at most one Session at a time:
//
//	m := mtp.NewManager(usb.NewEnumerator(), mtp.WithLogger(logger))
//	s, err := m.Connect(ctx, mtp.ConnectOptions{VendorID: 0x0e8d, ProductID: 0x201d})
//	if err != nil {
//	    return err
//	}
//	defer m.Release()
//
// Connect opens the PTP session, probes the device's operations and
// enumerates its storages. The first storage is current; SetStorage
// selects another.
//
// # Paths
//
// MTP has no paths, only object handles with parent links. The Session
// resolves slash-separated paths against the current storage, one
// component at a time, and caches each folder listing until a mutation
// touches it. When a folder holds several objects of the same name the
// first one listed wins; Resolve with WithStrictNames reports
// ErrAmbiguousMatch instead.
//
// # Transfers
//
// Upload, Download, Copy and Move stream in chunks and report progress:
//
//	res, err := s.Upload(ctx, "song.mp3", "/Music", mtp.WithProgress(func(sent, total uint64) {
//	    fmt.Printf("\r%d/%d", sent, total)
//	}))
//
// Cancelling ctx or returning an error from a ProgressHook aborts the
// transfer. A failed upload removes the object it started.
//
// # Concurrency
//
// A Session runs one protocol exchange at a time. Depending on the
// BusyPolicy a concurrent call waits or fails with ErrBusy. Progress
// callbacks must not call back into the Session.
//
// # Errors
//
// Every operation returns an *Error whose Kind can be tested with
// errors.Is against the ErrX sentinels:
//
//	if errors.Is(err, mtp.ErrNotFound) { ... }
package mtp
