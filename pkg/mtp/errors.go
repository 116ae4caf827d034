package mtp

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// Kind classifies an error.
type Kind uint8

// Error kinds.
const (
	KindUnknown Kind = iota
	KindNoDeviceFound
	KindDeviceBusy
	KindNotFound
	KindInvalidPath
	KindNotAFolder
	KindNotEmpty
	KindAmbiguousMatch
	KindAlreadyExists
	KindIO
	KindTransport
	KindProtocol
	KindCorruption
	KindBusy
	KindCancelled
	KindClosed
)

var kindNames = map[Kind]string{
	KindUnknown:        "unknown error",
	KindNoDeviceFound:  "no device found",
	KindDeviceBusy:     "device busy",
	KindNotFound:       "not found",
	KindInvalidPath:    "invalid path",
	KindNotAFolder:     "not a folder",
	KindNotEmpty:       "folder not empty",
	KindAmbiguousMatch: "ambiguous name",
	KindAlreadyExists:  "already exists",
	KindIO:             "i/o error",
	KindTransport:      "transport error",
	KindProtocol:       "protocol error",
	KindCorruption:     "corrupt object tree",
	KindBusy:           "session busy",
	KindCancelled:      "cancelled",
	KindClosed:         "session closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is the error type returned by every public operation.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := "mtp"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	msg += ": " + e.Kind.String()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches a sentinel of the same kind, so that
// errors.Is(err, mtp.ErrNotFound) works for any not-found error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Path == "" && t.Err == nil && t.Kind == e.Kind
}

// Sentinels, one per kind.
var (
	ErrNoDeviceFound  = &Error{Kind: KindNoDeviceFound}
	ErrDeviceBusy     = &Error{Kind: KindDeviceBusy}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrInvalidPath    = &Error{Kind: KindInvalidPath}
	ErrNotAFolder     = &Error{Kind: KindNotAFolder}
	ErrNotEmpty       = &Error{Kind: KindNotEmpty}
	ErrAmbiguousMatch = &Error{Kind: KindAmbiguousMatch}
	ErrAlreadyExists  = &Error{Kind: KindAlreadyExists}
	ErrIO             = &Error{Kind: KindIO}
	ErrTransport      = &Error{Kind: KindTransport}
	ErrProtocol       = &Error{Kind: KindProtocol}
	ErrCorruption     = &Error{Kind: KindCorruption}
	ErrBusy           = &Error{Kind: KindBusy}
	ErrCancelled      = &Error{Kind: KindCancelled}
	ErrClosed         = &Error{Kind: KindClosed}
)

// Detail errors carried in Error.Err.
var (
	errIsFolder     = errors.New("is a folder")
	errIsFile       = errors.New("is a file")
	errRoot         = errors.New("storage root is not an object")
	errReentrant    = errors.New("called from a progress callback")
	errNameConflict = errors.New("a folder of that name exists")
)

// KindOf returns the kind of err. Errors that did not come from this
// package are classified by their cause.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	var re *interaction.ResponseError
	if errors.As(err, &re) {
		return responseKind(re.Code)
	}
	var pe *fs.PathError
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCancelled
	case errors.Is(err, transport.ErrNoDevice):
		return KindNoDeviceFound
	case errors.Is(err, transport.ErrBusy):
		return KindDeviceBusy
	case errors.Is(err, transport.ErrUnexpectedContainer),
		errors.Is(err, transport.ErrContainerTruncated),
		errors.Is(err, interaction.ErrTransactionMismatch),
		errors.Is(err, interaction.ErrUnexpectedReply),
		errors.Is(err, ptp.ErrDatasetTruncated),
		errors.Is(err, ptp.ErrShortContainer),
		errors.Is(err, ptp.ErrBadLength),
		errors.Is(err, ptp.ErrBadDateTime):
		return KindProtocol
	case errors.Is(err, transport.ErrAccess),
		errors.Is(err, transport.ErrDisconnected),
		errors.Is(err, transport.ErrTimeout),
		errors.Is(err, transport.ErrStall),
		errors.Is(err, transport.ErrClosed),
		errors.Is(err, transport.ErrShortData):
		return KindTransport
	case errors.As(err, &pe), errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return KindIO
	}
	return KindUnknown
}

// responseKind maps a device response code to an error kind.
func responseKind(code ptp.ResponseCode) Kind {
	switch code {
	case ptp.RespInvalidObjectHandle, ptp.RespInvalidStorageID, ptp.RespStoreNotAvailable:
		return KindNotFound
	case ptp.RespInvalidParentObject:
		return KindNotAFolder
	case ptp.RespPartialDeletion:
		return KindNotEmpty
	case ptp.RespDeviceBusy:
		return KindDeviceBusy
	case ptp.RespTransactionCancelled:
		return KindCancelled
	case ptp.RespStoreFull, ptp.RespStoreReadOnly, ptp.RespAccessDenied,
		ptp.RespObjectWriteProtected, ptp.RespObjectTooLarge, ptp.RespIncompleteTransfer:
		return KindIO
	}
	return KindProtocol
}

// wrap returns err as an *Error for op. Errors that already are one keep
// their kind and gain the op and path if they had none.
func wrap(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		if e.Op == "" && e.Path == "" {
			return &Error{Kind: e.Kind, Op: op, Path: path, Err: e.Err}
		}
		return err
	}
	return &Error{Kind: classify(err), Op: op, Path: path, Err: err}
}

func newError(kind Kind, op, path string, err error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}
