package mtp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// SessionState is the lifecycle state of a Session.
type SessionState uint8

const (
	SessionClosed SessionState = iota
	SessionOpen
)

func (s SessionState) String() string {
	if s == SessionOpen {
		return "OPEN"
	}
	return "CLOSED"
}

// Session is an open MTP session with one device. It owns the device
// handle. All methods are safe for concurrent use; protocol exchanges are
// serialized according to the configured BusyPolicy.
//
// Methods must not be called from a progress callback of a transfer on
// the same Session; they return ErrBusy if they are.
type Session struct {
	id     string
	desc   transport.DeviceDescriptor
	cfg    config
	logger *slog.Logger

	dev    transport.Device
	client *interaction.Client
	info   *ptp.DeviceInfo

	// Capability probe, resolved at connect.
	nativeCopy bool
	nativeMove bool

	sem        *semaphore.Weighted
	inCallback atomic.Bool

	mu       sync.Mutex
	closed   bool
	storages []StorageInfo
	current  uint32
	cache    *catalog

	onClose func(*Session)
}

func newSession(id string, desc transport.DeviceDescriptor, dev transport.Device, cfg config) *Session {
	s := &Session{
		id:     id,
		desc:   desc,
		cfg:    cfg,
		logger: cfg.logger.With("session", id, "device", desc.ID()),
		dev:    dev,
		client: interaction.NewClient(dev),
		sem:    semaphore.NewWeighted(1),
		cache:  newCatalog(),
	}
	s.client.SetTimeout(cfg.timeout)
	s.client.SetChunkSize(cfg.chunkSize)
	if cfg.protocolLogger != nil {
		s.client.SetLogger(cfg.protocolLogger, id)
	}
	return s
}

// ID returns the session id that tags log events.
func (s *Session) ID() string {
	return s.id
}

// Descriptor returns the descriptor of the device.
func (s *Session) Descriptor() transport.DeviceDescriptor {
	return s.desc
}

// Info returns a copy of the DeviceInfo dataset read at connect.
func (s *Session) Info() ptp.DeviceInfo {
	info := *s.info
	info.OperationsSupported = append([]ptp.OperationCode(nil), s.info.OperationsSupported...)
	return info
}

// NativeCopy reports whether Copy uses the device's CopyObject.
func (s *Session) NativeCopy() bool {
	return s.nativeCopy
}

// NativeMove reports whether Move uses the device's MoveObject.
func (s *Session) NativeMove() bool {
	return s.nativeMove
}

// ChunkSize returns the effective bulk transfer size.
func (s *Session) ChunkSize() int {
	return s.client.ChunkSize()
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return SessionClosed
	}
	return SessionOpen
}

// begin takes the session for one public operation. The returned func
// gives it back.
func (s *Session) begin(ctx context.Context, op string) (func(), error) {
	if s.inCallback.Load() {
		return nil, newError(KindBusy, op, "", errReentrant)
	}
	if s.cfg.busy == BusyFailFast {
		if !s.sem.TryAcquire(1) {
			return nil, newError(KindBusy, op, "", nil)
		}
	} else if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, newError(KindCancelled, op, "", err)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		s.sem.Release(1)
		return nil, newError(KindClosed, op, "", nil)
	}
	return func() { s.sem.Release(1) }, nil
}

// open runs the connect sequence: OpenSession, the capability probe and
// storage enumeration.
func (s *Session) open(ctx context.Context) error {
	if err := s.client.OpenSession(ctx); err != nil {
		return err
	}
	info, err := s.client.GetDeviceInfo(ctx)
	if err != nil {
		return err
	}
	s.info = info
	s.nativeCopy = info.Supports(ptp.OpCopyObject)
	s.nativeMove = info.Supports(ptp.OpMoveObject)

	if err := s.enumerateStorages(ctx); err != nil {
		return err
	}
	s.logState(log.StateEntitySession, SessionClosed.String(), SessionOpen.String(), "connect")
	s.logger.Info("session open",
		"manufacturer", info.Manufacturer,
		"model", info.Model,
		"storages", len(s.storages),
		"native_copy", s.nativeCopy,
		"native_move", s.nativeMove)
	return nil
}

// Close ends the session and releases the device. It is idempotent and
// always leaves the session closed; device errors are logged, not
// returned. A transfer in progress is waited for.
func (s *Session) Close() error {
	if s.inCallback.Load() {
		return newError(KindBusy, "close", "", errReentrant)
	}
	_ = s.sem.Acquire(context.Background(), 1)
	defer s.sem.Release(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cache.clear()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
	defer cancel()
	if s.client.IsOpen() {
		if err := s.client.CloseSession(ctx); err != nil {
			s.logger.Debug("close session failed", "error", err)
		}
	}
	if err := s.dev.Close(); err != nil {
		s.logger.Debug("device close failed", "error", err)
	}

	s.logState(log.StateEntitySession, SessionOpen.String(), SessionClosed.String(), "release")
	s.logger.Info("session closed")
	if s.onClose != nil {
		s.onClose(s)
	}
	return nil
}

// abandon releases the handle after a failed connect.
func (s *Session) abandon() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.client.IsOpen() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.timeout)
		_ = s.client.CloseSession(ctx)
		cancel()
	}
	if err := s.dev.Close(); err != nil {
		s.logger.Debug("device close failed", "error", err)
	}
}

func (s *Session) logState(entity log.StateEntity, oldState, newState, reason string) {
	if s.cfg.protocolLogger == nil {
		return
	}
	s.cfg.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Direction: log.DirectionOut,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		Device:    s.desc.ID(),
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (s *Session) logTransfer(dir log.Direction, storage uint32, ev log.TransferEvent) {
	if s.cfg.protocolLogger == nil {
		return
	}
	s.cfg.protocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		SessionID: s.id,
		Direction: dir,
		Layer:     log.LayerSession,
		Category:  log.CategoryTransfer,
		Device:    s.desc.ID(),
		StorageID: storage,
		Transfer:  &ev,
	})
}
