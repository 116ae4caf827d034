package mtp

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// ConnectOptions selects the device to connect to. Zero ids match any
// device, so the zero value picks the first one found.
type ConnectOptions struct {
	VendorID  uint16
	ProductID uint16
}

// Manager hands out at most one open Session at a time.
type Manager struct {
	enum transport.Enumerator
	cfg  config

	mu      sync.Mutex
	session *Session
}

// NewManager creates a Manager enumerating devices through enum.
func NewManager(enum transport.Enumerator, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{enum: enum, cfg: cfg}
}

// DeviceInfo enumerates attached devices. It does not need a Session.
func (m *Manager) DeviceInfo() ([]transport.DeviceDescriptor, error) {
	descs, err := m.enum.Enumerate()
	if err != nil {
		return nil, newError(KindTransport, "enumerate", "", err)
	}
	return descs, nil
}

// Session returns the open session, or nil.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Connect opens a session with the first device matching opts.
//
// It fails with ErrDeviceBusy while a session is open or when the device
// is claimed elsewhere, and with ErrNoDeviceFound when nothing matches.
func (m *Manager) Connect(ctx context.Context, opts ConnectOptions) (*Session, error) {
	const op = "connect"

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil {
		return nil, newError(KindDeviceBusy, op, "", errors.New("a session is already open"))
	}

	descs, err := m.enum.Enumerate()
	if err != nil {
		return nil, newError(KindTransport, op, "", err)
	}
	var desc *transport.DeviceDescriptor
	for i := range descs {
		if descs[i].Matches(opts.VendorID, opts.ProductID) {
			desc = &descs[i]
			break
		}
	}
	if desc == nil {
		return nil, newError(KindNoDeviceFound, op, "", nil)
	}

	dev, err := m.enum.Open(*desc)
	if err != nil {
		kind := KindTransport
		switch {
		case errors.Is(err, transport.ErrBusy):
			kind = KindDeviceBusy
		case errors.Is(err, transport.ErrNoDevice):
			kind = KindNoDeviceFound
		}
		return nil, newError(kind, op, "", err)
	}

	s := newSession(uuid.NewString(), *desc, dev, m.cfg)
	if err := s.open(ctx); err != nil {
		s.abandon()
		return nil, wrap(op, "", err)
	}
	s.onClose = m.forget
	m.session = s
	return s, nil
}

// Release closes the open session, if any. It is idempotent and safe
// after a failed or absent Connect.
func (m *Manager) Release() error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}

func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == s {
		m.session = nil
	}
}
