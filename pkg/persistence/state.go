package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/luck-mtp/mtp-go/pkg/transport"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrUnsupportedVersion is returned when the state file was written by a
// newer format.
var ErrUnsupportedVersion = errors.New("unsupported state file version")

// CLIState is what mtpctl remembers between invocations.
type CLIState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// LastDevice is the ID of the device connected most recently.
	LastDevice string `json:"last_device,omitempty"`

	// Devices holds per-device preferences keyed by "vvvv:pppp".
	Devices map[string]DeviceRecord `json:"devices,omitempty"`
}

// DeviceRecord is what is remembered about one device.
type DeviceRecord struct {
	VendorID  uint16 `json:"vendor_id"`
	ProductID uint16 `json:"product_id"`
	Vendor    string `json:"vendor,omitempty"`
	Product   string `json:"product,omitempty"`

	// Storage is the storage id selected last, 0 for the default.
	Storage uint32 `json:"storage,omitempty"`

	// Cwd is the shell's working directory on the device.
	Cwd string `json:"cwd,omitempty"`

	LastSeenAt time.Time `json:"last_seen_at"`
}

// Touch records that desc was connected at now and makes it the last
// device. The stored storage and directory are kept.
func (s *CLIState) Touch(desc transport.DeviceDescriptor, now time.Time) *DeviceRecord {
	if s.Devices == nil {
		s.Devices = make(map[string]DeviceRecord)
	}
	id := desc.ID()
	rec := s.Devices[id]
	rec.VendorID = desc.VendorID
	rec.ProductID = desc.ProductID
	rec.Vendor = desc.Vendor
	rec.Product = desc.Product
	rec.LastSeenAt = now
	s.Devices[id] = rec
	s.LastDevice = id
	return &rec
}

// Update applies fn to the record for id, if there is one.
func (s *CLIState) Update(id string, fn func(*DeviceRecord)) bool {
	rec, ok := s.Devices[id]
	if !ok {
		return false
	}
	fn(&rec)
	s.Devices[id] = rec
	return true
}

// Last returns the record of the last connected device.
func (s *CLIState) Last() (DeviceRecord, bool) {
	if s.LastDevice == "" {
		return DeviceRecord{}, false
	}
	rec, ok := s.Devices[s.LastDevice]
	return rec, ok
}

// StateStore manages persistence of CLI state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	fs   afero.Fs
	path string
}

// NewStateStore creates a store for the file at path on the host
// filesystem.
func NewStateStore(path string) *StateStore {
	return NewStateStoreFs(afero.NewOsFs(), path)
}

// NewStateStoreFs creates a store on fsys.
func NewStateStoreFs(fsys afero.Fs, path string) *StateStore {
	return &StateStore{fs: fsys, path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string {
	return s.path
}

// Save persists the state. The file is replaced atomically.
func (s *StateStore) Save(state *CLIState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := afero.TempFile(s.fs, dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	if err := s.fs.Rename(tmp.Name(), s.path); err != nil {
		s.fs.Remove(tmp.Name())
		return err
	}
	return nil
}

// Load reads the state. A missing file yields an empty state.
func (s *StateStore) Load() (*CLIState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return &CLIState{Version: StateVersion}, nil
	}
	if err != nil {
		return nil, err
	}

	state := &CLIState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	if state.Version > StateVersion {
		return nil, fmt.Errorf("%s: %w %d", s.path, ErrUnsupportedVersion, state.Version)
	}
	return state, nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.fs.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
