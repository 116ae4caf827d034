package simdevice

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

//go:embed fixtures/default.yaml
var defaultFixture []byte

// DefaultStorageCapacity applies to storages without a capacity.
const DefaultStorageCapacity = 1 << 30

// Fixture describes a set of simulated devices.
type Fixture struct {
	Devices []DeviceFixture `yaml:"devices"`
}

// DeviceFixture describes one device and its storages.
type DeviceFixture struct {
	VendorID   uint16 `yaml:"vendor_id"`
	ProductID  uint16 `yaml:"product_id"`
	Vendor     string `yaml:"vendor"`
	Product    string `yaml:"product"`
	Serial     string `yaml:"serial"`
	Version    string `yaml:"version"`
	PacketSize int    `yaml:"packet_size"`

	// Capabilities, all enabled when omitted.
	NativeCopy      *bool `yaml:"native_copy"`
	NativeMove      *bool `yaml:"native_move"`
	RecursiveDelete *bool `yaml:"recursive_delete"`

	Storages []StorageFixture `yaml:"storages"`
}

// StorageFixture describes a storage and its object tree.
type StorageFixture struct {
	ID          uint32        `yaml:"id"`
	Description string        `yaml:"description"`
	Volume      string        `yaml:"volume"`
	Capacity    uint64        `yaml:"capacity"`
	ReadOnly    bool          `yaml:"read_only"`
	Tree        []NodeFixture `yaml:"tree"`
}

// NodeFixture is a file or folder. A node with children is a folder.
// File bytes come from Content, or Size generated bytes.
type NodeFixture struct {
	Name     string        `yaml:"name"`
	Folder   bool          `yaml:"folder"`
	Content  string        `yaml:"content"`
	Size     int           `yaml:"size"`
	Children []NodeFixture `yaml:"children"`
}

// IsFolder reports whether the node is a folder.
func (n *NodeFixture) IsFolder() bool {
	return n.Folder || len(n.Children) > 0
}

// LoadError reports a fixture that could not be loaded.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ParseFixture parses and validates a fixture from YAML bytes.
func ParseFixture(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFixture loads a fixture from a file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := ParseFixture(data)
	if err != nil {
		if le, ok := err.(*LoadError); ok {
			le.File = path
		}
		return nil, err
	}
	return f, nil
}

// DefaultFixture returns the built-in fixture: one device with vendor id
// 3725 and product id 8221, two storages, a /db folder.
func DefaultFixture() *Fixture {
	f, err := ParseFixture(defaultFixture)
	if err != nil {
		panic(fmt.Sprintf("simdevice: default fixture: %v", err))
	}
	return f
}

func (f *Fixture) validate() error {
	if len(f.Devices) == 0 {
		return &LoadError{Message: "fixture must have at least one device"}
	}
	for i, d := range f.Devices {
		if len(d.Storages) == 0 {
			return &LoadError{Message: fmt.Sprintf("device %d: at least one storage is required", i)}
		}
		seen := map[uint32]bool{}
		for _, s := range d.Storages {
			if s.ID == 0 || s.ID == ptp.StorageAll {
				return &LoadError{Message: fmt.Sprintf("device %d: invalid storage id 0x%08X", i, s.ID)}
			}
			if seen[s.ID] {
				return &LoadError{Message: fmt.Sprintf("device %d: duplicate storage id 0x%08X", i, s.ID)}
			}
			seen[s.ID] = true
			if err := validateNodes(s.Tree, "/"); err != nil {
				return &LoadError{Message: fmt.Sprintf("device %d storage 0x%08X: %v", i, s.ID, err)}
			}
		}
	}
	return nil
}

func validateNodes(nodes []NodeFixture, dir string) error {
	for _, n := range nodes {
		if n.Name == "" || n.Name == "." || n.Name == ".." || strings.ContainsAny(n.Name, "/\x00") {
			return fmt.Errorf("invalid name %q under %s", n.Name, dir)
		}
		if n.IsFolder() && (n.Content != "" || n.Size != 0) {
			return fmt.Errorf("%s%s: folder with content", dir, n.Name)
		}
		if n.Size < 0 {
			return fmt.Errorf("%s%s: negative size", dir, n.Name)
		}
		if err := validateNodes(n.Children, dir+n.Name+"/"); err != nil {
			return err
		}
	}
	return nil
}

// Build creates a bus with every device of the fixture attached.
func (f *Fixture) Build() *Enumerator {
	e := NewEnumerator()
	for _, d := range f.Devices {
		e.Add(d.Build())
	}
	return e
}

// Build creates the device and populates its store.
func (df *DeviceFixture) Build() *Device {
	var storages []Storage
	for _, s := range df.Storages {
		capacity := s.Capacity
		if capacity == 0 {
			capacity = DefaultStorageCapacity
		}
		storages = append(storages, Storage{
			ID:          s.ID,
			Description: s.Description,
			VolumeID:    s.Volume,
			Capacity:    capacity,
			ReadOnly:    s.ReadOnly,
		})
	}
	store := NewStore(storages...)
	for _, s := range df.Storages {
		addNodes(store, s.ID, ptp.HandleRoot, s.Tree)
	}
	if df.NativeCopy != nil && !*df.NativeCopy {
		store.Disable(ptp.OpCopyObject)
	}
	if df.NativeMove != nil && !*df.NativeMove {
		store.Disable(ptp.OpMoveObject)
	}
	if df.RecursiveDelete != nil && !*df.RecursiveDelete {
		store.RefuseRecursiveDelete(true)
	}
	return New(Config{
		VendorID:   df.VendorID,
		ProductID:  df.ProductID,
		Vendor:     df.Vendor,
		Product:    df.Product,
		Serial:     df.Serial,
		Version:    df.Version,
		PacketSize: df.PacketSize,
	}, store)
}

func addNodes(store *Store, storage, parent uint32, nodes []NodeFixture) {
	for _, n := range nodes {
		if n.IsFolder() {
			h := store.AddFolder(storage, parent, n.Name)
			addNodes(store, storage, h, n.Children)
			continue
		}
		data := []byte(n.Content)
		if n.Content == "" && n.Size > 0 {
			data = Pattern(n.Size)
		}
		store.AddFile(storage, parent, n.Name, data)
	}
}

// Pattern returns n deterministic bytes, the content of generated files.
func Pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}
