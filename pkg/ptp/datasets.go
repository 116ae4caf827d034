package ptp

import "time"

// DeviceInfo is the dataset returned by GetDeviceInfo.
type DeviceInfo struct {
	StandardVersion           uint16
	VendorExtensionID         uint32
	VendorExtensionVersion    uint16
	VendorExtensionDesc       string
	FunctionalMode            uint16
	OperationsSupported       []OperationCode
	EventsSupported           []EventCode
	DevicePropertiesSupported []uint16
	CaptureFormats            []ObjectFormat
	PlaybackFormats           []ObjectFormat
	Manufacturer              string
	Model                     string
	DeviceVersion             string
	SerialNumber              string
}

// Supports reports whether the device advertises op.
func (d *DeviceInfo) Supports(op OperationCode) bool {
	for _, o := range d.OperationsSupported {
		if o == op {
			return true
		}
	}
	return false
}

// MarshalBinary encodes the dataset.
func (d *DeviceInfo) MarshalBinary() ([]byte, error) {
	e := NewEncoder()
	e.Uint16(d.StandardVersion)
	e.Uint32(d.VendorExtensionID)
	e.Uint16(d.VendorExtensionVersion)
	e.String(d.VendorExtensionDesc)
	e.Uint16(d.FunctionalMode)
	e.Uint16Array(opsToU16(d.OperationsSupported))
	events := make([]uint16, len(d.EventsSupported))
	for i, ev := range d.EventsSupported {
		events[i] = uint16(ev)
	}
	e.Uint16Array(events)
	e.Uint16Array(d.DevicePropertiesSupported)
	e.Uint16Array(formatsToU16(d.CaptureFormats))
	e.Uint16Array(formatsToU16(d.PlaybackFormats))
	e.String(d.Manufacturer)
	e.String(d.Model)
	e.String(d.DeviceVersion)
	e.String(d.SerialNumber)
	return e.Bytes()
}

// UnmarshalBinary decodes the dataset.
func (d *DeviceInfo) UnmarshalBinary(data []byte) error {
	r := NewDecoder(data)
	d.StandardVersion = r.Uint16()
	d.VendorExtensionID = r.Uint32()
	d.VendorExtensionVersion = r.Uint16()
	d.VendorExtensionDesc = r.String()
	d.FunctionalMode = r.Uint16()
	ops := r.Uint16Array()
	d.OperationsSupported = make([]OperationCode, len(ops))
	for i, o := range ops {
		d.OperationsSupported[i] = OperationCode(o)
	}
	events := r.Uint16Array()
	d.EventsSupported = make([]EventCode, len(events))
	for i, ev := range events {
		d.EventsSupported[i] = EventCode(ev)
	}
	d.DevicePropertiesSupported = r.Uint16Array()
	d.CaptureFormats = u16ToFormats(r.Uint16Array())
	d.PlaybackFormats = u16ToFormats(r.Uint16Array())
	d.Manufacturer = r.String()
	d.Model = r.String()
	d.DeviceVersion = r.String()
	d.SerialNumber = r.String()
	return r.Err()
}

// Storage types.
const (
	StorageFixedROM     uint16 = 0x0001
	StorageRemovableROM uint16 = 0x0002
	StorageFixedRAM     uint16 = 0x0003
	StorageRemovableRAM uint16 = 0x0004
)

// Storage access capabilities.
const (
	AccessReadWrite          uint16 = 0x0000
	AccessReadOnly           uint16 = 0x0001
	AccessReadOnlyWithDelete uint16 = 0x0002
)

// StorageInfo is the dataset returned by GetStorageInfo.
type StorageInfo struct {
	StorageType        uint16
	FilesystemType     uint16
	AccessCapability   uint16
	MaxCapacity        uint64
	FreeSpaceInBytes   uint64
	FreeSpaceInObjects uint32
	StorageDescription string
	VolumeIdentifier   string
}

// MarshalBinary encodes the dataset.
func (s *StorageInfo) MarshalBinary() ([]byte, error) {
	e := NewEncoder()
	e.Uint16(s.StorageType)
	e.Uint16(s.FilesystemType)
	e.Uint16(s.AccessCapability)
	e.Uint64(s.MaxCapacity)
	e.Uint64(s.FreeSpaceInBytes)
	e.Uint32(s.FreeSpaceInObjects)
	e.String(s.StorageDescription)
	e.String(s.VolumeIdentifier)
	return e.Bytes()
}

// UnmarshalBinary decodes the dataset.
func (s *StorageInfo) UnmarshalBinary(data []byte) error {
	r := NewDecoder(data)
	s.StorageType = r.Uint16()
	s.FilesystemType = r.Uint16()
	s.AccessCapability = r.Uint16()
	s.MaxCapacity = r.Uint64()
	s.FreeSpaceInBytes = r.Uint64()
	s.FreeSpaceInObjects = r.Uint32()
	s.StorageDescription = r.String()
	s.VolumeIdentifier = r.String()
	return r.Err()
}

// ObjectInfo is the dataset exchanged by GetObjectInfo and SendObjectInfo.
//
// CompressedSize is a u32 on the wire. Objects of 4 GiB or more report
// 0xFFFFFFFF; callers that need the exact size query PropObjectSize.
type ObjectInfo struct {
	StorageID           uint32
	ObjectFormat        ObjectFormat
	ProtectionStatus    uint16
	CompressedSize      uint32
	ThumbFormat         ObjectFormat
	ThumbCompressedSize uint32
	ThumbPixWidth       uint32
	ThumbPixHeight      uint32
	ImagePixWidth       uint32
	ImagePixHeight      uint32
	ImageBitDepth       uint32
	ParentObject        uint32
	AssociationType     AssociationType
	AssociationDesc     uint32
	SequenceNumber      uint32
	Filename            string
	CaptureDate         time.Time
	ModificationDate    time.Time
	Keywords            string
}

// MarshalBinary encodes the dataset.
func (o *ObjectInfo) MarshalBinary() ([]byte, error) {
	e := NewEncoder()
	e.Uint32(o.StorageID)
	e.Uint16(uint16(o.ObjectFormat))
	e.Uint16(o.ProtectionStatus)
	e.Uint32(o.CompressedSize)
	e.Uint16(uint16(o.ThumbFormat))
	e.Uint32(o.ThumbCompressedSize)
	e.Uint32(o.ThumbPixWidth)
	e.Uint32(o.ThumbPixHeight)
	e.Uint32(o.ImagePixWidth)
	e.Uint32(o.ImagePixHeight)
	e.Uint32(o.ImageBitDepth)
	e.Uint32(o.ParentObject)
	e.Uint16(uint16(o.AssociationType))
	e.Uint32(o.AssociationDesc)
	e.Uint32(o.SequenceNumber)
	e.String(o.Filename)
	e.String(FormatDateTime(o.CaptureDate))
	e.String(FormatDateTime(o.ModificationDate))
	e.String(o.Keywords)
	return e.Bytes()
}

// UnmarshalBinary decodes the dataset. A root parent reported as
// HandleRootAlt is normalised to HandleRoot. Unparseable dates decode as
// the zero time; devices are inconsistent about them.
func (o *ObjectInfo) UnmarshalBinary(data []byte) error {
	r := NewDecoder(data)
	o.StorageID = r.Uint32()
	o.ObjectFormat = ObjectFormat(r.Uint16())
	o.ProtectionStatus = r.Uint16()
	o.CompressedSize = r.Uint32()
	o.ThumbFormat = ObjectFormat(r.Uint16())
	o.ThumbCompressedSize = r.Uint32()
	o.ThumbPixWidth = r.Uint32()
	o.ThumbPixHeight = r.Uint32()
	o.ImagePixWidth = r.Uint32()
	o.ImagePixHeight = r.Uint32()
	o.ImageBitDepth = r.Uint32()
	o.ParentObject = r.Uint32()
	o.AssociationType = AssociationType(r.Uint16())
	o.AssociationDesc = r.Uint32()
	o.SequenceNumber = r.Uint32()
	o.Filename = r.String()
	o.CaptureDate, _ = ParseDateTime(r.String())
	o.ModificationDate, _ = ParseDateTime(r.String())
	// Keywords are optional on some devices.
	if r.Remaining() > 0 {
		o.Keywords = r.String()
	}
	if o.ParentObject == HandleRootAlt {
		o.ParentObject = HandleRoot
	}
	return r.Err()
}

// IsFolder reports whether the object is an association (folder).
func (o *ObjectInfo) IsFolder() bool {
	return o.ObjectFormat.IsAssociation()
}

func opsToU16(ops []OperationCode) []uint16 {
	out := make([]uint16, len(ops))
	for i, o := range ops {
		out[i] = uint16(o)
	}
	return out
}

func formatsToU16(fs []ObjectFormat) []uint16 {
	out := make([]uint16, len(fs))
	for i, f := range fs {
		out[i] = uint16(f)
	}
	return out
}

func u16ToFormats(vs []uint16) []ObjectFormat {
	out := make([]ObjectFormat, len(vs))
	for i, v := range vs {
		out[i] = ObjectFormat(v)
	}
	return out
}
