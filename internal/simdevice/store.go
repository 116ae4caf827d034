package simdevice

import (
	"encoding/binary"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// Storage describes one simulated storage.
type Storage struct {
	ID          uint32
	Description string
	VolumeID    string
	Capacity    uint64
	ReadOnly    bool
}

// Object is a node of the simulated object tree.
type Object struct {
	Handle    uint32
	StorageID uint32
	Parent    uint32
	Name      string
	Format    ptp.ObjectFormat
	Data      []byte
	Modified  time.Time
}

// IsFolder reports whether the object is an association.
func (o *Object) IsFolder() bool {
	return o.Format.IsAssociation()
}

// fault replaces the result of an operation with a response code.
type fault struct {
	code  ptp.ResponseCode
	times int
}

// Store is an in-memory MTP object store. It implements
// interaction.Handler and is safe for concurrent use.
type Store struct {
	mu sync.Mutex

	storages []*Storage
	objects  map[uint32]*Object
	next     uint32

	// Extra listings by parent, see Link.
	links map[uint32][]uint32

	// Object announced by SendObjectInfo, waiting for SendObject.
	staged uint32

	unsupported     map[ptp.OperationCode]bool
	faults          map[ptp.OperationCode]*fault
	refuseRecursive bool
	ops             []ptp.OperationCode

	now func() time.Time
}

var _ interaction.Handler = (*Store)(nil)

// NewStore creates an empty store holding the given storages.
func NewStore(storages ...Storage) *Store {
	s := &Store{
		objects:     make(map[uint32]*Object),
		next:        1,
		links:       make(map[uint32][]uint32),
		unsupported: make(map[ptp.OperationCode]bool),
		faults:      make(map[ptp.OperationCode]*fault),
		now:         time.Now,
	}
	for i := range storages {
		st := storages[i]
		s.storages = append(s.storages, &st)
	}
	return s
}

// supportedOps is everything the store can execute.
var supportedOps = []ptp.OperationCode{
	ptp.OpGetDeviceInfo,
	ptp.OpOpenSession,
	ptp.OpCloseSession,
	ptp.OpGetStorageIDs,
	ptp.OpGetStorageInfo,
	ptp.OpGetObjectHandles,
	ptp.OpGetObjectInfo,
	ptp.OpGetObject,
	ptp.OpDeleteObject,
	ptp.OpSendObjectInfo,
	ptp.OpSendObject,
	ptp.OpMoveObject,
	ptp.OpCopyObject,
	ptp.OpGetObjectPropValue,
	ptp.OpSetObjectPropValue,
}

// Disable removes op from the advertised operations. The store then
// answers it with OperationNotSupported.
func (s *Store) Disable(op ptp.OperationCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsupported[op] = true
}

// Supported returns the advertised operations.
func (s *Store) Supported() []ptp.OperationCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ops []ptp.OperationCode
	for _, op := range supportedOps {
		if !s.unsupported[op] {
			ops = append(ops, op)
		}
	}
	return ops
}

// RefuseRecursiveDelete makes DeleteObject on a non-empty folder answer
// PartialDeletion instead of removing the subtree.
func (s *Store) RefuseRecursiveDelete(refuse bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refuseRecursive = refuse
}

// Fail makes the next times executions of op answer code. times <= 0
// fails every execution until ClearFaults.
func (s *Store) Fail(op ptp.OperationCode, code ptp.ResponseCode, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = &fault{code: code, times: times}
}

// ClearFaults removes all injected response faults.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[ptp.OperationCode]*fault)
}

// Operations returns the operations executed so far, in order.
func (s *Store) Operations() []ptp.OperationCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ptp.OperationCode(nil), s.ops...)
}

// AddFolder creates a folder under parent (0 for the storage root).
func (s *Store) AddFolder(storage, parent uint32, name string) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(storage, parent, name, ptp.FormatAssociation, nil)
}

// AddFile creates a file under parent. Duplicate names are allowed.
func (s *Store) AddFile(storage, parent uint32, name string, data []byte) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.add(storage, parent, name, ptp.FormatForName(name), append([]byte(nil), data...))
}

// SetParent rewires handle under parent without any checks. It exists to
// build corrupted trees.
func (s *Store) SetParent(handle, parent uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.objects[handle]; ok {
		o.Parent = parent
	}
}

// Link lists handle under parent as well, while the object keeps
// reporting its real parent. Some devices do this after a failed move.
func (s *Store) Link(handle, parent uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[parent] = append(s.links[parent], handle)
}

// Get returns a copy of the object with handle.
func (s *Store) Get(handle uint32) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[handle]
	if !ok {
		return Object{}, false
	}
	return *copyObject(o), true
}

// Find resolves a slash-separated path in storage.
func (s *Store) Find(storage uint32, path string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent := ptp.HandleRoot
	var found *Object
	for _, name := range strings.Split(strings.Trim(path, "/"), "/") {
		if name == "" {
			continue
		}
		found = nil
		for _, o := range s.children(storage, parent) {
			if o.Name == name {
				found = o
				break
			}
		}
		if found == nil {
			return Object{}, false
		}
		parent = found.Handle
	}
	if found == nil {
		return Object{}, false
	}
	return *copyObject(found), true
}

// Children returns copies of the objects directly under parent.
func (s *Store) Children(storage, parent uint32) []Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Object
	for _, o := range s.children(storage, parent) {
		out = append(out, *copyObject(o))
	}
	return out
}

// Len returns the number of objects in the store.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

func (s *Store) add(storage, parent uint32, name string, format ptp.ObjectFormat, data []byte) uint32 {
	h := s.next
	s.next++
	s.objects[h] = &Object{
		Handle:    h,
		StorageID: storage,
		Parent:    parent,
		Name:      name,
		Format:    format,
		Data:      data,
		Modified:  s.now().UTC().Truncate(time.Second),
	}
	return h
}

// children returns the objects under parent ordered by handle, the order
// a device reports them in.
func (s *Store) children(storage, parent uint32) []*Object {
	var out []*Object
	for _, o := range s.objects {
		if o.StorageID == storage && o.Parent == parent {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}

func (s *Store) storage(id uint32) *Storage {
	for _, st := range s.storages {
		if st.ID == id {
			return st
		}
	}
	return nil
}

func (s *Store) used(storage uint32) uint64 {
	var n uint64
	for _, o := range s.objects {
		if o.StorageID == storage {
			n += uint64(len(o.Data))
		}
	}
	return n
}

// subtree returns h and all its descendants. Cycles are cut.
func (s *Store) subtree(h uint32) []uint32 {
	out := []uint32{h}
	seen := map[uint32]bool{h: true}
	for i := 0; i < len(out); i++ {
		for _, o := range s.objects {
			if o.Parent == out[i] && !seen[o.Handle] {
				seen[o.Handle] = true
				out = append(out, o.Handle)
			}
		}
	}
	return out
}

func copyObject(o *Object) *Object {
	c := *o
	c.Data = append([]byte(nil), o.Data...)
	return &c
}

func respond(code ptp.ResponseCode, params ...uint32) *interaction.Response {
	return &interaction.Response{Code: code, Params: params}
}

func respondData(data []byte) *interaction.Response {
	if data == nil {
		data = []byte{}
	}
	return &interaction.Response{Code: ptp.RespOK, Data: data}
}

// HandleOperation executes one operation against the tree.
func (s *Store) HandleOperation(req *interaction.Request) *interaction.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ops = append(s.ops, req.Op)
	if s.unsupported[req.Op] {
		return respond(ptp.RespOperationNotSupported)
	}
	if f, ok := s.faults[req.Op]; ok {
		if f.times > 0 {
			f.times--
			if f.times == 0 {
				delete(s.faults, req.Op)
			}
		}
		return respond(f.code)
	}

	switch req.Op {
	case ptp.OpGetStorageIDs:
		ids := make([]uint32, 0, len(s.storages))
		for _, st := range s.storages {
			ids = append(ids, st.ID)
		}
		return respondData(interaction.EncodeUint32Array(ids))
	case ptp.OpGetStorageInfo:
		return s.getStorageInfo(req)
	case ptp.OpGetObjectHandles:
		return s.getObjectHandles(req)
	case ptp.OpGetObjectInfo:
		return s.getObjectInfo(req)
	case ptp.OpGetObject:
		o, ok := s.objects[req.Param(0)]
		if !ok {
			return respond(ptp.RespInvalidObjectHandle)
		}
		if o.IsFolder() {
			return respond(ptp.RespInvalidObjectFormatCode)
		}
		return respondData(o.Data)
	case ptp.OpSendObjectInfo:
		return s.sendObjectInfo(req)
	case ptp.OpSendObject:
		return s.sendObject(req)
	case ptp.OpDeleteObject:
		return s.deleteObject(req)
	case ptp.OpMoveObject:
		return s.moveObject(req)
	case ptp.OpCopyObject:
		return s.copyObject(req)
	case ptp.OpGetObjectPropValue:
		return s.getObjectPropValue(req)
	case ptp.OpSetObjectPropValue:
		return s.setObjectPropValue(req)
	}
	return nil
}

func (s *Store) getStorageInfo(req *interaction.Request) *interaction.Response {
	st := s.storage(req.Param(0))
	if st == nil {
		return respond(ptp.RespInvalidStorageID)
	}
	info := ptp.StorageInfo{
		StorageType:        ptp.StorageFixedRAM,
		FilesystemType:     0x0002,
		AccessCapability:   ptp.AccessReadWrite,
		MaxCapacity:        st.Capacity,
		FreeSpaceInObjects: 0xFFFFFFFF,
		StorageDescription: st.Description,
		VolumeIdentifier:   st.VolumeID,
	}
	if st.ReadOnly {
		info.AccessCapability = ptp.AccessReadOnly
	}
	if used := s.used(st.ID); used < st.Capacity {
		info.FreeSpaceInBytes = st.Capacity - used
	}
	data, err := info.MarshalBinary()
	if err != nil {
		return respond(ptp.RespGeneralError)
	}
	return respondData(data)
}

func (s *Store) getObjectHandles(req *interaction.Request) *interaction.Response {
	storage, format, parent := req.Param(0), ptp.ObjectFormat(req.Param(1)), req.Param(2)
	if storage != ptp.StorageAll && s.storage(storage) == nil {
		return respond(ptp.RespInvalidStorageID)
	}
	all := false
	switch parent {
	case ptp.ParentFilterRoot:
		parent = ptp.HandleRoot
	case 0:
		// 0 lists every object of the storage.
		all = true
	default:
		p, ok := s.objects[parent]
		if !ok {
			return respond(ptp.RespInvalidObjectHandle)
		}
		if !p.IsFolder() {
			return respond(ptp.RespInvalidParentObject)
		}
	}

	var handles []uint32
	for _, o := range s.objects {
		if storage != ptp.StorageAll && o.StorageID != storage {
			continue
		}
		if !all && o.Parent != parent {
			continue
		}
		if uint32(format) != ptp.FormatFilterAny && o.Format != format {
			continue
		}
		handles = append(handles, o.Handle)
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	if !all {
		handles = append(handles, s.links[parent]...)
	}
	return respondData(interaction.EncodeUint32Array(handles))
}

func (s *Store) getObjectInfo(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	info := ptp.ObjectInfo{
		StorageID:        o.StorageID,
		ObjectFormat:     o.Format,
		CompressedSize:   uint32(min(uint64(len(o.Data)), 0xFFFFFFFF)),
		ParentObject:     o.Parent,
		Filename:         o.Name,
		ModificationDate: o.Modified,
	}
	if o.IsFolder() {
		info.AssociationType = ptp.AssociationGenericFolder
	}
	data, err := info.MarshalBinary()
	if err != nil {
		return respond(ptp.RespGeneralError)
	}
	return respondData(data)
}

// destination validates a (storage, parent) pair naming where an object
// goes. Storage 0 selects the first storage, parent 0 or 0xFFFFFFFF the
// root.
func (s *Store) destination(storage, parent uint32) (uint32, uint32, ptp.ResponseCode) {
	if storage == 0 && len(s.storages) > 0 {
		storage = s.storages[0].ID
	}
	st := s.storage(storage)
	if st == nil {
		return 0, 0, ptp.RespInvalidStorageID
	}
	if st.ReadOnly {
		return 0, 0, ptp.RespStoreReadOnly
	}
	if parent == ptp.HandleRootAlt {
		parent = ptp.HandleRoot
	}
	if parent != ptp.HandleRoot {
		p, ok := s.objects[parent]
		if !ok || p.StorageID != storage || !p.IsFolder() {
			return 0, 0, ptp.RespInvalidParentObject
		}
	}
	return storage, parent, ptp.RespOK
}

func (s *Store) sendObjectInfo(req *interaction.Request) *interaction.Response {
	var info ptp.ObjectInfo
	if err := info.UnmarshalBinary(req.Data); err != nil {
		return respond(ptp.RespInvalidDataset)
	}
	storage, parent, code := s.destination(req.Param(0), req.Param(1))
	if code != ptp.RespOK {
		return respond(code)
	}
	if info.Filename == "" {
		return respond(ptp.RespInvalidDataset)
	}
	st := s.storage(storage)
	if uint64(info.CompressedSize) > st.Capacity-min(st.Capacity, s.used(storage)) {
		return respond(ptp.RespStoreFull)
	}

	var h uint32
	if info.IsFolder() {
		h = s.add(storage, parent, info.Filename, ptp.FormatAssociation, nil)
		s.staged = 0
	} else {
		format := info.ObjectFormat
		if format == 0 {
			format = ptp.FormatUndefined
		}
		h = s.add(storage, parent, info.Filename, format, []byte{})
		s.staged = h
	}
	return respond(ptp.RespOK, storage, parent, h)
}

func (s *Store) sendObject(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[s.staged]
	if s.staged == 0 || !ok {
		return respond(ptp.RespNoValidObjectInfo)
	}
	o.Data = append([]byte(nil), req.Data...)
	o.Modified = s.now().UTC().Truncate(time.Second)
	s.staged = 0
	return respond(ptp.RespOK)
}

func (s *Store) deleteObject(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	if st := s.storage(o.StorageID); st != nil && st.ReadOnly {
		return respond(ptp.RespStoreReadOnly)
	}
	tree := s.subtree(o.Handle)
	if len(tree) > 1 && s.refuseRecursive {
		return respond(ptp.RespPartialDeletion)
	}
	for _, h := range tree {
		delete(s.objects, h)
	}
	if s.staged == o.Handle {
		s.staged = 0
	}
	return respond(ptp.RespOK)
}

func (s *Store) moveObject(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	storage, parent, code := s.destination(req.Param(1), req.Param(2))
	if code != ptp.RespOK {
		return respond(code)
	}
	tree := s.subtree(o.Handle)
	for _, h := range tree {
		if h == parent {
			return respond(ptp.RespInvalidParentObject)
		}
	}
	o.Parent = parent
	for _, h := range tree {
		s.objects[h].StorageID = storage
	}
	return respond(ptp.RespOK)
}

func (s *Store) copyObject(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	storage, parent, code := s.destination(req.Param(1), req.Param(2))
	if code != ptp.RespOK {
		return respond(code)
	}
	for _, h := range s.subtree(o.Handle) {
		if h == parent {
			return respond(ptp.RespInvalidParentObject)
		}
	}
	return respond(ptp.RespOK, s.copyTree(o, storage, parent, map[uint32]bool{}))
}

func (s *Store) copyTree(o *Object, storage, parent uint32, seen map[uint32]bool) uint32 {
	seen[o.Handle] = true
	kids := s.children(o.StorageID, o.Handle)
	h := s.add(storage, parent, o.Name, o.Format, append([]byte(nil), o.Data...))
	seen[h] = true
	for _, k := range kids {
		if !seen[k.Handle] {
			s.copyTree(k, storage, h, seen)
		}
	}
	return h
}

func (s *Store) getObjectPropValue(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	switch ptp.ObjectPropCode(req.Param(1)) {
	case ptp.PropObjectSize:
		return respondData(binary.LittleEndian.AppendUint64(nil, uint64(len(o.Data))))
	case ptp.PropObjectFileName:
		e := ptp.NewEncoder()
		e.String(o.Name)
		data, err := e.Bytes()
		if err != nil {
			return respond(ptp.RespGeneralError)
		}
		return respondData(data)
	case ptp.PropParentObject:
		return respondData(binary.LittleEndian.AppendUint32(nil, o.Parent))
	}
	return respond(ptp.RespObjectPropNotSupported)
}

func (s *Store) setObjectPropValue(req *interaction.Request) *interaction.Response {
	o, ok := s.objects[req.Param(0)]
	if !ok {
		return respond(ptp.RespInvalidObjectHandle)
	}
	if ptp.ObjectPropCode(req.Param(1)) != ptp.PropObjectFileName {
		return respond(ptp.RespObjectPropNotSupported)
	}
	if st := s.storage(o.StorageID); st != nil && st.ReadOnly {
		return respond(ptp.RespStoreReadOnly)
	}
	d := ptp.NewDecoder(req.Data)
	name := d.String()
	if d.Err() != nil || name == "" {
		return respond(ptp.RespInvalidObjectPropValue)
	}
	o.Name = name
	return respond(ptp.RespOK)
}
