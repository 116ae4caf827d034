package mtp

import (
	"context"
	"fmt"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// ObjectType is the kind of an object.
type ObjectType uint8

const (
	TypeFile ObjectType = iota
	TypeFolder
	// TypeAssociation is an association that is not a generic folder,
	// such as an album. It holds children like a folder.
	TypeAssociation
)

func (t ObjectType) String() string {
	switch t {
	case TypeFolder:
		return "folder"
	case TypeAssociation:
		return "association"
	}
	return "file"
}

// ObjectRecord is a snapshot of one object on the device.
type ObjectRecord struct {
	ID        uint32
	ParentID  uint32
	StorageID uint32
	Name      string
	Size      uint64
	Type      ObjectType
	Format    ptp.ObjectFormat
	Modified  time.Time
}

// IsFolder reports whether the object can hold children.
func (r ObjectRecord) IsFolder() bool {
	return r.Type != TypeFile
}

func recordFrom(handle uint32, info *ptp.ObjectInfo) ObjectRecord {
	rec := ObjectRecord{
		ID:        handle,
		ParentID:  info.ParentObject,
		StorageID: info.StorageID,
		Name:      info.Filename,
		Size:      uint64(info.CompressedSize),
		Format:    info.ObjectFormat,
		Modified:  info.ModificationDate,
	}
	if info.ObjectFormat.IsAssociation() {
		rec.Size = 0
		rec.Type = TypeAssociation
		if info.AssociationType == ptp.AssociationGenericFolder || info.AssociationType == ptp.AssociationNone {
			rec.Type = TypeFolder
		}
	}
	return rec
}

func rootRecord(storage uint32) ObjectRecord {
	return ObjectRecord{ID: ptp.HandleRoot, StorageID: storage, Type: TypeFolder}
}

type cacheKey struct {
	storage uint32
	parent  uint32
}

// catalog caches children listings by (storage, parent). It is guarded
// by the session semaphore.
type catalog struct {
	entries map[cacheKey][]ObjectRecord
}

func newCatalog() *catalog {
	return &catalog{entries: make(map[cacheKey][]ObjectRecord)}
}

func (c *catalog) get(storage, parent uint32) ([]ObjectRecord, bool) {
	recs, ok := c.entries[cacheKey{storage, parent}]
	if !ok {
		return nil, false
	}
	return append([]ObjectRecord(nil), recs...), true
}

func (c *catalog) put(storage, parent uint32, recs []ObjectRecord) {
	c.entries[cacheKey{storage, parent}] = append([]ObjectRecord(nil), recs...)
}

func (c *catalog) invalidate(storage, parent uint32) {
	delete(c.entries, cacheKey{storage, parent})
}

// invalidateTree drops the listing of id and of every cached folder
// below it.
func (c *catalog) invalidateTree(storage, id uint32) {
	pending := []uint32{id}
	seen := map[uint32]bool{}
	for len(pending) > 0 {
		h := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if seen[h] {
			continue
		}
		seen[h] = true
		for _, r := range c.entries[cacheKey{storage, h}] {
			if r.IsFolder() {
				pending = append(pending, r.ID)
			}
		}
		c.invalidate(storage, h)
	}
}

func (c *catalog) clear() {
	c.entries = make(map[cacheKey][]ObjectRecord)
}

func (c *catalog) len() int {
	return len(c.entries)
}

// listChildren returns the children of parent, from cache when possible.
// A child that reports a different parent, or repeats a handle, means
// the device's tree is corrupt.
func (s *Session) listChildren(ctx context.Context, storage, parent uint32) ([]ObjectRecord, error) {
	if recs, ok := s.cache.get(storage, parent); ok {
		return recs, nil
	}

	filter := parent
	if parent == ptp.HandleRoot {
		filter = ptp.ParentFilterRoot
	}
	handles, err := s.client.GetObjectHandles(ctx, storage, 0, filter)
	if err != nil {
		return nil, err
	}

	recs := make([]ObjectRecord, 0, len(handles))
	seen := make(map[uint32]bool, len(handles))
	for _, h := range handles {
		if h == parent || h == ptp.HandleRoot || seen[h] {
			return nil, newError(KindCorruption, "", "", fmt.Errorf("handle %d listed under %d", h, parent))
		}
		seen[h] = true

		info, err := s.client.GetObjectInfo(ctx, h)
		if err != nil {
			return nil, err
		}
		if info.ParentObject != parent {
			return nil, newError(KindCorruption, "", "",
				fmt.Errorf("object %d reports parent %d, listed under %d", h, info.ParentObject, parent))
		}
		rec := recordFrom(h, info)
		if rec.StorageID == 0 {
			rec.StorageID = storage
		}
		if !rec.IsFolder() && info.CompressedSize == 0xFFFFFFFF {
			if size, err := s.client.GetObjectSize(ctx, h); err == nil {
				rec.Size = size
			}
		}
		recs = append(recs, rec)
	}
	s.cache.put(storage, parent, recs)
	return recs, nil
}

// lookup resolves path against the current storage. The empty path and
// "/" yield the root pseudo-record. With strict set, duplicate names are
// an error; otherwise the first match by scan wins.
func (s *Session) lookup(ctx context.Context, op, path string, strict bool) (ObjectRecord, error) {
	parts, err := splitPath(path)
	if err != nil {
		return ObjectRecord{}, newError(KindInvalidPath, op, path, err)
	}
	storage, err := s.currentStorage(op, path)
	if err != nil {
		return ObjectRecord{}, err
	}

	rec := rootRecord(storage)
	visited := map[uint32]bool{ptp.HandleRoot: true}
	for i, name := range parts {
		at := joinPath(parts[:i+1])
		kids, err := s.listChildren(ctx, storage, rec.ID)
		if err != nil {
			return ObjectRecord{}, wrap(op, at, err)
		}

		var match *ObjectRecord
		count := 0
		for j := range kids {
			if kids[j].Name == name {
				if match == nil {
					match = &kids[j]
				}
				count++
			}
		}
		switch {
		case match == nil:
			return ObjectRecord{}, newError(KindNotFound, op, at, nil)
		case count > 1 && strict:
			return ObjectRecord{}, newError(KindAmbiguousMatch, op, at, fmt.Errorf("%d objects named %q", count, name))
		case count > 1:
			s.logger.Debug("duplicate name, using first match", "path", at, "count", count, "handle", match.ID)
		}
		if visited[match.ID] {
			return ObjectRecord{}, newError(KindCorruption, op, at, fmt.Errorf("handle %d repeats in path", match.ID))
		}
		visited[match.ID] = true
		if i < len(parts)-1 && !match.IsFolder() {
			return ObjectRecord{}, newError(KindNotAFolder, op, at, nil)
		}
		rec = *match
	}
	return rec, nil
}

// lookupFolder resolves path and requires a folder or the root.
func (s *Session) lookupFolder(ctx context.Context, op, path string) (ObjectRecord, error) {
	rec, err := s.lookup(ctx, op, path, false)
	if err != nil {
		return ObjectRecord{}, err
	}
	if !rec.IsFolder() {
		return ObjectRecord{}, newError(KindNotAFolder, op, path, nil)
	}
	return rec, nil
}

// lookupObject resolves path and refuses the root.
func (s *Session) lookupObject(ctx context.Context, op, path string, strict bool) (ObjectRecord, error) {
	parts, err := splitPath(path)
	if err != nil {
		return ObjectRecord{}, newError(KindInvalidPath, op, path, err)
	}
	if len(parts) == 0 {
		return ObjectRecord{}, newError(KindInvalidPath, op, path, errRoot)
	}
	return s.lookup(ctx, op, path, strict)
}

// List returns the children of the folder at parentPath. "" and "/" list
// the root of the current storage.
func (s *Session) List(ctx context.Context, parentPath string) ([]ObjectRecord, error) {
	const op = "list"
	done, err := s.begin(ctx, op)
	if err != nil {
		return nil, err
	}
	defer done()

	parent, err := s.lookupFolder(ctx, op, parentPath)
	if err != nil {
		return nil, err
	}
	recs, err := s.listChildren(ctx, parent.StorageID, parent.ID)
	if err != nil {
		return nil, wrap(op, parentPath, err)
	}
	return recs, nil
}

// Stat returns the object at path. The root is not an object.
func (s *Session) Stat(ctx context.Context, path string) (ObjectRecord, error) {
	const op = "stat"
	done, err := s.begin(ctx, op)
	if err != nil {
		return ObjectRecord{}, err
	}
	defer done()
	return s.lookupObject(ctx, op, path, false)
}

// Resolve is Stat honouring WithStrictNames: an ambiguous name is
// ErrAmbiguousMatch instead of the first match.
func (s *Session) Resolve(ctx context.Context, path string) (ObjectRecord, error) {
	const op = "resolve"
	done, err := s.begin(ctx, op)
	if err != nil {
		return ObjectRecord{}, err
	}
	defer done()
	return s.lookupObject(ctx, op, path, s.cfg.strictNames)
}
