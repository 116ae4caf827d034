package mtp

import (
	"context"
	"strings"
	"time"

	"github.com/luck-mtp/mtp-go/pkg/interaction"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// sendParent is the parent parameter of SendObjectInfo, which names the
// root as 0xFFFFFFFF.
func sendParent(id uint32) uint32 {
	if id == ptp.HandleRoot {
		return ptp.HandleRootAlt
	}
	return id
}

func childPath(parent, name string) string {
	return strings.TrimSuffix(parent, "/") + "/" + name
}

// findChild returns the first child of parent named name.
func (s *Session) findChild(ctx context.Context, parent ObjectRecord, name string) (ObjectRecord, bool, error) {
	kids, err := s.listChildren(ctx, parent.StorageID, parent.ID)
	if err != nil {
		return ObjectRecord{}, false, err
	}
	for _, k := range kids {
		if k.Name == name {
			return k, true, nil
		}
	}
	return ObjectRecord{}, false, nil
}

// CreateFolder creates folder name under the folder at parentPath and
// returns its object id.
func (s *Session) CreateFolder(ctx context.Context, parentPath, name string) (uint32, error) {
	const op = "create folder"
	target := childPath(parentPath, name)
	if err := checkName(name); err != nil {
		return 0, newError(KindInvalidPath, op, target, err)
	}
	done, err := s.begin(ctx, op)
	if err != nil {
		return 0, err
	}
	defer done()

	parent, err := s.lookupFolder(ctx, op, parentPath)
	if err != nil {
		return 0, err
	}
	defer s.cache.invalidate(parent.StorageID, parent.ID)

	if _, exists, err := s.findChild(ctx, parent, name); err != nil {
		return 0, wrap(op, target, err)
	} else if exists {
		return 0, newError(KindAlreadyExists, op, target, nil)
	}

	info := &ptp.ObjectInfo{
		StorageID:        parent.StorageID,
		ObjectFormat:     ptp.FormatAssociation,
		ParentObject:     parent.ID,
		AssociationType:  ptp.AssociationGenericFolder,
		Filename:         name,
		ModificationDate: time.Now(),
	}
	_, _, handle, err := s.client.SendObjectInfo(ctx, parent.StorageID, sendParent(parent.ID), info)
	if err != nil {
		return 0, wrap(op, target, err)
	}
	s.logger.Debug("folder created", "path", target, "handle", handle)
	return handle, nil
}

// Rename changes the name of the object at path.
func (s *Session) Rename(ctx context.Context, path, newName string) error {
	return s.rename(ctx, "rename", path, newName, nil)
}

// SetFileName renames the file at path. Folders are refused.
func (s *Session) SetFileName(ctx context.Context, path, newName string) error {
	const op = "set file name"
	return s.rename(ctx, op, path, newName, func(rec ObjectRecord) error {
		if rec.IsFolder() {
			return newError(KindInvalidPath, op, path, errIsFolder)
		}
		return nil
	})
}

// SetFolderName renames the folder at path. Files are refused with
// ErrNotAFolder.
func (s *Session) SetFolderName(ctx context.Context, path, newName string) error {
	const op = "set folder name"
	return s.rename(ctx, op, path, newName, func(rec ObjectRecord) error {
		if !rec.IsFolder() {
			return newError(KindNotAFolder, op, path, nil)
		}
		return nil
	})
}

func (s *Session) rename(ctx context.Context, op, path, newName string, check func(ObjectRecord) error) error {
	if err := checkName(newName); err != nil {
		return newError(KindInvalidPath, op, newName, err)
	}
	done, err := s.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	rec, err := s.lookupObject(ctx, op, path, false)
	if err != nil {
		return err
	}
	if check != nil {
		if err := check(rec); err != nil {
			return err
		}
	}
	if rec.Name == newName {
		return nil
	}
	defer s.cache.invalidate(rec.StorageID, rec.ParentID)

	parent := ObjectRecord{ID: rec.ParentID, StorageID: rec.StorageID, Type: TypeFolder}
	if other, exists, err := s.findChild(ctx, parent, newName); err != nil {
		return wrap(op, path, err)
	} else if exists && other.ID != rec.ID {
		return newError(KindAlreadyExists, op, newName, nil)
	}

	if err := s.client.SetObjectFileName(ctx, rec.ID, newName); err != nil {
		return wrap(op, path, err)
	}
	return nil
}

// Delete removes the object at path. Devices that cannot delete a
// non-empty folder fail with ErrNotEmpty.
func (s *Session) Delete(ctx context.Context, path string) error {
	const op = "delete"
	done, err := s.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	rec, err := s.lookupObject(ctx, op, path, false)
	if err != nil {
		return err
	}
	return s.deleteRecord(ctx, op, path, rec)
}

// deleteRecord deletes rec and drops every listing it can affect, also
// when the device refuses.
func (s *Session) deleteRecord(ctx context.Context, op, path string, rec ObjectRecord) error {
	defer s.cache.invalidate(rec.StorageID, rec.ParentID)
	if rec.IsFolder() {
		defer s.cache.invalidateTree(rec.StorageID, rec.ID)
	}

	err := s.client.DeleteObject(ctx, rec.ID)
	if err == nil {
		return nil
	}
	if code, ok := interaction.ResponseCodeOf(err); ok {
		if code == ptp.RespPartialDeletion || (code == ptp.RespObjectWriteProtected && rec.IsFolder()) {
			return newError(KindNotEmpty, op, path, err)
		}
	}
	return wrap(op, path, err)
}
