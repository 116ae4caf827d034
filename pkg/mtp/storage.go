package mtp

import (
	"context"
	"errors"
	"fmt"

	"github.com/luck-mtp/mtp-go/pkg/log"
	"github.com/luck-mtp/mtp-go/pkg/ptp"
)

// StorageInfo describes one storage of the device.
type StorageInfo struct {
	ID          uint32
	Description string
	VolumeID    string
	Capacity    uint64
	Free        uint64
	ReadOnly    bool
}

func (si StorageInfo) String() string {
	return fmt.Sprintf("0x%08X %q", si.ID, si.Description)
}

var errNoStorage = errors.New("device exposes no storage")

// Storages returns the storages enumerated at connect or at the last
// RefreshStorages.
func (s *Session) Storages(ctx context.Context) ([]StorageInfo, error) {
	done, err := s.begin(ctx, "storages")
	if err != nil {
		return nil, err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StorageInfo(nil), s.storages...), nil
}

// CurrentStorage returns the storage that paths resolve against. The zero
// value means the device exposes no storage.
func (s *Session) CurrentStorage() StorageInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.storages {
		if st.ID == s.current {
			return st
		}
	}
	return StorageInfo{}
}

// SetStorage selects storage id. Id 0 keeps the current selection. The
// root listing of the selected storage is re-read on next use.
func (s *Session) SetStorage(ctx context.Context, id uint32) error {
	const op = "set storage"
	done, err := s.begin(ctx, op)
	if err != nil {
		return err
	}
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == 0 {
		id = s.current
	}
	found := false
	for _, st := range s.storages {
		if st.ID == id {
			found = true
			break
		}
	}
	if !found {
		return newError(KindNotFound, op, fmt.Sprintf("0x%08X", id), nil)
	}
	old := s.current
	s.current = id
	s.cache.invalidate(id, ptp.HandleRoot)
	if old != id {
		s.logState(log.StateEntityStorage, fmt.Sprintf("0x%08X", old), fmt.Sprintf("0x%08X", id), "select")
	}
	return nil
}

// RefreshStorages re-enumerates the storages. If the current storage is
// gone the first one becomes current. Every cached listing is dropped.
func (s *Session) RefreshStorages(ctx context.Context) ([]StorageInfo, error) {
	done, err := s.begin(ctx, "refresh storages")
	if err != nil {
		return nil, err
	}
	defer done()

	if err := s.enumerateStorages(ctx); err != nil {
		return nil, wrap("refresh storages", "", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.clear()
	return append([]StorageInfo(nil), s.storages...), nil
}

// enumerateStorages reads all storage infos. Callers hold the session.
func (s *Session) enumerateStorages(ctx context.Context) error {
	ids, err := s.client.GetStorageIDs(ctx)
	if err != nil {
		return err
	}
	storages := make([]StorageInfo, 0, len(ids))
	for _, id := range ids {
		// Unmounted card slots report ids with a zero lower half.
		if id&0xFFFF == 0 {
			continue
		}
		info, err := s.client.GetStorageInfo(ctx, id)
		if err != nil {
			return err
		}
		storages = append(storages, StorageInfo{
			ID:          id,
			Description: info.StorageDescription,
			VolumeID:    info.VolumeIdentifier,
			Capacity:    info.MaxCapacity,
			Free:        info.FreeSpaceInBytes,
			ReadOnly:    info.AccessCapability != ptp.AccessReadWrite,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.storages = storages
	keep := false
	for _, st := range storages {
		if st.ID == s.current {
			keep = true
			break
		}
	}
	if !keep {
		old := s.current
		s.current = 0
		if len(storages) > 0 {
			s.current = storages[0].ID
		}
		if old != 0 {
			s.logState(log.StateEntityStorage, fmt.Sprintf("0x%08X", old), fmt.Sprintf("0x%08X", s.current), "storage removed")
		}
	}
	return nil
}

// currentStorage returns the current storage id, failing when there is
// none.
func (s *Session) currentStorage(op, path string) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == 0 {
		return 0, newError(KindNotFound, op, path, errNoStorage)
	}
	return s.current, nil
}
