package checkpointstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fystack/chainsync/pkg/common/types"
)

const fileExt = ".json"

type fileStore struct {
	dir string
	now func() time.Time
}

// NewFileStore keeps one pretty-printed <sync_type>.json per source in dir,
// so operators can inspect and hand-edit checkpoints.
func NewFileStore(dir string) (Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &fileStore{dir: dir, now: time.Now}, nil
}

func (s *fileStore) path(syncType string) string {
	return filepath.Join(s.dir, syncType+fileExt)
}

func (s *fileStore) Read(syncType string) (*types.SyncState, error) {
	data, err := os.ReadFile(s.path(syncType))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, types.Wrap(types.KindStorage, err)
	}
	return decode(syncType, data)
}

// Write replaces the file atomically through a temp file and rename.
func (s *fileStore) Write(state *types.SyncState) error {
	data, err := encode(state, s.now)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, state.SyncType+".*.tmp")
	if err != nil {
		return types.Wrap(types.KindStorage, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return types.Wrap(types.KindStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return types.Wrap(types.KindStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return types.Wrap(types.KindStorage, err)
	}
	if err := os.Rename(tmpName, s.path(state.SyncType)); err != nil {
		return types.Errorf(types.KindStorage, "write checkpoint %s: %w", state.SyncType, err)
	}
	return nil
}

func (s *fileStore) List() ([]types.SyncState, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, types.Wrap(types.KindStorage, err)
	}
	out := make([]types.SyncState, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		st, err := s.Read(strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	sortStates(out)
	return out, nil
}

func (s *fileStore) Close() error { return nil }
