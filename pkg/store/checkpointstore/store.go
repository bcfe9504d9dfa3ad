// Package checkpointstore persists one SyncState per sync source.
// Writes always overwrite the full record.
package checkpointstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/fystack/chainsync/pkg/kvstore"
)

var ErrNotFound = errors.New("checkpoint not found")

type Store interface {
	// Read returns ErrNotFound when the source has never been checkpointed.
	Read(syncType string) (*types.SyncState, error)
	Write(state *types.SyncState) error
	List() ([]types.SyncState, error)
	Close() error
}

func checkpointKey(syncType string) string {
	return fmt.Sprintf("%s/%s", constant.CheckpointKeyPrefix, syncType)
}

type kvStore struct {
	store infra.KVStore
	now   func() time.Time
}

// NewKVStore keeps checkpoints under sync_states/<sync_type> in a KV backend.
func NewKVStore(store infra.KVStore) Store {
	return &kvStore{store: store, now: time.Now}
}

func (s *kvStore) Read(syncType string) (*types.SyncState, error) {
	raw, err := s.store.Get(checkpointKey(syncType))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, types.Wrap(types.KindStorage, err)
	}
	return decode(syncType, []byte(raw))
}

func (s *kvStore) Write(state *types.SyncState) error {
	data, err := encode(state, s.now)
	if err != nil {
		return err
	}
	if err := s.store.Set(checkpointKey(state.SyncType), string(data)); err != nil {
		return types.Errorf(types.KindStorage, "write checkpoint %s: %w", state.SyncType, err)
	}
	return nil
}

func (s *kvStore) List() ([]types.SyncState, error) {
	pairs, err := s.store.List(constant.CheckpointKeyPrefix + "/")
	if err != nil {
		return nil, types.Wrap(types.KindStorage, err)
	}
	out := make([]types.SyncState, 0, len(pairs))
	for _, p := range pairs {
		st, err := decode(p.Key, p.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	sortStates(out)
	return out, nil
}

func (s *kvStore) Close() error {
	return s.store.Close()
}

func encode(state *types.SyncState, now func() time.Time) ([]byte, error) {
	if err := state.Validate(); err != nil {
		return nil, types.Errorf(types.KindStorage, "refusing to write invalid checkpoint %s: %w", state.SyncType, err)
	}
	state.UpdatedAt = now().UTC()
	data, err := infra.PrettyJSON.Marshal(state)
	if err != nil {
		return nil, types.Wrap(types.KindStorage, err)
	}
	return data, nil
}

func decode(name string, data []byte) (*types.SyncState, error) {
	var st types.SyncState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, types.Errorf(types.KindStorage, "corrupt checkpoint %s: %w", name, err)
	}
	if err := st.Validate(); err != nil {
		return nil, types.Errorf(types.KindStorage, "corrupt checkpoint %s: %w", name, err)
	}
	return &st, nil
}

func sortStates(states []types.SyncState) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].SyncType < states[j].SyncType
	})
}
