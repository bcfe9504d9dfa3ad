package checkpointstore

import (
	"fmt"

	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/fystack/chainsync/pkg/kvstore"
)

// NewFromConfig picks the checkpoint backend named in services.checkpoint.
func NewFromConfig(cfg config.Services) (Store, error) {
	switch cfg.Checkpoint.Type {
	case enum.CheckpointTypeFile, "":
		return NewFileStore(cfg.Checkpoint.Directory)
	case enum.CheckpointTypeKV:
		kv, err := kvstore.NewFromConfig(cfg.KVS, infra.PrettyJSON)
		if err != nil {
			return nil, fmt.Errorf("checkpoint kvstore: %w", err)
		}
		return NewKVStore(kv), nil
	default:
		return nil, fmt.Errorf("unsupported checkpoint type: %s", cfg.Checkpoint.Type)
	}
}
