package kvstore

import (
	"errors"
	"fmt"

	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/hashicorp/consul/api"
)

var (
	ErrKeyNotFound = errors.New("key not found")
	ErrKeyEmpty    = errors.New("key is empty")
	ErrPrefixEmpty = errors.New("prefix is empty")
)

func checkKeyAndValue(k string, v any) error {
	if k == "" {
		return ErrKeyEmpty
	}
	if v == nil {
		return errors.New("the passed value is nil, which is not allowed")
	}
	return nil
}

// NewFromConfig constructs an infra.KVStore based on kvstore configuration.
func NewFromConfig(cfg config.KVSConfig, codec infra.Codec) (infra.KVStore, error) {
	switch cfg.Type {
	case enum.KVStoreTypeBadger:
		return NewBadgerStore(cfg.Badger.Directory, cfg.Badger.Prefix, codec)
	case enum.KVStoreTypeConsul:
		var httpAuth *api.HttpBasicAuth
		if cfg.Consul.HttpAuth.Username != "" || cfg.Consul.HttpAuth.Password != "" {
			httpAuth = &api.HttpBasicAuth{
				Username: cfg.Consul.HttpAuth.Username,
				Password: cfg.Consul.HttpAuth.Password,
			}
		}
		return NewConsulClient(Options{
			Scheme:   cfg.Consul.Scheme,
			Address:  cfg.Consul.Address,
			Folder:   cfg.Consul.Folder,
			Codec:    codec,
			Token:    cfg.Consul.Token,
			HttpAuth: httpAuth,
		})
	default:
		return nil, fmt.Errorf("unsupported kvstore type: %s", cfg.Type)
	}
}
