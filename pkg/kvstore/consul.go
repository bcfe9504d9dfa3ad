package kvstore

// Based on github.com/philippgille/gokv/consul, extended with string
// Get/Set and prefix listing.

import (
	"fmt"
	"strings"
	"time"

	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/hashicorp/consul/api"
)

// ConsulClient implement infra.KVStore
type ConsulClient struct {
	c      *api.KV
	folder string
	codec  infra.Codec
}

func (c ConsulClient) GetName() string {
	return string(enum.KVStoreTypeConsul)
}

func (c ConsulClient) fullKey(k string) string {
	if c.folder != "" {
		return c.folder + "/" + k
	}
	return k
}

func (c ConsulClient) put(k string, data []byte) error {
	_, err := c.c.Put(&api.KVPair{Key: c.fullKey(k), Value: data}, nil)
	return err
}

func (c ConsulClient) get(k string) ([]byte, error) {
	kvPair, _, err := c.c.Get(c.fullKey(k), nil)
	if err != nil {
		return nil, err
	}
	if kvPair == nil {
		return nil, ErrKeyNotFound
	}
	return kvPair.Value, nil
}

func (c ConsulClient) Set(k string, v string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	return c.put(k, []byte(v))
}

// Get retrieves the stored value for the given key.
func (c ConsulClient) Get(k string) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	data, err := c.get(k)
	return string(data), err
}

// SetAny stores v encoded with the configured codec.
// The key must not be "" and the value must not be nil.
func (c ConsulClient) SetAny(k string, v any) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}
	data, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}
	return c.put(k, data)
}

// GetAny decodes the stored value into v, which must be a pointer.
// If no value is found it returns (false, nil).
func (c ConsulClient) GetAny(k string, v any) (found bool, err error) {
	if err := checkKeyAndValue(k, v); err != nil {
		return false, err
	}
	data, err := c.get(k)
	if err == ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, c.codec.Unmarshal(data, v)
}

func (c ConsulClient) List(prefix string) ([]*infra.KVPair, error) {
	if prefix == "" {
		return nil, ErrPrefixEmpty
	}

	kvPairs, _, err := c.c.List(c.fullKey(prefix), nil)
	if err != nil {
		return nil, err
	}

	result := make([]*infra.KVPair, len(kvPairs))
	for i, kvPair := range kvPairs {
		key := kvPair.Key
		if c.folder != "" {
			key = strings.TrimPrefix(key, c.folder+"/")
		}
		result[i] = &infra.KVPair{Key: key, Value: kvPair.Value}
	}
	return result, nil
}

// Delete deletes the stored value for the given key.
// Deleting a non-existing key-value pair does NOT lead to an error.
func (c ConsulClient) Delete(k string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.c.Delete(c.fullKey(k), nil)
	return err
}

// Close is a no-op; the Consul API client holds no open handles.
func (c ConsulClient) Close() error {
	return nil
}

type Options struct {
	// Optional ("http" by default).
	Scheme string
	// Optional ("127.0.0.1:8500" by default).
	Address string
	// Directory under which to store the key-value pairs.
	Folder string
	// Optional (infra.JSON by default).
	Codec infra.Codec

	Token    string
	HttpAuth *api.HttpBasicAuth
}

var DefaultConsulOptions = Options{
	Scheme:  "http",
	Address: "127.0.0.1:8500",
	Codec:   infra.JSON,
}

// NewConsulClient connects and verifies a leader is reachable.
func NewConsulClient(options Options) (infra.KVStore, error) {
	if options.Scheme == "" {
		options.Scheme = DefaultConsulOptions.Scheme
	}
	if options.Address == "" {
		options.Address = DefaultConsulOptions.Address
	}
	if options.Codec == nil {
		options.Codec = DefaultConsulOptions.Codec
	}

	config := api.DefaultConfig()
	config.Scheme = options.Scheme
	config.Address = options.Address
	config.WaitTime = 10 * time.Second
	if options.Token != "" {
		config.Token = options.Token
	}
	if options.HttpAuth != nil && options.HttpAuth.Username != "" {
		config.HttpAuth = options.HttpAuth
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", err)
	}

	return ConsulClient{
		c:      client.KV(),
		folder: options.Folder,
		codec:  options.Codec,
	}, nil
}
