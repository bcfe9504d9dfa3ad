package infra

import (
	"encoding/json"
)

type KVPair struct {
	Key   string
	Value []byte
}

// KVStore is the key-value backend behind checkpoints and failure records.
// Implementations live in pkg/kvstore (Badger, Consul).
type KVStore interface {
	GetName() string
	Set(k string, v string) error
	Get(k string) (v string, err error)
	// SetAny encodes v with the store's codec.
	SetAny(k string, v any) error
	GetAny(k string, v any) (found bool, err error)

	List(prefix string) ([]*KVPair, error)
	Delete(k string) error
	Close() error
}

// Codec encodes/decodes Go values to/from slices of bytes.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

var (
	JSON       = JSONcodec{}
	PrettyJSON = JSONcodec{Indent: "  "}
)

// JSONcodec encodes/decodes Go values to/from JSON. A non-empty Indent
// produces human-editable documents.
type JSONcodec struct {
	Indent string
}

func (c JSONcodec) Marshal(v any) ([]byte, error) {
	if c.Indent != "" {
		return json.MarshalIndent(v, "", c.Indent)
	}
	return json.Marshal(v)
}

func (c JSONcodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
