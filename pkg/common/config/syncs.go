package config

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/goccy/go-yaml"
)

type SyncsConfig struct {
	Defaults SyncConfig            `yaml:"defaults" validate:"-"`
	Items    map[string]SyncConfig `yaml:",inline"  validate:"required,min=1,dive,keys,required,endkeys,required"`
}

// UnmarshalYAML splits out "defaults" from inline sync entries
func (c *SyncsConfig) UnmarshalYAML(b []byte) error {
	var raw map[string]SyncConfig
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]SyncConfig{}
	}
	if def, ok := raw["defaults"]; ok {
		c.Defaults = def
		delete(raw, "defaults")
	} else {
		c.Defaults = SyncConfig{}
	}
	c.Items = raw
	return nil
}

type SyncConfig struct {
	Name              string           `yaml:"-"`
	Type              enum.SourceType  `yaml:"type"               validate:"required,oneof=ethereum_block l2_tx_batch"`
	ChainID           string           `yaml:"chain_id"`
	FromIdx           uint64           `yaml:"from_idx"`
	Status            types.SyncStatus `yaml:"status"             validate:"omitempty,oneof=working stopped"`
	Filter            string           `yaml:"filter"`
	Endpoints         []string         `yaml:"endpoints"          validate:"required,min=1,dive,url"`
	PollInterval      time.Duration    `yaml:"poll_interval"      validate:"gt=0"`
	FailoverThreshold int              `yaml:"failover_threshold" validate:"min=0"`
	Events            bool             `yaml:"events"`
	Client            ClientCfg        `yaml:"client"`
	Receipts          RelayCfg         `yaml:"receipts"`
}

type ClientCfg struct {
	Timeout  time.Duration     `yaml:"timeout"`
	Throttle ThrottleCfg       `yaml:"throttle"`
	Headers  map[string]string `yaml:"headers,omitempty"`
}

type ThrottleCfg struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

// RelayCfg configures the receipt relay fed by ethereum_block sources.
type RelayCfg struct {
	Enabled      bool          `yaml:"enabled"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Names returns sync types in a stable order.
func (c *SyncsConfig) Names() []string {
	names := make([]string, 0, len(c.Items))
	for name := range c.Items {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *SyncsConfig) Get(name string) (SyncConfig, error) {
	if sc, ok := c.Items[name]; ok {
		return sc, nil
	}
	return SyncConfig{}, fmt.Errorf("sync %s not found", name)
}

// finalize expands ${VAR} in endpoints and headers and names each entry
// after its key.
func (c *SyncsConfig) finalize() {
	for name, sc := range c.Items {
		sc.Name = name
		endpoints := make([]string, len(sc.Endpoints))
		for i, ep := range sc.Endpoints {
			endpoints[i] = os.ExpandEnv(ep)
		}
		sc.Endpoints = endpoints
		if len(sc.Client.Headers) > 0 {
			headers := make(map[string]string, len(sc.Client.Headers))
			for k, v := range sc.Client.Headers {
				headers[k] = os.ExpandEnv(v)
			}
			sc.Client.Headers = headers
		}
		c.Items[name] = sc
	}
}
