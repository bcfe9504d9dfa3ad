package config

import (
	"fmt"
	"os"

	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
	"github.com/imdario/mergo"
)

var validate = validator.New()

var builtinDefaults = SyncConfig{
	PollInterval:      constant.DefaultBlockInterval,
	FailoverThreshold: constant.DefaultFailoverRetries,
	Client: ClientCfg{
		Timeout:  constant.DefaultClientTimeout,
		Throttle: ThrottleCfg{RPS: 10, Burst: 20},
	},
	Receipts: RelayCfg{PollInterval: constant.DefaultRelayInterval},
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// merge defaults: explicit entry, then defaults block, then built-ins
	for name, sc := range cfg.Syncs.Items {
		if err := mergo.Merge(&sc, cfg.Syncs.Defaults); err != nil {
			return nil, fmt.Errorf("sync %s: merge defaults: %w", name, err)
		}
		if err := mergo.Merge(&sc, builtinDefaults); err != nil {
			return nil, fmt.Errorf("sync %s: merge builtin defaults: %w", name, err)
		}
		cfg.Syncs.Items[name] = sc
	}
	cfg.Syncs.finalize()
	cfg.Services.applyDefaults()
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	// validate
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("struct validation failed: %w", err)
	}
	if cfg.Services.Checkpoint.Type == enum.CheckpointTypeKV && cfg.Services.KVS.Type == "" {
		return nil, fmt.Errorf("checkpoint type kv requires services.kvstore.type")
	}
	return &cfg, nil
}

func (s *Services) applyDefaults() {
	if s.Checkpoint.Type == "" {
		s.Checkpoint.Type = enum.CheckpointTypeFile
	}
	if s.Checkpoint.Directory == "" {
		s.Checkpoint.Directory = "state"
	}
	if s.Fanout.Buffer == 0 {
		s.Fanout.Buffer = constant.DefaultFanoutBuffer
	}
	if s.Fanout.SendTimeout == 0 {
		s.Fanout.SendTimeout = constant.DefaultSendTimeout
	}
	s.Slack.InfoWebhook = os.ExpandEnv(s.Slack.InfoWebhook)
	s.Slack.WarnWebhook = os.ExpandEnv(s.Slack.WarnWebhook)
	s.Slack.ErrorWebhook = os.ExpandEnv(s.Slack.ErrorWebhook)
	if s.Database != nil {
		s.Database.URL = os.ExpandEnv(s.Database.URL)
	}
}
