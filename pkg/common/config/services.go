package config

import (
	"time"

	"github.com/fystack/chainsync/pkg/common/enum"
)

type Services struct {
	Port       int              `yaml:"port"        validate:"required,min=1,max=65535"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	KVS        KVSConfig        `yaml:"kvstore"`
	Database   *DatabaseConfig  `yaml:"database,omitempty"`
	SchemaFile string           `yaml:"schema_file"`
	Nats       *NatsConfig      `yaml:"nats,omitempty"`
	Redis      *RedisConfig     `yaml:"redis,omitempty"`
	Slack      SlackConfig      `yaml:"slack"`
	Fanout     FanoutConfig     `yaml:"fanout"`
}

type CheckpointConfig struct {
	Type      enum.CheckpointType `yaml:"type"      validate:"omitempty,oneof=file kv"`
	Directory string              `yaml:"directory"`
}

type KVSConfig struct {
	Type   enum.KVStoreType `yaml:"type"   validate:"omitempty,oneof=badger consul"`
	Consul ConsulConfig     `yaml:"consul"`
	Badger BadgerConfig     `yaml:"badger"`
}

type ConsulConfig struct {
	Scheme   string         `yaml:"scheme"`
	Address  string         `yaml:"address"`
	Folder   string         `yaml:"folder"`
	Token    string         `yaml:"token"`
	HttpAuth HttpAuthConfig `yaml:"http_auth"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BadgerConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
}

type DatabaseConfig struct {
	URL string `yaml:"url" validate:"required"`
}

type NatsConfig struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	SubjectPrefix string        `yaml:"subject_prefix" validate:"required"`
	Username      string        `yaml:"username"`
	Password      string        `yaml:"password"`
	TLS           NatsTLSConfig `yaml:"tls"`
}

type NatsTLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type RedisConfig struct {
	URL      string `yaml:"url" validate:"required"`
	Password string `yaml:"password"`
}

type SlackConfig struct {
	Active       bool   `yaml:"active"`
	InfoWebhook  string `yaml:"info_webhook"`
	WarnWebhook  string `yaml:"warn_webhook"`
	ErrorWebhook string `yaml:"error_webhook"`
}

type FanoutConfig struct {
	Buffer      int           `yaml:"buffer"       validate:"min=0"`
	SendTimeout time.Duration `yaml:"send_timeout"`
}
