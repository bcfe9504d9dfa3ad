package config

import (
	"github.com/fystack/chainsync/pkg/common/types"
)

type Config struct {
	Environment string      `yaml:"environment" validate:"required,oneof=production development"`
	Version     string      `yaml:"version"`
	LogLevel    string      `yaml:"log_level"   validate:"omitempty,oneof=debug info warn error"`
	Syncs       SyncsConfig `yaml:"syncs"       validate:"required"`
	Services    Services    `yaml:"services"    validate:"required"`
}

// IsProduction reports whether TLS and quieter logging should be used.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Seed builds the initial checkpoint for a sync source that has none yet.
func (sc SyncConfig) Seed() types.SyncState {
	status := sc.Status
	if status == "" {
		status = types.StatusWorking
	}
	endpoints := make([]string, len(sc.Endpoints))
	copy(endpoints, sc.Endpoints)
	return types.SyncState{
		SyncType:  sc.Name,
		ChainID:   sc.ChainID,
		FromIdx:   sc.FromIdx,
		SyncIdx:   sc.FromIdx,
		Endpoints: endpoints,
		Status:    status,
		Filter:    sc.Filter,
	}
}
