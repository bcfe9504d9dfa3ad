package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/goccy/go-yaml"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

type CLI struct {
	Config string `help:"YAML config file for migration"               required:"true"`
	DryRun bool   `help:"dry run mode (print actions without writing)"`
}

// MigrationConfig names two checkpoint backends. Each endpoint uses the
// same shape as services.checkpoint plus services.kvstore in the daemon
// config.
type MigrationConfig struct {
	Source      EndpointConfig `yaml:"source"`
	Destination EndpointConfig `yaml:"destination"`
	SyncTypes   []string       `yaml:"sync_types"`
	Verify      bool           `yaml:"verify"`
	Overwrite   bool           `yaml:"overwrite"`
}

type EndpointConfig struct {
	Type      enum.CheckpointType `yaml:"type"`
	Directory string              `yaml:"directory,omitempty"`
	KVS       config.KVSConfig    `yaml:"kvstore,omitempty"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("checkpoint-migrate"),
		kong.Description("Copy sync checkpoints between file, Badger and Consul backends"))

	fmt.Printf("%s%sCheckpoint Migration Tool%s\n\n", colorBold, colorCyan, colorReset)

	cfg, err := loadConfig(cli.Config)
	ctx.FatalIfErrorf(err)

	printConfig(cfg, cli.DryRun)

	src, err := buildStore(cfg.Source)
	ctx.FatalIfErrorf(err)
	defer src.Close()

	dst, err := buildStore(cfg.Destination)
	ctx.FatalIfErrorf(err)
	defer dst.Close()

	start := time.Now()
	res, err := migrate(os.Stdout, src, dst, cfg, cli.DryRun)
	ctx.FatalIfErrorf(err)

	printSummary(res, time.Since(start), cli.DryRun)
}

func loadConfig(path string) (*MigrationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}

	var cfg MigrationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML config: %w", err)
	}
	if cfg.Source.Type == "" || cfg.Destination.Type == "" {
		return nil, fmt.Errorf("source.type and destination.type are required")
	}
	return &cfg, nil
}

func buildStore(ep EndpointConfig) (checkpointstore.Store, error) {
	switch ep.Type {
	case enum.CheckpointTypeFile:
		if ep.Directory == "" {
			return nil, fmt.Errorf("file directory is required")
		}
	case enum.CheckpointTypeKV:
		if ep.KVS.Type == "" {
			return nil, fmt.Errorf("kvstore.type is required")
		}
	default:
		return nil, fmt.Errorf("unsupported checkpoint type: %s", ep.Type)
	}
	return checkpointstore.NewFromConfig(config.Services{
		Checkpoint: config.CheckpointConfig{Type: ep.Type, Directory: ep.Directory},
		KVS:        ep.KVS,
	})
}

func describe(ep EndpointConfig) string {
	if ep.Type == enum.CheckpointTypeKV {
		return fmt.Sprintf("kv (%s)", ep.KVS.Type)
	}
	return fmt.Sprintf("file (%s)", ep.Directory)
}

func printConfig(cfg *MigrationConfig, dryRun bool) {
	fmt.Printf("%s%sConfiguration:%s\n", colorBold, colorBlue, colorReset)
	fmt.Printf("  Source: %s%s%s\n", colorYellow, describe(cfg.Source), colorReset)
	fmt.Printf("  Destination: %s%s%s\n", colorYellow, describe(cfg.Destination), colorReset)
	if len(cfg.SyncTypes) > 0 {
		fmt.Printf("  Sync types: %s%v%s\n", colorYellow, cfg.SyncTypes, colorReset)
	}
	fmt.Printf("  Verify: %s%v%s  Overwrite: %s%v%s\n", colorYellow, cfg.Verify, colorReset, colorYellow, cfg.Overwrite, colorReset)
	if dryRun {
		fmt.Printf("  Mode: %sDRY RUN%s\n", colorRed, colorReset)
	}
	fmt.Println()
}

func printSummary(res result, duration time.Duration, dryRun bool) {
	fmt.Println()
	fmt.Printf("%s%sMigration Summary:%s\n", colorBold, colorGreen, colorReset)
	fmt.Printf("  Found: %s%d%s\n", colorYellow, res.Found, colorReset)
	if dryRun {
		fmt.Printf("  Would copy: %s%d%s\n", colorYellow, res.Found-res.Skipped, colorReset)
	} else {
		fmt.Printf("  Copied: %s%d%s\n", colorGreen, res.Copied, colorReset)
	}
	fmt.Printf("  Skipped (already present): %s%d%s\n", colorYellow, res.Skipped, colorReset)
	fmt.Printf("  Duration: %s%s%s\n", colorYellow, duration.Round(time.Millisecond), colorReset)
	if dryRun {
		fmt.Printf("\n%s%sDry run completed - no data was modified%s\n", colorBold, colorYellow, colorReset)
	}
}
