package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fystack/chainsync/internal/sink"
	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	ConfigPath string
	Debug      bool
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "chainsync",
		Short:        "Chain sync daemon",
		Long:         "Polls chain nodes index by index and fans the records out to storage, events and alerts.",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "configs/config.yaml", "path to config file")
	cmd.PersistentFlags().BoolVar(&opts.Debug, "debug", false, "enable debug logs")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newStatusCommand(opts))
	return cmd
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured sync source",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts)
		},
	}
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var failures int64
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print stored checkpoints",
		Long:  "Print stored checkpoints. With a badger checkpoint store the daemon must be stopped first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(cmd.Context(), opts, failures)
		},
	}
	cmd.Flags().Int64Var(&failures, "failures", 0, "also list the N most recent failed indexes per source (needs redis)")
	return cmd
}

func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := logger.ParseLevel(cfg.LogLevel)
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.IsProduction(),
	})
	return cfg, nil
}

func runDaemon(opts *rootOptions) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger.Info("Config loaded", "syncs", cfg.Syncs.Names(), "environment", cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error("Build daemon failed", "error", err)
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Error("Release resources failed", "error", err)
		}
	}()

	server := startHTTPServer(cfg.Services.Port, cfg.Version, a)

	logger.Info("Chainsync is running... Press Ctrl+C to stop")
	runErr := a.manager.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	if runErr != nil {
		logger.Error("Chainsync stopped with error", "error", runErr)
		return runErr
	}
	logger.Info("Chainsync stopped")
	return nil
}

func printStatus(ctx context.Context, opts *rootOptions, failures int64) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	store, err := checkpointstore.NewFromConfig(cfg.Services)
	if err != nil {
		return err
	}
	defer store.Close()

	states, err := store.List()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYNC_TYPE\tSTATUS\tSYNC_IDX\tFROM_IDX\tENDPOINT\tUPDATED\tMESSAGE")
	for _, st := range states {
		endpoint := ""
		if st.EndpointIdx >= 0 && st.EndpointIdx < len(st.Endpoints) {
			endpoint = st.Endpoints[st.EndpointIdx]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			st.SyncType, st.Status, st.SyncIdx, st.FromIdx, endpoint,
			st.UpdatedAt.Format(time.RFC3339), st.Message)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if failures <= 0 {
		return nil
	}
	if cfg.Services.Redis == nil {
		return fmt.Errorf("--failures needs services.redis")
	}
	client, err := infra.NewRedisClient(*cfg.Services.Redis)
	if err != nil {
		return err
	}
	defer client.Close()

	queue := sink.NewFailureQueue(client)
	for _, st := range states {
		recent, err := queue.Recent(ctx, st.SyncType, failures)
		if err != nil {
			return err
		}
		for _, f := range recent {
			fmt.Printf("%s\t%d\t%s\t%s\n", f.SyncType, f.Index, f.At.Format(time.RFC3339), f.Error)
		}
	}
	return nil
}
