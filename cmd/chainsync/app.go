package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/chainsync/internal/control"
	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/internal/rpc"
	"github.com/fystack/chainsync/internal/sink"
	"github.com/fystack/chainsync/internal/syncstate"
	"github.com/fystack/chainsync/internal/worker"
	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/fystack/chainsync/pkg/metrics"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/samber/lo"
)

const receiptChannel = string(enum.SourceEthereumTxReceipt)

// app holds everything the daemon built from config. Nothing is looked up
// globally: each component gets the views and handles it needs.
type app struct {
	cfg      *config.Config
	metrics  *metrics.Metrics
	store    checkpointstore.Store
	registry *fanout.Registry
	manager  *worker.Manager
	control  *control.Service
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			if cerr := a.Close(); cerr != nil {
				logger.Warn("Close after failed build", "error", cerr)
			}
		}
	}()

	if a.metrics, err = metrics.New(); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	if a.store, err = checkpointstore.NewFromConfig(cfg.Services); err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	a.closers = append(a.closers, a.store.Close)

	syncNames := cfg.Syncs.Names()
	relaySync, relayOn := receiptSource(cfg)

	outputs := []string{constant.SinkPostgres, constant.SinkSlack}
	if cfg.Services.Nats != nil {
		outputs = append(outputs, constant.SinkEvents)
	}
	if relayOn {
		outputs = append(outputs, receiptChannel)
	}
	a.registry, err = fanout.New(fanout.Config{
		Buffer:      cfg.Services.Fanout.Buffer,
		SendTimeout: cfg.Services.Fanout.SendTimeout,
	}, append(outputs, syncNames...)...)
	if err != nil {
		return nil, err
	}
	out, err := a.registry.Sender(outputs...)
	if err != nil {
		return nil, err
	}
	a.manager = worker.NewManager(a.registry.Close)

	var failures worker.FailureRecorder
	if cfg.Services.Redis != nil {
		client, err := infra.NewRedisClient(*cfg.Services.Redis)
		if err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		failures = sink.NewFailureQueue(client)
	}

	for _, name := range syncNames {
		sc, _ := cfg.Syncs.Get(name)
		loop, err := a.buildLoop(sc, out, failures, relayOn)
		if err != nil {
			return nil, fmt.Errorf("sync %s: %w", name, err)
		}
		a.manager.AddLoop(loop)
	}

	if relayOn {
		in, err := a.registry.Receiver(receiptChannel)
		if err != nil {
			return nil, err
		}
		dispatch := worker.NewDispatcher(out.Clone(), relaySync.Events, a.metrics, logger.With("sync_type", receiptChannel))
		a.manager.AddProducers(worker.NewTxReceiptRelay(in, rpc.NewClient(clientConfig(relaySync.Client)), dispatch, relaySync.Receipts.PollInterval))
	}

	if err := a.buildSinks(ctx, out); err != nil {
		return nil, err
	}

	inboxes, err := a.registry.Sender(syncNames...)
	if err != nil {
		return nil, err
	}
	a.control = control.NewService(a.manager, inboxes)
	return a, nil
}

// receiptSource returns the first ethereum_block source that wants receipts.
// Its client settings and relay interval drive the shared receipt relay.
func receiptSource(cfg *config.Config) (config.SyncConfig, bool) {
	for _, name := range cfg.Syncs.Names() {
		sc, _ := cfg.Syncs.Get(name)
		if sc.Type == enum.SourceEthereumBlock && sc.Receipts.Enabled {
			return sc, true
		}
	}
	return config.SyncConfig{}, false
}

func clientConfig(c config.ClientCfg) rpc.Config {
	return rpc.Config{
		Timeout: c.Timeout,
		RPS:     c.Throttle.RPS,
		Burst:   c.Throttle.Burst,
		Headers: c.Headers,
	}
}

func (a *app) buildLoop(sc config.SyncConfig, out *fanout.MultiSender, failures worker.FailureRecorder, relayOn bool) (*worker.Loop, error) {
	machine, err := syncstate.LoadOrInit(a.store, sc.Seed(), syncstate.WithFailoverThreshold(sc.FailoverThreshold))
	if err != nil {
		return nil, err
	}

	client := rpc.NewClient(clientConfig(sc.Client))
	dispatch := worker.NewDispatcher(out.Clone(), sc.Events, a.metrics, logger.With("sync_type", sc.Name))

	var source worker.Source
	switch sc.Type {
	case enum.SourceEthereumBlock:
		source = worker.NewEthereumBlockSource(client, dispatch, relayOn && sc.Receipts.Enabled)
	case enum.SourceL2TxBatch:
		source = worker.NewL2TxBatchSource(client, dispatch)
	default:
		return nil, fmt.Errorf("unsupported source type %q", sc.Type)
	}

	inbox, err := a.registry.Receiver(sc.Name)
	if err != nil {
		return nil, err
	}
	opts := []worker.LoopOption{worker.WithMetrics(a.metrics)}
	if failures != nil {
		opts = append(opts, worker.WithFailureRecorder(failures))
	}
	return worker.NewLoop(machine, source, inbox, dispatch, sc.PollInterval, opts...), nil
}

func (a *app) buildSinks(ctx context.Context, out *fanout.MultiSender) error {
	svc := a.cfg.Services

	var schema sink.Schema
	if svc.SchemaFile != "" {
		var err error
		if schema, err = sink.LoadSchema(svc.SchemaFile); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	pgIn, err := a.registry.Receiver(constant.SinkPostgres)
	if err != nil {
		return err
	}
	if svc.Database != nil {
		if schema == nil {
			return errors.New("services.database needs services.schema_file")
		}
		db, err := infra.NewDBConnection(svc.Database.URL, a.cfg.Environment)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		a.manager.AddConsumers(sink.NewPostgresSink(pgIn, schema, sink.NewGormInserter(db), out.Get(constant.SinkSlack), a.metrics))
	} else {
		logger.Warn("No database configured, records are only logged")
		a.manager.AddConsumers(sink.NewLogSink(constant.SinkPostgres, pgIn))
	}

	slackIn, err := a.registry.Receiver(constant.SinkSlack)
	if err != nil {
		return err
	}
	if svc.Slack.Active {
		a.manager.AddConsumers(sink.NewSlackNotifier(slackIn, svc.Slack, a.metrics))
	} else {
		a.manager.AddConsumers(sink.NewLogNotifier(slackIn))
	}

	if svc.Nats != nil {
		nc, err := infra.GetNATSConnection(*svc.Nats, a.cfg.Environment)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		a.closers = append(a.closers, nc.Drain)
		publisher, err := infra.NewJetStreamPublisher(ctx, nc, svc.Nats.Stream, svc.Nats.SubjectPrefix)
		if err != nil {
			return fmt.Errorf("jetstream: %w", err)
		}
		eventsIn, err := a.registry.Receiver(constant.SinkEvents)
		if err != nil {
			return err
		}
		a.manager.AddConsumers(sink.NewEventSink(eventsIn, publisher, svc.Nats.SubjectPrefix, schema, a.metrics))
	}
	return nil
}

// Close releases connections in reverse order of creation. Every closer
// runs; their errors are collected.
func (a *app) Close() error {
	var errs types.MultiError
	for _, c := range lo.Reverse(a.closers) {
		errs.Add(c())
	}
	a.closers = nil
	return errs.ErrOrNil()
}
