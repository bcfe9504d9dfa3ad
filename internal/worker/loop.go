package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/internal/syncstate"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/metrics"
)

// Step outcomes, as reported to metrics.
const (
	OutcomeAdvanced   = "advanced"
	OutcomeFiltered   = "filtered"
	OutcomeNotReady   = "not_ready"
	OutcomeConnection = "connection"
	OutcomeRequest    = "request"
	OutcomeFailed     = "failed"
)

var allStatuses = []string{string(types.StatusWorking), string(types.StatusStopped), string(types.StatusError)}

// Loop drives one sync source. Each cycle it applies at most one control
// message, runs one step when the source is working, classifies the
// result, and sleeps for the interval. The Machine is only touched from
// the goroutine running Run.
type Loop struct {
	machine  *syncstate.Machine
	source   Source
	inbox    <-chan fanout.Message
	out      *Dispatcher
	interval time.Duration
	failures FailureRecorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type LoopOption func(*Loop)

func WithFailureRecorder(f FailureRecorder) LoopOption {
	return func(l *Loop) { l.failures = f }
}

func WithMetrics(m *metrics.Metrics) LoopOption {
	return func(l *Loop) { l.metrics = m }
}

func NewLoop(machine *syncstate.Machine, source Source, inbox <-chan fanout.Message, out *Dispatcher, interval time.Duration, opts ...LoopOption) *Loop {
	if interval <= 0 {
		interval = constant.DefaultBlockInterval
	}
	l := &Loop{
		machine:  machine,
		source:   source,
		inbox:    inbox,
		out:      out,
		interval: interval,
		logger:   logger.With("sync_type", machine.SyncType()),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) Name() string { return l.machine.SyncType() }

// Machine exposes the state machine for snapshot reads.
func (l *Loop) Machine() *syncstate.Machine { return l.machine }

func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("Sync loop started", "sync_idx", l.machine.Cursor(), "status", l.machine.Status(), "interval", l.interval)
	l.publishMetrics()

	timer := time.NewTimer(l.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			l.logger.Info("Sync loop stopped", "sync_idx", l.machine.Cursor())
			return nil
		}

		l.Cycle(ctx)

		timer.Reset(l.interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

// Cycle runs a single iteration without the trailing sleep.
func (l *Loop) Cycle(ctx context.Context) {
	l.pollControl(ctx)
	if !l.machine.IsWorkable() {
		return
	}

	start := time.Now()
	err := l.source.Step(ctx, l.machine)
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return
	}
	outcome := l.handle(ctx, err)
	l.metrics.ObserveStep(l.machine.SyncType(), outcome, time.Since(start))
	l.publishMetrics()
}

func (l *Loop) pollControl(ctx context.Context) {
	var msg fanout.Message
	select {
	case m, ok := <-l.inbox:
		if !ok {
			l.inbox = nil
			return
		}
		msg = m
	default:
		return
	}

	cm, ok := msg.(types.ControlMessage)
	if !ok {
		l.logger.Warn("Ignoring unexpected control message", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err := l.machine.ApplyControl(cm.Method); err != nil {
		l.logger.Warn("Control message rejected", "method", cm.Method, "error", err)
		l.out.Notify(ctx, types.LevelWarn, "control rejected; sync_type: %s, method: %s, error: %s", l.machine.SyncType(), cm.Method, err)
		return
	}
	l.publishMetrics()
}

func (l *Loop) handle(ctx context.Context, stepErr error) string {
	idx := l.machine.Cursor()

	switch types.KindOf(stepErr) {
	case "":
		l.machine.RecordConnectionSuccess()
		l.advance(ctx)
		l.logger.Debug("Synchronized", "sync_idx", idx)
		return OutcomeAdvanced

	case types.KindFiltered:
		l.machine.RecordConnectionSuccess()
		l.logger.Debug("Filtered", "sync_idx", idx)
		l.advance(ctx)
		return OutcomeFiltered

	case types.KindNotReady:
		l.machine.RecordConnectionSuccess()
		l.logger.Debug("Not ready", "sync_idx", idx, "reason", stepErr)
		return OutcomeNotReady

	case types.KindConnection:
		l.logger.Warn("Connection failed", "sync_idx", idx, "endpoint", l.machine.ActiveEndpoint(), "error", stepErr)
		if _, err := l.machine.RecordConnectionFailure(); err != nil {
			l.persistFailed(ctx, err)
		}
		return OutcomeConnection

	case types.KindRequest:
		l.logger.Error("Request failed", "sync_idx", idx, "error", stepErr)
		return OutcomeRequest

	default:
		l.logger.Error("Sync failed", "sync_idx", idx, "error", stepErr)
		if err := l.machine.RecordError(stepErr); err != nil {
			l.persistFailed(ctx, err)
		}
		l.out.Notify(ctx, types.LevelError, "sync failed; sync_type: %s, sync_idx: %d, error: %s", l.machine.SyncType(), idx, stepErr)
		if l.failures != nil {
			if err := l.failures.Record(ctx, l.machine.SyncType(), idx, stepErr); err != nil {
				l.logger.Warn("Failed to record failed index", "sync_idx", idx, "error", err)
			}
		}
		return OutcomeFailed
	}
}

func (l *Loop) advance(ctx context.Context) {
	if err := l.machine.Advance(); err != nil {
		l.persistFailed(ctx, err)
	}
}

func (l *Loop) persistFailed(ctx context.Context, err error) {
	l.logger.Error("Failed to persist checkpoint", "sync_idx", l.machine.Cursor(), "error", err)
	l.out.Notify(ctx, types.LevelError, "checkpoint write failed; sync_type: %s, error: %s", l.machine.SyncType(), err)
}

func (l *Loop) publishMetrics() {
	l.metrics.SetCursor(l.machine.SyncType(), l.machine.Cursor())
	l.metrics.SetStatus(l.machine.SyncType(), string(l.machine.Status()), allStatuses)
}
