package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/metrics"
)

// Senders is the part of fanout.MultiSender the dispatcher uses.
type Senders interface {
	Has(name string) bool
	Send(ctx context.Context, name string, msg fanout.Message) error
}

// Dispatcher forwards what a source produced to the fan-out. Delivery is
// best effort: a failed send is logged and counted, never returned.
type Dispatcher struct {
	senders Senders
	events  bool
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewDispatcher needs a view holding at least the postgres and slack
// channels. Records are copied to the events channel when events is set
// and the view has it.
func NewDispatcher(senders Senders, events bool, m *metrics.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		senders: senders,
		events:  events && senders.Has(constant.SinkEvents),
		metrics: m,
		logger:  logger,
	}
}

// Record addresses payload to a storage table.
func (d *Dispatcher) Record(ctx context.Context, table string, payload record.Record) {
	msg := types.SinkMessage{Table: table, Payload: payload}
	d.send(ctx, constant.SinkPostgres, msg)
	if d.events {
		d.send(ctx, constant.SinkEvents, msg)
	}
}

func (d *Dispatcher) Notify(ctx context.Context, level types.NotifyLevel, format string, args ...any) {
	d.send(ctx, constant.SinkSlack, types.NotifyMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

// Enqueue hands msg to another stage, such as the receipt relay.
func (d *Dispatcher) Enqueue(ctx context.Context, channel string, msg fanout.Message) {
	d.send(ctx, channel, msg)
}

func (d *Dispatcher) send(ctx context.Context, channel string, msg fanout.Message) {
	if err := d.senders.Send(ctx, channel, msg); err != nil {
		d.metrics.ChannelDrop(channel)
		d.logger.Warn("Dropped message", "channel", channel, "error", err)
	}
}
