package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/infra"
	"github.com/fystack/chainsync/pkg/metrics"
)

// Event is the JSON body published for every relayed record.
type Event struct {
	Table     string         `json:"table"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

// EventSink relays records to JetStream on <prefix>.<table>. The message id
// is the table plus its key columns so redeliveries are de-duplicated.
type EventSink struct {
	in        <-chan fanout.Message
	publisher infra.EventPublisher
	prefix    string
	schema    Schema
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

func NewEventSink(in <-chan fanout.Message, publisher infra.EventPublisher, prefix string, schema Schema, m *metrics.Metrics) *EventSink {
	return &EventSink{
		in:        in,
		publisher: publisher,
		prefix:    prefix,
		schema:    schema,
		metrics:   m,
		logger:    logger.With("sink", constant.SinkEvents),
		now:       time.Now,
	}
}

func (s *EventSink) Name() string { return constant.SinkEvents }

func (s *EventSink) Run(ctx context.Context) error {
	return drain(ctx, s.Name(), s.in, func(ctx context.Context, msg fanout.Message) {
		m, ok := msg.(types.SinkMessage)
		if !ok {
			s.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
			return
		}
		if err := s.Publish(ctx, m); err != nil {
			s.metrics.SinkWrite(s.Name(), m.Table, "error")
			s.logger.Error("Failed to publish event", "table", m.Table, "error", err)
			return
		}
		s.metrics.SinkWrite(s.Name(), m.Table, "ok")
	})
}

func (s *EventSink) Publish(ctx context.Context, m types.SinkMessage) error {
	data, err := json.Marshal(Event{
		Table:     m.Table,
		Data:      m.Payload,
		Timestamp: s.now().UTC().Unix(),
	})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, s.prefix+"."+m.Table, data, s.msgID(m))
}

func (s *EventSink) msgID(m types.SinkMessage) string {
	t, ok := s.schema[m.Table]
	if !ok || len(t.Keys) == 0 {
		return ""
	}
	return m.Table + ":" + t.Key(m.Payload)
}
