package sink

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
)

// LogSink consumes a record channel that has no storage behind it, logging
// each record at debug level.
type LogSink struct {
	name   string
	in     <-chan fanout.Message
	logger *slog.Logger
}

func NewLogSink(name string, in <-chan fanout.Message) *LogSink {
	return &LogSink{name: name, in: in, logger: logger.With("sink", name, "backend", "log")}
}

func (s *LogSink) Name() string { return s.name }

func (s *LogSink) Run(ctx context.Context) error {
	s.logger.Warn("No backend configured, records are only logged")
	return drain(ctx, s.name, s.in, func(ctx context.Context, msg fanout.Message) {
		m, ok := msg.(types.SinkMessage)
		if !ok {
			s.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
			return
		}
		s.logger.Debug("Record", "table", m.Table, "fields", len(m.Payload))
	})
}
