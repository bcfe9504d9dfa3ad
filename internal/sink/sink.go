// Package sink holds the consumers at the far end of the fan-out channels:
// relational storage, the JetStream event relay, notifiers and a log sink.
// Each Runner drains one channel until it is closed or the context ends.
package sink

import (
	"context"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/logger"
)

type Runner interface {
	Name() string
	Run(ctx context.Context) error
}

// drain feeds every message on ch to handle until ch is closed or ctx is done.
func drain(ctx context.Context, name string, ch <-chan fanout.Message, handle func(context.Context, fanout.Message)) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				logger.Debug("Sink channel closed", "sink", name)
				return nil
			}
			handle(ctx, msg)
		}
	}
}
