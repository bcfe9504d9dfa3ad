package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingConsumer struct {
	in    <-chan fanout.Message
	count atomic.Int64
}

func (c *countingConsumer) Name() string { return "counter" }

func (c *countingConsumer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-c.in:
			if !ok {
				return nil
			}
			c.count.Add(1)
		}
	}
}

func TestManager_RunAndDrain(t *testing.T) {
	reg, err := fanout.New(fanout.Config{Buffer: 1024}, constant.SinkPostgres, constant.SinkSlack, "ethereum_block")
	require.NoError(t, err)
	senders, err := reg.Sender(constant.SinkPostgres, constant.SinkSlack)
	require.NoError(t, err)
	inbox, _ := reg.Receiver("ethereum_block")
	pg, _ := reg.Receiver(constant.SinkPostgres)

	out := NewDispatcher(senders, false, nil, logger.With("test", true))
	m, _ := newMachine(t, seedState("ethereum_block"))
	loop := NewLoop(m, &recordSource{out: out}, inbox, out, time.Millisecond)

	consumer := &countingConsumer{in: pg}
	mgr := NewManager(reg.Close)
	mgr.AddLoop(loop)
	mgr.AddConsumers(consumer)

	assert.Equal(t, []string{"ethereum_block"}, mgr.SyncTypes())
	_, ok := mgr.Snapshot("unknown")
	assert.False(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, _ := mgr.Snapshot("ethereum_block")
		return st.SyncIdx >= 105
	}, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop")
	}

	st, _ := mgr.Snapshot("ethereum_block")
	assert.Equal(t, int64(st.SyncIdx-100), consumer.count.Load(), "every dispatched record drained")
	assert.Equal(t, types.StatusWorking, st.Status)
}

// recordSource dispatches one record per step.
type recordSource struct {
	out *Dispatcher
}

func (s *recordSource) Step(ctx context.Context, cur Cursor) error {
	s.out.Record(ctx, "t", record.Record{"idx": cur.Cursor()})
	return nil
}
