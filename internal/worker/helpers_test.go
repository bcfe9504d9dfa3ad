package worker

import (
	"context"
	"sync"
	"testing"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/internal/syncstate"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/stretchr/testify/require"
)

type sent struct {
	channel string
	msg     fanout.Message
}

// recordingSenders keeps every message in send order across channels.
type recordingSenders struct {
	mu    sync.Mutex
	names map[string]bool
	sent  []sent
	fail  error
}

func newRecordingSenders(names ...string) *recordingSenders {
	r := &recordingSenders{names: map[string]bool{}}
	for _, n := range names {
		r.names[n] = true
	}
	return r
}

func (r *recordingSenders) Has(name string) bool { return r.names[name] }

func (r *recordingSenders) Send(_ context.Context, name string, msg fanout.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.names[name] {
		panic("unknown channel " + name)
	}
	if r.fail != nil {
		return r.fail
	}
	r.sent = append(r.sent, sent{name, msg})
	return nil
}

func (r *recordingSenders) on(channel string) []fanout.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []fanout.Message
	for _, s := range r.sent {
		if s.channel == channel {
			out = append(out, s.msg)
		}
	}
	return out
}

func (r *recordingSenders) notes() []types.NotifyMessage {
	var out []types.NotifyMessage
	for _, m := range r.on(constant.SinkSlack) {
		out = append(out, m.(types.NotifyMessage))
	}
	return out
}

func newDispatcher(r *recordingSenders) *Dispatcher {
	return NewDispatcher(r, false, nil, logger.With("test", true))
}

func seedState(syncType string) types.SyncState {
	return types.SyncState{
		SyncType:  syncType,
		ChainID:   "1",
		FromIdx:   100,
		SyncIdx:   100,
		Endpoints: []string{"http://node-a", "http://node-b"},
		Status:    types.StatusWorking,
	}
}

func newMachine(t *testing.T, seed types.SyncState, opts ...syncstate.Option) (*syncstate.Machine, checkpointstore.Store) {
	t.Helper()
	store, err := checkpointstore.NewFileStore(t.TempDir())
	require.NoError(t, err)
	m, err := syncstate.LoadOrInit(store, seed, opts...)
	require.NoError(t, err)
	return m, store
}

type fakeCursor struct {
	idx      uint64
	endpoint string
	filter   string
}

func (c fakeCursor) SyncType() string       { return "test" }
func (c fakeCursor) Cursor() uint64         { return c.idx }
func (c fakeCursor) ActiveEndpoint() string { return c.endpoint }
func (c fakeCursor) Filter() string         { return c.filter }
