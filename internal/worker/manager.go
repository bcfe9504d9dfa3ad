package worker

import (
	"context"
	"sort"
	"time"

	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"golang.org/x/sync/errgroup"
)

const defaultShutdownTimeout = 30 * time.Second

// Manager runs producers (sync loops, relays) and consumers (sinks). On
// shutdown producers stop first, then the fan-out is closed so consumers
// can drain what was already queued.
type Manager struct {
	producers       []Runner
	consumers       []Runner
	loops           map[string]*Loop
	closeChannels   func()
	shutdownTimeout time.Duration
}

func NewManager(closeChannels func()) *Manager {
	return &Manager{
		loops:           make(map[string]*Loop),
		closeChannels:   closeChannels,
		shutdownTimeout: defaultShutdownTimeout,
	}
}

// AddLoop registers a sync loop; its state becomes visible to Snapshot.
func (m *Manager) AddLoop(l *Loop) {
	m.loops[l.Name()] = l
	m.producers = append(m.producers, l)
}

// AddProducers registers tasks that write into the fan-out.
func (m *Manager) AddProducers(rs ...Runner) {
	m.producers = append(m.producers, rs...)
}

// AddConsumers registers tasks that drain the fan-out.
func (m *Manager) AddConsumers(rs ...Runner) {
	m.consumers = append(m.consumers, rs...)
}

// SyncTypes lists the registered loops.
func (m *Manager) SyncTypes() []string {
	out := make([]string, 0, len(m.loops))
	for name := range m.loops {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns the last persisted state of a loop.
func (m *Manager) Snapshot(syncType string) (types.SyncState, bool) {
	l, ok := m.loops[syncType]
	if !ok {
		return types.SyncState{}, false
	}
	return l.Machine().Snapshot(), true
}

// Run blocks until ctx is cancelled and every task has returned.
func (m *Manager) Run(ctx context.Context) error {
	consumerCtx, cancelConsumers := context.WithCancel(context.Background())
	defer cancelConsumers()

	consumers, _ := errgroup.WithContext(consumerCtx)
	for _, r := range m.consumers {
		consumers.Go(func() error {
			logger.Info("Starting consumer", "name", r.Name())
			return r.Run(consumerCtx)
		})
	}

	producers, pctx := errgroup.WithContext(ctx)
	for _, r := range m.producers {
		producers.Go(func() error {
			logger.Info("Starting producer", "name", r.Name())
			return r.Run(pctx)
		})
	}

	perr := producers.Wait()
	logger.Info("All producers stopped, draining sinks")
	if m.closeChannels != nil {
		m.closeChannels()
	}

	done := make(chan error, 1)
	go func() { done <- consumers.Wait() }()

	select {
	case cerr := <-done:
		if perr != nil {
			return perr
		}
		return cerr
	case <-time.After(m.shutdownTimeout):
		logger.Warn("Sink drain timed out", "timeout", m.shutdownTimeout)
		cancelConsumers()
		<-done
		return perr
	}
}
