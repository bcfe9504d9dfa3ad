// Package syncstate owns the cursor and status of one sync source.
//
// A Machine is confined to the goroutine running its polling loop. Every
// transition is written to the checkpoint store before it becomes visible
// in memory, so a failed write leaves the previous state in force. Other
// goroutines read through Snapshot.
package syncstate

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
)

type Machine struct {
	store    checkpointstore.Store
	state    types.SyncState
	snapshot atomic.Pointer[types.SyncState]
	logger   *slog.Logger

	failoverThreshold int
	connFailures      int
}

type Option func(*Machine)

// WithFailoverThreshold rotates the active endpoint after n consecutive
// connection failures. Zero disables rotation.
func WithFailoverThreshold(n int) Option {
	return func(m *Machine) { m.failoverThreshold = n }
}

// LoadOrInit resumes from the stored checkpoint, or persists seed when the
// source has none. A checkpoint that exists but cannot be decoded is a
// storage error and the source must not start.
func LoadOrInit(store checkpointstore.Store, seed types.SyncState, opts ...Option) (*Machine, error) {
	m := &Machine{
		store:  store,
		logger: logger.With("sync_type", seed.SyncType),
	}
	for _, opt := range opts {
		opt(m)
	}

	st, err := store.Read(seed.SyncType)
	switch {
	case err == nil:
		m.state = *st
		m.publish()
		m.logger.Info("Resumed from checkpoint", "sync_idx", st.SyncIdx, "status", st.Status)
		return m, nil
	case errors.Is(err, checkpointstore.ErrNotFound):
		seed.SyncIdx = max(seed.SyncIdx, seed.FromIdx)
		if seed.Status == "" {
			seed.Status = types.StatusWorking
		}
		if err := m.commit(seed.Clone()); err != nil {
			return nil, err
		}
		m.logger.Info("Initialized from seed", "sync_idx", seed.SyncIdx, "status", seed.Status)
		return m, nil
	default:
		if types.KindOf(err) != types.KindStorage {
			err = types.Wrap(types.KindStorage, err)
		}
		return nil, err
	}
}

func (m *Machine) commit(next types.SyncState) error {
	if err := m.store.Write(&next); err != nil {
		if types.KindOf(err) != types.KindStorage {
			err = types.Wrap(types.KindStorage, err)
		}
		return err
	}
	m.state = next
	m.publish()
	return nil
}

func (m *Machine) publish() {
	snap := m.state.Clone()
	m.snapshot.Store(&snap)
}

// Snapshot returns the last persisted state. Safe from any goroutine.
func (m *Machine) Snapshot() types.SyncState {
	return m.snapshot.Load().Clone()
}

func (m *Machine) SyncType() string { return m.state.SyncType }

// Cursor is the index the next step fetches.
func (m *Machine) Cursor() uint64 { return m.state.SyncIdx }

func (m *Machine) Filter() string { return m.state.Filter }

func (m *Machine) Status() types.SyncStatus { return m.state.Status }

func (m *Machine) IsWorkable() bool {
	return m.state.Status == types.StatusWorking
}

func (m *Machine) ActiveEndpoint() string {
	return m.state.Endpoints[m.state.EndpointIdx]
}

// ApplyControl handles an operator command. Unknown methods are rejected
// with an invalid error and leave the state untouched.
func (m *Machine) ApplyControl(method types.ControlMethod) error {
	next := m.state.Clone()
	switch method {
	case types.MethodStart:
		next.Status = types.StatusWorking
		next.Message = ""
	case types.MethodStop:
		next.Status = types.StatusStopped
	default:
		return types.Errorf(types.KindInvalid, "unsupported control method %q", method)
	}
	if err := m.commit(next); err != nil {
		return err
	}
	m.logger.Info("Control applied", "method", method, "status", next.Status)
	return nil
}

// Advance moves the cursor forward by one and clears the message.
func (m *Machine) Advance() error {
	next := m.state.Clone()
	next.SyncIdx++
	next.Message = ""
	m.connFailures = 0
	return m.commit(next)
}

// RecordError moves the source to Error and keeps the cursor where it is.
func (m *Machine) RecordError(cause error) error {
	next := m.state.Clone()
	next.Status = types.StatusError
	next.Message = describe(cause)
	return m.commit(next)
}

func describe(err error) string {
	if err == nil {
		return string(types.KindUnknown)
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return string(types.KindOf(err))
}

// RecordConnectionFailure counts a transport failure and, once the
// threshold is reached, switches to the next endpoint round-robin.
func (m *Machine) RecordConnectionFailure() (rotated bool, err error) {
	m.connFailures++
	if m.failoverThreshold <= 0 || m.connFailures < m.failoverThreshold || len(m.state.Endpoints) < 2 {
		return false, nil
	}
	m.connFailures = 0

	next := m.state.Clone()
	next.EndpointIdx = (next.EndpointIdx + 1) % len(next.Endpoints)
	if err := m.commit(next); err != nil {
		return false, err
	}
	m.logger.Warn("Rotated endpoint", "endpoint", m.ActiveEndpoint(), "endpoint_idx", next.EndpointIdx)
	return true, nil
}

// RecordConnectionSuccess resets the consecutive failure counter.
func (m *Machine) RecordConnectionSuccess() {
	m.connFailures = 0
}
