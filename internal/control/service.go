// Package control is the operator surface: JSON-RPC methods that queue
// start and stop commands for a sync loop and report its last persisted
// state.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/pkg/common/types"
)

var ErrSyncNotFound = errors.New("sync not found")

// States exposes read-only snapshots of the running loops.
type States interface {
	Snapshot(syncType string) (types.SyncState, bool)
}

// Inboxes delivers control messages to the loop named by the channel.
type Inboxes interface {
	Has(name string) bool
	Send(ctx context.Context, name string, msg fanout.Message) error
}

type Service struct {
	states  States
	inboxes Inboxes
}

func NewService(states States, inboxes Inboxes) *Service {
	return &Service{states: states, inboxes: inboxes}
}

// Request queues method for syncType. The loop applies it on its next
// cycle, so the returned text only confirms the request was accepted.
func (s *Service) Request(ctx context.Context, syncType string, method types.ControlMethod) (string, error) {
	if _, ok := s.states.Snapshot(syncType); !ok || !s.inboxes.Has(syncType) {
		return "", fmt.Errorf("%w: %s", ErrSyncNotFound, syncType)
	}
	msg := types.ControlMessage{Method: method, SyncType: syncType}
	if err := s.inboxes.Send(ctx, syncType, msg); err != nil {
		return "", err
	}
	return fmt.Sprintf("requested. sync_type=%s, method=%s", syncType, method), nil
}

func (s *Service) Get(syncType string) (types.SyncState, error) {
	st, ok := s.states.Snapshot(syncType)
	if !ok {
		return types.SyncState{}, fmt.Errorf("%w: %s", ErrSyncNotFound, syncType)
	}
	return st, nil
}
