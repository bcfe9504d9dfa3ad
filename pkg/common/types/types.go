package types

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/fystack/chainsync/pkg/common/record"
)

type SyncStatus string

const (
	StatusWorking SyncStatus = "working"
	StatusStopped SyncStatus = "stopped"
	StatusError   SyncStatus = "error"
)

func (s SyncStatus) IsValid() bool {
	switch s {
	case StatusWorking, StatusStopped, StatusError:
		return true
	}
	return false
}

// SyncState is the durable checkpoint of one sync source.
type SyncState struct {
	SyncType    string     `json:"sync_type"`
	ChainID     string     `json:"chain_id"`
	FromIdx     uint64     `json:"from_idx"`
	SyncIdx     uint64     `json:"sync_idx"`
	Endpoints   []string   `json:"endpoints"`
	EndpointIdx int        `json:"endpoint_idx"`
	Status      SyncStatus `json:"status"`
	Message     string     `json:"message"`
	Filter      string     `json:"filter"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *SyncState) Validate() error {
	if s.SyncType == "" {
		return errors.New("sync_type is required")
	}
	if s.SyncIdx < s.FromIdx {
		return fmt.Errorf("sync_idx %d is behind from_idx %d", s.SyncIdx, s.FromIdx)
	}
	if len(s.Endpoints) == 0 {
		return errors.New("at least one endpoint is required")
	}
	if s.EndpointIdx < 0 || s.EndpointIdx >= len(s.Endpoints) {
		return fmt.Errorf("endpoint_idx %d out of range [0,%d)", s.EndpointIdx, len(s.Endpoints))
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("invalid status %q", s.Status)
	}
	if s.Status == StatusError && s.Message == "" {
		return errors.New("error status requires a message")
	}
	return nil
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s SyncState) Clone() SyncState {
	s.Endpoints = slices.Clone(s.Endpoints)
	return s
}

type ControlMethod string

const (
	MethodStart ControlMethod = "start"
	MethodStop  ControlMethod = "stop"
)

type ControlMessage struct {
	Method   ControlMethod `json:"method"`
	SyncType string        `json:"sync_type"`
}

// SinkMessage is a normalized record addressed to a storage table.
type SinkMessage struct {
	Table   string        `json:"table"`
	Payload record.Record `json:"payload"`
}

type NotifyLevel string

const (
	LevelInfo  NotifyLevel = "info"
	LevelWarn  NotifyLevel = "warn"
	LevelError NotifyLevel = "error"
)

type NotifyMessage struct {
	Level   NotifyLevel `json:"level"`
	Message string      `json:"message"`
}

// ReceiptRequest asks the receipt relay to fetch one transaction receipt.
type ReceiptRequest struct {
	TxHash   string `json:"tx_hash"`
	Endpoint string `json:"endpoint"`
}
