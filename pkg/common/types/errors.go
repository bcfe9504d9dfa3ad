package types

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

type MultiError struct {
	mu     sync.Mutex
	Errors []error
}

func (m *MultiError) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := make([]string, len(m.Errors))
	for i, err := range m.Errors {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (m *MultiError) Add(err error) {
	if err == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors = append(m.Errors, err)
}

func (m *MultiError) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Errors) == 0
}

// ErrOrNil returns nil when nothing was added.
func (m *MultiError) ErrOrNil() error {
	if m.IsEmpty() {
		return nil
	}
	return m
}

// ErrorKind classifies failures of an ingestion step. The polling loop
// decides whether to advance, hold or fail the cursor from the kind alone.
type ErrorKind string

const (
	KindNotReady   ErrorKind = "not_ready"
	KindFiltered   ErrorKind = "filtered"
	KindConnection ErrorKind = "connection"
	KindRequest    ErrorKind = "request"
	KindParsing    ErrorKind = "parsing"
	KindInvalid    ErrorKind = "invalid"
	KindStorage    ErrorKind = "storage"
	KindChannel    ErrorKind = "channel"
	KindUnknown    ErrorKind = "unknown"
)

// Sentinels for errors.Is. Any *SyncError of the same kind matches.
var (
	ErrNotReady   = &SyncError{Kind: KindNotReady}
	ErrFiltered   = &SyncError{Kind: KindFiltered}
	ErrConnection = &SyncError{Kind: KindConnection}
	ErrRequest    = &SyncError{Kind: KindRequest}
	ErrParsing    = &SyncError{Kind: KindParsing}
	ErrInvalid    = &SyncError{Kind: KindInvalid}
	ErrStorage    = &SyncError{Kind: KindStorage}
	ErrChannel    = &SyncError{Kind: KindChannel}
)

type SyncError struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *SyncError) Error() string {
	switch {
	case e.Msg != "":
		return string(e.Kind) + ": " + e.Msg
	case e.Err != nil:
		return string(e.Kind) + ": " + e.Err.Error()
	default:
		return string(e.Kind)
	}
}

func (e *SyncError) Unwrap() error { return e.Err }

func (e *SyncError) Is(target error) bool {
	t, ok := target.(*SyncError)
	if !ok {
		return false
	}
	return t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Errorf builds a SyncError; a %w verb in format is kept as the cause.
func Errorf(kind ErrorKind, format string, args ...any) *SyncError {
	err := fmt.Errorf(format, args...)
	return &SyncError{Kind: kind, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// Wrap tags err with kind, keeping its message.
func Wrap(kind ErrorKind, err error) error {
	if err == nil {
		return nil
	}
	return &SyncError{Kind: kind, Err: err}
}

// KindOf reports the kind of the first SyncError in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}
