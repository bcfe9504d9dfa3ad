package worker

import (
	"context"
)

// FailureRecorder keeps cursor positions that failed hard, for operators
// to inspect after the fact.
type FailureRecorder interface {
	Record(ctx context.Context, syncType string, idx uint64, cause error) error
}

// Runner is a long-lived task owned by the Manager.
type Runner interface {
	Name() string
	Run(ctx context.Context) error
}
