package worker

import (
	"context"

	"github.com/fystack/chainsync/internal/filter"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
)

// Cursor is the read-only view of a sync state a Source works from.
type Cursor interface {
	SyncType() string
	Cursor() uint64
	ActiveEndpoint() string
	Filter() string
}

// Source performs one ingestion step for the cursor position. It returns
// nil when the unit was dispatched and the cursor may advance; any other
// outcome is reported through a types.SyncError kind.
type Source interface {
	Step(ctx context.Context, cur Cursor) error
}

// admission caches the compiled filter of a source. The expression only
// changes when the checkpoint is edited, so one entry is enough.
type admission struct {
	src  string
	expr *filter.Expr
}

// check returns a filtered error when rec is rejected.
func (a *admission) check(rec record.Record, expr string) error {
	if expr == "" {
		return nil
	}
	if a.expr == nil || a.src != expr {
		compiled, err := filter.Compile(expr)
		if err != nil {
			return err
		}
		a.src, a.expr = expr, compiled
	}
	ok, err := a.expr.Match(rec)
	if err != nil {
		return err
	}
	if !ok {
		return types.Errorf(types.KindFiltered, "rejected by filter %q", expr)
	}
	return nil
}
