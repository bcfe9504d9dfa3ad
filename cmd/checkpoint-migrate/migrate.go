package main

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/samber/lo"
)

type result struct {
	Found   int
	Copied  int
	Skipped int
}

// migrate copies every checkpoint (or only cfg.SyncTypes) from src to dst.
// A checkpoint already in dst is left alone unless cfg.Overwrite is set.
func migrate(w io.Writer, src, dst checkpointstore.Store, cfg *MigrationConfig, dryRun bool) (result, error) {
	var res result

	states, err := src.List()
	if err != nil {
		return res, fmt.Errorf("listing source checkpoints: %w", err)
	}
	if len(cfg.SyncTypes) > 0 {
		states = lo.Filter(states, func(st types.SyncState, _ int) bool {
			return lo.Contains(cfg.SyncTypes, st.SyncType)
		})
	}
	res.Found = len(states)
	if res.Found == 0 {
		fmt.Fprintf(w, "%sNo checkpoints found to migrate%s\n", colorYellow, colorReset)
		return res, nil
	}

	for _, st := range states {
		if !cfg.Overwrite {
			_, err := dst.Read(st.SyncType)
			switch {
			case err == nil:
				fmt.Fprintf(w, "  skip %s: present in destination\n", st.SyncType)
				res.Skipped++
				continue
			case !errors.Is(err, checkpointstore.ErrNotFound):
				return res, fmt.Errorf("reading destination %q: %w", st.SyncType, err)
			}
		}

		fmt.Fprintf(w, "  %s sync_idx=%d status=%s\n", st.SyncType, st.SyncIdx, st.Status)
		if dryRun {
			continue
		}

		want := st.Clone()
		if err := dst.Write(&want); err != nil {
			return res, fmt.Errorf("writing %q: %w", st.SyncType, err)
		}
		res.Copied++

		if cfg.Verify {
			got, err := dst.Read(st.SyncType)
			if err != nil {
				return res, fmt.Errorf("verifying %q: %w", st.SyncType, err)
			}
			if !sameCheckpoint(st, *got) {
				return res, fmt.Errorf("verification failed for %q: expected %+v, got %+v", st.SyncType, st, *got)
			}
		}
	}
	return res, nil
}

// sameCheckpoint ignores UpdatedAt, which every write refreshes.
func sameCheckpoint(a, b types.SyncState) bool {
	a, b = a.Clone(), b.Clone()
	a.UpdatedAt = b.UpdatedAt
	return reflect.DeepEqual(a, b)
}
