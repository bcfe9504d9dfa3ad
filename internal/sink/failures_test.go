package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	lists map[string][]string
}

func (f *fakeRedis) LPush(_ context.Context, key string, values ...any) error {
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return nil
}

func (f *fakeRedis) LRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	l := f.lists[key]
	if stop < 0 || stop >= int64(len(l)) {
		stop = int64(len(l)) - 1
	}
	if start > stop {
		return nil, nil
	}
	return l[start : stop+1], nil
}

func (f *fakeRedis) Close() error { return nil }

func TestFailureQueue(t *testing.T) {
	rc := &fakeRedis{lists: map[string][]string{}}
	q := NewFailureQueue(rc)
	q.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	ctx := context.Background()
	require.NoError(t, q.Record(ctx, "ethereum_block", 100, errors.New("parsing: bad block")))
	require.NoError(t, q.Record(ctx, "ethereum_block", 101, errors.New("storage: disk full")))

	assert.Len(t, rc.lists["failed_indexes:ethereum_block"], 2)

	recent, err := q.Recent(ctx, "ethereum_block", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(101), recent[0].Index)
	assert.Equal(t, "storage: disk full", recent[0].Error)
	assert.Equal(t, uint64(100), recent[1].Index)
}
