package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/infra"
)

type FailedIndex struct {
	SyncType string    `json:"sync_type"`
	Index    uint64    `json:"index"`
	Error    string    `json:"error"`
	At       time.Time `json:"at"`
}

// FailureQueue keeps a Redis list of cursor positions that failed hard,
// newest first, one list per source.
type FailureQueue struct {
	client infra.RedisClient
	now    func() time.Time
}

func NewFailureQueue(client infra.RedisClient) *FailureQueue {
	return &FailureQueue{client: client, now: time.Now}
}

func failureKey(syncType string) string {
	return constant.FailedIndexPrefix + ":" + syncType
}

func (q *FailureQueue) Record(ctx context.Context, syncType string, idx uint64, cause error) error {
	data, err := json.Marshal(FailedIndex{
		SyncType: syncType,
		Index:    idx,
		Error:    cause.Error(),
		At:       q.now().UTC(),
	})
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, failureKey(syncType), string(data))
}

// Recent returns up to n failures, newest first.
func (q *FailureQueue) Recent(ctx context.Context, syncType string, n int64) ([]FailedIndex, error) {
	items, err := q.client.LRange(ctx, failureKey(syncType), 0, n-1)
	if err != nil {
		return nil, err
	}
	out := make([]FailedIndex, 0, len(items))
	for _, it := range items {
		var f FailedIndex
		if err := json.Unmarshal([]byte(it), &f); err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
