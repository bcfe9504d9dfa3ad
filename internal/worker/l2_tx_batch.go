package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/fystack/chainsync/internal/normalize"
	"github.com/fystack/chainsync/internal/rpc"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
)

const (
	TableOptimismTxBatches = "optimism_tx_batches"
	TableOptimismTxs       = "optimism_txs"
)

var (
	batchNumberFields = []string{"index", "timestamp", "size", "blockNumber", "prevTotalElements"}
	l2TxNumberFields  = []string{"index", "batchIndex", "blockNumber", "timestamp", "queueIndex"}
)

// L2TxBatchSource reads transaction batches from a data transport layer
// REST API, one batch index per step.
type L2TxBatchSource struct {
	client *rpc.Client
	out    *Dispatcher
	filter admission
}

func NewL2TxBatchSource(client *rpc.Client, out *Dispatcher) *L2TxBatchSource {
	return &L2TxBatchSource{client: client, out: out}
}

func batchURL(endpoint string, idx uint64) string {
	return fmt.Sprintf("%s/batch/transaction/%d", strings.TrimRight(endpoint, "/"), idx)
}

func (s *L2TxBatchSource) Step(ctx context.Context, cur Cursor) error {
	idx := cur.Cursor()
	resp, err := s.client.Get(ctx, batchURL(cur.ActiveEndpoint(), idx))
	if err != nil {
		return err
	}

	raw, present := resp["batch"]
	if !present || raw == nil {
		return types.Errorf(types.KindNotReady, "batch %d has not been submitted yet", idx)
	}
	batch, ok := record.FromValue(raw)
	if !ok {
		return types.Errorf(types.KindParsing, "batch %d: batch is not an object", idx)
	}
	if err := s.filter.check(batch, cur.Filter()); err != nil {
		return err
	}

	var txs []record.Record
	if rawTxs, present := resp["transactions"]; present && rawTxs != nil {
		arr, isArr := rawTxs.([]any)
		txs = resp.Objects("transactions")
		if !isArr || len(arr) != len(txs) {
			return types.Errorf(types.KindParsing, "batch %d: transactions must be objects", idx)
		}
	}

	s.out.Record(ctx, TableOptimismTxBatches, normalize.Stringify(batch, batchNumberFields...))
	for _, tx := range txs {
		s.out.Record(ctx, TableOptimismTxs, normalize.Stringify(tx, l2TxNumberFields...))
	}
	return nil
}
