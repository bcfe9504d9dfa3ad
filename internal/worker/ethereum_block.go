package worker

import (
	"context"
	"fmt"

	"github.com/fystack/chainsync/internal/normalize"
	"github.com/fystack/chainsync/internal/rpc"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
)

const (
	TableEthereumBlocks       = "ethereum_blocks"
	TableEthereumTransactions = "ethereum_transactions"
)

var (
	blockNumericFields = []string{"number", "size", "timestamp", "gasLimit", "gasUsed", "baseFeePerGas", "difficulty"}
	txNumericFields    = []string{"blockNumber", "gas", "gasPrice", "nonce", "transactionIndex", "value", "maxFeePerGas", "maxPriorityFeePerGas", "type", "chainId"}
)

// EthereumBlockSource fetches one block per step with full transactions.
// The block goes out first, then each transaction, each followed by its
// receipt request.
type EthereumBlockSource struct {
	client   *rpc.Client
	out      *Dispatcher
	receipts bool
	filter   admission
}

func NewEthereumBlockSource(client *rpc.Client, out *Dispatcher, receipts bool) *EthereumBlockSource {
	return &EthereumBlockSource{client: client, out: out, receipts: receipts}
}

func (s *EthereumBlockSource) Step(ctx context.Context, cur Cursor) error {
	idx := cur.Cursor()
	endpoint := cur.ActiveEndpoint()

	result, err := s.client.CallRPC(ctx, endpoint, "eth_getBlockByNumber", fmt.Sprintf("0x%x", idx), true)
	if err != nil {
		return err
	}
	if result == nil {
		return types.Errorf(types.KindNotReady, "block %d has not been produced yet", idx)
	}
	block, ok := record.FromValue(result)
	if !ok {
		return types.Errorf(types.KindParsing, "block %d: result is not an object", idx)
	}
	if err := s.filter.check(block, cur.Filter()); err != nil {
		return err
	}

	txs := block.Objects("transactions")
	if raw, present := block["transactions"]; present && raw != nil {
		if arr, isArr := raw.([]any); !isArr || len(arr) != len(txs) {
			return types.Errorf(types.KindParsing, "block %d: transactions must be objects", idx)
		}
	}

	head, err := normalize.Normalize(block, blockNumericFields...)
	if err != nil {
		return err
	}
	delete(head, "transactions")
	head["txn"] = len(txs)

	normalized := make([]record.Record, 0, len(txs))
	for _, tx := range txs {
		ntx, err := normalize.Normalize(tx, txNumericFields...)
		if err != nil {
			return err
		}
		normalized = append(normalized, ntx)
	}

	s.out.Record(ctx, TableEthereumBlocks, head)
	for _, tx := range normalized {
		s.out.Record(ctx, TableEthereumTransactions, tx)
		if s.receipts {
			if hash, ok := tx.String("hash"); ok {
				s.out.Enqueue(ctx, string(enum.SourceEthereumTxReceipt), types.ReceiptRequest{TxHash: hash, Endpoint: endpoint})
			}
		}
	}
	return nil
}
