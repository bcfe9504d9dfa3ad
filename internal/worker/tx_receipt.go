package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/internal/normalize"
	"github.com/fystack/chainsync/internal/rpc"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/common/logger"
	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
)

const (
	TableEthereumTxReceipts = "ethereum_tx_receipts"
	TableEthereumLogs       = "ethereum_logs"
)

var (
	receiptNumericFields = []string{"blockNumber", "cumulativeGasUsed", "gasUsed", "effectiveGasPrice", "status", "transactionIndex", "type"}
	logNumericFields     = []string{"blockNumber", "transactionIndex", "logIndex"}
)

// TxReceiptRelay fetches the receipt of each transaction the block source
// enqueued. It keeps no cursor; a failed receipt is reported and skipped.
type TxReceiptRelay struct {
	in       <-chan fanout.Message
	client   *rpc.Client
	out      *Dispatcher
	interval time.Duration
	logger   *slog.Logger
}

func NewTxReceiptRelay(in <-chan fanout.Message, client *rpc.Client, out *Dispatcher, interval time.Duration) *TxReceiptRelay {
	if interval <= 0 {
		interval = constant.DefaultRelayInterval
	}
	return &TxReceiptRelay{
		in:       in,
		client:   client,
		out:      out,
		interval: interval,
		logger:   logger.With("sync_type", string(enum.SourceEthereumTxReceipt)),
	}
}

func (r *TxReceiptRelay) Name() string { return string(enum.SourceEthereumTxReceipt) }

func (r *TxReceiptRelay) Run(ctx context.Context) error {
	r.logger.Info("Receipt relay started", "interval", r.interval)
	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		if ctx.Err() != nil {
			r.logger.Info("Receipt relay stopped", "pending", len(r.in))
			return nil
		}

		select {
		case msg, ok := <-r.in:
			if !ok {
				return nil
			}
			r.handle(ctx, msg)
		default:
		}

		timer.Reset(r.interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}

func (r *TxReceiptRelay) handle(ctx context.Context, msg fanout.Message) {
	req, ok := msg.(types.ReceiptRequest)
	if !ok {
		r.logger.Error("Unexpected message type", "type", fmt.Sprintf("%T", msg))
		return
	}
	if err := r.Fetch(ctx, req); err != nil {
		r.logger.Error("Failed to fetch receipt", "tx_hash", req.TxHash, "error", err)
		r.out.Notify(ctx, types.LevelError, "receipt fetch failed; tx_hash: %s, error: %s", req.TxHash, err)
	}
}

// Fetch retrieves one receipt and dispatches it followed by its logs.
func (r *TxReceiptRelay) Fetch(ctx context.Context, req types.ReceiptRequest) error {
	result, err := r.client.CallRPC(ctx, req.Endpoint, "eth_getTransactionReceipt", req.TxHash)
	if err != nil {
		return err
	}
	if result == nil {
		return types.Errorf(types.KindNotReady, "receipt for %s not available", req.TxHash)
	}
	receipt, ok := record.FromValue(result)
	if !ok {
		return types.Errorf(types.KindParsing, "receipt for %s is not an object", req.TxHash)
	}

	head, err := normalize.Normalize(receipt, receiptNumericFields...)
	if err != nil {
		return err
	}
	logs := make([]record.Record, 0)
	for _, l := range receipt.Objects("logs") {
		nl, err := normalize.Normalize(l, logNumericFields...)
		if err != nil {
			return err
		}
		logs = append(logs, nl)
	}
	delete(head, "logs")

	r.out.Record(ctx, TableEthereumTxReceipts, head)
	for _, l := range logs {
		r.out.Record(ctx, TableEthereumLogs, l)
	}
	return nil
}
