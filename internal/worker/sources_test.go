package worker

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fystack/chainsync/internal/fanout"
	"github.com/fystack/chainsync/internal/rpc"
	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/constant"
	"github.com/fystack/chainsync/pkg/common/enum"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blockResult = `{
  "number": "0x64",
  "hash": "0xblock",
  "gasUsed": "0x5208",
  "timestamp": "0x6553f100",
  "miner": "0xminer",
  "transactions": [
    {"hash": "0xt1", "blockNumber": "0x64", "value": "0xde0b6b3a7640000", "from": "0xa", "transactionIndex": "0x0"},
    {"hash": "0xt2", "blockNumber": "0x64", "value": "0x0", "from": "0xb", "transactionIndex": "0x1"}
  ]
}`

// rpcServer answers each JSON-RPC method with a fixed raw result.
func rpcServer(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req rpc.RPCRequest
		require.NoError(t, json.Unmarshal(body, &req))
		result, ok := results[req.Method]
		if !ok {
			result = "null"
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":` + result + `}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestEthereumBlockSource_DispatchOrder(t *testing.T) {
	server := rpcServer(t, map[string]string{"eth_getBlockByNumber": blockResult})
	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack, string(enum.SourceEthereumTxReceipt))
	src := NewEthereumBlockSource(rpc.NewClient(rpc.Config{Timeout: time.Second}), newDispatcher(rec), true)

	err := src.Step(context.Background(), fakeCursor{idx: 100, endpoint: server.URL})
	require.NoError(t, err)

	var order []string
	for _, s := range rec.sent {
		switch m := s.msg.(type) {
		case types.SinkMessage:
			order = append(order, m.Table)
		case types.ReceiptRequest:
			order = append(order, "receipt:"+m.TxHash)
		}
	}
	assert.Equal(t, []string{
		TableEthereumBlocks,
		TableEthereumTransactions, "receipt:0xt1",
		TableEthereumTransactions, "receipt:0xt2",
	}, order)

	block := rec.sent[0].msg.(types.SinkMessage).Payload
	assert.Equal(t, "100", block["number"])
	assert.Equal(t, "21000", block["gasUsed"])
	assert.Equal(t, "0xminer", block["miner"])
	assert.Equal(t, 2, block["txn"])
	assert.NotContains(t, block, "transactions")

	tx := rec.sent[1].msg.(types.SinkMessage).Payload
	assert.Equal(t, "1000000000000000000", tx["value"])
	assert.Equal(t, "100", tx["blockNumber"])
	assert.Equal(t, "0xa", tx["from"])

	req := rec.sent[2].msg.(types.ReceiptRequest)
	assert.Equal(t, server.URL, req.Endpoint)
}

func TestEthereumBlockSource_NotReadyAndFiltered(t *testing.T) {
	ctx := context.Background()
	client := rpc.NewClient(rpc.Config{Timeout: time.Second})

	empty := rpcServer(t, map[string]string{})
	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack)
	src := NewEthereumBlockSource(client, newDispatcher(rec), false)
	err := src.Step(ctx, fakeCursor{idx: 100, endpoint: empty.URL})
	assert.ErrorIs(t, err, types.ErrNotReady)

	full := rpcServer(t, map[string]string{"eth_getBlockByNumber": blockResult})
	err = src.Step(ctx, fakeCursor{idx: 100, endpoint: full.URL, filter: "miner=0xsomeoneelse"})
	assert.ErrorIs(t, err, types.ErrFiltered)
	assert.Empty(t, rec.sent)

	err = src.Step(ctx, fakeCursor{idx: 100, endpoint: full.URL, filter: "miner=0xminer & from=0xa"})
	require.NoError(t, err)
	assert.Len(t, rec.on(constant.SinkPostgres), 3)

	err = src.Step(ctx, fakeCursor{idx: 100, endpoint: full.URL, filter: "(miner=0xminer"})
	assert.ErrorIs(t, err, types.ErrParsing)
}

func TestEthereumBlockSource_MalformedTransactions(t *testing.T) {
	server := rpcServer(t, map[string]string{"eth_getBlockByNumber": `{"number":"0x1","transactions":["0xt1"]}`})
	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack)
	src := NewEthereumBlockSource(rpc.NewClient(rpc.Config{}), newDispatcher(rec), false)

	err := src.Step(context.Background(), fakeCursor{idx: 1, endpoint: server.URL})
	assert.ErrorIs(t, err, types.ErrParsing)
	assert.Empty(t, rec.sent, "nothing dispatched for a rejected block")
}

func TestTxReceiptRelay_Fetch(t *testing.T) {
	server := rpcServer(t, map[string]string{"eth_getTransactionReceipt": `{
		"transactionHash": "0xt1",
		"blockNumber": "0x64",
		"gasUsed": "0x5208",
		"status": "0x1",
		"logs": [
			{"logIndex": "0x0", "blockNumber": "0x64", "address": "0xc"},
			{"logIndex": "0x1", "blockNumber": "0x64", "address": "0xd"}
		]
	}`})
	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack)
	relay := NewTxReceiptRelay(nil, rpc.NewClient(rpc.Config{}), newDispatcher(rec), 0)

	require.NoError(t, relay.Fetch(context.Background(), types.ReceiptRequest{TxHash: "0xt1", Endpoint: server.URL}))

	msgs := rec.on(constant.SinkPostgres)
	require.Len(t, msgs, 3)
	receipt := msgs[0].(types.SinkMessage)
	assert.Equal(t, TableEthereumTxReceipts, receipt.Table)
	assert.Equal(t, "1", receipt.Payload["status"])
	assert.Equal(t, "21000", receipt.Payload["gasUsed"])
	assert.NotContains(t, receipt.Payload, "logs")

	for i, m := range msgs[1:] {
		l := m.(types.SinkMessage)
		assert.Equal(t, TableEthereumLogs, l.Table)
		assert.Equal(t, []string{"0", "1"}[i], l.Payload["logIndex"])
		assert.Equal(t, "100", l.Payload["blockNumber"])
	}
}

func TestTxReceiptRelay_FailureNotifiesAndContinues(t *testing.T) {
	server := rpcServer(t, map[string]string{})
	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack)
	in := make(chan fanout.Message, 2)
	relay := NewTxReceiptRelay(in, rpc.NewClient(rpc.Config{}), newDispatcher(rec), time.Millisecond)

	in <- types.ReceiptRequest{TxHash: "0xmissing", Endpoint: server.URL}
	in <- types.ReceiptRequest{TxHash: "0xmissing2", Endpoint: server.URL}
	close(in)

	require.NoError(t, relay.Run(context.Background()))
	notes := rec.notes()
	require.Len(t, notes, 2)
	assert.Contains(t, notes[0].Message, "0xmissing")
	assert.Contains(t, notes[1].Message, "0xmissing2")
}

func TestL2TxBatchSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/batch/transaction/7":
			_, _ = w.Write([]byte(`{
				"batch": {"index": 7, "size": 2, "timestamp": 1700000000, "root": "0xr"},
				"transactions": [
					{"index": 70, "batchIndex": 7, "queueIndex": null},
					{"index": 71, "batchIndex": 7, "queueIndex": 3}
				]
			}`))
		default:
			_, _ = w.Write([]byte(`{"batch": null, "transactions": []}`))
		}
	}))
	defer server.Close()

	rec := newRecordingSenders(constant.SinkPostgres, constant.SinkSlack)
	src := NewL2TxBatchSource(rpc.NewClient(rpc.Config{}), newDispatcher(rec))
	ctx := context.Background()

	err := src.Step(ctx, fakeCursor{idx: 8, endpoint: server.URL})
	assert.ErrorIs(t, err, types.ErrNotReady)

	require.NoError(t, src.Step(ctx, fakeCursor{idx: 7, endpoint: server.URL + "/"}))
	msgs := rec.on(constant.SinkPostgres)
	require.Len(t, msgs, 3)

	batch := msgs[0].(types.SinkMessage)
	assert.Equal(t, TableOptimismTxBatches, batch.Table)
	assert.Equal(t, "7", batch.Payload["index"])
	assert.Equal(t, "1700000000", batch.Payload["timestamp"])
	assert.Equal(t, "0xr", batch.Payload["root"])

	tx := msgs[2].(types.SinkMessage)
	assert.Equal(t, TableOptimismTxs, tx.Table)
	assert.Equal(t, "71", tx.Payload["index"])
	assert.Equal(t, "3", tx.Payload["queueIndex"])

	err = src.Step(ctx, fakeCursor{idx: 7, endpoint: server.URL, filter: "root=0xother"})
	assert.ErrorIs(t, err, types.ErrFiltered)
}

func TestBatchURL(t *testing.T) {
	assert.Equal(t, "http://dtl:7878/batch/transaction/12", batchURL("http://dtl:7878/", 12))
}

func TestShippedConfigL2Endpoint(t *testing.T) {
	t.Setenv("CHAINSYNC_DATABASE_URL", "postgres://localhost/chainsync")
	cfg, err := config.Load("../../configs/config.yaml")
	require.NoError(t, err)

	sc, err := cfg.Syncs.Get("l2_tx_batch")
	require.NoError(t, err)
	require.NotEmpty(t, sc.Endpoints)
	for _, ep := range sc.Endpoints {
		assert.Regexp(t, `^https?://[^/]+/?$`, ep, "endpoint is a base URL")
	}
	assert.Equal(t, "http://localhost:7878/batch/transaction/5", batchURL(sc.Endpoints[0], 5))
}
