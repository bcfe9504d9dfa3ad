package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fystack/chainsync/pkg/common/config"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/fystack/chainsync/pkg/store/checkpointstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nodeServer answers eth_getBlockByNumber for blocks up to head and null
// after that.
func nodeServer(t *testing.T, head uint64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64 `json:"id"`
			Params []any `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		var idx uint64
		_, err := fmt.Sscanf(req.Params[0].(string), "0x%x", &idx)
		require.NoError(t, err)

		var result any
		if idx <= head {
			result = map[string]any{
				"number":       fmt.Sprintf("0x%x", idx),
				"hash":         fmt.Sprintf("0x%064x", idx),
				"gasUsed":      "0x5208",
				"transactions": []any{},
			}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, endpoint, dir string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
environment: development
syncs:
  ethereum_block:
    type: ethereum_block
    chain_id: "1"
    from_idx: 100
    poll_interval: 5ms
    endpoints:
      - %s
  l2_tx_batch:
    type: l2_tx_batch
    status: stopped
    endpoints:
      - %s
services:
  port: 18080
  checkpoint:
    type: file
    directory: %s
`, endpoint, endpoint, dir)))
	require.NoError(t, err)
	return cfg
}

func TestApp_SyncsUntilHead(t *testing.T) {
	node := nodeServer(t, 102)
	dir := t.TempDir()
	cfg := testConfig(t, node.URL, dir)

	ctx, cancel := context.WithCancel(context.Background())
	a, err := newApp(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, []string{"ethereum_block", "l2_tx_batch"}, a.manager.SyncTypes())

	st, err := a.control.Get("l2_tx_batch")
	require.NoError(t, err)
	assert.Equal(t, types.StatusStopped, st.Status)

	done := make(chan error, 1)
	go func() { done <- a.manager.Run(ctx) }()

	require.Eventually(t, func() bool {
		st, _ := a.control.Get("ethereum_block")
		return st.SyncIdx == 103
	}, 5*time.Second, 10*time.Millisecond)

	// past head the cursor holds
	time.Sleep(50 * time.Millisecond)
	st, err = a.control.Get("ethereum_block")
	require.NoError(t, err)
	assert.Equal(t, uint64(103), st.SyncIdx)
	assert.Equal(t, types.StatusWorking, st.Status)

	cancel()
	require.NoError(t, <-done)
	require.NoError(t, a.Close())

	store, err := checkpointstore.NewFileStore(dir)
	require.NoError(t, err)
	persisted, err := store.Read("ethereum_block")
	require.NoError(t, err)
	assert.Equal(t, uint64(103), persisted.SyncIdx)
}

func TestApp_StopViaControl(t *testing.T) {
	node := nodeServer(t, 1_000_000)
	cfg := testConfig(t, node.URL, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a, err := newApp(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = a.Close() }()

	done := make(chan error, 1)
	go func() { done <- a.manager.Run(ctx) }()

	_, err = a.control.Request(ctx, "ethereum_block", types.MethodStop)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		st, _ := a.control.Get("ethereum_block")
		return st.Status == types.StatusStopped
	}, 5*time.Second, 10*time.Millisecond)

	st, _ := a.control.Get("ethereum_block")
	time.Sleep(50 * time.Millisecond)
	after, _ := a.control.Get("ethereum_block")
	assert.Equal(t, st.SyncIdx, after.SyncIdx, "stopped source does not advance")

	cancel()
	require.NoError(t, <-done)
}

func TestApp_RejectsClashingChannelName(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1", t.TempDir())
	sc := cfg.Syncs.Items["ethereum_block"]
	sc.Name = "postgres"
	cfg.Syncs.Items["postgres"] = sc

	_, err := newApp(context.Background(), cfg)
	assert.ErrorContains(t, err, "duplicate channel names")
}

func TestApp_CloseCollectsErrors(t *testing.T) {
	var order []string
	a := &app{closers: []func() error{
		func() error { order = append(order, "store"); return errors.New("store busy") },
		func() error { order = append(order, "redis"); return nil },
		func() error { order = append(order, "nats"); return errors.New("nats drain timeout") },
	}}

	err := a.Close()
	require.Error(t, err)
	var multi *types.MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.Equal(t, "nats drain timeout; store busy", err.Error())
	assert.Equal(t, []string{"nats", "redis", "store"}, order)

	assert.NoError(t, a.Close(), "second close is a no-op")
}
