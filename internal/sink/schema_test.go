package sink

import (
	"encoding/json"
	"testing"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T) Schema {
	t.Helper()
	s, err := ParseSchema([]byte(testSchema))
	require.NoError(t, err)
	return s
}

func TestParseSchema(t *testing.T) {
	s := mustSchema(t)
	require.Len(t, s, 2)

	blocks := s["ethereum_blocks"]
	assert.Equal(t, "ethereum_blocks", blocks.ID)
	assert.Equal(t, ColumnString, blocks.Columns[0].Type)
	assert.Equal(t, "hash", blocks.Columns[0].Field)
	assert.Equal(t, "number", blocks.Columns[1].Field, "field defaults to the column name")

	logs := s["ethereum_logs"]
	assert.Equal(t, "ethereum_logs", logs.Name, "table defaults to the id")
}

func TestParseSchema_Invalid(t *testing.T) {
	_, err := ParseSchema([]byte("t:\n  columns:\n    - name: a\n      type: uuid\n"))
	assert.Error(t, err)

	_, err = ParseSchema([]byte("t:\n  table: x\n"))
	assert.Error(t, err)

	_, err = ParseSchema([]byte("t:\n  columns:\n    - type: string\n"))
	assert.Error(t, err)
}

func TestTable_Row(t *testing.T) {
	s := mustSchema(t)
	rec := record.Record{
		"hash":          "0xabc",
		"number":        "101",
		"gasUsed":       json.Number("115792089237316195423570985008687907853269984665640564039457584007913129639935"),
		"baseFeePerGas": nil,
	}

	row, err := s["ethereum_blocks"].Row(rec)
	require.NoError(t, err)
	assert.Equal(t, "0xabc", row["block_hash"])
	assert.True(t, decimal.NewFromInt(101).Equal(row["number"].(decimal.Decimal)))
	assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", row["gas_used"].(decimal.Decimal).String())
	assert.Nil(t, row["base_fee"])
	assert.Contains(t, row, "extra")
	assert.Nil(t, row["extra"])
}

func TestTable_RowNestedAndJSON(t *testing.T) {
	s := mustSchema(t)
	rec := record.Record{
		"log": map[string]any{
			"transactionHash": "0x01",
			"logIndex":        "3",
			"topics":          []any{"0xaa", "0xbb"},
			"removed":         false,
		},
	}
	row, err := s["ethereum_logs"].Row(rec)
	require.NoError(t, err)
	assert.Equal(t, "0x01", row["transaction_hash"])
	assert.Equal(t, `["0xaa","0xbb"]`, row["topics"])
	assert.Equal(t, false, row["removed"])

	assert.Equal(t, "0x01:3", s["ethereum_logs"].Key(rec))
}

func TestTable_RowErrors(t *testing.T) {
	s := mustSchema(t)

	_, err := s["ethereum_blocks"].Row(record.Record{"number": "1", "gasUsed": "2"})
	assert.ErrorIs(t, err, types.ErrParsing, "missing non-nullable hash")

	_, err = s["ethereum_blocks"].Row(record.Record{"hash": "0x1", "number": "0x1", "gasUsed": "2"})
	assert.ErrorIs(t, err, types.ErrParsing, "hex is not normalized")

	_, err = s["ethereum_logs"].Row(record.Record{"transactionHash": "0x1", "logIndex": "1", "topics": []any{}, "removed": "no"})
	assert.ErrorIs(t, err, types.ErrParsing)
}
