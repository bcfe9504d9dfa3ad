package normalize

import (
	"encoding/json"
	"math/big"
	"strings"
	"testing"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHexToDecimal(t *testing.T) {
	tests := map[string]string{
		"0x16345785d8a0000": "100000000000000000",
		"0x11":              "17",
		"0X11":              "17",
		"11":                "17",
		"0x0":               "0",
		"0x000001":          "1",
		"ff":                "255",
	}
	maxWord := "0x" + strings.Repeat("f", 64)
	tests[maxWord] = "115792089237316195423570985008687907853269984665640564039457584007913129639935"

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := HexToDecimal(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestHexToDecimal_MatchesBigInt(t *testing.T) {
	for _, in := range []string{"0x1", "0xdeadbeef", "0xFFFFFFFFFFFFFFFFFF", "123abc", "0x" + strings.Repeat("9", 60)} {
		got, err := HexToDecimal(in)
		require.NoError(t, err)

		want, ok := new(big.Int).SetString(strings.TrimPrefix(strings.TrimPrefix(in, "0x"), "0X"), 16)
		require.True(t, ok)
		back, ok := new(big.Int).SetString(got, 10)
		require.True(t, ok)
		assert.Zero(t, want.Cmp(back), in)
	}
}

func TestHexToDecimal_Errors(t *testing.T) {
	_, err := HexToDecimal("0x" + strings.Repeat("f", 65))
	assert.ErrorIs(t, err, types.ErrParsing, "wider than 256 bits")

	_, err = HexToDecimal("0xzz")
	assert.ErrorIs(t, err, types.ErrParsing)
}

func TestNormalize(t *testing.T) {
	rec := record.Record{
		"number":    "0x10",
		"gasUsed":   "0x0",
		"hash":      "0xabc",
		"miner":     "not-hex",
		"nullField": nil,
		"numeric":   float64(3),
	}
	out, err := Normalize(rec, "number", "gasUsed", "miner", "nullField", "numeric", "absent")
	require.NoError(t, err)

	assert.Equal(t, "16", out["number"])
	assert.Equal(t, "0", out["gasUsed"])
	assert.Equal(t, "0xabc", out["hash"], "unnamed fields untouched")
	assert.Equal(t, "not-hex", out["miner"])
	assert.Nil(t, out["nullField"])
	assert.Equal(t, float64(3), out["numeric"])
	_, present := out["absent"]
	assert.False(t, present)

	assert.Equal(t, "0x10", rec["number"], "input is not mutated")
}

func TestNormalize_IdempotentOnNonHex(t *testing.T) {
	rec := record.Record{"a": "0xZZ", "b": "text", "c": nil}
	once, err := Normalize(rec, "a", "b", "c")
	require.NoError(t, err)
	twice, err := Normalize(once, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, once, twice)
	assert.Equal(t, rec, once)
}

func TestNormalize_Overflow(t *testing.T) {
	_, err := Normalize(record.Record{"v": "0x1" + strings.Repeat("0", 64)}, "v")
	assert.ErrorIs(t, err, types.ErrParsing)
}

func TestStringify(t *testing.T) {
	rec := record.Record{
		"index":     json.Number("12"),
		"timestamp": json.Number("1700000000"),
		"root":      "0xabc",
		"size":      "5",
	}
	out := Stringify(rec, "index", "timestamp", "root", "size", "missing")
	assert.Equal(t, "12", out["index"])
	assert.Equal(t, "1700000000", out["timestamp"])
	assert.Equal(t, "0xabc", out["root"])
	assert.Equal(t, "5", out["size"])
	assert.Equal(t, json.Number("12"), rec["index"], "input untouched")
}
