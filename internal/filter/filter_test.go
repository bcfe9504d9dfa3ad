package filter

import (
	"testing"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(t *testing.T, extra string) record.Record {
	t.Helper()
	doc := `{"key1": "val1", "key2": {"sub": "sv", "sub_key1": "sub_val1"}, "key3": 100` + extra + `}`
	rec, err := record.Decode([]byte(doc))
	require.NoError(t, err)
	return rec
}

func TestEvaluate_EmptyAdmitsEverything(t *testing.T) {
	for _, expr := range []string{"", "   ", "\t\n"} {
		ok, err := Evaluate(record.Record{}, expr)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestEvaluate_Examples(t *testing.T) {
	rec := sampleRecord(t, "")
	ok, err := Evaluate(rec, "(key1=val1 & sub=sv) | key3=101")
	require.NoError(t, err)
	assert.True(t, ok)

	rec = sampleRecord(t, `, "key4": "not_null"`)
	ok, err = Evaluate(rec, "(key1=val1 & sub=sv & key3=100) & key4=null")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvaluate_Clauses(t *testing.T) {
	rec := sampleRecord(t, `, "flag": true, "nothing": null, "txs": [{"to": "0xabc"}]`)

	tests := []struct {
		expr string
		want bool
	}{
		{"key1 = val1", true},
		{"  key1=val2 ", false},
		{"key2.sub = sv", true},
		{"key2.missing = sv", false},
		{"sub_key1 = sub_val1", true},
		{"key3 = 100", true},
		{"flag = true", true},
		{"nothing = null", true},
		{"absent = null", false},
		{"to = 0xabc", true},
		{"key1=val1 & key3=100", true},
		{"key1=nope | key3=100", true},
		{"(key1=nope)", false},
		{"((key1=val1))", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			ok, err := Evaluate(rec, tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestEvaluate_LeftToRightEqualPrecedence(t *testing.T) {
	rec := record.Record{"a": "1", "b": "2", "c": "3"}

	// (a=1 | b=x) & c=x  -> false; with & binding tighter it would be true
	ok, err := Evaluate(rec, "a=1 | b=x & c=x")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Evaluate(rec, "a=1 | (b=x & c=x)")
	require.NoError(t, err)
	assert.True(t, ok)

	// (a=x & b=2) | c=3 -> true
	ok, err = Evaluate(rec, "a=x & b=2 | c=3")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvaluate_ParsingErrors(t *testing.T) {
	rec := sampleRecord(t, "")
	for _, expr := range []string{
		"key1",
		"key1 == val1",
		"= val1",
		"key1=val1 &",
		"& key1=val1",
		"(key1=val1",
		"key1=val1)",
		"()",
		"key1=val1 (key3=100)",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Evaluate(rec, expr)
			assert.ErrorIs(t, err, types.ErrParsing)
		})
	}
}

func TestCompile_Reusable(t *testing.T) {
	e, err := Compile("key1=val1")
	require.NoError(t, err)
	assert.Equal(t, "key1=val1", e.String())

	ok, err := e.Match(record.Record{"key1": "val1"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Match(record.Record{"key1": "other"})
	require.NoError(t, err)
	assert.False(t, ok)
}
