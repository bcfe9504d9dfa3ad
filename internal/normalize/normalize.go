// Package normalize rewrites hex-encoded integer fields as decimal strings.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
	"github.com/holiman/uint256"
)

var hexPattern = regexp.MustCompile(`^(0[xX])?[A-Fa-f0-9]+$`)

// IsHex reports whether s has the shape of a hex integer.
func IsHex(s string) bool {
	return hexPattern.MatchString(s)
}

// HexToDecimal converts a hex integer (optional 0x prefix) to base 10.
// Values wider than 256 bits are a parsing error.
func HexToDecimal(s string) (string, error) {
	if !IsHex(s) {
		return "", types.Errorf(types.KindParsing, "not a hex integer: %q", s)
	}
	digits := strings.TrimLeft(s[hexPrefixLen(s):], "0")
	if digits == "" {
		return "0", nil
	}
	v, err := uint256.FromHex("0x" + digits)
	if err != nil {
		return "", types.Errorf(types.KindParsing, "hex %q: %w", s, err)
	}
	return v.Dec(), nil
}

func hexPrefixLen(s string) int {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return 2
	}
	return 0
}

// Normalize returns a shallow copy of rec with each named hex field replaced
// by its decimal string. Absent, null, non-string and non-hex fields are
// left as they are.
func Normalize(rec record.Record, fields ...string) (record.Record, error) {
	out := rec.Clone()
	if err := InPlace(out, fields...); err != nil {
		return nil, err
	}
	return out, nil
}

// InPlace is Normalize without the copy.
func InPlace(rec record.Record, fields ...string) error {
	for _, f := range fields {
		s, ok := rec[f].(string)
		if !ok || !IsHex(s) {
			continue
		}
		dec, err := HexToDecimal(s)
		if err != nil {
			return err
		}
		rec[f] = dec
	}
	return nil
}

// Stringify replaces each named JSON number in rec with its decimal text.
// Other values are left as they are.
func Stringify(rec record.Record, fields ...string) record.Record {
	out := rec.Clone()
	for _, f := range fields {
		if n, ok := out[f].(json.Number); ok {
			out[f] = n.String()
		}
	}
	return out
}
