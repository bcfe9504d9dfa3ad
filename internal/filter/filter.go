// Package filter evaluates admission expressions against fetched records.
//
// An expression is a list of key=value clauses joined by & and |, grouped
// with parentheses. & and | have equal precedence and associate left to
// right, so "a=1 | b=2 & c=3" means "(a=1 | b=2) & c=3". Use parentheses to
// get any other grouping.
//
// A dotted key (a.b.c) addresses a nested field; a bare key matches the
// first field of that name found depth-first. Values compare as text. A
// missing field never matches, while an explicit JSON null matches "null".
package filter

import (
	"strings"

	"github.com/fystack/chainsync/pkg/common/record"
	"github.com/fystack/chainsync/pkg/common/types"
)

type tokenKind int

const (
	tokClause tokenKind = iota
	tokAnd
	tokOr
	tokOpen
	tokClose
)

type token struct {
	kind  tokenKind
	key   string
	value string
}

// Expr is a parsed expression, safe for concurrent use.
type Expr struct {
	src    string
	tokens []token
}

// Compile tokenizes expr and checks every clause. Structural errors such as
// unbalanced parentheses are reported by Match.
func Compile(expr string) (*Expr, error) {
	e := &Expr{src: expr}
	if strings.TrimSpace(expr) == "" {
		return e, nil
	}

	var clause strings.Builder
	flush := func() error {
		text := clause.String()
		clause.Reset()
		if strings.TrimSpace(text) == "" {
			return nil
		}
		tok, err := parseClause(text)
		if err != nil {
			return err
		}
		e.tokens = append(e.tokens, tok)
		return nil
	}

	for _, c := range expr {
		var kind tokenKind
		switch c {
		case '&':
			kind = tokAnd
		case '|':
			kind = tokOr
		case '(':
			kind = tokOpen
		case ')':
			kind = tokClose
		default:
			clause.WriteRune(c)
			continue
		}
		if err := flush(); err != nil {
			return nil, err
		}
		e.tokens = append(e.tokens, token{kind: kind})
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return e, nil
}

func parseClause(text string) (token, error) {
	parts := strings.Split(text, "=")
	if len(parts) != 2 {
		return token{}, types.Errorf(types.KindParsing, "invalid filter clause %q, expected key=value", strings.TrimSpace(text))
	}
	key := strings.TrimSpace(parts[0])
	if key == "" {
		return token{}, types.Errorf(types.KindParsing, "invalid filter clause %q, empty key", strings.TrimSpace(text))
	}
	return token{kind: tokClause, key: key, value: strings.TrimSpace(parts[1])}, nil
}

func (e *Expr) String() string { return e.src }

// Evaluate compiles and matches in one call.
func Evaluate(rec record.Record, expr string) (bool, error) {
	e, err := Compile(expr)
	if err != nil {
		return false, err
	}
	return e.Match(rec)
}

// Match runs the two-stack evaluation: operands on one stack, operators
// and open parentheses on the other.
func (e *Expr) Match(rec record.Record) (bool, error) {
	if len(e.tokens) == 0 {
		return true, nil
	}

	var (
		operands  []bool
		operators []tokenKind
	)

	reduce := func() error {
		if len(operands) < 2 {
			return types.Errorf(types.KindParsing, "invalid filter %q: operator without two operands", e.src)
		}
		op := operators[len(operators)-1]
		operators = operators[:len(operators)-1]
		right := operands[len(operands)-1]
		left := operands[len(operands)-2]
		operands = operands[:len(operands)-2]
		if op == tokAnd {
			operands = append(operands, left && right)
		} else {
			operands = append(operands, left || right)
		}
		return nil
	}
	topIsOperator := func() bool {
		return len(operators) > 0 && operators[len(operators)-1] != tokOpen
	}

	for _, tok := range e.tokens {
		switch tok.kind {
		case tokClause:
			operands = append(operands, matchClause(rec, tok))
		case tokOpen:
			operators = append(operators, tokOpen)
		case tokAnd, tokOr:
			for topIsOperator() {
				if err := reduce(); err != nil {
					return false, err
				}
			}
			operators = append(operators, tok.kind)
		case tokClose:
			for topIsOperator() {
				if err := reduce(); err != nil {
					return false, err
				}
			}
			if len(operators) == 0 {
				return false, types.Errorf(types.KindParsing, "invalid filter %q: unbalanced ')'", e.src)
			}
			operators = operators[:len(operators)-1]
		}
	}

	for len(operators) > 0 {
		if operators[len(operators)-1] == tokOpen {
			return false, types.Errorf(types.KindParsing, "invalid filter %q: unbalanced '('", e.src)
		}
		if err := reduce(); err != nil {
			return false, err
		}
	}
	if len(operands) != 1 {
		return false, types.Errorf(types.KindParsing, "invalid filter %q: clauses must be joined by & or |", e.src)
	}
	return operands[0], nil
}

func matchClause(rec record.Record, tok token) bool {
	var (
		v  any
		ok bool
	)
	if strings.Contains(tok.key, ".") {
		v, ok = rec.Lookup(tok.key)
	} else {
		v, ok = rec.Find(tok.key)
	}
	if !ok {
		return false
	}
	return record.Text(v) == tok.value
}
