package engine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Conditional steps and deterministic decision gates evaluate a small,
// side-effect-free boolean grammar:
//
//	expr   := or
//	or     := and (("||" | "or") and)*
//	and    := unary (("&&" | "and") unary)*
//	unary  := ("!" | "not") unary | cmp
//	cmp    := operand (("==" | "!=" | "<" | "<=" | ">" | ">=") operand)?
//	operand:= number | 'string' | "string" | true | false | null
//	        | path | "(" expr ")"
//	path   := ident ("." ident)*   with root "context" or "outputs"
//
// The interpreter is explicit and closed: field lookups into the
// workflow's context and step outputs, comparisons and boolean
// connectives, nothing else. There is deliberately no function call,
// indexing, or assignment syntax.

// condEnv is the read-only environment a condition is evaluated in.
type condEnv struct {
	context map[string]any
	outputs map[string]any
}

// evalCondition parses and evaluates expr against env. The result must
// be a boolean; any type error or unknown syntax fails the evaluation.
func evalCondition(expr string, env condEnv) (bool, error) {
	toks, err := lexCondition(expr)
	if err != nil {
		return false, err
	}
	p := &condParser{tokens: toks, env: env}
	v, err := p.parseOr()
	if err != nil {
		return false, err
	}
	if !p.eof() {
		return false, fmt.Errorf("condition: unexpected %q", p.peek().text)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("condition: expression is %T, not a boolean", v)
	}
	return b, nil
}

type tokKind int

const (
	tokIdent tokKind = iota
	tokNumber
	tokString
	tokOp // operators and punctuation
)

type token struct {
	kind tokKind
	text string
}

func lexCondition(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := input[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(' || c == ')':
			toks = append(toks, token{tokOp, string(c)})
			i++
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(input) && input[j] != quote {
				j++
			}
			if j >= len(input) {
				return nil, fmt.Errorf("condition: unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, input[i+1 : j]})
			i = j + 1
		case strings.ContainsRune("=!<>&|", rune(c)):
			j := i + 1
			for j < len(input) && strings.ContainsRune("=!<>&|", rune(input[j])) {
				j++
			}
			op := input[i:j]
			switch op {
			case "==", "!=", "<", "<=", ">", ">=", "&&", "||", "!":
			default:
				return nil, fmt.Errorf("condition: unknown operator %q", op)
			}
			toks = append(toks, token{tokOp, op})
			i = j
		case c >= '0' && c <= '9' || c == '-':
			j := i + 1
			for j < len(input) && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			toks = append(toks, token{tokNumber, input[i:j]})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i + 1
			for j < len(input) && (unicode.IsLetter(rune(input[j])) || unicode.IsDigit(rune(input[j])) || input[j] == '_' || input[j] == '.') {
				j++
			}
			toks = append(toks, token{tokIdent, input[i:j]})
			i = j
		default:
			return nil, fmt.Errorf("condition: unexpected character %q", c)
		}
	}
	return toks, nil
}

type condParser struct {
	tokens []token
	pos    int
	env    condEnv
}

func (p *condParser) eof() bool    { return p.pos >= len(p.tokens) }
func (p *condParser) peek() token  { return p.tokens[p.pos] }
func (p *condParser) advance() token {
	t := p.tokens[p.pos]
	p.pos++
	return t
}

func (p *condParser) match(kind tokKind, text string) bool {
	if p.eof() {
		return false
	}
	t := p.peek()
	if t.kind == kind && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *condParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.match(tokOp, "||") || p.match(tokIdent, "or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right)
		if err != nil {
			return nil, err
		}
		left = lb || rb
	}
	return left, nil
}

func (p *condParser) parseAnd() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.match(tokOp, "&&") || p.match(tokIdent, "and") {
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		lb, rb, err := bothBool(left, right)
		if err != nil {
			return nil, err
		}
		left = lb && rb
	}
	return left, nil
}

func (p *condParser) parseUnary() (any, error) {
	if p.match(tokOp, "!") || p.match(tokIdent, "not") {
		v, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("condition: ! applied to %T", v)
		}
		return !b, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (any, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.eof() || p.peek().kind != tokOp {
		return left, nil
	}
	op := p.peek().text
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		p.advance()
	default:
		return left, nil
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return compare(op, left, right)
}

func (p *condParser) parseOperand() (any, error) {
	if p.eof() {
		return nil, fmt.Errorf("condition: unexpected end of expression")
	}
	t := p.advance()
	switch t.kind {
	case tokString:
		return t.text, nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("condition: bad number %q", t.text)
		}
		return n, nil
	case tokIdent:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "nil":
			return nil, nil
		}
		return p.env.lookup(t.text)
	case tokOp:
		if t.text == "(" {
			v, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			if !p.match(tokOp, ")") {
				return nil, fmt.Errorf("condition: missing closing parenthesis")
			}
			return v, nil
		}
	}
	return nil, fmt.Errorf("condition: unexpected %q", t.text)
}

// lookup resolves a dotted path rooted at "context" or "outputs".
// Missing fields resolve to nil rather than erroring, so conditions can
// test for absence with == null.
func (e condEnv) lookup(path string) (any, error) {
	parts := strings.Split(path, ".")
	var current any
	switch parts[0] {
	case "context":
		current = mapToAny(e.context)
	case "outputs":
		current = mapToAny(e.outputs)
	default:
		return nil, fmt.Errorf("condition: path must start with context or outputs, got %q", parts[0])
	}
	for _, part := range parts[1:] {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, nil
		}
		current = m[part]
	}
	return normalizeValue(current), nil
}

func mapToAny(m map[string]any) any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// normalizeValue widens integer lookups to float64 so they compare
// against numeric literals.
func normalizeValue(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}

func bothBool(l, r any) (bool, bool, error) {
	lb, ok := l.(bool)
	if !ok {
		return false, false, fmt.Errorf("condition: boolean operator applied to %T", l)
	}
	rb, ok := r.(bool)
	if !ok {
		return false, false, fmt.Errorf("condition: boolean operator applied to %T", r)
	}
	return lb, rb, nil
}

func compare(op string, l, r any) (bool, error) {
	l, r = normalizeValue(l), normalizeValue(r)

	switch op {
	case "==":
		return equalValues(l, r)
	case "!=":
		eq, err := equalValues(l, r)
		return !eq, err
	}

	// Ordering operators require two numbers or two strings.
	if ln, ok := l.(float64); ok {
		rn, ok := r.(float64)
		if !ok {
			return false, fmt.Errorf("condition: cannot compare number with %T", r)
		}
		return orderNumbers(op, ln, rn), nil
	}
	if ls, ok := l.(string); ok {
		rs, ok := r.(string)
		if !ok {
			return false, fmt.Errorf("condition: cannot compare string with %T", r)
		}
		return orderStrings(op, ls, rs), nil
	}
	return false, fmt.Errorf("condition: %q not defined for %T", op, l)
}

// equalValues compares the scalar types the grammar produces. Maps and
// slices are not values a condition may compare; rejecting them here
// also keeps the naive interface comparison from panicking on
// uncomparable dynamic types.
func equalValues(l, r any) (bool, error) {
	if l == nil || r == nil {
		return l == nil && r == nil, nil
	}
	for _, v := range []any{l, r} {
		switch v.(type) {
		case bool, float64, string:
		default:
			return false, fmt.Errorf("condition: equality is not defined for %T", v)
		}
	}
	// Both operands are comparable scalars; mismatched types are simply
	// unequal.
	return l == r, nil
}

func orderNumbers(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}

func orderStrings(op string, l, r string) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	default:
		return l >= r
	}
}
