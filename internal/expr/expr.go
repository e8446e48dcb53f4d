// Package expr implements the restricted boolean expression grammar used in
// objective activation conditions. The grammar is closed: numeric and boolean
// literals, variable references, comparisons, and/or/not, parentheses. There
// is no attribute access, no function invocation, and no external resolution.
// Conditions are operator-authored configuration data, never program code, so
// the evaluator is a small recursive-descent parser over a fixed token set.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// #region tokens

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent // variable reference, or keyword and/or/not/true/false
	tokOp    // < <= > >= == !=
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

// lex splits the input into tokens. Identifiers may contain dots so that
// layer-qualified variable names like "money.runway_days" stay one token.
func lex(input string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(input) {
		c := rune(input[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '<' || c == '>' || c == '=' || c == '!':
			op := string(c)
			if i+1 < len(input) && input[i+1] == '=' {
				op += "="
				i++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("invalid operator %q at position %d", op, i)
			}
			toks = append(toks, token{tokOp, op, i})
			i++
		case unicode.IsDigit(c) || c == '.' || c == '-':
			start := i
			i++
			for i < len(input) && (unicode.IsDigit(rune(input[i])) || input[i] == '.' || input[i] == 'e' || input[i] == 'E' || input[i] == '-' || input[i] == '+') {
				// Only allow sign characters immediately after an exponent marker.
				if (input[i] == '-' || input[i] == '+') && !(input[i-1] == 'e' || input[i-1] == 'E') {
					break
				}
				i++
			}
			text := input[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, fmt.Errorf("invalid number %q at position %d", text, start)
			}
			toks = append(toks, token{tokNumber, text, start})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(input) && (unicode.IsLetter(rune(input[i])) || unicode.IsDigit(rune(input[i])) || input[i] == '_' || input[i] == '.') {
				i++
			}
			toks = append(toks, token{tokIdent, input[start:i], start})
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", c, i)
		}
	}
	toks = append(toks, token{tokEOF, "", len(input)})
	return toks, nil
}

// #endregion tokens

// #region ast

// Expr is a parsed activation condition, safe to evaluate repeatedly.
type Expr struct {
	root node
	src  string
}

// Source returns the original condition text.
func (e *Expr) Source() string { return e.src }

type node interface {
	// eval returns the boolean value of the node. ok=false means the node
	// referenced an unknown variable; callers treat the enclosing comparison
	// as false (fail-closed).
	eval(vars map[string]float64) bool
}

// value nodes produce numbers; ok=false signals an unknown variable.
type valueNode interface {
	value(vars map[string]float64) (float64, bool)
}

type numberNode struct{ v float64 }

func (n numberNode) value(map[string]float64) (float64, bool) { return n.v, true }

type varNode struct{ name string }

func (n varNode) value(vars map[string]float64) (float64, bool) {
	v, ok := vars[n.name]
	return v, ok
}

// A bare variable in boolean position is truthy when present and nonzero,
// false when absent.
func (n varNode) eval(vars map[string]float64) bool {
	v, ok := vars[n.name]
	return ok && v != 0
}

type boolNode struct{ v bool }

func (n boolNode) eval(map[string]float64) bool { return n.v }

type cmpNode struct {
	op          string
	left, right valueNode
}

func (n cmpNode) eval(vars map[string]float64) bool {
	l, okL := n.left.value(vars)
	r, okR := n.right.value(vars)
	if !okL || !okR {
		return false
	}
	switch n.op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "==":
		return l == r
	case "!=":
		return l != r
	}
	return false
}

type andNode struct{ left, right node }

func (n andNode) eval(vars map[string]float64) bool {
	return n.left.eval(vars) && n.right.eval(vars)
}

type orNode struct{ left, right node }

func (n orNode) eval(vars map[string]float64) bool {
	return n.left.eval(vars) || n.right.eval(vars)
}

type notNode struct{ inner node }

func (n notNode) eval(vars map[string]float64) bool {
	return !n.inner.eval(vars)
}

// #endregion ast

// #region parser

// Parse validates and compiles a condition string. Malformed syntax is a
// configuration error surfaced here, never at evaluation time.
func Parse(input string) (*Expr, error) {
	if strings.TrimSpace(input) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	toks, err := lex(input)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("unexpected token %q at position %d", p.peek().text, p.peek().pos)
	}
	return &Expr{root: root, src: input}, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokIdent && p.peek().text == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = orNode{left, right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokIdent && p.peek().text == "and" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = andNode{left, right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if p.peek().kind == tokIdent && p.peek().text == "not" {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return notNode{inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOp {
		op := p.next().text
		rightNode, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		lv, okL := left.(valueNode)
		rv, okR := rightNode.(valueNode)
		if !okL || !okR {
			return nil, fmt.Errorf("comparison %q requires numeric operands", op)
		}
		return cmpNode{op: op, left: lv, right: rv}, nil
	}
	// No comparison operator: the primary itself must be usable as a boolean.
	if b, ok := left.(node); ok {
		return b, nil
	}
	return nil, fmt.Errorf("expected comparison after value at position %d", p.peek().pos)
}

// parsePrimary returns either a node (boolean literal, bare variable, or a
// parenthesized expression) or a bare valueNode wrapped appropriately.
func (p *parser) parsePrimary() (interface{}, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		v, _ := strconv.ParseFloat(t.text, 64)
		return numberNode{v}, nil
	case tokIdent:
		switch t.text {
		case "true":
			p.next()
			return boolNode{true}, nil
		case "false":
			p.next()
			return boolNode{false}, nil
		case "and", "or", "not":
			return nil, fmt.Errorf("unexpected keyword %q at position %d", t.text, t.pos)
		default:
			p.next()
			return varNode{t.text}, nil
		}
	case tokLParen:
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis at position %d", p.peek().pos)
		}
		p.next()
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token %q at position %d", t.text, t.pos)
	}
}

// #endregion parser

// #region eval

// Eval evaluates the parsed condition against a flat variable→value map.
// Unknown variable references make the containing comparison false rather
// than raising an error.
func (e *Expr) Eval(vars map[string]float64) bool {
	return e.root.eval(vars)
}

// #endregion eval
