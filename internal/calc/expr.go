package calc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Expr is a parsed arithmetic formula over answer keys.
type Expr struct {
	src  string
	root node
	deps []string
}

// Eval evaluates the expression. ok is false when an input is missing or not
// numeric, or the arithmetic is undefined (division by zero, ln of a
// non-positive number).
func (e *Expr) Eval(a Answers) (float64, bool) {
	v, ok := e.root.eval(a)
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Dependencies lists the answer keys the expression reads, in first-use order.
func (e *Expr) Dependencies() []string {
	return append([]string(nil), e.deps...)
}

func (e *Expr) String() string { return e.src }

type node interface {
	eval(a Answers) (float64, bool)
}

type numberNode float64

func (n numberNode) eval(Answers) (float64, bool) { return float64(n), true }

type identNode string

func (n identNode) eval(a Answers) (float64, bool) { return a.Number(string(n)) }

type unaryNode struct {
	op rune
	x  node
}

func (n unaryNode) eval(a Answers) (float64, bool) {
	v, ok := n.x.eval(a)
	if !ok {
		return 0, false
	}
	if n.op == '-' {
		return -v, true
	}
	return v, true
}

type binaryNode struct {
	op   rune
	l, r node
}

func (n binaryNode) eval(a Answers) (float64, bool) {
	l, ok := n.l.eval(a)
	if !ok {
		return 0, false
	}
	r, ok := n.r.eval(a)
	if !ok {
		return 0, false
	}
	switch n.op {
	case '+':
		return l + r, true
	case '-':
		return l - r, true
	case '*':
		return l * r, true
	case '/':
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case '^':
		return math.Pow(l, r), true
	}
	return 0, false
}

type callNode struct {
	fn   string
	args []node
}

type function struct {
	arity int
	apply func(args []float64) (float64, bool)
}

var functions = map[string]function{
	"sqrt": {1, func(x []float64) (float64, bool) { return math.Sqrt(x[0]), x[0] >= 0 }},
	"ln":   {1, func(x []float64) (float64, bool) { return math.Log(x[0]), x[0] > 0 }},
	"log10": {1, func(x []float64) (float64, bool) {
		return math.Log10(x[0]), x[0] > 0
	}},
	"abs":   {1, func(x []float64) (float64, bool) { return math.Abs(x[0]), true }},
	"min":   {2, func(x []float64) (float64, bool) { return math.Min(x[0], x[1]), true }},
	"max":   {2, func(x []float64) (float64, bool) { return math.Max(x[0], x[1]), true }},
	"round": {2, func(x []float64) (float64, bool) { return roundTo(x[0], int(x[1])), true }},
}

func (n callNode) eval(a Answers) (float64, bool) {
	args := make([]float64, len(n.args))
	for i, arg := range n.args {
		v, ok := arg.eval(a)
		if !ok {
			return 0, false
		}
		args[i] = v
	}
	return functions[n.fn].apply(args)
}

// -- lexer --

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokIdent
	tokOp
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func lex(src string) ([]token, error) {
	var toks []token
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case unicode.IsDigit(r) || (r == '.' && i+1 < len(rs) && unicode.IsDigit(rs[i+1])):
			start := i
			for i < len(rs) && (unicode.IsDigit(rs[i]) || rs[i] == '.') {
				i++
			}
			text := string(rs[start:i])
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q at %d", text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: f, pos: start})
		case unicode.IsLetter(r) || r == '_':
			start := i
			for i < len(rs) && (unicode.IsLetter(rs[i]) || unicode.IsDigit(rs[i]) || rs[i] == '_') {
				i++
			}
			toks = append(toks, token{kind: tokIdent, text: string(rs[start:i]), pos: start})
		case strings.ContainsRune("+-*/^(),", r):
			toks = append(toks, token{kind: tokOp, text: string(r), pos: i})
			i++
		default:
			return nil, fmt.Errorf("unexpected character %q at %d", r, i)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(rs)}), nil
}

// -- parser --
//
//	expr    = term { ("+" | "-") term }
//	term    = unary { ("*" | "/") unary }
//	unary   = ("+" | "-") unary | power
//	power   = primary [ "^" unary ]
//	primary = number | ident | ident "(" expr { "," expr } ")" | "(" expr ")"

type parser struct {
	toks []token
	pos  int
	deps []string
	seen map[string]bool
}

// ParseExpr parses an arithmetic formula.
func ParseExpr(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, seen: map[string]bool{}}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	}
	return &Expr{src: src, root: root, deps: p.deps}, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(ops string) (rune, bool) {
	t := p.peek()
	if t.kind == tokOp && strings.Contains(ops, t.text) {
		return rune(t.text[0]), true
	}
	return 0, false
}

func (p *parser) expect(op string) error {
	t := p.next()
	if t.kind != tokOp || t.text != op {
		if t.kind == tokEOF {
			return fmt.Errorf("expected %q at end of formula", op)
		}
		return fmt.Errorf("expected %q at %d, got %q", op, t.pos, t.text)
	}
	return nil
}

func (p *parser) expr() (node, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("+-")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
}

func (p *parser) term() (node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.isOp("*/")
		if !ok {
			return left, nil
		}
		p.next()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, l: left, r: right}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.isOp("+-"); ok {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, x: x}, nil
	}
	return p.power()
}

func (p *parser) power() (node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	if _, ok := p.isOp("^"); ok {
		p.next()
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return binaryNode{op: '^', l: base, r: exp}, nil
	}
	return base, nil
}

func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode(t.num), nil
	case tokIdent:
		if _, ok := p.isOp("("); ok {
			return p.call(t)
		}
		if !p.seen[t.text] {
			p.seen[t.text] = true
			p.deps = append(p.deps, t.text)
		}
		return identNode(t.text), nil
	case tokOp:
		if t.text == "(" {
			inner, err := p.expr()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		return nil, fmt.Errorf("unexpected %q at %d", t.text, t.pos)
	default:
		return nil, fmt.Errorf("unexpected end of formula")
	}
}

func (p *parser) call(name token) (node, error) {
	fn, ok := functions[strings.ToLower(name.text)]
	if !ok {
		return nil, fmt.Errorf("unknown function %q at %d", name.text, name.pos)
	}
	p.next() // (
	var args []node
	for {
		arg, err := p.expr()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
		if _, more := p.isOp(","); !more {
			break
		}
		p.next()
	}
	if err := p.expect(")"); err != nil {
		return nil, err
	}
	if len(args) != fn.arity {
		return nil, fmt.Errorf("%s expects %d argument(s), got %d", name.text, fn.arity, len(args))
	}
	return callNode{fn: strings.ToLower(name.text), args: args}, nil
}

func roundTo(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}
