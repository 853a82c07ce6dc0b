package calc

import (
	"math"
	"strings"
)

// Op compares an answer against a criterion.
type Op int

const (
	OpYes Op = iota + 1
	OpIn
	OpGE
	OpGT
	OpLE
	OpLT
	OpBetween // [Value, Upper)
)

// Criterion is a single clinical condition on one answer.
type Criterion struct {
	Key   string
	Op    Op
	Value float64
	Upper float64
	Texts []string
}

// eval reports whether the criterion holds. known is false when the answer is
// missing or has the wrong shape for the comparison.
func (c Criterion) eval(a Answers) (holds, known bool) {
	switch c.Op {
	case OpYes:
		s, ok := a.Text(c.Key)
		if !ok {
			return false, false
		}
		return isYes(s), true
	case OpIn:
		s, ok := a.Text(c.Key)
		if !ok {
			return false, false
		}
		for _, t := range c.Texts {
			if strings.EqualFold(strings.TrimSpace(s), t) {
				return true, true
			}
		}
		return false, true
	}

	v, ok := a.Number(c.Key)
	if !ok {
		return false, false
	}
	switch c.Op {
	case OpGE:
		return v >= c.Value, true
	case OpGT:
		return v > c.Value, true
	case OpLE:
		return v <= c.Value, true
	case OpLT:
		return v < c.Value, true
	case OpBetween:
		return v >= c.Value && v < c.Upper, true
	}
	return false, false
}

// Holds reports whether the criterion is met. Missing answers never hold.
func (c Criterion) Holds(a Answers) bool {
	holds, _ := c.eval(a)
	return holds
}

var yesValues = map[string]bool{
	"si": true, "sí": true, "s": true, "yes": true, "y": true, "true": true, "1": true,
}

func isYes(s string) bool {
	return yesValues[strings.ToLower(strings.TrimSpace(s))]
}

func Yes(key string) Criterion { return Criterion{Key: key, Op: OpYes} }

func In(key string, texts ...string) Criterion { return Criterion{Key: key, Op: OpIn, Texts: texts} }

func GE(key string, v float64) Criterion { return Criterion{Key: key, Op: OpGE, Value: v} }

func GT(key string, v float64) Criterion { return Criterion{Key: key, Op: OpGT, Value: v} }

func LE(key string, v float64) Criterion { return Criterion{Key: key, Op: OpLE, Value: v} }

func LT(key string, v float64) Criterion { return Criterion{Key: key, Op: OpLT, Value: v} }

func Between(key string, lo, hi float64) Criterion {
	return Criterion{Key: key, Op: OpBetween, Value: lo, Upper: hi}
}

// Term contributes to a score total. An item term (no criteria) adds the
// numeric answer at Key, which must lie within [Min, Max]. A points term adds
// Points when any of its criteria holds.
type Term struct {
	Key      string
	Min, Max float64
	Points   float64
	AnyOf    []Criterion
}

// Item is a scored questionnaire item.
func Item(key string, min, max float64) Term {
	return Term{Key: key, Min: min, Max: max}
}

// Award adds points when any criterion holds.
func Award(points float64, anyOf ...Criterion) Term {
	return Term{Points: points, AnyOf: anyOf}
}

func (t Term) keys() []string {
	if len(t.AnyOf) == 0 {
		return []string{t.Key}
	}
	out := make([]string, 0, len(t.AnyOf))
	for _, c := range t.AnyOf {
		out = append(out, c.Key)
	}
	return out
}

func (t Term) eval(a Answers) (float64, bool) {
	if len(t.AnyOf) == 0 {
		v, ok := a.Number(t.Key)
		if !ok || v < t.Min || v > t.Max {
			return 0, false
		}
		return v, true
	}

	allKnown := true
	for _, c := range t.AnyOf {
		holds, known := c.eval(a)
		if holds {
			return t.Points, true
		}
		allKnown = allKnown && known
	}
	if !allKnown {
		return 0, false
	}
	return 0, true
}

// Band maps a score range to its clinical interpretation. Bands are checked
// in order; the first whose upper bound admits the value wins.
type Band struct {
	Upper     float64
	Inclusive bool
	Label     string
}

func UpTo(upper float64, label string) Band { return Band{Upper: upper, Inclusive: true, Label: label} }

func Below(upper float64, label string) Band { return Band{Upper: upper, Label: label} }

func Otherwise(label string) Band { return Band{Upper: math.Inf(1), Inclusive: true, Label: label} }

// NoRounding leaves the computed value untouched.
const NoRounding = -1

// ScoreDefinition declares a clinical score either as a sum of terms or as an
// arithmetic expression, plus its interpretation bands.
type ScoreDefinition struct {
	Name      string
	Title     string
	Aliases   []string
	Terms     []Term
	Formula   string
	Precision int
	Bands     []Band

	expr *Expr
}

func (d *ScoreDefinition) dependencies() []string {
	if d.expr != nil {
		return d.expr.Dependencies()
	}
	seen := map[string]bool{}
	var out []string
	for _, t := range d.Terms {
		for _, k := range t.keys() {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}

func (d *ScoreDefinition) compute(a Answers) (Result, bool) {
	var total float64
	if d.expr != nil {
		v, ok := d.expr.Eval(a)
		if !ok {
			return Result{}, false
		}
		total = v
	} else {
		for _, t := range d.Terms {
			v, ok := t.eval(a)
			if !ok {
				return Result{}, false
			}
			total += v
		}
	}
	if d.Precision != NoRounding {
		total = roundTo(total, d.Precision)
	}
	return Result{Value: total, Interpretation: d.interpret(total), Score: d.Name}, true
}

func (d *ScoreDefinition) interpret(v float64) string {
	for _, b := range d.Bands {
		if v < b.Upper || (b.Inclusive && v == b.Upper) {
			return b.Label
		}
	}
	return ""
}
