// Package calc evaluates calculated form fields: registered clinical scores
// (BMI, MMSE, CHA2DS2-VASc, ...) and ad-hoc arithmetic formulas over the
// answers of a consultation form.
package calc

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Answers is the read view of a form's answer map the engine needs.
type Answers interface {
	// Number returns the answer as a number; text answers are parsed.
	Number(key string) (float64, bool)
	// Text returns the answer rendered as text; empty answers are absent.
	Text(key string) (string, bool)
}

// Result is a computed value and, for scores, its clinical interpretation.
type Result struct {
	Value          float64 `json:"value"`
	Interpretation string  `json:"interpretation,omitempty"`
	Score          string  `json:"score,omitempty"`
}

const scorePrefix = "score:"

// Registry holds score definitions and a cache of parsed formulas.
type Registry struct {
	mu     sync.RWMutex
	scores map[string]*ScoreDefinition
	names  []string
	exprs  sync.Map // formula source -> *Expr or error
}

func NewRegistry() *Registry {
	return &Registry{scores: make(map[string]*ScoreDefinition)}
}

// Register adds a score under its name and aliases.
func (r *Registry) Register(def ScoreDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("score name is required")
	}
	if def.Formula == "" && len(def.Terms) == 0 {
		return fmt.Errorf("score %s: terms or formula required", def.Name)
	}
	if def.Formula != "" {
		e, err := ParseExpr(def.Formula)
		if err != nil {
			return fmt.Errorf("score %s: %w", def.Name, err)
		}
		def.expr = e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	d := &def
	for _, n := range append([]string{def.Name}, def.Aliases...) {
		key := strings.ToLower(n)
		if _, dup := r.scores[key]; dup {
			return fmt.Errorf("score %s already registered", n)
		}
		r.scores[key] = d
	}
	r.names = append(r.names, def.Name)
	return nil
}

func (r *Registry) MustRegister(defs ...ScoreDefinition) {
	for _, d := range defs {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
}

// Score looks up a registered score by name or alias.
func (r *Registry) Score(name string) (*ScoreDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.scores[strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), scorePrefix))]
	return d, ok
}

// Scores returns the registered score names in sorted order.
func (r *Registry) Scores() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := append([]string(nil), r.names...)
	sort.Strings(out)
	return out
}

func (r *Registry) parse(src string) (*Expr, error) {
	if v, ok := r.exprs.Load(src); ok {
		if e, isExpr := v.(*Expr); isExpr {
			return e, nil
		}
		return nil, v.(error)
	}
	e, err := ParseExpr(src)
	if err != nil {
		r.exprs.Store(src, err)
		return nil, err
	}
	r.exprs.Store(src, e)
	return e, nil
}

// Compute evaluates formulaRef against answers. ok is false when the formula
// is unknown or malformed, or its inputs are not yet usable.
func (r *Registry) Compute(formulaRef string, a Answers) (Result, bool) {
	ref := strings.TrimSpace(formulaRef)
	if ref == "" {
		return Result{}, false
	}
	if d, ok := r.Score(ref); ok {
		return d.compute(a)
	}
	if strings.HasPrefix(ref, scorePrefix) {
		return Result{}, false
	}
	e, err := r.parse(ref)
	if err != nil {
		return Result{}, false
	}
	v, ok := e.Eval(a)
	if !ok {
		return Result{}, false
	}
	return Result{Value: v}, true
}

// Dependencies lists the answer keys formulaRef reads. Unknown or malformed
// formulas have none.
func (r *Registry) Dependencies(formulaRef string) []string {
	ref := strings.TrimSpace(formulaRef)
	if d, ok := r.Score(ref); ok {
		return d.dependencies()
	}
	if ref == "" || strings.HasPrefix(ref, scorePrefix) {
		return nil
	}
	e, err := r.parse(ref)
	if err != nil {
		return nil
	}
	return e.Dependencies()
}

// Validate reports whether formulaRef names a registered score or parses as
// a formula.
func (r *Registry) Validate(formulaRef string) error {
	ref := strings.TrimSpace(formulaRef)
	if ref == "" {
		return fmt.Errorf("calculation is required")
	}
	if _, ok := r.Score(ref); ok {
		return nil
	}
	if strings.HasPrefix(ref, scorePrefix) {
		return fmt.Errorf("unknown score %q", strings.TrimPrefix(ref, scorePrefix))
	}
	if _, err := r.parse(ref); err != nil {
		return fmt.Errorf("invalid formula %q: %w", ref, err)
	}
	return nil
}

// Default is the registry preloaded with the built-in clinical scores.
var Default = newDefault()

func newDefault() *Registry {
	r := NewRegistry()
	r.MustRegister(Builtin()...)
	return r
}

// Compute evaluates formulaRef with the default registry.
func Compute(formulaRef string, a Answers) (Result, bool) {
	return Default.Compute(formulaRef, a)
}

// Dependencies lists the inputs of formulaRef in the default registry.
func Dependencies(formulaRef string) []string {
	return Default.Dependencies(formulaRef)
}
