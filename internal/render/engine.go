package render

import (
	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/forms"
)

// Engine evaluates calculated fields into an AnswerMap.
type Engine struct {
	formulas *calc.Registry
}

// NewEngine returns an engine over formulas, or over calc.Default when nil.
func NewEngine(formulas *calc.Registry) *Engine {
	if formulas == nil {
		formulas = calc.Default
	}
	return &Engine{formulas: formulas}
}

func (e *Engine) Formulas() *calc.Registry { return e.formulas }

// Graph builds the dependency graph of tpl against the engine's formulas.
func (e *Engine) Graph(tpl *forms.FormTemplate) *DependencyGraph {
	return BuildGraph(tpl, e.formulas)
}

// Recompute evaluates every calculated field in dependency order, storing
// each value in answers or clearing it when not computable. Fields in a
// cycle are always cleared.
func (e *Engine) Recompute(g *DependencyGraph, answers forms.AnswerMap) map[string]calc.Result {
	for name := range g.cyclic {
		delete(answers, name)
	}
	return e.evaluate(g, answers, g.order)
}

// RecomputeAffected evaluates only the calculated fields downstream of the
// changed keys. On a map already consistent with Recompute it yields the
// same values.
func (e *Engine) RecomputeAffected(g *DependencyGraph, answers forms.AnswerMap, changed ...string) map[string]calc.Result {
	return e.evaluate(g, answers, g.Affected(changed...))
}

func (e *Engine) evaluate(g *DependencyGraph, answers forms.AnswerMap, names []string) map[string]calc.Result {
	results := make(map[string]calc.Result, len(names))
	for _, name := range names {
		res, ok := e.formulas.Compute(g.formulas[name], answers)
		if !ok {
			delete(answers, name)
			continue
		}
		answers.Set(name, forms.Number(res.Value))
		results[name] = res
	}
	return results
}

// RecomputeWith evaluates calculated fields over answers with inputs filling
// the keys answers leave empty, such as the patient's age and gender. Only
// calculated values are written back to answers. With no changed keys every
// calculated field is evaluated.
func (e *Engine) RecomputeWith(g *DependencyGraph, answers, inputs forms.AnswerMap, changed ...string) map[string]calc.Result {
	merged := answers.Clone()
	for k, v := range inputs {
		if _, calculated := g.formulas[k]; calculated {
			continue
		}
		if cur, ok := merged.Get(k); !ok || cur.IsEmpty() {
			merged.Set(k, v)
		}
	}

	var results map[string]calc.Result
	if len(changed) == 0 {
		results = e.Recompute(g, merged)
	} else {
		results = e.RecomputeAffected(g, merged, changed...)
	}
	for name := range g.formulas {
		if v, ok := merged[name]; ok {
			answers[name] = v
		} else {
			delete(answers, name)
		}
	}
	return results
}

// Fill recomputes tpl's calculated fields in answers, reading inputs for
// keys the answers leave empty.
func (e *Engine) Fill(tpl *forms.FormTemplate, answers, inputs forms.AnswerMap) {
	e.RecomputeWith(e.Graph(tpl), answers, inputs)
}

// Evaluate computes tpl's calculated fields on a copy of answers and renders
// the result. The caller's map is not modified.
func (e *Engine) Evaluate(tpl *forms.FormTemplate, answers, inputs forms.AnswerMap) (forms.AnswerMap, View) {
	out := answers.Clone()
	results := e.RecomputeWith(e.Graph(tpl), out, inputs)
	return out, Render(tpl, out, results)
}
