package render

import (
	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/forms"
)

// DependencyGraph links answer keys to the calculated fields whose formulas
// read them. Calculated fields are ordered so every field comes after the
// calculated fields it depends on.
type DependencyGraph struct {
	formulas   map[string]string
	order      []string
	dependents map[string][]string
	cyclic     map[string]bool
}

// BuildGraph derives the graph of tpl's calculated fields. Fields caught in
// a dependency cycle are left out of the order and reported by Cyclic.
func BuildGraph(tpl *forms.FormTemplate, formulas *calc.Registry) *DependencyGraph {
	if formulas == nil {
		formulas = calc.Default
	}
	g := &DependencyGraph{
		formulas:   make(map[string]string),
		dependents: make(map[string][]string),
		cyclic:     make(map[string]bool),
	}
	if tpl == nil {
		return g
	}

	var names []string
	for _, f := range tpl.Fields() {
		ref := f.Formula()
		if ref == "" {
			continue
		}
		if _, dup := g.formulas[f.Name]; dup {
			continue
		}
		g.formulas[f.Name] = ref
		names = append(names, f.Name)
	}

	indegree := make(map[string]int, len(names))
	for _, name := range names {
		seen := make(map[string]bool)
		for _, dep := range formulas.Dependencies(g.formulas[name]) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			g.dependents[dep] = append(g.dependents[dep], name)
			if _, calculated := g.formulas[dep]; calculated {
				indegree[name]++
			}
		}
	}

	// Kahn's algorithm; ties resolve in template order.
	var queue []string
	for _, name := range names {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		g.order = append(g.order, name)
		for _, next := range g.dependents[name] {
			indegree[next]--
			if indegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if len(g.order) < len(names) {
		placed := make(map[string]bool, len(g.order))
		for _, name := range g.order {
			placed[name] = true
		}
		for _, name := range names {
			if !placed[name] {
				g.cyclic[name] = true
			}
		}
	}
	return g
}

// Order lists the computable calculated fields in evaluation order.
func (g *DependencyGraph) Order() []string {
	return append([]string(nil), g.order...)
}

// Formula returns the calculation reference of a calculated field.
func (g *DependencyGraph) Formula(name string) (string, bool) {
	ref, ok := g.formulas[name]
	return ref, ok
}

// Dependents lists the calculated fields that read key directly.
func (g *DependencyGraph) Dependents(key string) []string {
	return append([]string(nil), g.dependents[key]...)
}

// Affected returns every calculated field that must be recomputed after the
// given keys change, in evaluation order.
func (g *DependencyGraph) Affected(changed ...string) []string {
	hit := make(map[string]bool)
	stack := append([]string(nil), changed...)
	for len(stack) > 0 {
		key := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, name := range g.dependents[key] {
			if !hit[name] {
				hit[name] = true
				stack = append(stack, name)
			}
		}
	}
	var out []string
	for _, name := range g.order {
		if hit[name] {
			out = append(out, name)
		}
	}
	return out
}

func (g *DependencyGraph) Cyclic(name string) bool {
	return g.cyclic[name]
}
