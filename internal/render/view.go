package render

import (
	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/forms"
)

// View is the rendered state of a template against one AnswerMap. Only
// visible sections and fields appear.
type View struct {
	TemplateID      uuid.UUID     `json:"template_id"`
	Sections        []SectionView `json:"sections"`
	MissingRequired []string      `json:"missing_required"`
	Issues          []Issue       `json:"issues"`
}

type SectionView struct {
	Index   int         `json:"index"`
	Name    string      `json:"name"`
	Title   string      `json:"title"`
	Compact []FieldView `json:"compact"`
	Normal  []FieldView `json:"normal"`
}

type FieldView struct {
	Name           string          `json:"name"`
	Label          string          `json:"label"`
	Type           forms.FieldType `json:"type"`
	Options        forms.Options   `json:"options,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Placeholder    string          `json:"placeholder,omitempty"`
	Required       bool            `json:"required"`
	ReadOnly       bool            `json:"read_only"`
	Value          forms.Value     `json:"value"`
	Interpretation string          `json:"interpretation,omitempty"`
}

// Issue is a non-blocking range warning on a visible numeric answer.
type Issue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// SectionVisible reports whether sec's condition holds on answers.
func SectionVisible(sec *forms.FormSection, answers forms.AnswerMap) bool {
	return answers.ConditionHolds(sec.Condition())
}

// FieldVisible reports whether f's own condition holds on answers. The
// enclosing section is not consulted.
func FieldVisible(f *forms.FormField, answers forms.AnswerMap) bool {
	return answers.ConditionHolds(f.Condition())
}

// Render lays out tpl's visible sections. results carries the
// interpretations of calculated fields; values come from answers.
func Render(tpl *forms.FormTemplate, answers forms.AnswerMap, results map[string]calc.Result) View {
	v := View{
		Sections:        []SectionView{},
		MissingRequired: []string{},
		Issues:          []Issue{},
	}
	if tpl == nil {
		return v
	}
	v.TemplateID = tpl.ID
	for i, sec := range tpl.Sections {
		if !SectionVisible(sec, answers) {
			continue
		}
		sv := SectionView{Index: i, Name: sec.Name, Title: sec.Title, Compact: []FieldView{}, Normal: []FieldView{}}
		for _, f := range sec.Fields {
			if !FieldVisible(f, answers) {
				continue
			}
			fv := fieldView(f, answers, results)
			if f.Type.Compact() {
				sv.Compact = append(sv.Compact, fv)
			} else {
				sv.Normal = append(sv.Normal, fv)
			}

			if f.IsRequired && !f.IsCalculated && fv.Value.IsEmpty() {
				v.MissingRequired = append(v.MissingRequired, f.Name)
			}
			if f.Type == forms.FieldNumber && !f.IsCalculated {
				if x, ok := answers.Number(f.Name); ok {
					if msg := f.Validation.Check(x); msg != "" {
						v.Issues = append(v.Issues, Issue{Field: f.Name, Message: f.Label + " " + msg})
					}
				}
			}
		}
		v.Sections = append(v.Sections, sv)
	}
	return v
}

func fieldView(f *forms.FormField, answers forms.AnswerMap, results map[string]calc.Result) FieldView {
	fv := FieldView{
		Name:     f.Name,
		Label:    f.Label,
		Type:     f.Type,
		Required: f.IsRequired,
		ReadOnly: f.IsCalculated,
	}
	if f.Type.HasOptions() {
		fv.Options = f.Options
	}
	if f.Unit != nil {
		fv.Unit = *f.Unit
	}
	if f.Placeholder != nil {
		fv.Placeholder = *f.Placeholder
	}
	if val, ok := answers.Get(f.Name); ok {
		fv.Value = val
	}
	if res, ok := results[f.Name]; ok && f.IsCalculated {
		fv.Interpretation = res.Interpretation
	}
	return fv
}
