package forms

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FieldType is the closed set of input kinds a form field can render as.
type FieldType int

const (
	FieldText FieldType = iota + 1
	FieldNumber
	FieldSelect
	FieldRadio
	FieldCheckbox
	FieldTextarea
)

var fieldTypeNames = map[FieldType]string{
	FieldText:     "text",
	FieldNumber:   "number",
	FieldSelect:   "select",
	FieldRadio:    "radio",
	FieldCheckbox: "checkbox",
	FieldTextarea: "textarea",
}

func ParseFieldType(s string) (FieldType, error) {
	for t, name := range fieldTypeNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

func (t FieldType) String() string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

func (t FieldType) Valid() bool {
	_, ok := fieldTypeNames[t]
	return ok
}

func (t FieldType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid field type %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *FieldType) UnmarshalText(b []byte) error {
	parsed, err := ParseFieldType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// HasOptions reports whether the type picks from a fixed option list.
func (t FieldType) HasOptions() bool {
	switch t {
	case FieldSelect, FieldRadio:
		return true
	case FieldText, FieldNumber, FieldCheckbox, FieldTextarea:
		return false
	}
	return false
}

// Compact reports whether the field lays out in the compact group.
func (t FieldType) Compact() bool {
	switch t {
	case FieldCheckbox:
		return true
	case FieldText, FieldNumber, FieldSelect, FieldRadio, FieldTextarea:
		return false
	}
	return false
}

// Options is a field's choice list. It decodes from a JSON array or from a
// legacy string (see ParseOptions) and always encodes as a JSON array.
type Options []string

func (o *Options) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*o = list
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("options must be an array or a string")
	}
	*o = ParseOptions(s)
	return nil
}

// ParseOptions decodes a stored option list: a JSON array, else a
// comma-separated list, else a single option. Blank entries are dropped.
func ParseOptions(raw string) Options {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return clean(list)
		}
	}
	if strings.Contains(raw, ",") {
		return clean(strings.Split(raw, ","))
	}
	return Options{raw}
}

func clean(in []string) Options {
	var out Options
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Encode returns the canonical stored form: a JSON array.
func (o Options) Encode() string {
	if len(o) == 0 {
		return "[]"
	}
	b, _ := json.Marshal([]string(o))
	return string(b)
}

func (o Options) Contains(s string) bool {
	for _, opt := range o {
		if opt == s {
			return true
		}
	}
	return false
}

type Validation struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Check reports a range violation for v, or "".
func (v *Validation) Check(x float64) string {
	if v == nil {
		return ""
	}
	if v.Min != nil && x < *v.Min {
		return fmt.Sprintf("debe ser mayor o igual a %g", *v.Min)
	}
	if v.Max != nil && x > *v.Max {
		return fmt.Sprintf("debe ser menor o igual a %g", *v.Max)
	}
	return ""
}

// Condition gates visibility on another field's text answer.
type Condition struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Specialty maps to the specialty table.
type Specialty struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// FormTemplate maps to the form_template table. Sections are populated by
// the assembling read paths only.
type FormTemplate struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	SpecialtyID uuid.UUID      `db:"specialty_id" json:"specialty_id"`
	Name        string         `db:"name" json:"name"`
	Version     int            `db:"version" json:"version"`
	Active      bool           `db:"active" json:"active"`
	Sections    []*FormSection `json:"sections,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updated_at"`
}

// FormSection maps to the form_section table.
type FormSection struct {
	ID               uuid.UUID    `db:"id" json:"id"`
	TemplateID       uuid.UUID    `db:"template_id" json:"template_id"`
	Name             string       `db:"name" json:"name"`
	Title            string       `db:"title" json:"title"`
	Order            int          `db:"sort_order" json:"order"`
	ConditionalField *string      `db:"conditional_field" json:"conditional_field,omitempty"`
	ConditionalValue *string      `db:"conditional_value" json:"conditional_value,omitempty"`
	Fields           []*FormField `json:"fields,omitempty"`
}

func (s *FormSection) Condition() *Condition {
	return condition(s.ConditionalField, s.ConditionalValue)
}

// FormField maps to the form_field table. Name is the AnswerMap key.
type FormField struct {
	ID               uuid.UUID   `db:"id" json:"id"`
	SectionID        uuid.UUID   `db:"section_id" json:"section_id"`
	Name             string      `db:"name" json:"name"`
	Label            string      `db:"label" json:"label"`
	Type             FieldType   `db:"field_type" json:"type"`
	Options          Options     `db:"options" json:"options,omitempty"`
	Validation       *Validation `json:"validation,omitempty"`
	Unit             *string     `db:"unit" json:"unit,omitempty"`
	Placeholder      *string     `db:"placeholder" json:"placeholder,omitempty"`
	IsCalculated     bool        `db:"is_calculated" json:"is_calculated"`
	Calculation      *string     `db:"calculation" json:"calculation,omitempty"`
	ConditionalField *string     `db:"conditional_field" json:"conditional_field,omitempty"`
	ConditionalValue *string     `db:"conditional_value" json:"conditional_value,omitempty"`
	Order            int         `db:"sort_order" json:"order"`
	IsRequired       bool        `db:"is_required" json:"is_required"`
}

func (f *FormField) Condition() *Condition {
	return condition(f.ConditionalField, f.ConditionalValue)
}

// Formula returns the calculation reference of a calculated field.
func (f *FormField) Formula() string {
	if !f.IsCalculated || f.Calculation == nil {
		return ""
	}
	return strings.TrimSpace(*f.Calculation)
}

func condition(field, value *string) *Condition {
	if field == nil || strings.TrimSpace(*field) == "" {
		return nil
	}
	c := &Condition{Field: strings.TrimSpace(*field)}
	if value != nil {
		c.Value = *value
	}
	return c
}

// Fields returns every field of the template in section then field order.
func (t *FormTemplate) Fields() []*FormField {
	var out []*FormField
	for _, s := range t.Sections {
		out = append(out, s.Fields...)
	}
	return out
}

func (t *FormTemplate) Field(name string) (*FormField, bool) {
	for _, s := range t.Sections {
		for _, f := range s.Fields {
			if f.Name == name {
				return f, true
			}
		}
	}
	return nil, false
}

// FieldIDs maps field names to ids.
func (t *FormTemplate) FieldIDs() map[string]uuid.UUID {
	out := make(map[string]uuid.UUID)
	for _, f := range t.Fields() {
		out[f.Name] = f.ID
	}
	return out
}

// Check validates the assembled template's internal references.
func (t *FormTemplate) Check() error {
	seen := make(map[string]bool)
	for _, f := range t.Fields() {
		if seen[f.Name] {
			return fmt.Errorf("duplicate field name %q", f.Name)
		}
		seen[f.Name] = true
	}
	for _, s := range t.Sections {
		if c := s.Condition(); c != nil && !seen[c.Field] {
			return fmt.Errorf("section %q depends on unknown field %q", s.Name, c.Field)
		}
		for _, f := range s.Fields {
			if c := f.Condition(); c != nil && !seen[c.Field] {
				return fmt.Errorf("field %q depends on unknown field %q", f.Name, c.Field)
			}
		}
	}
	return nil
}
