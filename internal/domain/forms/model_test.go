package forms

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func strPtr(s string) *string { return &s }

func TestParseFieldType(t *testing.T) {
	for _, name := range []string{"text", "number", "select", "radio", "checkbox", "textarea"} {
		ft, err := ParseFieldType(name)
		if err != nil {
			t.Fatalf("ParseFieldType(%q): %v", name, err)
		}
		if ft.String() != name {
			t.Errorf("expected %q, got %q", name, ft.String())
		}
	}
	if _, err := ParseFieldType("date"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestFieldType_JSON(t *testing.T) {
	var f FormField
	if err := json.Unmarshal([]byte(`{"name":"x","type":"checkbox"}`), &f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Type != FieldCheckbox {
		t.Errorf("expected checkbox, got %v", f.Type)
	}
	if !f.Type.Compact() {
		t.Error("checkbox should be compact")
	}
	if err := json.Unmarshal([]byte(`{"type":"slider"}`), &f); err == nil {
		t.Error("expected error for unknown type")
	}

	out, err := json.Marshal(FormField{Type: FieldRadio})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var m map[string]interface{}
	json.Unmarshal(out, &m)
	if m["type"] != "radio" {
		t.Errorf("expected type radio, got %v", m["type"])
	}
}

func TestParseOptions(t *testing.T) {
	tests := []struct {
		raw  string
		want Options
	}{
		{`["Sí","No"]`, Options{"Sí", "No"}},
		{`Leve, Moderado ,Severo`, Options{"Leve", "Moderado", "Severo"}},
		{`Único`, Options{"Único"}},
		{`[broken`, Options{"[broken"}},
		{`[a, b`, Options{"[a", "b"}},
		{``, nil},
		{`["", " x "]`, Options{"x"}},
	}
	for _, tt := range tests {
		got := ParseOptions(tt.raw)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseOptions(%q) = %#v, want %#v", tt.raw, got, tt.want)
		}
	}
}

func TestOptions_UnmarshalLegacyString(t *testing.T) {
	var f FormField
	if err := json.Unmarshal([]byte(`{"options":"A,B"}`), &f); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(f.Options, Options{"A", "B"}) {
		t.Errorf("unexpected options %#v", f.Options)
	}
	if f.Options.Encode() != `["A","B"]` {
		t.Errorf("unexpected encoding %s", f.Options.Encode())
	}
	if (Options{}).Encode() != "[]" {
		t.Error("empty options should encode as []")
	}
}

func TestValue_JSONKinds(t *testing.T) {
	in := `{"a":"texto","b":72.5,"c":true,"d":["x","y"],"e":null}`
	var m AnswerMap
	if err := json.Unmarshal([]byte(in), &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s, ok := m["a"].AsText(); !ok || s != "texto" {
		t.Errorf("expected text, got %v", m["a"])
	}
	if n, ok := m["b"].AsNumber(); !ok || n != 72.5 {
		t.Errorf("expected number, got %v", m["b"])
	}
	if b, ok := m["c"].AsBool(); !ok || !b {
		t.Errorf("expected bool, got %v", m["c"])
	}
	if l, ok := m["d"].AsList(); !ok || len(l) != 2 {
		t.Errorf("expected list, got %v", m["d"])
	}
	if !m["e"].IsEmpty() {
		t.Error("null should decode as an empty value")
	}

	if err := json.Unmarshal([]byte(`{"x":{"nested":1}}`), &m); err == nil {
		t.Error("expected error for object answer")
	}
	if err := json.Unmarshal([]byte(`{"x":[1,2]}`), &m); err == nil {
		t.Error("expected error for numeric list")
	}
}

func TestAnswerMap_NumberAndText(t *testing.T) {
	a := AnswerMap{
		"peso":  Text("70,5"),
		"talla": Number(175),
		"hta":   Bool(true),
		"vacio": Text("  "),
		"list":  List("a"),
	}
	if n, ok := a.Number("peso"); !ok || n != 70.5 {
		t.Errorf("expected 70.5, got %v %v", n, ok)
	}
	if n, ok := a.Number("talla"); !ok || n != 175 {
		t.Errorf("expected 175, got %v", n)
	}
	if _, ok := a.Number("list"); ok {
		t.Error("list should not be numeric")
	}
	if s, ok := a.Text("hta"); !ok || s != "true" {
		t.Errorf("expected true, got %q", s)
	}
	if _, ok := a.Text("vacio"); ok {
		t.Error("blank text should be absent")
	}
	if _, ok := a.Text("missing"); ok {
		t.Error("missing key should be absent")
	}
}

func TestAnswerMap_SetAndClone(t *testing.T) {
	a := AnswerMap{}
	a.Set("x", List("a", "b"))
	c := a.Clone()
	c.Set("x", Text("changed"))
	if a["x"].Kind() != KindList {
		t.Error("clone should not alias the original")
	}
	a.Set("x", Value{})
	if _, ok := a["x"]; ok {
		t.Error("setting an empty value should remove the key")
	}
}

func TestAnswerMap_ConditionHolds(t *testing.T) {
	cond := &Condition{Field: "fuma", Value: "Sí"}
	tests := []struct {
		name string
		a    AnswerMap
		want bool
	}{
		{"equal text", AnswerMap{"fuma": Text("Sí")}, true},
		{"different text", AnswerMap{"fuma": Text("No")}, false},
		{"case differs", AnswerMap{"fuma": Text("sí")}, false},
		{"missing", AnswerMap{}, false},
		{"boolean is not text", AnswerMap{"fuma": Bool(true)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.ConditionHolds(cond); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
	if !(AnswerMap{}).ConditionHolds(nil) {
		t.Error("nil condition should hold")
	}

	// numeric answers never equal a text condition
	numCond := &Condition{Field: "n", Value: "1"}
	if (AnswerMap{"n": Number(1)}).ConditionHolds(numCond) {
		t.Error("number should not satisfy a text condition")
	}
}

func TestValidation_Check(t *testing.T) {
	lo, hi := 0.0, 10.0
	v := &Validation{Min: &lo, Max: &hi}
	if v.Check(5) != "" {
		t.Error("5 should be in range")
	}
	if v.Check(-1) == "" || v.Check(11) == "" {
		t.Error("expected range issues")
	}
	var none *Validation
	if none.Check(100) != "" {
		t.Error("nil validation accepts everything")
	}
}

func TestFormTemplate_Check(t *testing.T) {
	secID := uuid.New()
	tpl := &FormTemplate{Sections: []*FormSection{{
		ID: secID,
		Fields: []*FormField{
			{Name: "fuma", Type: FieldRadio},
			{Name: "paquetes", Type: FieldNumber, ConditionalField: strPtr("fuma"), ConditionalValue: strPtr("Sí")},
		},
	}}}
	if err := tpl.Check(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f, ok := tpl.Field("paquetes"); !ok || f.Condition().Value != "Sí" {
		t.Error("expected paquetes with a condition")
	}
	if ids := tpl.FieldIDs(); len(ids) != 2 {
		t.Errorf("expected 2 field ids, got %d", len(ids))
	}

	tpl.Sections[0].Fields = append(tpl.Sections[0].Fields, &FormField{Name: "fuma"})
	if err := tpl.Check(); err == nil {
		t.Error("expected duplicate name error")
	}

	tpl.Sections[0].Fields = tpl.Sections[0].Fields[:1]
	tpl.Sections[0].ConditionalField = strPtr("ghost")
	tpl.Sections[0].ConditionalValue = strPtr("x")
	if err := tpl.Check(); err == nil {
		t.Error("expected unknown condition field error")
	}
}
