package render

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/domain/report"
	"github.com/medconsult/medconsult/internal/seed"
)

func strPtr(s string) *string { return &s }

func f64(v float64) *float64 { return &v }

func field(name string, typ forms.FieldType) *forms.FormField {
	return &forms.FormField{ID: uuid.New(), Name: name, Label: name, Type: typ}
}

func calculated(name, ref string) *forms.FormField {
	f := field(name, forms.FieldNumber)
	f.IsCalculated = true
	f.Calculation = strPtr(ref)
	return f
}

func choice(name string, typ forms.FieldType, options ...string) *forms.FormField {
	f := field(name, typ)
	f.Options = options
	return f
}

// testTemplate has three sections; the second only shows for smokers.
// imc_doble is declared before the field it reads.
func testTemplate() *forms.FormTemplate {
	peso := field("peso", forms.FieldNumber)
	peso.IsRequired = true
	peso.Validation = &forms.Validation{Min: f64(1), Max: f64(300)}

	paquetes := field("paquetes_anio", forms.FieldNumber)
	detalle := field("detalle", forms.FieldText)
	detalle.ConditionalField = strPtr("paquetes_anio")
	detalle.ConditionalValue = strPtr("muchos")

	return &forms.FormTemplate{
		ID:   uuid.New(),
		Name: "Control general",
		Sections: []*forms.FormSection{
			{Name: "general", Title: "General", Fields: []*forms.FormField{
				calculated("imc_doble", "imc * 2"),
				peso,
				field("talla", forms.FieldNumber),
				calculated("imc", "score:bmi"),
				choice("fumador", forms.FieldRadio, "Sí", "No"),
				field("anticoagulado", forms.FieldCheckbox),
				field("notas", forms.FieldTextarea),
			}},
			{Name: "tabaquismo", Title: "Tabaquismo",
				ConditionalField: strPtr("fumador"), ConditionalValue: strPtr("Sí"),
				Fields: []*forms.FormField{paquetes, detalle}},
			{Name: "ciclo", Title: "Ciclo", Fields: []*forms.FormField{
				calculated("a", "b + 1"),
				calculated("b", "a + 1"),
				field("x", forms.FieldNumber),
				calculated("x_mas_uno", "x + 1"),
			}},
		},
	}
}

func TestBuildGraph(t *testing.T) {
	g := BuildGraph(testTemplate(), calc.Default)

	assert.Equal(t, []string{"imc", "x_mas_uno", "imc_doble"}, g.Order())
	assert.Equal(t, []string{"imc"}, g.Dependents("talla"))
	assert.Equal(t, []string{"imc", "imc_doble"}, g.Affected("peso"))
	assert.Empty(t, g.Affected("notas"))
	assert.True(t, g.Cyclic("a"))
	assert.True(t, g.Cyclic("b"))
	assert.False(t, g.Cyclic("imc"))

	ref, ok := g.Formula("imc")
	assert.True(t, ok)
	assert.Equal(t, "score:bmi", ref)
}

func TestEngine_Recompute(t *testing.T) {
	tpl := testTemplate()
	e := NewEngine(nil)
	g := e.Graph(tpl)

	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(70))
	answers.Set("talla", forms.Number(175))
	answers.Set("a", forms.Number(3))

	results := e.Recompute(g, answers)

	imc, ok := answers.Number("imc")
	require.True(t, ok)
	assert.Equal(t, 22.9, imc)
	assert.Equal(t, "Normal", results["imc"].Interpretation)

	doble, ok := answers.Number("imc_doble")
	require.True(t, ok)
	assert.InDelta(t, 45.8, doble, 1e-9)

	_, ok = answers.Get("a")
	assert.False(t, ok, "cyclic field must stay blank")
	_, ok = answers.Get("x_mas_uno")
	assert.False(t, ok, "missing input leaves the field blank")
}

func TestEngine_RecomputeIdempotent(t *testing.T) {
	tpl := testTemplate()
	e := NewEngine(nil)
	g := e.Graph(tpl)

	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(95))
	answers.Set("talla", forms.Number(170))
	answers.Set("x", forms.Number(4))

	first := e.Recompute(g, answers)
	snapshot := answers.Clone()
	second := e.Recompute(g, answers)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, answers)
}

func TestEngine_ClearsWhenInputRemoved(t *testing.T) {
	e := NewEngine(nil)
	g := e.Graph(testTemplate())

	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(70))
	answers.Set("talla", forms.Number(175))
	e.Recompute(g, answers)
	require.Contains(t, answers, "imc")

	answers.Set("talla", forms.Value{})
	e.Recompute(g, answers)
	assert.NotContains(t, answers, "imc")
	assert.NotContains(t, answers, "imc_doble")
}

func TestEngine_RecomputeAffectedMatchesFull(t *testing.T) {
	e := NewEngine(nil)
	g := e.Graph(testTemplate())

	full := forms.AnswerMap{}
	full.Set("peso", forms.Number(70))
	full.Set("talla", forms.Number(175))
	e.Recompute(g, full)

	partial := full.Clone()

	full.Set("peso", forms.Number(82))
	e.Recompute(g, full)

	partial.Set("peso", forms.Number(82))
	res := e.RecomputeAffected(g, partial, "peso")

	assert.Equal(t, full, partial)
	assert.Len(t, res, 2)
}

func TestEngine_EvaluateDoesNotMutateInput(t *testing.T) {
	e := NewEngine(nil)
	in := forms.AnswerMap{}
	in.Set("peso", forms.Number(70))
	in.Set("talla", forms.Number(175))

	out, view := e.Evaluate(testTemplate(), in, nil)

	assert.NotContains(t, in, "imc")
	assert.Contains(t, out, "imc")
	require.NotEmpty(t, view.Sections)
}

func visibleSections(v View) []string {
	var out []string
	for _, s := range v.Sections {
		out = append(out, s.Name)
	}
	return out
}

func TestRender_SectionVisibilityToggle(t *testing.T) {
	tpl := testTemplate()
	answers := forms.AnswerMap{}

	assert.Equal(t, []string{"general", "ciclo"}, visibleSections(Render(tpl, answers, nil)))

	answers.Set("fumador", forms.Text("Sí"))
	assert.Equal(t, []string{"general", "tabaquismo", "ciclo"}, visibleSections(Render(tpl, answers, nil)))

	answers.Set("fumador", forms.Text("No"))
	assert.Equal(t, []string{"general", "ciclo"}, visibleSections(Render(tpl, answers, nil)))

	answers.Set("fumador", forms.Bool(true))
	assert.Equal(t, []string{"general", "ciclo"}, visibleSections(Render(tpl, answers, nil)),
		"non-text answers never satisfy a condition")
}

func TestRender_FieldVisibilityAndIndex(t *testing.T) {
	tpl := testTemplate()
	answers := forms.AnswerMap{}
	answers.Set("fumador", forms.Text("Sí"))

	v := Render(tpl, answers, nil)
	require.Len(t, v.Sections, 3)
	tab := v.Sections[1]
	assert.Equal(t, 1, tab.Index)
	require.Len(t, tab.Normal, 1)
	assert.Equal(t, "paquetes_anio", tab.Normal[0].Name)

	answers.Set("paquetes_anio", forms.Text("muchos"))
	v = Render(tpl, answers, nil)
	assert.Len(t, v.Sections[1].Normal, 2)
}

func TestRender_Layout(t *testing.T) {
	tpl := testTemplate()
	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(70))
	answers.Set("talla", forms.Number(175))
	results := NewEngine(nil).Recompute(BuildGraph(tpl, nil), answers)

	general := Render(tpl, answers, results).Sections[0]
	require.Len(t, general.Compact, 1)
	assert.Equal(t, "anticoagulado", general.Compact[0].Name)
	assert.Len(t, general.Normal, 6)

	var imc FieldView
	for _, f := range general.Normal {
		if f.Name == "imc" {
			imc = f
		}
	}
	assert.True(t, imc.ReadOnly)
	assert.Equal(t, "Normal", imc.Interpretation)
	x, _ := imc.Value.AsNumber()
	assert.Equal(t, 22.9, x)

	for _, f := range general.Normal {
		if f.Name == "fumador" {
			assert.Equal(t, forms.Options{"Sí", "No"}, f.Options)
		}
	}
}

func TestRender_RequiredAndIssues(t *testing.T) {
	tpl := testTemplate()
	v := Render(tpl, forms.AnswerMap{}, nil)
	assert.Equal(t, []string{"peso"}, v.MissingRequired)
	assert.Empty(t, v.Issues)

	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(500))
	v = Render(tpl, answers, nil)
	assert.Empty(t, v.MissingRequired)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, "peso", v.Issues[0].Field)
}

// -- Session --

type fakeLoader struct {
	tpl   *forms.FormTemplate
	err   error
	calls int
}

func (l *fakeLoader) LoadForSpecialty(_ context.Context, _ uuid.UUID) (*forms.FormTemplate, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	return l.tpl, nil
}

func (l *fakeLoader) GetTemplate(_ context.Context, id uuid.UUID) (*forms.FormTemplate, error) {
	if l.tpl == nil || l.tpl.ID != id {
		return nil, forms.ErrNotFound
	}
	return l.tpl, nil
}

type fakeSubmitter struct {
	err     error
	calls   int
	answers forms.AnswerMap
}

func (s *fakeSubmitter) CreateConsultation(_ context.Context, basic consultation.BasicData, specialtyID uuid.UUID,
	templateID *uuid.UUID, answers forms.AnswerMap) (*consultation.Consultation, error) {
	s.calls++
	s.answers = answers
	if s.err != nil {
		return nil, s.err
	}
	return &consultation.Consultation{ID: uuid.New(), SpecialtyID: specialtyID, TemplateID: templateID, Answers: answers}, nil
}

func readySession(t *testing.T, opts ...Option) (*Session, *fakeSubmitter) {
	t.Helper()
	sub := &fakeSubmitter{}
	s := NewSession(&fakeLoader{tpl: testTemplate()}, sub, nil, opts...)
	require.Equal(t, StateNoTemplate, s.State())
	require.NoError(t, s.SelectSpecialty(context.Background(), uuid.New()))
	require.Equal(t, StateTemplateReady, s.State())
	return s, sub
}

func TestSession_LoadFailure(t *testing.T) {
	s := NewSession(&fakeLoader{err: forms.ErrNotFound}, &fakeSubmitter{}, nil)
	err := s.SelectSpecialty(context.Background(), uuid.New())
	assert.ErrorIs(t, err, forms.ErrNotFound)
	assert.Equal(t, StateError, s.State())
	assert.ErrorIs(t, s.LastError(), forms.ErrNotFound)
	assert.ErrorIs(t, s.SetAnswer("peso", forms.Number(1)), ErrInvalidState)
}

func TestSession_SetAnswerRules(t *testing.T) {
	s, _ := readySession(t)

	assert.ErrorIs(t, s.SetAnswer("imc", forms.Number(20)), ErrCalculatedField)
	assert.ErrorIs(t, s.SetAnswer("desconocido", forms.Text("x")), ErrUnknownField)
	assert.ErrorIs(t, s.SetAnswer("peso", forms.Bool(true)), ErrInvalidValue)
	assert.ErrorIs(t, s.SetAnswer("peso", forms.Text("setenta")), ErrInvalidValue)
	assert.ErrorIs(t, s.SetAnswer("fumador", forms.Text("Quizás")), ErrInvalidValue)
	assert.ErrorIs(t, s.SetAnswer("anticoagulado", forms.Text("Sí")), ErrInvalidValue)

	require.NoError(t, s.SetAnswer("peso", forms.Text("70,0")))
	require.NoError(t, s.SetAnswer("talla", forms.Number(175)))

	answers := s.Answers()
	peso, _ := answers["peso"].AsNumber()
	assert.Equal(t, 70.0, peso)
	imc, ok := answers.Number("imc")
	require.True(t, ok)
	assert.Equal(t, 22.9, imc)
	assert.Equal(t, "Normal", s.Results()["imc"].Interpretation)

	require.NoError(t, s.SetAnswer("talla", forms.Value{}))
	assert.NotContains(t, s.Answers(), "imc")
}

func TestSession_IncrementalMatchesFull(t *testing.T) {
	full, _ := readySession(t)
	inc, _ := readySession(t, WithIncrementalRecompute())

	steps := []struct {
		name string
		v    forms.Value
	}{
		{"peso", forms.Number(70)},
		{"talla", forms.Number(175)},
		{"x", forms.Number(1)},
		{"peso", forms.Number(90)},
		{"talla", forms.Value{}},
	}
	for _, st := range steps {
		require.NoError(t, full.SetAnswer(st.name, st.v))
		require.NoError(t, inc.SetAnswer(st.name, st.v))
		assert.Equal(t, full.Answers(), inc.Answers(), "after %s", st.name)
		assert.Equal(t, full.Results(), inc.Results(), "after %s", st.name)
	}
}

func TestSession_Navigation(t *testing.T) {
	s, _ := readySession(t)

	require.NoError(t, s.Next())
	assert.Equal(t, 2, s.Snapshot().Section, "hidden section is skipped")
	require.NoError(t, s.Next())
	assert.Equal(t, 2, s.Snapshot().Section)
	require.NoError(t, s.Prev())
	assert.Equal(t, 0, s.Snapshot().Section)

	require.NoError(t, s.SetAnswer("fumador", forms.Text("Sí")))
	require.NoError(t, s.Next())
	assert.Equal(t, 1, s.Snapshot().Section)

	assert.ErrorIs(t, s.GoToSection(3), ErrNoSuchSection)
	require.NoError(t, s.GoToSection(2))
	assert.Equal(t, 2, s.Snapshot().Section)
}

func TestSession_SubmitValidationBlocks(t *testing.T) {
	s, sub := readySession(t)
	require.NoError(t, s.SetAnswer("peso", forms.Number(70)))

	_, err := s.Submit(context.Background(), consultation.BasicData{Gender: "F"})
	assert.ErrorIs(t, err, consultation.ErrIncompleteData)
	assert.Equal(t, 0, sub.calls)
	assert.Equal(t, StateTemplateReady, s.State())
	assert.Contains(t, s.Answers(), "peso")
}

func TestSession_SubmitFailureKeepsForm(t *testing.T) {
	s, sub := readySession(t)
	sub.err = errors.New("connection refused")
	require.NoError(t, s.SetAnswer("peso", forms.Number(70)))

	_, err := s.Submit(context.Background(), consultation.BasicData{Age: "40", Gender: "M"})
	require.Error(t, err)
	assert.Equal(t, StateTemplateReady, s.State())
	assert.Equal(t, "connection refused", s.Snapshot().LastError)
	assert.Contains(t, s.Answers(), "peso")

	sub.err = nil
	c, err := s.Submit(context.Background(), consultation.BasicData{Age: "40", Gender: "M"})
	require.NoError(t, err)
	assert.Equal(t, StateDone, s.State())
	assert.Equal(t, c.ID, *s.Snapshot().ConsultationID)
	assert.Empty(t, s.Snapshot().LastError)
	assert.Equal(t, 2, sub.calls)

	assert.ErrorIs(t, s.SetAnswer("peso", forms.Number(1)), ErrInvalidState)
}

func TestSession_SubmittedAnswersAreACopy(t *testing.T) {
	s, sub := readySession(t)
	require.NoError(t, s.SetAnswer("peso", forms.Number(70)))
	_, err := s.Submit(context.Background(), consultation.BasicData{Age: "40", Gender: "M"})
	require.NoError(t, err)

	sub.answers.Set("peso", forms.Number(1))
	peso, _ := s.Answers().Number("peso")
	assert.Equal(t, 70.0, peso)
}

func TestSession_ReselectResetsAnswers(t *testing.T) {
	s, _ := readySession(t)
	require.NoError(t, s.SetAnswer("peso", forms.Number(70)))
	require.NoError(t, s.GoToSection(2))

	require.NoError(t, s.SelectSpecialty(context.Background(), uuid.New()))
	snap := s.Snapshot()
	assert.Empty(t, snap.Answers)
	assert.Equal(t, 0, snap.Section)
	assert.Equal(t, 3, snap.SectionCount)
	require.NotNil(t, snap.View)
}

func seededTemplate(t *testing.T, code string) *forms.FormTemplate {
	t.Helper()
	for _, e := range seed.Catalog() {
		if e.Specialty.Code == code {
			tpl := e.Template
			return &tpl
		}
	}
	t.Fatalf("no seeded template for %s", code)
	return nil
}

func TestSession_ScoresReadBasicData(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession(&fakeLoader{tpl: seededTemplate(t, report.Cardiologia)}, sub, nil)
	require.NoError(t, s.SelectSpecialty(context.Background(), uuid.New()))

	require.NoError(t, s.SetAnswers(forms.AnswerMap{
		"icc":                 forms.Text("No"),
		"hta":                 forms.Text("No"),
		"diabetes":            forms.Text("No"),
		"acv":                 forms.Text("No"),
		"enfermedad_vascular": forms.Text("No"),
	}))
	assert.NotContains(t, s.Results(), "cha2ds2vasc", "age and gender still unknown")

	require.NoError(t, s.SetBasicData(consultation.BasicData{Age: "80", Gender: "F"}))
	res, ok := s.Results()["cha2ds2vasc"]
	require.True(t, ok)
	assert.Equal(t, 3.0, res.Value)
	v, ok := s.Answers().Number("cha2ds2vasc")
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	assert.NotContains(t, s.Answers(), forms.KeyAge, "basic data is not a form answer")

	_, err := s.Submit(context.Background(), consultation.BasicData{Age: "80", Gender: "F"})
	require.NoError(t, err)
	stored, ok := sub.answers.Number("cha2ds2vasc")
	require.True(t, ok)
	assert.Equal(t, 3.0, stored)
}

func TestSession_SubmitRecomputesWithSubmittedBasicData(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession(&fakeLoader{tpl: seededTemplate(t, report.Urgencias)}, sub, nil, WithIncrementalRecompute())
	require.NoError(t, s.SelectSpecialty(context.Background(), uuid.New()))
	require.NoError(t, s.SetAnswers(forms.AnswerMap{
		"confusion":               forms.Text("Sí"),
		"urea":                    forms.Number(9),
		"frecuencia_respiratoria": forms.Number(24),
		"pas":                     forms.Number(120),
		"pad":                     forms.Number(80),
	}))
	assert.NotContains(t, s.Results(), "curb65")

	_, err := s.Submit(context.Background(), consultation.BasicData{Age: "70", Gender: "M"})
	require.NoError(t, err)
	curb, ok := sub.answers.Number("curb65")
	require.True(t, ok)
	assert.Equal(t, 3.0, curb)
}

func TestSession_FormAgeWinsOverBasicData(t *testing.T) {
	tpl := &forms.FormTemplate{ID: uuid.New(), Sections: []*forms.FormSection{{Name: "s", Fields: []*forms.FormField{
		field(forms.KeyAge, forms.FieldNumber),
		calculated("edad_doble", "edad * 2"),
	}}}}
	s := NewSession(&fakeLoader{tpl: tpl}, &fakeSubmitter{}, nil)
	require.NoError(t, s.SetBasicData(consultation.BasicData{Age: "40", Gender: "M"}))
	require.NoError(t, s.SelectSpecialty(context.Background(), uuid.New()))

	v, _ := s.Answers().Number("edad_doble")
	assert.Equal(t, 80.0, v, "basic data set before the template loads")

	require.NoError(t, s.SetAnswer(forms.KeyAge, forms.Number(10)))
	v, _ = s.Answers().Number("edad_doble")
	assert.Equal(t, 20.0, v)
}

func TestSession_SetAnswersIsAllOrNothing(t *testing.T) {
	s, _ := readySession(t)
	require.NoError(t, s.SetAnswer("peso", forms.Number(70)))

	err := s.SetAnswers(forms.AnswerMap{
		"talla": forms.Number(175),
		"imc":   forms.Number(99),
	})
	assert.ErrorIs(t, err, ErrCalculatedField)
	assert.NotContains(t, s.Answers(), "talla")
	assert.NotContains(t, s.Answers(), "imc")

	err = s.SetAnswers(forms.AnswerMap{
		"talla": forms.Number(175),
		"peso":  forms.Text("mucho"),
	})
	assert.ErrorIs(t, err, ErrInvalidValue)
	peso, _ := s.Answers().Number("peso")
	assert.Equal(t, 70.0, peso)
	assert.NotContains(t, s.Answers(), "talla")
}

func TestEngine_FillIgnoresClientCalculatedValues(t *testing.T) {
	e := NewEngine(nil)
	answers := forms.AnswerMap{}
	answers.Set("peso", forms.Number(70))
	answers.Set("talla", forms.Number(175))
	answers.Set("imc", forms.Number(99))
	answers.Set("x_mas_uno", forms.Number(5))

	e.Fill(testTemplate(), answers, nil)

	imc, _ := answers.Number("imc")
	assert.Equal(t, 22.9, imc)
	assert.NotContains(t, answers, "x_mas_uno", "not computable without x")
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "template_ready", StateTemplateReady.String())
	assert.Equal(t, "State(42)", State(42).String())
}
