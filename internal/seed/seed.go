// Package seed installs the demo specialties and their form templates. Field
// names match the answer keys of the built-in clinical scores so every demo
// form produces scored reports out of the box.
package seed

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/domain/report"
)

// Forms is the subset of the forms service the seeder writes through.
type Forms interface {
	ListSpecialties(ctx context.Context) ([]*forms.Specialty, error)
	CreateSpecialty(ctx context.Context, sp *forms.Specialty) error
	CreateTemplate(ctx context.Context, t *forms.FormTemplate) error
	CreateSection(ctx context.Context, sec *forms.FormSection) error
	CreateField(ctx context.Context, f *forms.FormField) error
}

// Transactor runs fn inside a single transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Entry is one specialty together with its template.
type Entry struct {
	Specialty forms.Specialty
	Template  forms.FormTemplate
}

// Result counts what Run created.
type Result struct {
	Specialties int      `json:"specialties"`
	Sections    int      `json:"sections"`
	Fields      int      `json:"fields"`
	Skipped     []string `json:"skipped,omitempty"`
}

// Run creates every catalog entry whose specialty code is not present yet.
// Each specialty is written in its own transaction.
func Run(ctx context.Context, svc Forms, tx Transactor, logger zerolog.Logger) (*Result, error) {
	existing, err := svc.ListSpecialties(ctx)
	if err != nil {
		return nil, fmt.Errorf("list specialties: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, sp := range existing {
		have[strings.ToLower(sp.Code)] = true
	}

	res := &Result{}
	for _, e := range Catalog() {
		if have[e.Specialty.Code] {
			res.Skipped = append(res.Skipped, e.Specialty.Code)
			continue
		}
		e := e
		err := tx.InTx(ctx, func(ctx context.Context) error {
			return install(ctx, svc, &e, res)
		})
		if err != nil {
			return res, fmt.Errorf("seed %s: %w", e.Specialty.Code, err)
		}
		res.Specialties++
		logger.Info().Str("specialty", e.Specialty.Code).Msg("seeded specialty")
	}
	return res, nil
}

func install(ctx context.Context, svc Forms, e *Entry, res *Result) error {
	sp := e.Specialty
	if err := svc.CreateSpecialty(ctx, &sp); err != nil {
		return err
	}
	tpl := e.Template
	tpl.SpecialtyID = sp.ID
	sections := tpl.Sections
	tpl.Sections = nil
	if err := svc.CreateTemplate(ctx, &tpl); err != nil {
		return err
	}
	for _, s := range sections {
		sec := *s
		sec.TemplateID = tpl.ID
		fields := sec.Fields
		sec.Fields = nil
		if err := svc.CreateSection(ctx, &sec); err != nil {
			return fmt.Errorf("section %s: %w", sec.Name, err)
		}
		res.Sections++
		for _, f := range fields {
			fld := *f
			fld.SectionID = sec.ID
			if err := svc.CreateField(ctx, &fld); err != nil {
				return fmt.Errorf("field %s: %w", fld.Name, err)
			}
			res.Fields++
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

var yesNo = forms.Options{"Sí", "No"}

func number(name, label, unit string, lo, hi float64) *forms.FormField {
	f := &forms.FormField{
		Name: name, Label: label, Type: forms.FieldNumber,
		Validation: &forms.Validation{Min: ptr(lo), Max: ptr(hi)},
	}
	if unit != "" {
		f.Unit = ptr(unit)
	}
	return f
}

func item(name, label string, max float64) *forms.FormField {
	f := number(name, label, "", 0, max)
	f.IsRequired = true
	return f
}

func radio(name, label string, opts forms.Options) *forms.FormField {
	return &forms.FormField{Name: name, Label: label, Type: forms.FieldRadio, Options: opts}
}

func text(name, label string) *forms.FormField {
	return &forms.FormField{Name: name, Label: label, Type: forms.FieldText}
}

func area(name, label string) *forms.FormField {
	return &forms.FormField{Name: name, Label: label, Type: forms.FieldTextarea}
}

func calculated(name, label, formula string) *forms.FormField {
	return &forms.FormField{
		Name: name, Label: label, Type: forms.FieldNumber,
		IsCalculated: true, Calculation: ptr(formula),
	}
}

func when(f *forms.FormField, field, value string) *forms.FormField {
	f.ConditionalField, f.ConditionalValue = ptr(field), ptr(value)
	return f
}

func section(name, title string, fields ...*forms.FormField) *forms.FormSection {
	for i, f := range fields {
		f.Order = i + 1
	}
	return &forms.FormSection{Name: name, Title: title, Fields: fields}
}

func entry(code, name, description string, sections ...*forms.FormSection) Entry {
	for i, s := range sections {
		s.Order = i + 1
	}
	return Entry{
		Specialty: forms.Specialty{Code: code, Name: name, Description: ptr(description), Active: true},
		Template:  forms.FormTemplate{Name: name, Version: 1, Active: true, Sections: sections},
	}
}

func anamnesis() *forms.FormSection {
	return section("anamnesis", "Anamnesis",
		area("motivo_consulta", "Motivo de consulta"),
		radio("fumador", "Fumador", yesNo),
		when(number("cigarrillos", "Cigarrillos al día", "", 0, 100), "fumador", "Sí"),
	)
}

func vitals() *forms.FormSection {
	return section("constantes", "Constantes",
		number("pas", "Presión arterial sistólica", "mmHg", 40, 300),
		number("pad", "Presión arterial diastólica", "mmHg", 20, 200),
		number("frecuencia_cardiaca", "Frecuencia cardiaca", "lpm", 20, 250),
	)
}

// Catalog returns fresh copies of the demo entries, one per report
// definition.
func Catalog() []Entry {
	return []Entry{
		entry(report.MedicinaGeneral, "Medicina General", "Consulta de atención primaria",
			anamnesis(),
			vitals(),
			section("antropometria", "Antropometría",
				number("peso", "Peso", "kg", 1, 400),
				number("talla", "Talla", "cm", 30, 250),
				calculated("imc", "IMC", "bmi"),
			),
			section("plan", "Plan", area("plan", "Plan terapéutico")),
		),
		entry(report.Cardiologia, "Cardiología", "Valoración cardiovascular y riesgo embólico",
			anamnesis(),
			vitals(),
			section("exploracion", "Exploración",
				radio("ritmo", "Ritmo", forms.Options{"Sinusal", "Fibrilación auricular", "Otro"}),
				number("peso", "Peso", "kg", 1, 400),
				number("talla", "Talla", "cm", 30, 250),
				calculated("imc", "IMC", "bmi"),
			),
			section("cha2ds2vasc", "Riesgo embólico",
				radio("icc", "Insuficiencia cardiaca", yesNo),
				radio("hta", "Hipertensión arterial", yesNo),
				radio("diabetes", "Diabetes mellitus", yesNo),
				radio("acv", "ACV o AIT previo", yesNo),
				radio("enfermedad_vascular", "Enfermedad vascular", yesNo),
				calculated("cha2ds2vasc", "CHA₂DS₂-VASc", "cha2ds2vasc"),
			),
		),
		entry(report.Neurologia, "Neurología", "Valoración neurológica y cognitiva",
			section("anamnesis", "Anamnesis", area("motivo_consulta", "Motivo de consulta")),
			section("mmse", "Mini-Mental",
				item("mmse_orientacion", "Orientación", 10),
				item("mmse_registro", "Registro", 3),
				item("mmse_atencion", "Atención y cálculo", 5),
				item("mmse_recuerdo", "Recuerdo", 3),
				item("mmse_lenguaje", "Lenguaje", 9),
				calculated("mmse", "MMSE", "mmse"),
			),
			section("exploracion", "Exploración", area("exploracion_neurologica", "Exploración neurológica")),
		),
		entry(report.Reumatologia, "Reumatología", "Seguimiento de artritis reumatoide",
			section("das28", "Actividad DAS28",
				number("das28_nad", "Articulaciones dolorosas", "", 0, 28),
				number("das28_nat", "Articulaciones tumefactas", "", 0, 28),
				number("das28_vsg", "VSG", "mm/h", 1, 150),
				number("das28_egp", "Valoración global del paciente", "mm", 0, 100),
				calculated("das28", "DAS28", "das28"),
			),
			section("tratamiento", "Tratamiento", area("tratamiento", "Tratamiento actual")),
		),
		entry(report.Urologia, "Urología", "Síntomas del tracto urinario inferior",
			section("ipss", "IPSS",
				item("ipss_vaciado", "Vaciado incompleto", 5),
				item("ipss_frecuencia", "Frecuencia", 5),
				item("ipss_intermitencia", "Intermitencia", 5),
				item("ipss_urgencia", "Urgencia", 5),
				item("ipss_chorro", "Chorro débil", 5),
				item("ipss_esfuerzo", "Esfuerzo", 5),
				item("ipss_nicturia", "Nicturia", 5),
				calculated("ipss", "IPSS", "ipss"),
			),
			section("analitica", "Analítica", number("psa", "PSA", "ng/mL", 0, 1000)),
		),
		entry(report.Urgencias, "Urgencias", "Triaje y escalas de gravedad",
			section("constantes", "Constantes",
				number("pas", "Presión arterial sistólica", "mmHg", 40, 300),
				number("pad", "Presión arterial diastólica", "mmHg", 20, 200),
				number("frecuencia_cardiaca", "Frecuencia cardiaca", "lpm", 20, 250),
				number("frecuencia_respiratoria", "Frecuencia respiratoria", "rpm", 4, 60),
				number("temperatura", "Temperatura", "°C", 30, 44),
			),
			section("valoracion", "Valoración",
				radio("alteracion_mental", "Alteración del nivel de conciencia", yesNo),
				radio("confusion", "Confusión", yesNo),
				number("leucocitos", "Leucocitos", "/mm³", 0, 100000),
				number("urea", "Urea", "mmol/L", 0, 100),
				calculated("qsofa", "qSOFA", "qsofa"),
				calculated("curb65", "CURB-65", "curb65"),
			),
		),
	}
}
