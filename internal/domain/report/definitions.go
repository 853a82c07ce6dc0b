package report

import (
	"sort"
	"strings"

	"github.com/medconsult/medconsult/internal/calc"
)

// Specialty codes with a dedicated report.
const (
	MedicinaGeneral = "medicina-general"
	Cardiologia     = "cardiologia"
	Neurologia      = "neurologia"
	Reumatologia    = "reumatologia"
	Urologia        = "urologia"
	Urgencias       = "urgencias"
)

var definitions = map[string]*SpecialtyReport{
	MedicinaGeneral: {
		Specialty: MedicinaGeneral,
		Title:     "Informe de medicina general",
		Scores:    []ScoreRef{{Name: "bmi", Label: "IMC"}},
		Blocks: []TextBlock{
			{Title: "Motivo de consulta", Text: "{motivo_consulta}", When: &Condition{Field: "motivo_consulta"}},
			{Title: "Estado nutricional", Text: "IMC de {bmi} kg/m² ({bmi.band}).", When: &Condition{Score: "bmi"}},
			{Text: "Se recomienda consejo dietético y actividad física regular.", When: &Condition{Score: "bmi", Band: "Obesidad"}},
			{Text: "Paciente fumador: se ofrece programa de deshabituación tabáquica.", When: &Condition{Field: "fumador", Equals: "Sí"}},
			{Title: "Plan", Text: "{plan}", When: &Condition{Field: "plan"}},
		},
		Alerts: []AlertRule{
			{Level: LevelWarning, Message: "Tensión arterial elevada (≥140/90 mmHg)", AnyOf: when(calc.GE("pas", 140), calc.GE("pad", 90))},
			{Level: LevelWarning, Message: "Obesidad (IMC ≥30)", AnyOf: when(calc.GE("bmi", 30))},
			{Level: LevelWarning, Message: "Bajo peso (IMC <18.5)", AnyOf: when(calc.LT("bmi", 18.5))},
		},
	},
	Cardiologia: {
		Specialty: Cardiologia,
		Title:     "Informe de cardiología",
		Scores: []ScoreRef{
			{Name: "cha2ds2vasc", Label: "CHA₂DS₂-VASc"},
			{Name: "bmi", Label: "IMC"},
		},
		Blocks: []TextBlock{
			{Title: "Ritmo", Text: "{ritmo}", When: &Condition{Field: "ritmo"}},
			{Title: "Riesgo tromboembólico", Text: "CHA₂DS₂-VASc {cha2ds2vasc} ({cha2ds2vasc.band}).", When: &Condition{Score: "cha2ds2vasc"}},
			{Text: "Se recomienda valorar anticoagulación oral.", When: &Condition{Score: "cha2ds2vasc", Band: "Riesgo alto"}},
			{Text: "Fibrilación auricular documentada en el ECG.", When: &Condition{Field: "ritmo", Equals: "Fibrilación auricular"}},
		},
		Alerts: []AlertRule{
			{Level: LevelCritical, Message: "Riesgo tromboembólico alto (CHA₂DS₂-VASc ≥2)", AnyOf: when(calc.GE("cha2ds2vasc", 2))},
			{Level: LevelWarning, Message: "Taquicardia (FC >100 lpm)", AnyOf: when(calc.GT("frecuencia_cardiaca", 100))},
			{Level: LevelWarning, Message: "Bradicardia (FC <50 lpm)", AnyOf: when(calc.LT("frecuencia_cardiaca", 50))},
		},
	},
	Neurologia: {
		Specialty: Neurologia,
		Title:     "Informe de neurología",
		Scores:    []ScoreRef{{Name: "mmse", Label: "MMSE"}},
		Blocks: []TextBlock{
			{Title: "Función cognitiva", Text: "MMSE {mmse}/30: {mmse.band}.", When: &Condition{Score: "mmse"}},
			{Text: "Se solicita estudio de neuroimagen y valoración neuropsicológica.", When: &Condition{Score: "mmse", Band: "Deterioro cognitivo severo"}},
			{Text: "Se propone revisión en 6 meses con nuevo MMSE.", When: &Condition{Score: "mmse", Band: "Deterioro cognitivo leve"}},
			{Title: "Exploración neurológica", Text: "{exploracion_neurologica}", When: &Condition{Field: "exploracion_neurologica"}},
		},
		Alerts: []AlertRule{
			{Level: LevelCritical, Message: "Deterioro cognitivo severo (MMSE ≤18)", AnyOf: when(calc.LE("mmse", 18))},
			{Level: LevelWarning, Message: "Deterioro cognitivo leve (MMSE 19-23)", AnyOf: when(calc.Between("mmse", 19, 24))},
		},
	},
	Reumatologia: {
		Specialty: Reumatologia,
		Title:     "Informe de reumatología",
		Scores:    []ScoreRef{{Name: "das28", Label: "DAS28-VSG"}},
		Blocks: []TextBlock{
			{Title: "Actividad de la enfermedad", Text: "DAS28 {das28}: {das28.band}.", When: &Condition{Score: "das28"}},
			{Text: "Se plantea intensificar el tratamiento de fondo.", When: &Condition{Score: "das28", Band: "Actividad alta"}},
			{Title: "Tratamiento", Text: "{tratamiento}", When: &Condition{Field: "tratamiento"}},
		},
		Alerts: []AlertRule{
			{Level: LevelCritical, Message: "Actividad inflamatoria alta (DAS28 >5.1)", AnyOf: when(calc.GT("das28", 5.1))},
			{Level: LevelWarning, Message: "VSG elevada (>50 mm/h)", AnyOf: when(calc.GT("das28_vsg", 50))},
		},
	},
	Urologia: {
		Specialty: Urologia,
		Title:     "Informe de urología",
		Scores:    []ScoreRef{{Name: "ipss", Label: "IPSS"}},
		Blocks: []TextBlock{
			{Title: "Síntomas del tracto urinario inferior", Text: "IPSS {ipss}/35: {ipss.band}.", When: &Condition{Score: "ipss"}},
			{Text: "Se solicita ecografía vesicoprostática y flujometría.", When: &Condition{Score: "ipss", Band: "Síntomas severos"}},
			{Title: "PSA", Text: "{psa} ng/mL", When: &Condition{Field: "psa"}},
		},
		Alerts: []AlertRule{
			{Level: LevelCritical, Message: "Síntomas urinarios severos (IPSS ≥20)", AnyOf: when(calc.GE("ipss", 20))},
			{Level: LevelWarning, Message: "PSA elevado (>4 ng/mL)", AnyOf: when(calc.GT("psa", 4))},
		},
	},
	Urgencias: {
		Specialty: Urgencias,
		Title:     "Informe de urgencias",
		Scores: []ScoreRef{
			{Name: "qsofa", Label: "qSOFA"},
			{Name: "sirs", Label: "SIRS"},
			{Name: "curb65", Label: "CURB-65"},
		},
		Blocks: []TextBlock{
			{Title: "Motivo de consulta", Text: "{motivo_consulta}", When: &Condition{Field: "motivo_consulta"}},
			{Title: "Sepsis", Text: "qSOFA {qsofa} ({qsofa.band}), SIRS {sirs} ({sirs.band}).", When: &Condition{Score: "qsofa"}},
			{Text: "Sospecha de sepsis: activar código sepsis, extraer hemocultivos e iniciar antibioterapia empírica.", When: &Condition{Score: "qsofa", Band: "Alto riesgo"}},
			{Title: "Neumonía", Text: "CURB-65 {curb65}: {curb65.band}.", When: &Condition{Score: "curb65"}},
			{Text: "Valorar ingreso hospitalario.", When: &Condition{Score: "curb65", Band: "Riesgo alto"}},
		},
		Alerts: []AlertRule{
			{Level: LevelCritical, Message: "qSOFA ≥2: alto riesgo de mala evolución", AnyOf: when(calc.GE("qsofa", 2))},
			{Level: LevelWarning, Message: "Criterios SIRS positivos", AnyOf: when(calc.GE("sirs", 2))},
			{Level: LevelCritical, Message: "CURB-65 ≥3: neumonía grave", AnyOf: when(calc.GE("curb65", 3))},
			{Level: LevelCritical, Message: "Hipotensión (PAS <90 mmHg)", AnyOf: when(calc.LT("pas", 90))},
			{Level: LevelWarning, Message: "Fiebre (>38 °C)", AnyOf: when(calc.GT("temperatura", 38))},
		},
	},
}

func when(anyOf ...calc.Criterion) []calc.Criterion { return anyOf }

// Definition returns the report of the specialty with the given code.
func Definition(code string) (*SpecialtyReport, bool) {
	def, ok := definitions[strings.ToLower(strings.TrimSpace(code))]
	return def, ok
}

// Generic is the report of a specialty without a dedicated definition: the
// answered fields only.
func Generic(code, name string) *SpecialtyReport {
	return &SpecialtyReport{Specialty: code, Title: "Informe de " + strings.ToLower(name)}
}

// Specialties lists the codes with a dedicated report.
func Specialties() []string {
	out := make([]string, 0, len(definitions))
	for code := range definitions {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
