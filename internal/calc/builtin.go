package calc

// Builtin returns the clinical scores shipped with the engine. Answer keys
// match the field names of the seeded specialty templates.
func Builtin() []ScoreDefinition {
	return []ScoreDefinition{
		{
			Name:      "bmi",
			Title:     "Índice de masa corporal",
			Aliases:   []string{"imc"},
			Formula:   "peso / (talla / 100) ^ 2",
			Precision: 1,
			Bands: []Band{
				Below(18.5, "Bajo peso"),
				Below(25, "Normal"),
				Below(30, "Sobrepeso"),
				Otherwise("Obesidad"),
			},
		},
		{
			Name:  "mmse",
			Title: "Mini-Mental State Examination",
			Terms: []Term{
				Item("mmse_orientacion", 0, 10),
				Item("mmse_registro", 0, 3),
				Item("mmse_atencion", 0, 5),
				Item("mmse_recuerdo", 0, 3),
				Item("mmse_lenguaje", 0, 9),
			},
			Bands: []Band{
				UpTo(18, "Deterioro cognitivo severo"),
				UpTo(23, "Deterioro cognitivo leve"),
				Otherwise("Normal"),
			},
		},
		{
			Name:    "cha2ds2vasc",
			Title:   "CHA₂DS₂-VASc",
			Aliases: []string{"cha2ds2_vasc", "chadsvasc"},
			Terms: []Term{
				Award(1, Yes("icc")),
				Award(1, Yes("hta")),
				Award(2, GE("edad", 75)),
				Award(1, Yes("diabetes")),
				Award(2, Yes("acv")),
				Award(1, Yes("enfermedad_vascular")),
				Award(1, Between("edad", 65, 75)),
				Award(1, In("sexo", "F", "Femenino", "Mujer")),
			},
			Bands: []Band{
				UpTo(0, "Riesgo bajo"),
				UpTo(1, "Riesgo moderado"),
				Otherwise("Riesgo alto"),
			},
		},
		{
			Name:      "das28",
			Title:     "DAS28-VSG",
			Aliases:   []string{"das28_vsg"},
			Formula:   "0.56 * sqrt(das28_nad) + 0.28 * sqrt(das28_nat) + 0.70 * ln(das28_vsg) + 0.014 * das28_egp",
			Precision: 2,
			Bands: []Band{
				UpTo(2.6, "Remisión"),
				UpTo(3.2, "Actividad baja"),
				UpTo(5.1, "Actividad moderada"),
				Otherwise("Actividad alta"),
			},
		},
		{
			Name:  "ipss",
			Title: "International Prostate Symptom Score",
			Terms: []Term{
				Item("ipss_vaciado", 0, 5),
				Item("ipss_frecuencia", 0, 5),
				Item("ipss_intermitencia", 0, 5),
				Item("ipss_urgencia", 0, 5),
				Item("ipss_chorro", 0, 5),
				Item("ipss_esfuerzo", 0, 5),
				Item("ipss_nicturia", 0, 5),
			},
			Bands: []Band{
				UpTo(7, "Síntomas leves"),
				UpTo(19, "Síntomas moderados"),
				Otherwise("Síntomas severos"),
			},
		},
		{
			Name:  "qsofa",
			Title: "qSOFA",
			Terms: []Term{
				Award(1, GE("frecuencia_respiratoria", 22)),
				Award(1, LE("pas", 100)),
				Award(1, Yes("alteracion_mental")),
			},
			Bands: []Band{
				UpTo(1, "Bajo riesgo"),
				Otherwise("Alto riesgo"),
			},
		},
		{
			Name:  "sirs",
			Title: "Criterios SIRS",
			Terms: []Term{
				Award(1, GT("temperatura", 38), LT("temperatura", 36)),
				Award(1, GT("frecuencia_cardiaca", 90)),
				Award(1, GT("frecuencia_respiratoria", 20)),
				Award(1, GT("leucocitos", 12000), LT("leucocitos", 4000)),
			},
			Bands: []Band{
				UpTo(1, "SIRS negativo"),
				Otherwise("SIRS positivo"),
			},
		},
		{
			Name:    "curb65",
			Title:   "CURB-65",
			Aliases: []string{"curb_65"},
			Terms: []Term{
				Award(1, Yes("confusion")),
				Award(1, GT("urea", 7)),
				Award(1, GE("frecuencia_respiratoria", 30)),
				Award(1, LT("pas", 90), LE("pad", 60)),
				Award(1, GE("edad", 65)),
			},
			Bands: []Band{
				UpTo(1, "Riesgo bajo"),
				UpTo(2, "Riesgo intermedio"),
				Otherwise("Riesgo alto"),
			},
		},
	}
}
