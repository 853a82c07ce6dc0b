package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MedicalHistory is stored as jsonb on the patient row.
type MedicalHistory struct {
	Diabetes          bool    `json:"diabetes"`
	Hypertension      bool    `json:"hypertension"`
	HeartDisease      bool    `json:"heart_disease"`
	Asthma            bool    `json:"asthma"`
	Smoker            bool    `json:"smoker"`
	Allergies         *string `json:"allergies,omitempty"`
	CurrentMedication *string `json:"current_medication,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

// Patient maps to the patient table. DocumentID, Phone, Email and Address
// are encrypted at rest when PHI encryption is configured.
type Patient struct {
	ID             uuid.UUID      `db:"id" json:"id"`
	FirstName      string         `db:"first_name" json:"first_name"`
	LastName       string         `db:"last_name" json:"last_name"`
	DocumentID     *string        `db:"document_id" json:"document_id,omitempty"`
	BirthDate      *time.Time     `db:"birth_date" json:"birth_date,omitempty"`
	Gender         *string        `db:"gender" json:"gender,omitempty"`
	Phone          *string        `db:"phone" json:"phone,omitempty"`
	Email          *string        `db:"email" json:"email,omitempty"`
	Address        *string        `db:"address" json:"address,omitempty"`
	MedicalHistory MedicalHistory `db:"medical_history" json:"medical_history"`
	Active         bool           `db:"active" json:"active"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// AgeAt returns the patient's age in whole years on day, if the birth date
// is known.
func (p *Patient) AgeAt(day time.Time) (int, bool) {
	if p.BirthDate == nil {
		return 0, false
	}
	b := *p.BirthDate
	years := day.Year() - b.Year()
	if day.Month() < b.Month() || (day.Month() == b.Month() && day.Day() < b.Day()) {
		years--
	}
	if years < 0 {
		return 0, false
	}
	return years, true
}

// HistoryPatch updates individual history flags. Nil fields are left as is;
// an empty string clears a text entry.
type HistoryPatch struct {
	Diabetes          *bool   `json:"diabetes,omitempty"`
	Hypertension      *bool   `json:"hypertension,omitempty"`
	HeartDisease      *bool   `json:"heart_disease,omitempty"`
	Asthma            *bool   `json:"asthma,omitempty"`
	Smoker            *bool   `json:"smoker,omitempty"`
	Allergies         *string `json:"allergies,omitempty"`
	CurrentMedication *string `json:"current_medication,omitempty"`
	Notes             *string `json:"notes,omitempty"`
}

// Patch is a partial update of a patient.
type Patch struct {
	FirstName      *string       `json:"first_name,omitempty"`
	LastName       *string       `json:"last_name,omitempty"`
	DocumentID     *string       `json:"document_id,omitempty"`
	BirthDate      *time.Time    `json:"birth_date,omitempty"`
	Gender         *string       `json:"gender,omitempty"`
	Phone          *string       `json:"phone,omitempty"`
	Email          *string       `json:"email,omitempty"`
	Address        *string       `json:"address,omitempty"`
	Active         *bool         `json:"active,omitempty"`
	MedicalHistory *HistoryPatch `json:"medical_history,omitempty"`
}

// Apply copies the set fields of patch onto p.
func (p *Patient) Apply(patch Patch) {
	if patch.FirstName != nil {
		p.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		p.LastName = strings.TrimSpace(*patch.LastName)
	}
	setText(&p.DocumentID, patch.DocumentID)
	if patch.BirthDate != nil {
		d := *patch.BirthDate
		p.BirthDate = &d
	}
	setText(&p.Gender, patch.Gender)
	setText(&p.Phone, patch.Phone)
	setText(&p.Email, patch.Email)
	setText(&p.Address, patch.Address)
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if h := patch.MedicalHistory; h != nil {
		m := &p.MedicalHistory
		setBool(&m.Diabetes, h.Diabetes)
		setBool(&m.Hypertension, h.Hypertension)
		setBool(&m.HeartDisease, h.HeartDisease)
		setBool(&m.Asthma, h.Asthma)
		setBool(&m.Smoker, h.Smoker)
		setText(&m.Allergies, h.Allergies)
		setText(&m.CurrentMedication, h.CurrentMedication)
		setText(&m.Notes, h.Notes)
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setText(dst **string, v *string) {
	if v == nil {
		return
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		*dst = nil
		return
	}
	*dst = &s
}

// AnonymousPatient maps to the anonymous_patient table: a consultation
// subject recorded without identity.
type AnonymousPatient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Alias     string    `db:"alias" json:"alias"`
	Age       int       `db:"age" json:"age"`
	Gender    string    `db:"gender" json:"gender"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SearchParams narrows patient listings.
type SearchParams struct {
	Q          string
	DocumentID string
	ActiveOnly bool
}
