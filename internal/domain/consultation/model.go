package consultation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/domain/forms"
)

// ErrIncompleteData is matched by every missing-basic-data rejection.
var ErrIncompleteData = errors.New("Datos incompletos")

var ErrInvalidAge = errors.New("invalid age")

// ErrCalculatedField rejects client values for calculated fields.
var ErrCalculatedField = errors.New("calculated fields are read-only")

// AgeError reports an age that is not a number between 0 and 130. It shows
// as "Datos incompletos" like a missing age.
type AgeError struct {
	Value string
}

func (e *AgeError) Error() string {
	return fmt.Sprintf("La edad %q no es válida (0 a 130 años)", e.Value)
}

func (e *AgeError) Is(target error) bool { return target == ErrInvalidAge }

func (e *AgeError) ToastTitle() string { return ErrIncompleteData.Error() }

// IncompleteError lists the basic-data fields a submission is missing.
type IncompleteError struct {
	Missing []string
}

func (e *IncompleteError) Error() string {
	return "Complete los campos obligatorios: " + strings.Join(e.Missing, ", ")
}

func (e *IncompleteError) Is(target error) bool { return target == ErrIncompleteData }

func (e *IncompleteError) ToastTitle() string { return ErrIncompleteData.Error() }

// Age accepts a JSON string or number; form inputs send either.
type Age string

func (a *Age) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = Age(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("age must be a number or string")
	}
	*a = Age(n.String())
	return nil
}

// BasicData is the patient context captured before a consultation form.
type BasicData struct {
	Age                Age        `json:"age"`
	Gender             string     `json:"gender"`
	PatientID          *uuid.UUID `json:"patient_id,omitempty"`
	AnonymousPatientID *uuid.UUID `json:"anonymous_patient_id,omitempty"`
}

// Validate rejects missing age or gender with an *IncompleteError.
func (b BasicData) Validate() error {
	var missing []string
	if strings.TrimSpace(string(b.Age)) == "" {
		missing = append(missing, "edad")
	}
	if strings.TrimSpace(b.Gender) == "" {
		missing = append(missing, "sexo")
	}
	if len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	return nil
}

// Years parses the age as whole years.
func (b BasicData) Years() (int, error) {
	s := strings.TrimSpace(string(b.Age))
	f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || f < 0 || f > 130 {
		return 0, &AgeError{Value: s}
	}
	return int(f), nil
}

// Inputs returns the age and gender under forms.KeyAge and forms.KeyGender
// for the calculation engine. An empty or invalid age is left out.
func (b BasicData) Inputs() forms.AnswerMap {
	out := forms.AnswerMap{}
	if strings.TrimSpace(string(b.Age)) != "" {
		if years, err := b.Years(); err == nil {
			out.Set(forms.KeyAge, forms.Number(float64(years)))
		}
	}
	if g := strings.TrimSpace(b.Gender); g != "" {
		out.Set(forms.KeyGender, forms.Text(g))
	}
	return out
}

// Consultation maps to the consultation table.
type Consultation struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	PatientID          *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	AnonymousPatientID *uuid.UUID      `db:"anonymous_patient_id" json:"anonymous_patient_id,omitempty"`
	Age                int             `db:"age" json:"age"`
	Gender             string          `db:"gender" json:"gender"`
	SpecialtyID        uuid.UUID       `db:"specialty_id" json:"specialty_id"`
	TemplateID         *uuid.UUID      `db:"template_id" json:"template_id,omitempty"`
	Answers            forms.AnswerMap `db:"answers" json:"answers"`
	CreatedBy          string          `db:"created_by" json:"created_by,omitempty"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	Responses          []*Response     `json:"responses,omitempty"`
}

// Response maps to the consultation_response table: one answered field.
type Response struct {
	ID             uuid.UUID   `db:"id" json:"id"`
	ConsultationID uuid.UUID   `db:"consultation_id" json:"consultation_id"`
	FieldID        *uuid.UUID  `db:"field_id" json:"field_id,omitempty"`
	FieldName      string      `db:"field_name" json:"field_name"`
	Value          forms.Value `db:"value" json:"value"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// ListFilter narrows consultation listings. Zero fields are ignored.
type ListFilter struct {
	PatientID   *uuid.UUID
	SpecialtyID *uuid.UUID
	From        *time.Time
	To          *time.Time
}

func (f ListFilter) IsZero() bool {
	return f.PatientID == nil && f.SpecialtyID == nil && f.From == nil && f.To == nil
}
