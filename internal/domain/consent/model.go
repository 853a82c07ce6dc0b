package consent

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consent not found")

const (
	StatusActive  = "active"
	StatusRevoked = "revoked"
)

const (
	SignatureManual  = "manual"
	SignatureDigital = "digital"
)

// Consent records an informed-consent document given by a patient. The
// rendered PDF lives in the blob store.
type Consent struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	PatientName   string     `db:"patient_name" json:"patient_name"`
	DocumentID    *string    `db:"document_id" json:"document_id,omitempty"`
	Procedure     string     `db:"procedure" json:"procedure"`
	Description   *string    `db:"description" json:"description,omitempty"`
	Risks         []string   `db:"risks" json:"risks"`
	Alternatives  *string    `db:"alternatives" json:"alternatives,omitempty"`
	PhysicianName string     `db:"physician_name" json:"physician_name"`
	Place         *string    `db:"place" json:"place,omitempty"`
	SignatureType string     `db:"signature_type" json:"signature_type"`
	SignedAt      time.Time  `db:"signed_at" json:"signed_at"`
	Status        string     `db:"status" json:"status"`
	RevokedAt     *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	BlobID        uuid.UUID  `db:"blob_id" json:"blob_id"`
	CreatedBy     string     `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// GenerateRequest is the input of the consent form.
type GenerateRequest struct {
	PatientID     *uuid.UUID `json:"patient_id"`
	PatientName   string     `json:"patient_name"`
	DocumentID    string     `json:"document_id"`
	Procedure     string     `json:"procedure"`
	Description   string     `json:"description"`
	Risks         []string   `json:"risks"`
	Alternatives  string     `json:"alternatives"`
	PhysicianName string     `json:"physician_name"`
	Place         string     `json:"place"`
	// Signature is an optional data URL (data:image/png;base64,...) of the
	// patient's handwritten signature.
	Signature string `json:"signature"`
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// cleanRisks trims risks and drops blank entries. The result is never nil.
func cleanRisks(in []string) []string {
	out := []string{}
	for _, r := range in {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

type ListParams struct {
	PatientID *uuid.UUID
	Status    string
}
