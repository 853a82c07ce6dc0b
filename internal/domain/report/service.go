package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
)

// ErrNoArchive is returned by the archive operations without a blob store.
var ErrNoArchive = errors.New("report archive not configured")

// ConsultationSource reads stored consultations.
type ConsultationSource interface {
	GetConsultation(ctx context.Context, id uuid.UUID) (*consultation.Consultation, error)
	ListConsultations(ctx context.Context, filter consultation.ListFilter, limit, offset int) ([]*consultation.Consultation, int, error)
}

// FormSource resolves specialties and templates.
type FormSource interface {
	GetSpecialty(ctx context.Context, id uuid.UUID) (*forms.Specialty, error)
	ListSpecialties(ctx context.Context) ([]*forms.Specialty, error)
	GetTemplate(ctx context.Context, id uuid.UUID) (*forms.FormTemplate, error)
}

type Service struct {
	consultations ConsultationSource
	forms         FormSource
	blobs         blobstore.Store
	now           func() time.Time
	logger        zerolog.Logger
}

// NewService builds the report service. blobs may be nil, which disables
// archiving.
func NewService(consultations ConsultationSource, fs FormSource, blobs blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{consultations: consultations, forms: fs, blobs: blobs, now: time.Now, logger: logger}
}

// definitionFor picks the dedicated report of the specialty or the generic one.
func definitionFor(sp *forms.Specialty) *SpecialtyReport {
	if sp == nil {
		return Generic("", "consulta")
	}
	if def, ok := Definition(sp.Code); ok {
		return def
	}
	return Generic(sp.Code, sp.Name)
}

// withDemographics adds the consultation's age and gender as the edad and
// sexo answers when the form did not capture them. Every stored
// consultation has an age, so 0 (an infant) is injected too.
func withDemographics(c *consultation.Consultation) forms.AnswerMap {
	answers := c.Answers.Clone()
	if v, ok := answers.Get(forms.KeyAge); !ok || v.IsEmpty() {
		answers.Set(forms.KeyAge, forms.Number(float64(c.Age)))
	}
	if v, ok := answers.Get(forms.KeyGender); (!ok || v.IsEmpty()) && c.Gender != "" {
		answers.Set(forms.KeyGender, forms.Text(c.Gender))
	}
	return answers
}

// ForConsultation generates the report of a stored consultation.
func (s *Service) ForConsultation(ctx context.Context, id uuid.UUID) (*Report, error) {
	c, err := s.consultations.GetConsultation(ctx, id)
	if err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.generate(ctx, c)
}

func (s *Service) generate(ctx context.Context, c *consultation.Consultation) (*Report, error) {
	id := c.ID

	sp, err := s.forms.GetSpecialty(ctx, c.SpecialtyID)
	if err != nil && !errors.Is(err, forms.ErrNotFound) {
		return nil, fmt.Errorf("load specialty: %w", err)
	}

	var tpl *forms.FormTemplate
	if c.TemplateID != nil {
		tpl, err = s.forms.GetTemplate(ctx, *c.TemplateID)
		if err != nil {
			if !errors.Is(err, forms.ErrNotFound) {
				return nil, fmt.Errorf("load template: %w", err)
			}
			s.logger.Warn().Str("consultation_id", id.String()).Msg("consultation template no longer exists")
			tpl = nil
		}
	}

	r := Generate(definitionFor(sp), tpl, withDemographics(c))
	r.ConsultationID = &c.ID
	r.Age = c.Age
	r.Gender = c.Gender
	r.Date = c.CreatedAt
	return &r, nil
}

// ArchiveReport stores the printable text of a consultation report in the
// blob store, linked to the consultation's patient.
func (s *Service) ArchiveReport(ctx context.Context, id uuid.UUID) (*blobstore.Metadata, error) {
	if s.blobs == nil {
		return nil, ErrNoArchive
	}
	c, err := s.consultations.GetConsultation(ctx, id)
	if err != nil {
		if errors.Is(err, consultation.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r, err := s.generate(ctx, c)
	if err != nil {
		return nil, err
	}
	return s.blobs.Upload(ctx, blobstore.Metadata{
		FileName:    fmt.Sprintf("informe-%s.txt", c.CreatedAt.Format("20060102")),
		ContentType: "text/plain",
		PatientID:   c.PatientID,
		Category:    blobstore.CategoryReport,
		CreatedBy:   auth.UserIDFromContext(ctx),
	}, strings.NewReader(r.Text()))
}
