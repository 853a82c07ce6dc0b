package consent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/patient"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
	"github.com/medconsult/medconsult/internal/platform/notification"
)

// ErrInvalid wraps validation failures of a consent request.
var ErrInvalid = errors.New("invalid consent")

// ErrRevoked is returned when revoking an already revoked consent.
var ErrRevoked = errors.New("consent already revoked")

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PatientSource fills in patient details when only an id is given.
type PatientSource interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// Messenger renders and delivers a templated patient message.
type Messenger interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Message, error)
}

type Service struct {
	repo      Repository
	blobs     blobstore.Store
	tx        TxRunner
	patients  PatientSource
	messenger Messenger
	clinic    Clinic
	now       func() time.Time
	logger    zerolog.Logger
}

func NewService(repo Repository, blobs blobstore.Store, tx TxRunner, patients PatientSource, clinic Clinic,
	logger zerolog.Logger) *Service {
	return &Service{repo: repo, blobs: blobs, tx: tx, patients: patients, clinic: clinic, now: time.Now, logger: logger}
}

// WithMessenger sends a signed-consent notice to patients with an email on
// file.
func (s *Service) WithMessenger(m Messenger) *Service {
	s.messenger = m
	return s
}

// build validates req and turns it into an unsaved consent. email is the
// registered patient's address, empty when unknown.
func (s *Service) build(ctx context.Context, req GenerateRequest) (*Consent, string, error) {
	c := &Consent{
		PatientID:     req.PatientID,
		PatientName:   strings.TrimSpace(req.PatientName),
		DocumentID:    optional(req.DocumentID),
		Procedure:     strings.TrimSpace(req.Procedure),
		Description:   optional(req.Description),
		Risks:         cleanRisks(req.Risks),
		Alternatives:  optional(req.Alternatives),
		PhysicianName: strings.TrimSpace(req.PhysicianName),
		Place:         optional(req.Place),
		SignatureType: SignatureManual,
		SignedAt:      s.now().UTC(),
		Status:        StatusActive,
		CreatedBy:     auth.UserIDFromContext(ctx),
	}
	if strings.TrimSpace(req.Signature) != "" {
		c.SignatureType = SignatureDigital
	}

	var email string
	if c.PatientID != nil && s.patients != nil {
		p, err := s.patients.GetPatient(ctx, *c.PatientID)
		if err != nil {
			if errors.Is(err, patient.ErrNotFound) {
				return nil, "", fmt.Errorf("%w: patient %s not found", ErrInvalid, c.PatientID)
			}
			return nil, "", err
		}
		if c.PatientName == "" {
			c.PatientName = p.FullName()
		}
		if c.DocumentID == nil && p.DocumentID != nil {
			doc := *p.DocumentID
			c.DocumentID = &doc
		}
		if p.Email != nil {
			email = *p.Email
		}
	}

	var missing []string
	if c.PatientName == "" {
		missing = append(missing, "patient_name")
	}
	if c.Procedure == "" {
		missing = append(missing, "procedure")
	}
	if c.PhysicianName == "" {
		missing = append(missing, "physician_name")
	}
	if len(missing) > 0 {
		return nil, "", fmt.Errorf("%w: %s required", ErrInvalid, strings.Join(missing, ", "))
	}
	return c, email, nil
}

// Generate renders the consent PDF, stores it and records the consent in
// one transaction. It returns the consent and the PDF bytes.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Consent, []byte, error) {
	c, email, err := s.build(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	pdf, err := RenderPDF(s.clinic, c, strings.TrimSpace(req.Signature))
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		return nil, nil, err
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		meta, err := s.blobs.Upload(ctx, blobstore.Metadata{
			FileName:    fileName(c),
			ContentType: blobstore.ContentTypePDF,
			PatientID:   c.PatientID,
			Category:    blobstore.CategoryConsentForm,
			CreatedBy:   c.CreatedBy,
		}, bytes.NewReader(pdf))
		if err != nil {
			return fmt.Errorf("store consent pdf: %w", err)
		}
		c.BlobID = meta.ID
		return s.repo.Create(ctx, c)
	})
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info().Str("consent_id", c.ID.String()).Str("procedure", c.Procedure).Msg("consent generated")
	s.notifySigned(ctx, c, email)
	return c, pdf, nil
}

func (s *Service) notifySigned(ctx context.Context, c *Consent, email string) {
	if s.messenger == nil || email == "" {
		return
	}
	_, err := s.messenger.SendFromTemplate(ctx, notification.TemplateConsentSigned, map[string]string{
		"patient_name": c.PatientName,
		"procedure":    c.Procedure,
		"date":         c.SignedAt.Format("02/01/2006"),
	}, email)
	if err != nil {
		s.logger.Warn().Err(err).Str("consent_id", c.ID.String()).Msg("deliver consent notice")
	}
}

func fileName(c *Consent) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		}
		return '-'
	}, c.Procedure)
	return fmt.Sprintf("consentimiento-%s-%s.pdf", slug, c.SignedAt.Format("20060102"))
}

func (s *Service) GetConsent(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListConsents(ctx context.Context, params ListParams, limit, offset int) ([]*Consent, int, error) {
	items, total, err := s.repo.List(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Consent{}
	}
	return items, total, nil
}

// OpenPDF returns the stored document of consent id.
func (s *Service) OpenPDF(ctx context.Context, id uuid.UUID) (*Consent, io.ReadCloser, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, _, err := s.blobs.Download(ctx, c.BlobID)
	if err != nil {
		return nil, nil, fmt.Errorf("consent %s document: %w", id, err)
	}
	return c, rc, nil
}

// Revoke marks the consent as withdrawn. The document is kept.
func (s *Service) Revoke(ctx context.Context, id uuid.UUID) (*Consent, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == StatusRevoked {
		return nil, ErrRevoked
	}
	at := s.now().UTC()
	if err := s.repo.Revoke(ctx, id, at); err != nil {
		return nil, err
	}
	c.Status = StatusRevoked
	c.RevokedAt = &at
	return c, nil
}
