package forms

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("not found")

type SpecialtyRepository interface {
	Create(ctx context.Context, s *Specialty) error
	GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error)
	List(ctx context.Context, activeOnly bool) ([]*Specialty, error)
}

type TemplateRepository interface {
	Create(ctx context.Context, t *FormTemplate) error
	GetByID(ctx context.Context, id uuid.UUID) (*FormTemplate, error)
	// ListBySpecialty returns templates newest version first.
	ListBySpecialty(ctx context.Context, specialtyID uuid.UUID, activeOnly bool) ([]*FormTemplate, error)
}

type SectionRepository interface {
	Create(ctx context.Context, s *FormSection) error
	GetByID(ctx context.Context, id uuid.UUID) (*FormSection, error)
	ListByTemplate(ctx context.Context, templateID uuid.UUID) ([]*FormSection, error)
}

type FieldRepository interface {
	Create(ctx context.Context, f *FormField) error
	ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*FormField, error)
	// ListByTemplate returns the fields of every section of a template.
	ListByTemplate(ctx context.Context, templateID uuid.UUID) ([]*FormField, error)
}
