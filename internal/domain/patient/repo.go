package patient

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("patient not found")

type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error)
}

type AnonymousRepository interface {
	Create(ctx context.Context, a *AnonymousPatient) error
	GetByID(ctx context.Context, id uuid.UUID) (*AnonymousPatient, error)
}
