package consultation

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consultation not found")

type Repository interface {
	Create(ctx context.Context, c *Consultation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error)
	List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error)
	AddResponses(ctx context.Context, consultationID uuid.UUID, responses []*Response) error
	ListResponses(ctx context.Context, consultationID uuid.UUID) ([]*Response, error)
}
