package consent

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, c *Consent) error
	GetByID(ctx context.Context, id uuid.UUID) (*Consent, error)
	List(ctx context.Context, params ListParams, limit, offset int) ([]*Consent, int, error)
	Revoke(ctx context.Context, id uuid.UUID, at time.Time) error
}
