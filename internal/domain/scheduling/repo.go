package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListRange returns appointments with from <= date < to, ordered by
	// date and time.
	ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error)
	// DueForReminder returns open appointments on the given dates that have
	// not been reminded yet.
	DueForReminder(ctx context.Context, days []time.Time) ([]*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error
}
