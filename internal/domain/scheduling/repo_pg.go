package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, patient_name, date, time, duration, type, status, notes,
	reminder_sent_at, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.Date, &a.Time, &a.Duration, &a.Type,
		&a.Status, &a.Notes, &a.ReminderSentAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return &a, err
}

func collect(rows pgx.Rows) ([]*Appointment, error) {
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, patient_name, date, time, duration, type, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.PatientName, a.Date, a.Time, a.Duration, a.Type, a.Status, a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
}

// Update saves every editable column. Moving an appointment to another slot
// clears reminder_sent_at so the new slot is reminded again.
func (r *repoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment SET patient_id = $2, patient_name = $3,
			reminder_sent_at = CASE WHEN date <> $4 OR time <> $5 THEN NULL ELSE reminder_sent_at END,
			date = $4, time = $5, duration = $6, type = $7, status = $8, notes = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING reminder_sent_at, updated_at`,
		a.ID, a.PatientID, a.PatientName, a.Date, a.Time, a.Duration, a.Type, a.Status, a.Notes,
	).Scan(&a.ReminderSentAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM appointment WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE date >= $1 AND date < $2 ORDER BY date, time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) DueForReminder(ctx context.Context, days []time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+apptCols+` FROM appointment
		WHERE date = ANY($1) AND status IN ($2, $3) AND reminder_sent_at IS NULL
		ORDER BY date, time`, days, StatusScheduled, StatusConfirmed)
	if err != nil {
		return nil, fmt.Errorf("due reminders: %w", err)
	}
	return collect(rows)
}

func (r *repoPG) MarkReminderSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `UPDATE appointment SET reminder_sent_at = $2 WHERE id = $1`, id, at)
	return err
}
