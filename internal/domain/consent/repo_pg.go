package consent

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

const consentCols = `id, patient_id, patient_name, document_id, procedure, description, risks,
	alternatives, physician_name, place, signature_type, signed_at, status, revoked_at, blob_id,
	created_by, created_at`

func scanConsent(row pgx.Row) (*Consent, error) {
	var c Consent
	err := row.Scan(&c.ID, &c.PatientID, &c.PatientName, &c.DocumentID, &c.Procedure, &c.Description,
		&c.Risks, &c.Alternatives, &c.PhysicianName, &c.Place, &c.SignatureType, &c.SignedAt, &c.Status,
		&c.RevokedAt, &c.BlobID, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.Risks == nil {
		c.Risks = []string{}
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Consent) error {
	c.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consent (id, patient_id, patient_name, document_id, procedure, description, risks,
			alternatives, physician_name, place, signature_type, signed_at, status, blob_id, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at`,
		c.ID, c.PatientID, c.PatientName, c.DocumentID, c.Procedure, c.Description, c.Risks,
		c.Alternatives, c.PhysicianName, c.Place, c.SignatureType, c.SignedAt, c.Status, c.BlobID, c.CreatedBy,
	).Scan(&c.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consent, error) {
	return scanConsent(r.conn(ctx).QueryRow(ctx, `SELECT `+consentCols+` FROM consent WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, params ListParams, limit, offset int) ([]*Consent, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	if params.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *params.PatientID)
		idx++
	}
	if params.Status != "" {
		where += fmt.Sprintf(` AND status = $%d`, idx)
		args = append(args, params.Status)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consent`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + consentCols + ` FROM consent` + where +
		fmt.Sprintf(` ORDER BY signed_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Revoke(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE consent SET status = $2, revoked_at = $3 WHERE id = $1`,
		id, StatusRevoked, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
