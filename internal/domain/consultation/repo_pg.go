package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const consultCols = `id, patient_id, anonymous_patient_id, age, gender, specialty_id, template_id,
	answers, created_by, created_at`

func (r *repoPG) scanConsultation(row pgx.Row) (*Consultation, error) {
	var (
		c       Consultation
		answers []byte
	)
	err := row.Scan(&c.ID, &c.PatientID, &c.AnonymousPatientID, &c.Age, &c.Gender, &c.SpecialtyID,
		&c.TemplateID, &answers, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &c.Answers); err != nil {
			return nil, fmt.Errorf("decode answers of %s: %w", c.ID, err)
		}
	}
	return &c, nil
}

func (r *repoPG) Create(ctx context.Context, c *Consultation) error {
	c.ID = uuid.New()
	answers, err := json.Marshal(c.Answers)
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO consultation (id, patient_id, anonymous_patient_id, age, gender, specialty_id,
			template_id, answers, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at`,
		c.ID, c.PatientID, c.AnonymousPatientID, c.Age, c.Gender, c.SpecialtyID,
		c.TemplateID, answers, c.CreatedBy).Scan(&c.CreatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	return r.scanConsultation(r.conn(ctx).QueryRow(ctx, `SELECT `+consultCols+` FROM consultation WHERE id = $1`, id))
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.PatientID != nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, *filter.PatientID)
		idx++
	}
	if filter.SpecialtyID != nil {
		where += fmt.Sprintf(` AND specialty_id = $%d`, idx)
		args = append(args, *filter.SpecialtyID)
		idx++
	}
	if filter.From != nil {
		where += fmt.Sprintf(` AND created_at >= $%d`, idx)
		args = append(args, *filter.From)
		idx++
	}
	if filter.To != nil {
		where += fmt.Sprintf(` AND created_at < $%d`, idx)
		args = append(args, *filter.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM consultation`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + consultCols + ` FROM consultation` + where +
		fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Consultation
	for rows.Next() {
		c, err := r.scanConsultation(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, c)
	}
	return items, total, rows.Err()
}

func (r *repoPG) AddResponses(ctx context.Context, consultationID uuid.UUID, responses []*Response) error {
	for _, resp := range responses {
		resp.ID = uuid.New()
		resp.ConsultationID = consultationID
		val, err := json.Marshal(resp.Value)
		if err != nil {
			return fmt.Errorf("encode response %s: %w", resp.FieldName, err)
		}
		err = r.conn(ctx).QueryRow(ctx, `
			INSERT INTO consultation_response (id, consultation_id, field_id, field_name, value)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at`,
			resp.ID, resp.ConsultationID, resp.FieldID, resp.FieldName, val).Scan(&resp.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert response %s: %w", resp.FieldName, err)
		}
	}
	return nil
}

func (r *repoPG) ListResponses(ctx context.Context, consultationID uuid.UUID) ([]*Response, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, consultation_id, field_id, field_name, value, created_at
		FROM consultation_response WHERE consultation_id = $1 ORDER BY created_at, field_name`, consultationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Response
	for rows.Next() {
		var (
			resp Response
			val  []byte
		)
		if err := rows.Scan(&resp.ID, &resp.ConsultationID, &resp.FieldID, &resp.FieldName, &val, &resp.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(val, &resp.Value); err != nil {
			return nil, fmt.Errorf("decode response %s: %w", resp.FieldName, err)
		}
		items = append(items, &resp)
	}
	return items, rows.Err()
}
