package forms

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
)

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// =========== Specialty Repository ===========

type specialtyRepoPG struct{ pool *pgxpool.Pool }

func NewSpecialtyRepoPG(pool *pgxpool.Pool) SpecialtyRepository {
	return &specialtyRepoPG{pool: pool}
}

func (r *specialtyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const specialtyCols = `id, code, name, description, active, created_at`

func (r *specialtyRepoPG) scanSpecialty(row pgx.Row) (*Specialty, error) {
	var s Specialty
	if err := row.Scan(&s.ID, &s.Code, &s.Name, &s.Description, &s.Active, &s.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *specialtyRepoPG) Create(ctx context.Context, s *Specialty) error {
	s.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO specialty (id, code, name, description, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`,
		s.ID, s.Code, s.Name, s.Description, s.Active).Scan(&s.CreatedAt)
}

func (r *specialtyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return r.scanSpecialty(r.conn(ctx).QueryRow(ctx, `SELECT `+specialtyCols+` FROM specialty WHERE id = $1`, id))
}

func (r *specialtyRepoPG) List(ctx context.Context, activeOnly bool) ([]*Specialty, error) {
	query := `SELECT ` + specialtyCols + ` FROM specialty`
	if activeOnly {
		query += ` WHERE active`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Specialty
	for rows.Next() {
		s, err := r.scanSpecialty(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// =========== Template Repository ===========

type templateRepoPG struct{ pool *pgxpool.Pool }

func NewTemplateRepoPG(pool *pgxpool.Pool) TemplateRepository {
	return &templateRepoPG{pool: pool}
}

func (r *templateRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const templateCols = `id, specialty_id, name, version, active, created_at, updated_at`

func (r *templateRepoPG) scanTemplate(row pgx.Row) (*FormTemplate, error) {
	var t FormTemplate
	if err := row.Scan(&t.ID, &t.SpecialtyID, &t.Name, &t.Version, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *templateRepoPG) Create(ctx context.Context, t *FormTemplate) error {
	t.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form_template (id, specialty_id, name, version, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`,
		t.ID, t.SpecialtyID, t.Name, t.Version, t.Active).Scan(&t.CreatedAt, &t.UpdatedAt)
}

func (r *templateRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FormTemplate, error) {
	return r.scanTemplate(r.conn(ctx).QueryRow(ctx, `SELECT `+templateCols+` FROM form_template WHERE id = $1`, id))
}

func (r *templateRepoPG) ListBySpecialty(ctx context.Context, specialtyID uuid.UUID, activeOnly bool) ([]*FormTemplate, error) {
	query := `SELECT ` + templateCols + ` FROM form_template WHERE specialty_id = $1`
	if activeOnly {
		query += ` AND active`
	}
	rows, err := r.conn(ctx).Query(ctx, query+` ORDER BY version DESC, created_at DESC`, specialtyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FormTemplate
	for rows.Next() {
		t, err := r.scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	return items, rows.Err()
}

// =========== Section Repository ===========

type sectionRepoPG struct{ pool *pgxpool.Pool }

func NewSectionRepoPG(pool *pgxpool.Pool) SectionRepository {
	return &sectionRepoPG{pool: pool}
}

func (r *sectionRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const sectionCols = `id, template_id, name, title, sort_order, conditional_field, conditional_value`

func (r *sectionRepoPG) scanSection(row pgx.Row) (*FormSection, error) {
	var s FormSection
	if err := row.Scan(&s.ID, &s.TemplateID, &s.Name, &s.Title, &s.Order,
		&s.ConditionalField, &s.ConditionalValue); err != nil {
		return nil, notFound(err)
	}
	return &s, nil
}

func (r *sectionRepoPG) Create(ctx context.Context, s *FormSection) error {
	s.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO form_section (id, template_id, name, title, sort_order, conditional_field, conditional_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.TemplateID, s.Name, s.Title, s.Order, s.ConditionalField, s.ConditionalValue)
	return err
}

func (r *sectionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FormSection, error) {
	return r.scanSection(r.conn(ctx).QueryRow(ctx, `SELECT `+sectionCols+` FROM form_section WHERE id = $1`, id))
}

func (r *sectionRepoPG) ListByTemplate(ctx context.Context, templateID uuid.UUID) ([]*FormSection, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+sectionCols+` FROM form_section
		WHERE template_id = $1 ORDER BY sort_order, name`, templateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FormSection
	for rows.Next() {
		s, err := r.scanSection(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// =========== Field Repository ===========

type fieldRepoPG struct{ pool *pgxpool.Pool }

func NewFieldRepoPG(pool *pgxpool.Pool) FieldRepository {
	return &fieldRepoPG{pool: pool}
}

func (r *fieldRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const fieldCols = `f.id, f.section_id, f.name, f.label, f.field_type, f.options, f.min_value, f.max_value,
	f.unit, f.placeholder, f.is_calculated, f.calculation, f.conditional_field, f.conditional_value,
	f.sort_order, f.is_required`

func (r *fieldRepoPG) scanField(row pgx.Row) (*FormField, error) {
	var (
		f       FormField
		typ     string
		options *string
		lo, hi  *float64
	)
	err := row.Scan(&f.ID, &f.SectionID, &f.Name, &f.Label, &typ, &options, &lo, &hi,
		&f.Unit, &f.Placeholder, &f.IsCalculated, &f.Calculation, &f.ConditionalField, &f.ConditionalValue,
		&f.Order, &f.IsRequired)
	if err != nil {
		return nil, notFound(err)
	}
	if f.Type, err = ParseFieldType(typ); err != nil {
		return nil, fmt.Errorf("field %s: %w", f.ID, err)
	}
	if options != nil {
		f.Options = ParseOptions(*options)
	}
	if lo != nil || hi != nil {
		f.Validation = &Validation{Min: lo, Max: hi}
	}
	return &f, nil
}

func (r *fieldRepoPG) Create(ctx context.Context, f *FormField) error {
	f.ID = uuid.New()
	var options *string
	if len(f.Options) > 0 {
		enc := f.Options.Encode()
		options = &enc
	}
	var lo, hi *float64
	if f.Validation != nil {
		lo, hi = f.Validation.Min, f.Validation.Max
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO form_field (id, section_id, name, label, field_type, options, min_value, max_value,
			unit, placeholder, is_calculated, calculation, conditional_field, conditional_value,
			sort_order, is_required)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		f.ID, f.SectionID, f.Name, f.Label, f.Type.String(), options, lo, hi,
		f.Unit, f.Placeholder, f.IsCalculated, f.Calculation, f.ConditionalField, f.ConditionalValue,
		f.Order, f.IsRequired)
	return err
}

func (r *fieldRepoPG) list(ctx context.Context, query string, arg uuid.UUID) ([]*FormField, error) {
	rows, err := r.conn(ctx).Query(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*FormField
	for rows.Next() {
		f, err := r.scanField(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

func (r *fieldRepoPG) ListBySection(ctx context.Context, sectionID uuid.UUID) ([]*FormField, error) {
	return r.list(ctx, `SELECT `+fieldCols+` FROM form_field f
		WHERE f.section_id = $1 ORDER BY f.sort_order, f.name`, sectionID)
}

func (r *fieldRepoPG) ListByTemplate(ctx context.Context, templateID uuid.UUID) ([]*FormField, error) {
	return r.list(ctx, `SELECT `+fieldCols+` FROM form_field f
		JOIN form_section s ON s.id = f.section_id
		WHERE s.template_id = $1 ORDER BY s.sort_order, f.sort_order, f.name`, templateID)
}
