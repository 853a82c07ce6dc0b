package patient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
	"github.com/medconsult/medconsult/internal/platform/phi"
)

// -- Patient Repository --

type repoPG struct {
	pool *pgxpool.Pool
	phi  phi.Fields
}

// NewRepoPG returns the patient repository. enc may be nil to store PHI in
// clear text.
func NewRepoPG(pool *pgxpool.Pool, enc phi.FieldEncryptor) Repository {
	return &repoPG{pool: pool, phi: phi.Fields{Enc: enc}}
}

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, first_name, last_name, document_id, birth_date, gender, phone, email, address,
	medical_history, active, created_at, updated_at`

// documentHash indexes the document number so it can be matched while the
// column itself is encrypted.
func documentHash(doc *string) *string {
	if doc == nil {
		return nil
	}
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(*doc), " ", ""))
	if norm == "" {
		return nil
	}
	sum := sha256.Sum256([]byte(norm))
	h := hex.EncodeToString(sum[:])
	return &h
}

// phiCols holds the encrypted forms of a patient's PHI columns.
type phiCols struct {
	documentID, phone, email, address *string
}

// sealed encrypts copies of p's PHI columns and encodes its history. p is
// not modified.
func (r *repoPG) sealed(p *Patient) (phiCols, []byte, error) {
	c := phiCols{
		documentID: cloneStr(p.DocumentID),
		phone:      cloneStr(p.Phone),
		email:      cloneStr(p.Email),
		address:    cloneStr(p.Address),
	}
	if err := r.phi.Seal(c.documentID, c.phone, c.email, c.address); err != nil {
		return c, nil, err
	}
	history, err := json.Marshal(p.MedicalHistory)
	if err != nil {
		return c, nil, fmt.Errorf("encode medical history: %w", err)
	}
	return c, history, nil
}

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func (r *repoPG) scanPatient(row pgx.Row) (*Patient, error) {
	var (
		p       Patient
		history []byte
	)
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DocumentID, &p.BirthDate, &p.Gender,
		&p.Phone, &p.Email, &p.Address, &history, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &p.MedicalHistory); err != nil {
			return nil, fmt.Errorf("decode medical history of %s: %w", p.ID, err)
		}
	}
	if err := r.phi.Open(p.DocumentID, p.Phone, p.Email, p.Address); err != nil {
		return nil, fmt.Errorf("patient %s: %w", p.ID, err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	cols, history, err := r.sealed(p)
	if err != nil {
		return err
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, document_id, document_hash, birth_date, gender,
			phone, email, address, medical_history, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, cols.documentID, documentHash(p.DocumentID), p.BirthDate, p.Gender,
		cols.phone, cols.email, cols.address, history, p.Active).Scan(&p.CreatedAt, &p.UpdatedAt)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	cols, history, err := r.sealed(p)
	if err != nil {
		return err
	}
	err = r.conn(ctx).QueryRow(ctx, `
		UPDATE patient SET first_name = $2, last_name = $3, document_id = $4, document_hash = $5,
			birth_date = $6, gender = $7, phone = $8, email = $9, address = $10,
			medical_history = $11, active = $12, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, cols.documentID, documentHash(p.DocumentID), p.BirthDate, p.Gender,
		cols.phone, cols.email, cols.address, history, p.Active).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if q := strings.TrimSpace(params.Q); q != "" {
		where += fmt.Sprintf(` AND (first_name ILIKE $%d OR last_name ILIKE $%d OR (first_name || ' ' || last_name) ILIKE $%d)`, idx, idx, idx)
		args = append(args, "%"+q+"%")
		idx++
	}
	if h := documentHash(&params.DocumentID); h != nil {
		where += fmt.Sprintf(` AND document_hash = $%d`, idx)
		args = append(args, *h)
		idx++
	}
	if params.ActiveOnly {
		where += ` AND active = true`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + patientCols + ` FROM patient` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := r.scanPatient(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("patient search: %w", err)
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Anonymous Patient Repository --

type anonymousRepoPG struct{ pool *pgxpool.Pool }

func NewAnonymousRepoPG(pool *pgxpool.Pool) AnonymousRepository {
	return &anonymousRepoPG{pool: pool}
}

func (r *anonymousRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *anonymousRepoPG) Create(ctx context.Context, a *AnonymousPatient) error {
	a.ID = uuid.New()
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO anonymous_patient (id, alias, age, gender)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		a.ID, a.Alias, a.Age, a.Gender).Scan(&a.CreatedAt)
}

func (r *anonymousRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AnonymousPatient, error) {
	var a AnonymousPatient
	err := r.conn(ctx).QueryRow(ctx, `SELECT id, alias, age, gender, created_at FROM anonymous_patient WHERE id = $1`, id).
		Scan(&a.ID, &a.Alias, &a.Age, &a.Gender, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}
