// Package audit records who touched patient data. A middleware writes one
// access entry per request to an audited resource; administrators read the
// log back through the access-log endpoint.
package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medconsult/medconsult/internal/platform/db"
)

// Action codes follow the create/read/update/delete convention.
const (
	ActionCreate = "C"
	ActionRead   = "R"
	ActionUpdate = "U"
	ActionDelete = "D"
)

// Entry is one access to an audited resource.
type Entry struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	UserName     string     `json:"user_name"`
	Roles        []string   `json:"roles"`
	Action       string     `json:"action"`
	ResourceType string     `json:"resource_type"`
	ResourceID   *uuid.UUID `json:"resource_id,omitempty"`
	Method       string     `json:"method"`
	Path         string     `json:"path"`
	Status       int        `json:"status"`
	IPAddress    string     `json:"ip_address"`
	UserAgent    string     `json:"user_agent"`
	RequestID    string     `json:"request_id"`
	AccessedAt   time.Time  `json:"accessed_at"`
}

// Filter narrows a log listing. Zero fields match everything.
type Filter struct {
	UserID       string
	ResourceType string
	ResourceID   *uuid.UUID
	Action       string
	From         *time.Time
	To           *time.Time
}

func (f Filter) match(e *Entry) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ResourceType != "" && e.ResourceType != f.ResourceType {
		return false
	}
	if f.ResourceID != nil && (e.ResourceID == nil || *e.ResourceID != *f.ResourceID) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.From != nil && e.AccessedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && !e.AccessedAt.Before(*f.To) {
		return false
	}
	return true
}

type Store interface {
	Record(ctx context.Context, e *Entry) error
	// List returns matching entries newest first and the total match count.
	List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error)
}

func prepare(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
	if e.Roles == nil {
		e.Roles = []string{}
	}
}

// -- PostgreSQL --

type pgStore struct{ pool *pgxpool.Pool }

func NewPG(pool *pgxpool.Pool) Store { return &pgStore{pool: pool} }

func (s *pgStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

const entryCols = `id, user_id, user_name, roles, action, resource_type, resource_id, method, path,
	status, ip_address, user_agent, request_id, accessed_at`

func (s *pgStore) Record(ctx context.Context, e *Entry) error {
	prepare(e)
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO access_log (`+entryCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.UserID, e.UserName, e.Roles, e.Action, e.ResourceType, e.ResourceID, e.Method, e.Path,
		e.Status, e.IPAddress, e.UserAgent, e.RequestID, e.AccessedAt)
	if err != nil {
		return fmt.Errorf("audit record: %w", err)
	}
	return nil
}

func (s *pgStore) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}
	idx := 1
	add := func(cond string, v interface{}) {
		where = append(where, fmt.Sprintf(cond, idx))
		args = append(args, v)
		idx++
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ResourceType != "" {
		add("resource_type = $%d", f.ResourceType)
	}
	if f.ResourceID != nil {
		add("resource_id = $%d", *f.ResourceID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.From != nil {
		add("accessed_at >= $%d", *f.From)
	}
	if f.To != nil {
		add("accessed_at < $%d", *f.To)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM access_log WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM access_log WHERE %s ORDER BY accessed_at DESC LIMIT $%d OFFSET $%d`,
		entryCols, clause, idx, idx+1)
	rows, err := s.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, e)
	}
	return items, total, rows.Err()
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.UserID, &e.UserName, &e.Roles, &e.Action, &e.ResourceType, &e.ResourceID,
		&e.Method, &e.Path, &e.Status, &e.IPAddress, &e.UserAgent, &e.RequestID, &e.AccessedAt)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// -- Memory --

// Memory keeps the log in process; used in tests and single-node demos.
type Memory struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Record(_ context.Context, e *Entry) error {
	prepare(e)
	cp := *e
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, &cp)
	return nil
}

func (m *Memory) List(_ context.Context, f Filter, limit, offset int) ([]*Entry, int, error) {
	m.mu.RLock()
	var matched []*Entry
	for _, e := range m.entries {
		if f.match(e) {
			matched = append(matched, e)
		}
	}
	m.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].AccessedAt.After(matched[j].AccessedAt)
	})
	total := len(matched)
	if offset >= total {
		return []*Entry{}, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return matched[offset:end], total, nil
}
