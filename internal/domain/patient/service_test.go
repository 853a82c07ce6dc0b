package patient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	items map[uuid.UUID]*Patient
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockRepo) Create(_ context.Context, p *Patient) error {
	p.ID = uuid.New()
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockRepo) Search(_ context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	var out []*Patient
	q := strings.ToLower(params.Q)
	for _, p := range m.items {
		if q != "" && !strings.Contains(strings.ToLower(p.FullName()), q) {
			continue
		}
		if params.DocumentID != "" && (p.DocumentID == nil || *p.DocumentID != params.DocumentID) {
			continue
		}
		if params.ActiveOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

type mockAnonymousRepo struct {
	items map[uuid.UUID]*AnonymousPatient
}

func newMockAnonymousRepo() *mockAnonymousRepo {
	return &mockAnonymousRepo{items: make(map[uuid.UUID]*AnonymousPatient)}
}

func (m *mockAnonymousRepo) Create(_ context.Context, a *AnonymousPatient) error {
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	m.items[a.ID] = a
	return nil
}

func (m *mockAnonymousRepo) GetByID(_ context.Context, id uuid.UUID) (*AnonymousPatient, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func newTestService() *Service {
	return NewService(newMockRepo(), newMockAnonymousRepo())
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestService_CreatePatient(t *testing.T) {
	svc := newTestService()
	p := &Patient{FirstName: " Ana ", LastName: "García", Gender: strPtr("f")}
	if err := svc.CreatePatient(context.Background(), p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID == uuid.Nil || !p.Active {
		t.Error("expected id and active flag")
	}
	if p.FirstName != "Ana" || *p.Gender != "F" {
		t.Errorf("expected normalized fields, got %q %q", p.FirstName, *p.Gender)
	}
}

func TestService_CreatePatient_Validation(t *testing.T) {
	svc := newTestService()
	tests := []struct {
		name string
		p    *Patient
	}{
		{"missing last name", &Patient{FirstName: "Ana"}},
		{"bad gender", &Patient{FirstName: "Ana", LastName: "García", Gender: strPtr("X")}},
		{"bad email", &Patient{FirstName: "Ana", LastName: "García", Email: strPtr("ana.example.com")}},
	}
	for _, tt := range tests {
		if err := svc.CreatePatient(context.Background(), tt.p); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestService_UpdatePatient(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	p := &Patient{FirstName: "Luis", LastName: "Pérez", Phone: strPtr("600111222")}
	if err := svc.CreatePatient(ctx, p); err != nil {
		t.Fatal(err)
	}

	updated, err := svc.UpdatePatient(ctx, p.ID, Patch{
		Phone: strPtr(""),
		MedicalHistory: &HistoryPatch{
			Hypertension: boolPtr(true),
			Allergies:    strPtr("Penicilina"),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Phone != nil {
		t.Error("expected phone cleared")
	}
	if !updated.MedicalHistory.Hypertension || *updated.MedicalHistory.Allergies != "Penicilina" {
		t.Errorf("unexpected history %+v", updated.MedicalHistory)
	}
	if updated.FirstName != "Luis" {
		t.Error("untouched fields must be kept")
	}

	if _, err := svc.UpdatePatient(ctx, p.ID, Patch{LastName: strPtr(" ")}); err == nil {
		t.Error("expected validation error for blank last name")
	}
	if _, err := svc.UpdatePatient(ctx, uuid.New(), Patch{}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestService_SearchPatients(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	for _, name := range []string{"Ana García", "Luis Pérez", "Ana Ruiz"} {
		parts := strings.SplitN(name, " ", 2)
		if err := svc.CreatePatient(ctx, &Patient{FirstName: parts[0], LastName: parts[1]}); err != nil {
			t.Fatal(err)
		}
	}
	items, total, err := svc.SearchPatients(ctx, SearchParams{Q: "ana", ActiveOnly: true}, 20, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("expected 2 matches, got %d", total)
	}
	items, _, _ = svc.SearchPatients(ctx, SearchParams{Q: "nadie"}, 20, 0)
	if items == nil {
		t.Error("expected empty non-nil slice")
	}
}

func TestService_CreateAnonymous(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	a := &AnonymousPatient{Age: 40, Gender: "m"}
	if err := svc.CreateAnonymous(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Gender != "M" || !strings.HasPrefix(a.Alias, "Anónimo ") {
		t.Errorf("unexpected anonymous patient %+v", a)
	}
	got, err := svc.GetAnonymous(ctx, a.ID)
	if err != nil || got.Alias != a.Alias {
		t.Errorf("expected stored alias, got %v", err)
	}

	for _, bad := range []*AnonymousPatient{{Age: 40}, {Age: 200, Gender: "F"}, {Age: 3, Gender: "Z"}} {
		if err := svc.CreateAnonymous(ctx, bad); err == nil {
			t.Errorf("expected error for %+v", bad)
		}
	}
}
