package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var genders = map[string]bool{"F": true, "M": true, "O": true}

type Service struct {
	patients  Repository
	anonymous AnonymousRepository
}

func NewService(patients Repository, anonymous AnonymousRepository) *Service {
	return &Service{patients: patients, anonymous: anonymous}
}

func validate(p *Patient) error {
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if p.Gender != nil && !genders[strings.ToUpper(*p.Gender)] {
		return fmt.Errorf("gender must be one of F, M, O")
	}
	if p.Email != nil && !strings.Contains(*p.Email, "@") {
		return fmt.Errorf("email is invalid")
	}
	return nil
}

func (s *Service) CreatePatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if err := validate(p); err != nil {
		return err
	}
	if p.Gender != nil {
		g := strings.ToUpper(*p.Gender)
		p.Gender = &g
	}
	p.Active = true
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient applies patch to the stored patient and saves it.
func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, patch Patch) (*Patient, error) {
	p, err := s.patients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Apply(patch)
	if err := validate(p); err != nil {
		return nil, err
	}
	if p.Gender != nil {
		g := strings.ToUpper(*p.Gender)
		p.Gender = &g
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) SearchPatients(ctx context.Context, params SearchParams, limit, offset int) ([]*Patient, int, error) {
	items, total, err := s.patients.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Patient{}
	}
	return items, total, nil
}

// CreateAnonymous records a patient known only by age and gender. A blank
// alias gets a random short code.
func (s *Service) CreateAnonymous(ctx context.Context, a *AnonymousPatient) error {
	a.Gender = strings.ToUpper(strings.TrimSpace(a.Gender))
	if a.Gender == "" {
		return fmt.Errorf("gender is required")
	}
	if !genders[a.Gender] {
		return fmt.Errorf("gender must be one of F, M, O")
	}
	if a.Age < 0 || a.Age > 130 {
		return fmt.Errorf("age must be between 0 and 130")
	}
	a.Alias = strings.TrimSpace(a.Alias)
	if a.Alias == "" {
		a.Alias = "Anónimo " + strings.ToUpper(uuid.NewString()[:8])
	}
	return s.anonymous.Create(ctx, a)
}

func (s *Service) GetAnonymous(ctx context.Context, id uuid.UUID) (*AnonymousPatient, error) {
	return s.anonymous.GetByID(ctx, id)
}
