package forms

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/platform/cache"
)

const (
	cachePrefix       = "forms:"
	specialtiesKey    = cachePrefix + "specialties"
	templateKeyPrefix = cachePrefix + "template:"
)

// ErrCheckboxCondition rejects a visibility condition on a checkbox. A
// checkbox answer is a boolean and never equals a condition's text value.
var ErrCheckboxCondition = errors.New("conditional_field cannot be a checkbox")

type Service struct {
	specialties SpecialtyRepository
	templates   TemplateRepository
	sections    SectionRepository
	fields      FieldRepository
	cache       cache.Cache
	ttl         time.Duration
	formulas    *calc.Registry
	logger      zerolog.Logger
}

func NewService(sp SpecialtyRepository, tp TemplateRepository, sec SectionRepository, fld FieldRepository,
	c cache.Cache, ttl time.Duration, formulas *calc.Registry) *Service {
	return &Service{
		specialties: sp, templates: tp, sections: sec, fields: fld,
		cache: c, ttl: ttl, formulas: formulas, logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger that reports cache failures.
func (s *Service) WithLogger(logger zerolog.Logger) *Service {
	s.logger = logger
	return s
}

func (s *Service) store(ctx context.Context, key string, v interface{}) {
	if err := cache.SetJSON(ctx, s.cache, key, v, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache forms")
	}
}

// -- Specialty --

func (s *Service) ListSpecialties(ctx context.Context) ([]*Specialty, error) {
	if items, ok := cache.GetJSON[[]*Specialty](ctx, s.cache, specialtiesKey); ok {
		return items, nil
	}
	items, err := s.specialties.List(ctx, true)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Specialty{}
	}
	s.store(ctx, specialtiesKey, items)
	return items, nil
}

func (s *Service) GetSpecialty(ctx context.Context, id uuid.UUID) (*Specialty, error) {
	return s.specialties.GetByID(ctx, id)
}

func (s *Service) CreateSpecialty(ctx context.Context, sp *Specialty) error {
	sp.Code = strings.TrimSpace(sp.Code)
	if sp.Code == "" {
		return fmt.Errorf("code is required")
	}
	if strings.TrimSpace(sp.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if err := s.specialties.Create(ctx, sp); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// -- Template --

func (s *Service) ListTemplates(ctx context.Context, specialtyID uuid.UUID) ([]*FormTemplate, error) {
	items, err := s.templates.ListBySpecialty(ctx, specialtyID, false)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*FormTemplate{}
	}
	return items, nil
}

func (s *Service) CreateTemplate(ctx context.Context, t *FormTemplate) error {
	if t.SpecialtyID == uuid.Nil {
		return fmt.Errorf("specialty_id is required")
	}
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if _, err := s.specialties.GetByID(ctx, t.SpecialtyID); err != nil {
		return fmt.Errorf("specialty %s: %w", t.SpecialtyID, err)
	}
	if t.Version == 0 {
		t.Version = 1
	}
	if err := s.templates.Create(ctx, t); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// GetTemplate returns the template with its sections and fields assembled
// in display order.
func (s *Service) GetTemplate(ctx context.Context, id uuid.UUID) (*FormTemplate, error) {
	key := templateKeyPrefix + id.String()
	if t, ok := cache.GetJSON[*FormTemplate](ctx, s.cache, key); ok && t != nil {
		return t, nil
	}

	t, err := s.templates.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sections, err := s.sections.ListByTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load sections: %w", err)
	}
	fields, err := s.fields.ListByTemplate(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	Assemble(t, sections, fields)

	s.store(ctx, key, t)
	return t, nil
}

// LoadForSpecialty assembles the newest active template of a specialty.
func (s *Service) LoadForSpecialty(ctx context.Context, specialtyID uuid.UUID) (*FormTemplate, error) {
	items, err := s.templates.ListBySpecialty(ctx, specialtyID, true)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("no active template for specialty %s: %w", specialtyID, ErrNotFound)
	}
	return s.GetTemplate(ctx, items[0].ID)
}

// Assemble attaches sections to t and fields to their sections, both sorted
// by order.
func Assemble(t *FormTemplate, sections []*FormSection, fields []*FormField) {
	byID := make(map[uuid.UUID]*FormSection, len(sections))
	for _, sec := range sections {
		sec.Fields = nil
		byID[sec.ID] = sec
	}
	for _, f := range fields {
		if sec, ok := byID[f.SectionID]; ok {
			sec.Fields = append(sec.Fields, f)
		}
	}
	sort.SliceStable(sections, func(i, j int) bool { return sections[i].Order < sections[j].Order })
	for _, sec := range sections {
		sort.SliceStable(sec.Fields, func(i, j int) bool { return sec.Fields[i].Order < sec.Fields[j].Order })
	}
	t.Sections = sections
}

// -- Section --

func (s *Service) ListSections(ctx context.Context, templateID uuid.UUID) ([]*FormSection, error) {
	items, err := s.sections.ListByTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*FormSection{}
	}
	return items, nil
}

func (s *Service) CreateSection(ctx context.Context, sec *FormSection) error {
	if sec.TemplateID == uuid.Nil {
		return fmt.Errorf("template_id is required")
	}
	if strings.TrimSpace(sec.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(sec.Title) == "" {
		sec.Title = sec.Name
	}
	if err := checkConditionPair(sec.ConditionalField, sec.ConditionalValue); err != nil {
		return err
	}
	if _, err := s.templates.GetByID(ctx, sec.TemplateID); err != nil {
		return fmt.Errorf("template %s: %w", sec.TemplateID, err)
	}
	if err := s.checkConditionTarget(ctx, sec.TemplateID, sec.ConditionalField); err != nil {
		return err
	}
	if err := s.sections.Create(ctx, sec); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// -- Field --

func (s *Service) ListFields(ctx context.Context, sectionID uuid.UUID) ([]*FormField, error) {
	items, err := s.fields.ListBySection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*FormField{}
	}
	return items, nil
}

func (s *Service) CreateField(ctx context.Context, f *FormField) error {
	if err := s.ValidateField(f); err != nil {
		return err
	}
	sec, err := s.sections.GetByID(ctx, f.SectionID)
	if err != nil {
		return fmt.Errorf("section %s: %w", f.SectionID, err)
	}
	if err := s.checkConditionTarget(ctx, sec.TemplateID, f.ConditionalField); err != nil {
		return err
	}
	if err := s.fields.Create(ctx, f); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

// ValidateField checks a field definition without touching storage.
func (s *Service) ValidateField(f *FormField) error {
	if f.SectionID == uuid.Nil {
		return fmt.Errorf("section_id is required")
	}
	if !validFieldName(f.Name) {
		return fmt.Errorf("name must be a letter or underscore followed by letters, digits or underscores")
	}
	if strings.TrimSpace(f.Label) == "" {
		return fmt.Errorf("label is required")
	}
	if !f.Type.Valid() {
		return fmt.Errorf("type is required")
	}
	if f.Type.HasOptions() && len(f.Options) == 0 {
		return fmt.Errorf("options are required for %s fields", f.Type)
	}
	if f.Validation != nil && f.Validation.Min != nil && f.Validation.Max != nil &&
		*f.Validation.Min > *f.Validation.Max {
		return fmt.Errorf("validation.min must not exceed validation.max")
	}
	if f.IsCalculated {
		if f.Calculation == nil {
			return fmt.Errorf("calculation is required for calculated fields")
		}
		if err := s.formulas.Validate(*f.Calculation); err != nil {
			return err
		}
	}
	return checkConditionPair(f.ConditionalField, f.ConditionalValue)
}

// checkConditionTarget rejects a condition naming a checkbox of the
// template. Targets not defined yet are accepted.
func (s *Service) checkConditionTarget(ctx context.Context, templateID uuid.UUID, field *string) error {
	if field == nil || strings.TrimSpace(*field) == "" {
		return nil
	}
	fields, err := s.fields.ListByTemplate(ctx, templateID)
	if err != nil {
		return fmt.Errorf("load fields: %w", err)
	}
	name := strings.TrimSpace(*field)
	for _, other := range fields {
		if other.Name == name && other.Type == FieldCheckbox {
			return fmt.Errorf("%w: %s", ErrCheckboxCondition, name)
		}
	}
	return nil
}

func checkConditionPair(field, value *string) error {
	hasField := field != nil && strings.TrimSpace(*field) != ""
	if hasField && value == nil {
		return fmt.Errorf("conditional_value is required with conditional_field")
	}
	if !hasField && value != nil {
		return fmt.Errorf("conditional_field is required with conditional_value")
	}
	return nil
}

func validFieldName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_' || unicode.IsLetter(r):
		case i > 0 && unicode.IsDigit(r):
		default:
			return false
		}
	}
	return true
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate forms cache")
	}
}
