package consultation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/cache"
	"github.com/medconsult/medconsult/internal/platform/websocket"
)

const listCachePrefix = "consultations:list:"

// TxRunner runs fn inside one database transaction.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TemplateSource resolves the template a consultation was filled from.
type TemplateSource interface {
	GetTemplate(ctx context.Context, id uuid.UUID) (*forms.FormTemplate, error)
}

// Calculator recomputes a template's calculated fields in answers. inputs
// fill keys the answers leave empty and are never written back.
type Calculator interface {
	Fill(tpl *forms.FormTemplate, answers, inputs forms.AnswerMap)
}

type Service struct {
	repo       Repository
	tx         TxRunner
	templates  TemplateSource
	calculator Calculator
	cache      cache.Cache
	ttl        time.Duration
	events     websocket.Publisher
	logger     zerolog.Logger
}

func NewService(repo Repository, tx TxRunner, templates TemplateSource, c cache.Cache, ttl time.Duration,
	events websocket.Publisher, logger zerolog.Logger) *Service {
	return &Service{repo: repo, tx: tx, templates: templates, cache: c, ttl: ttl, events: events, logger: logger}
}

// WithCalculator makes stored calculated values come from c. Without one,
// client values for calculated fields are dropped.
func (s *Service) WithCalculator(c Calculator) *Service {
	s.calculator = c
	return s
}

// settle replaces whatever the client sent for tpl's calculated fields with
// the engine's values, computed with the basic data as age and gender.
func (s *Service) settle(tpl *forms.FormTemplate, basic BasicData, answers forms.AnswerMap) {
	if s.calculator != nil {
		s.calculator.Fill(tpl, answers, basic.Inputs())
		return
	}
	for _, f := range tpl.Fields() {
		if f.IsCalculated {
			delete(answers, f.Name)
		}
	}
}

// CreateConsultation validates the basic data, stores the consultation with
// one response per answered field in a single transaction and announces it.
// Calculated fields of the template are recomputed before storing. Nothing
// is written when validation fails.
func (s *Service) CreateConsultation(ctx context.Context, basic BasicData, specialtyID uuid.UUID,
	templateID *uuid.UUID, answers forms.AnswerMap) (*Consultation, error) {
	var missing []string
	var incomplete *IncompleteError
	if errors.As(basic.Validate(), &incomplete) {
		missing = append(missing, incomplete.Missing...)
	}
	if specialtyID == uuid.Nil {
		missing = append(missing, "especialidad")
	}
	if len(missing) > 0 {
		return nil, &IncompleteError{Missing: missing}
	}
	years, err := basic.Years()
	if err != nil {
		return nil, err
	}
	if answers == nil {
		answers = forms.AnswerMap{}
	}

	c := &Consultation{
		PatientID:          basic.PatientID,
		AnonymousPatientID: basic.AnonymousPatientID,
		Age:                years,
		Gender:             strings.TrimSpace(basic.Gender),
		SpecialtyID:        specialtyID,
		TemplateID:         templateID,
		Answers:            answers.Clone(),
		CreatedBy:          auth.UserIDFromContext(ctx),
	}

	var fieldIDs map[string]uuid.UUID
	if templateID != nil && s.templates != nil {
		tpl, err := s.templates.GetTemplate(ctx, *templateID)
		if err != nil {
			return nil, fmt.Errorf("load template %s: %w", *templateID, err)
		}
		s.settle(tpl, basic, c.Answers)
		fieldIDs = tpl.FieldIDs()
	}
	responses := ResponsesFromAnswers(c.Answers, fieldIDs)

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, c); err != nil {
			return fmt.Errorf("store consultation: %w", err)
		}
		if err := s.repo.AddResponses(ctx, c.ID, responses); err != nil {
			return fmt.Errorf("store responses: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.Responses = responses

	s.invalidate(ctx)
	s.publish(ctx, "consultation.created", c)
	return c, nil
}

// ResponsesFromAnswers flattens non-empty answers into responses in key
// order, linking field ids when known.
func ResponsesFromAnswers(answers forms.AnswerMap, fieldIDs map[string]uuid.UUID) []*Response {
	var out []*Response
	for _, name := range answers.Keys() {
		v := answers[name]
		if v.IsEmpty() {
			continue
		}
		resp := &Response{FieldName: name, Value: v}
		if id, ok := fieldIDs[name]; ok {
			id := id
			resp.FieldID = &id
		}
		out = append(out, resp)
	}
	return out
}

func (s *Service) GetConsultation(ctx context.Context, id uuid.UUID) (*Consultation, error) {
	c, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	responses, err := s.repo.ListResponses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load responses: %w", err)
	}
	c.Responses = responses
	return c, nil
}

type cachedPage struct {
	Items []*Consultation `json:"items"`
	Total int             `json:"total"`
}

// ListConsultations pages through consultations, newest first. Unfiltered
// pages are cached until the next write.
func (s *Service) ListConsultations(ctx context.Context, filter ListFilter, limit, offset int) ([]*Consultation, int, error) {
	key := fmt.Sprintf("%s%d:%d", listCachePrefix, limit, offset)
	if filter.IsZero() {
		if page, ok := cache.GetJSON[cachedPage](ctx, s.cache, key); ok {
			return page.Items, page.Total, nil
		}
	}
	items, total, err := s.repo.List(ctx, filter, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Consultation{}
	}
	if filter.IsZero() {
		if err := cache.SetJSON(ctx, s.cache, key, cachedPage{Items: items, Total: total}, s.ttl); err != nil {
			s.logger.Warn().Err(err).Msg("cache consultation list")
		}
	}
	return items, total, nil
}

// AddResponses appends responses to an existing consultation. Responses
// for calculated fields of its template are rejected.
func (s *Service) AddResponses(ctx context.Context, consultationID uuid.UUID, responses []*Response) error {
	if consultationID == uuid.Nil {
		return fmt.Errorf("consultation_id is required")
	}
	if len(responses) == 0 {
		return fmt.Errorf("responses are required")
	}
	for i, r := range responses {
		if strings.TrimSpace(r.FieldName) == "" {
			return fmt.Errorf("responses[%d].field_name is required", i)
		}
	}
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetByID(ctx, consultationID)
		if err != nil {
			return err
		}
		if err := s.checkWritable(ctx, c, responses); err != nil {
			return err
		}
		return s.repo.AddResponses(ctx, consultationID, responses)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) checkWritable(ctx context.Context, c *Consultation, responses []*Response) error {
	if c.TemplateID == nil || s.templates == nil {
		return nil
	}
	tpl, err := s.templates.GetTemplate(ctx, *c.TemplateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", *c.TemplateID, err)
	}
	for _, r := range responses {
		if f, ok := tpl.Field(r.FieldName); ok && f.IsCalculated {
			return fmt.Errorf("%w: %s", ErrCalculatedField, r.FieldName)
		}
	}
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.DeletePrefix(ctx, listCachePrefix); err != nil {
		s.logger.Warn().Err(err).Msg("invalidate consultation list cache")
	}
}

type createdEvent struct {
	SpecialtyID uuid.UUID  `json:"specialty_id"`
	PatientID   *uuid.UUID `json:"patient_id,omitempty"`
	Age         int        `json:"age"`
	Gender      string     `json:"gender"`
}

func (s *Service) publish(ctx context.Context, eventType string, c *Consultation) {
	evt := websocket.NewEvent(eventType, websocket.TopicConsultations, c.ID.String(), createdEvent{
		SpecialtyID: c.SpecialtyID, PatientID: c.PatientID, Age: c.Age, Gender: c.Gender,
	})
	if err := s.events.Publish(ctx, evt); err != nil {
		s.logger.Warn().Err(err).Str("consultation_id", c.ID.String()).Msg("publish consultation event")
	}
}
