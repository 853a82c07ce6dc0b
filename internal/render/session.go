package render

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/medconsult/medconsult/internal/calc"
	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/domain/forms"
)

// State is the lifecycle stage of a form session.
type State int

const (
	StateNoTemplate State = iota
	StateTemplateLoading
	StateTemplateReady
	StateSubmitting
	StateDone
	StateError
)

var stateNames = [...]string{
	StateNoTemplate:      "no_template",
	StateTemplateLoading: "template_loading",
	StateTemplateReady:   "template_ready",
	StateSubmitting:      "submitting",
	StateDone:            "done",
	StateError:           "error",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "State(" + strconv.Itoa(int(s)) + ")"
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

var (
	ErrCalculatedField = errors.New("calculated fields are read-only")
	ErrUnknownField    = errors.New("unknown field")
	ErrInvalidValue    = errors.New("invalid value")
	ErrInvalidState    = errors.New("invalid session state")
	ErrNoSuchSection   = errors.New("section out of range")
)

// TemplateLoader resolves the active template of a specialty.
type TemplateLoader interface {
	LoadForSpecialty(ctx context.Context, specialtyID uuid.UUID) (*forms.FormTemplate, error)
}

// Submitter persists a finished form.
type Submitter interface {
	CreateConsultation(ctx context.Context, basic consultation.BasicData, specialtyID uuid.UUID,
		templateID *uuid.UUID, answers forms.AnswerMap) (*consultation.Consultation, error)
}

// Session drives one clinician through one template. It is safe for
// concurrent use.
type Session struct {
	id        uuid.UUID
	loader    TemplateLoader
	submitter Submitter
	engine    *Engine

	incremental bool

	mu           sync.Mutex
	gen          int
	state        State
	specialtyID  uuid.UUID
	basic        consultation.BasicData
	template     *forms.FormTemplate
	graph        *DependencyGraph
	answers      forms.AnswerMap
	results      map[string]calc.Result
	section      int
	lastErr      error
	consultation *consultation.Consultation
}

type Option func(*Session)

// WithIncrementalRecompute makes SetAnswer recompute only the calculated
// fields downstream of the changed answer.
func WithIncrementalRecompute() Option {
	return func(s *Session) { s.incremental = true }
}

func NewSession(loader TemplateLoader, submitter Submitter, engine *Engine, opts ...Option) *Session {
	if engine == nil {
		engine = NewEngine(nil)
	}
	s := &Session{
		id:        uuid.New(),
		loader:    loader,
		submitter: submitter,
		engine:    engine,
		answers:   forms.AnswerMap{},
		results:   map[string]calc.Result{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError is the error of the last failed load or submit.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SelectSpecialty loads the specialty's template and starts a fresh form
// on its first section. A later selection supersedes one still loading.
func (s *Session) SelectSpecialty(ctx context.Context, specialtyID uuid.UUID) error {
	s.mu.Lock()
	if s.state == StateSubmitting {
		s.mu.Unlock()
		return fmt.Errorf("%w: submission in progress", ErrInvalidState)
	}
	s.gen++
	gen := s.gen
	s.state = StateTemplateLoading
	s.specialtyID = specialtyID
	s.mu.Unlock()

	tpl, err := s.loader.LoadForSpecialty(ctx, specialtyID)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return nil
	}
	if err != nil {
		s.state = StateError
		s.template = nil
		s.graph = nil
		s.lastErr = err
		return err
	}
	s.template = tpl
	s.graph = s.engine.Graph(tpl)
	s.answers = forms.AnswerMap{}
	s.results = s.engine.RecomputeWith(s.graph, s.answers, s.basic.Inputs())
	s.section = 0
	s.lastErr = nil
	s.consultation = nil
	s.state = StateTemplateReady
	return nil
}

func (s *Session) ready() error {
	if s.state != StateTemplateReady {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	return nil
}

// GoToSection jumps to section i regardless of its visibility.
func (s *Session) GoToSection(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	if i < 0 || i >= len(s.template.Sections) {
		return fmt.Errorf("%w: %d", ErrNoSuchSection, i)
	}
	s.section = i
	return nil
}

// Next moves to the following visible section, staying put on the last one.
func (s *Session) Next() error { return s.step(1) }

// Prev moves to the preceding visible section, staying put on the first one.
func (s *Session) Prev() error { return s.step(-1) }

func (s *Session) step(dir int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	for i := s.section + dir; i >= 0 && i < len(s.template.Sections); i += dir {
		if SectionVisible(s.template.Sections[i], s.answers) {
			s.section = i
			return nil
		}
	}
	return nil
}

// SetBasicData records the patient's age and gender. Scores read them as
// forms.KeyAge and forms.KeyGender when the form does not ask for them.
// Partial data is accepted; Submit validates it.
func (s *Session) SetBasicData(basic consultation.BasicData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSubmitting || s.state == StateDone {
		return fmt.Errorf("%w: %s", ErrInvalidState, s.state)
	}
	s.basic = basic
	if s.state == StateTemplateReady {
		s.recompute(forms.KeyAge, forms.KeyGender)
	}
	return nil
}

// SetAnswer stores v for the named field and recomputes calculated fields.
// An empty value clears the answer.
func (s *Session) SetAnswer(name string, v forms.Value) error {
	return s.SetAnswers(forms.AnswerMap{name: v})
}

// SetAnswers stores several answers at once. Every value is checked before
// any is written, so a rejected batch leaves the form unchanged.
func (s *Session) SetAnswers(answers forms.AnswerMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ready(); err != nil {
		return err
	}
	names := answers.Keys()
	checked := make(forms.AnswerMap, len(names))
	for _, name := range names {
		f, ok := s.template.Field(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		if f.IsCalculated {
			return fmt.Errorf("%w: %s", ErrCalculatedField, name)
		}
		v, err := coerce(f, answers[name])
		if err != nil {
			return err
		}
		checked[name] = v
	}
	for _, name := range names {
		s.answers.Set(name, checked[name])
	}
	s.recompute(names...)
	return nil
}

// recompute refreshes calculated fields after the changed keys. Callers hold
// s.mu.
func (s *Session) recompute(changed ...string) {
	inputs := s.basic.Inputs()
	if !s.incremental || len(changed) == 0 {
		s.results = s.engine.RecomputeWith(s.graph, s.answers, inputs)
		return
	}
	for k, res := range s.engine.RecomputeWith(s.graph, s.answers, inputs, changed...) {
		s.results[k] = res
	}
	for _, k := range s.graph.Affected(changed...) {
		if _, ok := s.answers[k]; !ok {
			delete(s.results, k)
		}
	}
}

// coerce checks v against the field type, parsing numeric text.
func coerce(f *forms.FormField, v forms.Value) (forms.Value, error) {
	if v.Kind() == forms.KindNone {
		return v, nil
	}
	bad := func() (forms.Value, error) {
		return forms.Value{}, fmt.Errorf("%w: %s expects %s", ErrInvalidValue, f.Name, f.Type)
	}
	switch f.Type {
	case forms.FieldNumber:
		if _, ok := v.AsNumber(); ok {
			return v, nil
		}
		text, ok := v.AsText()
		if !ok {
			return bad()
		}
		if strings.TrimSpace(text) == "" {
			return forms.Value{}, nil
		}
		x, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(text), ",", "."), 64)
		if err != nil {
			return bad()
		}
		return forms.Number(x), nil
	case forms.FieldCheckbox:
		if _, ok := v.AsBool(); !ok {
			return bad()
		}
		return v, nil
	case forms.FieldSelect, forms.FieldRadio:
		text, ok := v.AsText()
		if !ok {
			return bad()
		}
		if text != "" && len(f.Options) > 0 && !f.Options.Contains(text) {
			return forms.Value{}, fmt.Errorf("%w: %q is not an option of %s", ErrInvalidValue, text, f.Name)
		}
		return v, nil
	case forms.FieldText, forms.FieldTextarea:
		if _, ok := v.AsText(); !ok {
			return bad()
		}
		return v, nil
	}
	return bad()
}

// Submit validates basic and hands the answers to the submitter. Invalid
// basic data fails without leaving TemplateReady; a submit failure returns
// to TemplateReady with the error recorded.
func (s *Session) Submit(ctx context.Context, basic consultation.BasicData) (*consultation.Consultation, error) {
	s.mu.Lock()
	if err := s.ready(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if err := basic.Validate(); err != nil {
		s.lastErr = err
		s.mu.Unlock()
		return nil, err
	}
	s.basic = basic
	s.recompute(forms.KeyAge, forms.KeyGender)
	s.state = StateSubmitting
	specialtyID := s.specialtyID
	templateID := s.template.ID
	answers := s.answers.Clone()
	s.mu.Unlock()

	c, err := s.submitter.CreateConsultation(ctx, basic, specialtyID, &templateID, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateTemplateReady
		s.lastErr = err
		return nil, err
	}
	s.state = StateDone
	s.lastErr = nil
	s.consultation = c
	return c, nil
}

// Snapshot is a consistent copy of the session for display.
type Snapshot struct {
	ID             uuid.UUID              `json:"id"`
	State          State                  `json:"state"`
	SpecialtyID    *uuid.UUID             `json:"specialty_id,omitempty"`
	TemplateID     *uuid.UUID             `json:"template_id,omitempty"`
	TemplateName   string                 `json:"template_name,omitempty"`
	Section        int                    `json:"section"`
	SectionCount   int                    `json:"section_count"`
	Answers        forms.AnswerMap        `json:"answers"`
	BasicData      consultation.BasicData `json:"basic_data"`
	View           *View                  `json:"view,omitempty"`
	LastError      string                 `json:"last_error,omitempty"`
	ConsultationID *uuid.UUID             `json:"consultation_id,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.id,
		State:     s.state,
		Section:   s.section,
		Answers:   s.answers.Clone(),
		BasicData: s.basic,
	}
	if s.specialtyID != uuid.Nil {
		id := s.specialtyID
		snap.SpecialtyID = &id
	}
	if s.template != nil {
		id := s.template.ID
		snap.TemplateID = &id
		snap.TemplateName = s.template.Name
		snap.SectionCount = len(s.template.Sections)
		view := Render(s.template, s.answers, s.results)
		snap.View = &view
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.consultation != nil {
		id := s.consultation.ID
		snap.ConsultationID = &id
	}
	return snap
}

// Answers returns a copy of the current answers.
func (s *Session) Answers() forms.AnswerMap {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.answers.Clone()
}

// Results returns the latest calculated results keyed by field name.
func (s *Session) Results() map[string]calc.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]calc.Result, len(s.results))
	for k, v := range s.results {
		out[k] = v
	}
	return out
}
