package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/notification"
	"github.com/medconsult/medconsult/internal/platform/websocket"
)

var (
	// ErrConflict is returned when an appointment overlaps another open one.
	ErrConflict = errors.New("appointment overlaps another appointment")
	ErrInvalid  = errors.New("invalid appointment")
)

// maxRange bounds calendar range queries.
const maxRange = 92 * 24 * time.Hour

type Service struct {
	repo      Repository
	events    websocket.Publisher
	messenger Messenger
	logger    zerolog.Logger
}

func NewService(repo Repository, events websocket.Publisher, logger zerolog.Logger) *Service {
	if events == nil {
		events = websocket.NopPublisher{}
	}
	return &Service{repo: repo, events: events, logger: logger}
}

// WithMessenger makes the service notify patients of cancelled appointments.
func (s *Service) WithMessenger(m Messenger) *Service {
	s.messenger = m
	return s
}

func validate(a *Appointment) error {
	if a.PatientName == "" {
		return fmt.Errorf("%w: patient_name is required", ErrInvalid)
	}
	if a.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalid)
	}
	if _, err := time.Parse(timeLayout, a.Time); err != nil {
		return fmt.Errorf("%w: time must be HH:MM", ErrInvalid)
	}
	if a.Duration < 5 || a.Duration > 480 {
		return fmt.Errorf("%w: duration must be between 5 and 480 minutes", ErrInvalid)
	}
	if !validTypes[a.Type] {
		return fmt.Errorf("%w: type must be one of primera-visita, revision, urgencia, telematica", ErrInvalid)
	}
	if !validStatuses[a.Status] {
		return fmt.Errorf("%w: status %q", ErrInvalid, a.Status)
	}
	return nil
}

func normalize(a *Appointment) {
	a.PatientName = strings.TrimSpace(a.PatientName)
	a.Time = strings.TrimSpace(a.Time)
	a.Date = Truncate(a.Date)
	if a.Duration == 0 {
		a.Duration = defaultDuration
	}
	if a.Type == "" {
		a.Type = "revision"
	}
	if a.Status == "" {
		a.Status = StatusScheduled
	}
}

// minutes returns the start and end of a as minutes after midnight.
func minutes(a *Appointment) (int, int) {
	clock, _ := time.Parse(timeLayout, a.Time)
	start := clock.Hour()*60 + clock.Minute()
	return start, start + a.Duration
}

// checkOverlap rejects a when it overlaps another open appointment on the
// same day.
func (s *Service) checkOverlap(ctx context.Context, a *Appointment) error {
	if a.Final() {
		return nil
	}
	day, err := s.GetAppointmentsForDate(ctx, a.Date)
	if err != nil {
		return err
	}
	start, end := minutes(a)
	for _, other := range day {
		if other.ID == a.ID || other.Final() {
			continue
		}
		os, oe := minutes(other)
		if start < oe && os < end {
			return fmt.Errorf("%w: %s %s (%s)", ErrConflict, other.Time, other.PatientName, other.ID)
		}
	}
	return nil
}

func (s *Service) CreateAppointment(ctx context.Context, a *Appointment) error {
	normalize(a)
	if err := validate(a); err != nil {
		return err
	}
	if err := s.checkOverlap(ctx, a); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return err
	}
	s.publish(ctx, "appointment.created", a, a.Date)
	return nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateAppointment applies patch. Final appointments cannot be changed.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, patch Patch) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Final() {
		return nil, fmt.Errorf("%w: appointment is %s", ErrInvalidTransition, a.Status)
	}
	previous := a.Date
	a.Apply(patch)
	normalize(a)
	if err := validate(a); err != nil {
		return nil, err
	}
	if err := s.checkOverlap(ctx, a); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, "appointment.updated", a, previous, a.Date)
	return a, nil
}

// SetStatus moves the appointment to status if the transition is allowed.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Appointment, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !validStatuses[status] {
		return nil, fmt.Errorf("%w: status %q", ErrInvalid, status)
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == status {
		return a, nil
	}
	if !a.CanTransition(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.Status, status)
	}
	a.Status = status
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, err
	}
	s.publish(ctx, "appointment.status", a, a.Date)
	if status == StatusCancelled {
		s.notifyCancelled(ctx, a)
	}
	return a, nil
}

func (s *Service) notifyCancelled(ctx context.Context, a *Appointment) {
	if s.messenger == nil {
		return
	}
	_, err := s.messenger.SendFromTemplate(ctx, notification.TemplateAppointmentCancelled, map[string]string{
		"patient_name": a.PatientName,
		"date":         a.Date.Format("02/01/2006"),
		"time":         a.Time,
	}, recipientOf(a))
	if err != nil {
		s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("deliver cancellation")
	}
}

func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, "appointment.deleted", a, a.Date)
	return nil
}

// GetAppointmentsForDate returns exactly the appointments whose date equals
// day, ignoring the time of day. No matches yield an empty slice.
func (s *Service) GetAppointmentsForDate(ctx context.Context, day time.Time) ([]*Appointment, error) {
	from := Truncate(day)
	items, err := s.repo.ListRange(ctx, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	return FilterByDate(items, from), nil
}

// ListRange returns appointments with from <= date <= to.
func (s *Service) ListRange(ctx context.Context, from, to time.Time) ([]*Appointment, error) {
	from, to = Truncate(from), Truncate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: to must not be before from", ErrInvalid)
	}
	if to.Sub(from) > maxRange {
		return nil, fmt.Errorf("%w: range must not exceed 92 days", ErrInvalid)
	}
	items, err := s.repo.ListRange(ctx, from, to.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Appointment{}
	}
	return items, nil
}

type appointmentEvent struct {
	PatientName string `json:"patient_name"`
	Date        Day    `json:"date"`
	Time        string `json:"time"`
	Status      string `json:"status"`
}

// publish announces a change on the calendar topic and on the topic of each
// distinct day touched.
func (s *Service) publish(ctx context.Context, eventType string, a *Appointment, days ...time.Time) {
	payload := appointmentEvent{PatientName: a.PatientName, Date: Day{a.Date}, Time: a.Time, Status: a.Status}
	topics := []string{websocket.TopicAppointments}
	for i, d := range days {
		if i > 0 && SameDay(d, days[0]) {
			continue
		}
		topics = append(topics, websocket.DayTopic(d))
	}
	for _, topic := range topics {
		evt := websocket.NewEvent(eventType, topic, a.ID.String(), payload)
		if err := s.events.Publish(ctx, evt); err != nil {
			s.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("publish appointment event")
		}
	}
}
