package scheduling

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/notification"
	"github.com/medconsult/medconsult/internal/platform/websocket"
)

// Messenger renders and delivers a templated patient message.
type Messenger interface {
	SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*notification.Message, error)
}

// ReminderJob announces appointments that start within the lead time. Each
// appointment is reminded once; rescheduling it clears the mark.
type ReminderJob struct {
	repo      Repository
	events    websocket.Publisher
	messenger Messenger
	lead      time.Duration
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReminderJob(repo Repository, events websocket.Publisher, messenger Messenger, lead time.Duration,
	loc *time.Location, logger zerolog.Logger) *ReminderJob {
	if events == nil {
		events = websocket.NopPublisher{}
	}
	if loc == nil {
		loc = time.Local
	}
	return &ReminderJob{
		repo: repo, events: events, messenger: messenger, lead: lead, loc: loc,
		now: time.Now, logger: logger,
	}
}

// recipientOf addresses a notification to the registered patient when there
// is one, else to the name on the appointment.
func recipientOf(a *Appointment) string {
	if a.PatientID != nil {
		return a.PatientID.String()
	}
	return a.PatientName
}

type reminderEvent struct {
	PatientName string    `json:"patient_name"`
	StartsAt    time.Time `json:"starts_at"`
	Type        string    `json:"type"`
	Message     string    `json:"message,omitempty"`
}

// Run sends the reminders due now and returns how many were sent.
func (j *ReminderJob) Run(ctx context.Context) (int, error) {
	now := j.now().In(j.loc)
	until := now.Add(j.lead)

	days := []time.Time{Truncate(now)}
	if last := Truncate(until); !last.Equal(days[0]) {
		days = append(days, last)
	}
	due, err := j.repo.DueForReminder(ctx, days)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, a := range due {
		start, err := a.StartsAt(j.loc)
		if err != nil {
			j.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("skip reminder")
			continue
		}
		if start.Before(now) || start.After(until) {
			continue
		}

		payload := reminderEvent{PatientName: a.PatientName, StartsAt: start, Type: a.Type}
		if j.messenger != nil {
			msg, err := j.messenger.SendFromTemplate(ctx, notification.TemplateAppointmentReminder, map[string]string{
				"patient_name": a.PatientName,
				"date":         start.Format("02/01/2006"),
				"time":         a.Time,
				"type":         a.Type,
			}, recipientOf(a))
			if err != nil {
				j.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("deliver reminder")
			}
			if msg != nil {
				payload.Message = msg.Body
			}
		}

		for _, topic := range []string{websocket.TopicAppointments, websocket.DayTopic(a.Date)} {
			evt := websocket.NewEvent("appointment.reminder", topic, a.ID.String(), payload)
			if err := j.events.Publish(ctx, evt); err != nil {
				j.logger.Warn().Err(err).Str("appointment_id", a.ID.String()).Msg("publish reminder")
			}
		}
		if err := j.repo.MarkReminderSent(ctx, a.ID, j.now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

// Schedule registers the job on s to run every interval. Runs never overlap.
func (j *ReminderJob) Schedule(ctx context.Context, s *gocron.Scheduler, every time.Duration) (*gocron.Job, error) {
	return s.Every(every).SingletonMode().Do(func() {
		runCtx, cancel := context.WithTimeout(ctx, every)
		defer cancel()
		n, err := j.Run(runCtx)
		if err != nil {
			j.logger.Error().Err(err).Msg("appointment reminders")
			return
		}
		if n > 0 {
			j.logger.Info().Int("sent", n).Msg("appointment reminders")
		}
	})
}
