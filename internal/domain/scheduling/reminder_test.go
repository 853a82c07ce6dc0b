package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/notification"
)

type fakeMessenger struct {
	calls []map[string]string
	err   error
}

func (f *fakeMessenger) SendFromTemplate(_ context.Context, templateID string, data map[string]string, recipient string) (*notification.Message, error) {
	f.calls = append(f.calls, data)
	if f.err != nil {
		return nil, f.err
	}
	return &notification.Message{TemplateID: templateID, Recipient: recipient, Body: "Recordatorio " + data["patient_name"]}, nil
}

func newTestReminder(now time.Time) (*ReminderJob, *Service, *mockRepo, *recordingPublisher, *fakeMessenger) {
	svc, repo, pub := newTestService()
	msg := &fakeMessenger{}
	job := NewReminderJob(repo, pub, msg, time.Hour, time.UTC, zerolog.Nop())
	job.now = func() time.Time { return now }
	return job, svc, repo, pub, msg
}

func TestReminderJob_Run(t *testing.T) {
	now := time.Date(2026, 3, 3, 8, 45, 0, 0, time.UTC)
	job, svc, repo, pub, msg := newTestReminder(now)

	soon := mustCreate(t, svc, "Ana", "2026-03-03", "09:30")
	mustCreate(t, svc, "Luis", "2026-03-03", "11:00")
	mustCreate(t, svc, "Eva", "2026-03-03", "08:00")
	cancelled := mustCreate(t, svc, "Iker", "2026-03-03", "09:00")
	if _, err := svc.SetStatus(context.Background(), cancelled.ID, StatusCancelled); err != nil {
		t.Fatal(err)
	}

	n, err := job.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reminder, got %d", n)
	}
	if _, ok := repo.reminded[soon.ID]; !ok {
		t.Error("expected reminder mark on the upcoming appointment")
	}
	topics := pub.topics("appointment.reminder")
	if len(topics) != 2 || topics[1] != "appointments/2026-03-03" {
		t.Errorf("unexpected reminder topics %v", topics)
	}
	if len(msg.calls) != 1 || msg.calls[0]["time"] != "09:30" || msg.calls[0]["date"] != "03/03/2026" {
		t.Errorf("unexpected messenger calls %v", msg.calls)
	}

	// A second run does not remind again.
	n, err = job.Run(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected no repeat reminders, got %d %v", n, err)
	}
}

func TestReminderJob_AcrossMidnight(t *testing.T) {
	now := time.Date(2026, 3, 3, 23, 30, 0, 0, time.UTC)
	job, svc, _, _, _ := newTestReminder(now)
	mustCreate(t, svc, "Ana", "2026-03-04", "00:15")

	n, err := job.Run(context.Background())
	if err != nil || n != 1 {
		t.Errorf("expected reminder for next-day appointment, got %d %v", n, err)
	}
}

func TestReminderJob_DeliveryFailureStillPublishes(t *testing.T) {
	now := time.Date(2026, 3, 3, 8, 45, 0, 0, time.UTC)
	job, svc, _, pub, msg := newTestReminder(now)
	msg.err = errors.New("gateway down")
	mustCreate(t, svc, "Ana", "2026-03-03", "09:00")

	n, err := job.Run(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("expected 1 reminder, got %d %v", n, err)
	}
	if len(pub.topics("appointment.reminder")) != 2 {
		t.Error("expected reminder event despite delivery failure")
	}
}

func TestReminderJob_Schedule(t *testing.T) {
	job, _, _, _, _ := newTestReminder(time.Now())
	s := gocron.NewScheduler(time.UTC)
	j, err := job.Schedule(context.Background(), s, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if j == nil || len(s.Jobs()) != 1 {
		t.Error("expected one scheduled job")
	}
}
