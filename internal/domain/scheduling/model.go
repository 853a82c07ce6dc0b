package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("appointment not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)

var validStatuses = map[string]bool{
	StatusScheduled: true, StatusConfirmed: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

// transitions lists the statuses reachable from each status. Completed,
// cancelled and no-show appointments are final.
var transitions = map[string][]string{
	StatusScheduled: {StatusConfirmed, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusConfirmed: {StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow},
}

var validTypes = map[string]bool{
	"primera-visita": true, "revision": true, "urgencia": true, "telematica": true,
}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	defaultDuration = 30
)

type Appointment struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	PatientName    string     `db:"patient_name" json:"patient_name"`
	Date           time.Time  `db:"date" json:"date"`
	Time           string     `db:"time" json:"time"`
	Duration       int        `db:"duration" json:"duration"`
	Type           string     `db:"type" json:"type"`
	Status         string     `db:"status" json:"status"`
	Notes          *string    `db:"notes" json:"notes,omitempty"`
	ReminderSentAt *time.Time `db:"reminder_sent_at" json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// StartsAt combines the appointment date and its HH:MM time in loc.
func (a *Appointment) StartsAt(loc *time.Location) (time.Time, error) {
	clock, err := time.Parse(timeLayout, a.Time)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", a.Time)
	}
	y, m, d := a.Date.Date()
	return time.Date(y, m, d, clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// Final reports whether no further status change is allowed.
func (a *Appointment) Final() bool {
	return len(transitions[a.Status]) == 0
}

// CanTransition reports whether status may follow the current one.
func (a *Appointment) CanTransition(status string) bool {
	for _, s := range transitions[a.Status] {
		if s == status {
			return true
		}
	}
	return false
}

// Patch carries the editable fields of an appointment. Nil fields are left
// unchanged.
type Patch struct {
	PatientID   *uuid.UUID `json:"patient_id"`
	PatientName *string    `json:"patient_name"`
	Date        *Day       `json:"date"`
	Time        *string    `json:"time"`
	Duration    *int       `json:"duration"`
	Type        *string    `json:"type"`
	Notes       *string    `json:"notes"`
}

func (a *Appointment) Apply(p Patch) {
	if p.PatientID != nil {
		id := *p.PatientID
		a.PatientID = &id
	}
	if p.PatientName != nil {
		a.PatientName = strings.TrimSpace(*p.PatientName)
	}
	if p.Date != nil {
		a.Date = p.Date.Time
	}
	if p.Time != nil {
		a.Time = strings.TrimSpace(*p.Time)
	}
	if p.Duration != nil {
		a.Duration = *p.Duration
	}
	if p.Type != nil {
		a.Type = strings.TrimSpace(*p.Type)
	}
	if p.Notes != nil {
		if n := strings.TrimSpace(*p.Notes); n != "" {
			a.Notes = &n
		} else {
			a.Notes = nil
		}
	}
}

// Day is a calendar date encoded as YYYY-MM-DD. Full RFC 3339 timestamps
// are accepted on input and truncated to their date.
type Day struct {
	time.Time
}

func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

func (d *Day) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	t, err := ParseDay(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ParseDay parses YYYY-MM-DD or an RFC 3339 timestamp into midnight UTC of
// that calendar date.
func ParseDay(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return Truncate(t), nil
}

// Truncate drops the clock part of t, keeping its calendar date.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// FilterByDate returns the appointments whose date equals day, ignoring
// time of day. The result is never nil.
func FilterByDate(items []*Appointment, day time.Time) []*Appointment {
	out := []*Appointment{}
	for _, a := range items {
		if SameDay(a.Date, day) {
			out = append(out, a)
		}
	}
	return out
}
