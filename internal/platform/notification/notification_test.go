package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []*Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, m)
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine Tests
// ---------------------------------------------------------------------------

func TestTemplateEngine_RegisterAndRender(t *testing.T) {
	eng := NewTemplateEngine()
	eng.RegisterTemplate(Template{
		ID:      "test-tpl",
		Subject: "Hola {{name}}",
		Body:    "Estimado {{name}}, su código es {{code}}.",
		Channel: ChannelEmail,
	})

	got, err := eng.Render("test-tpl", map[string]string{"name": "Ana", "code": "1234"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Subject != "Hola Ana" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.Body != "Estimado Ana, su código es 1234." {
		t.Errorf("body = %q", got.Body)
	}
}

func TestTemplateEngine_RenderMissing(t *testing.T) {
	eng := NewTemplateEngine()
	if _, err := eng.Render("nonexistent", nil); err == nil {
		t.Fatal("expected error for missing template, got nil")
	}
}

func TestTemplateEngine_BuiltInReminder(t *testing.T) {
	eng := NewTemplateEngine()
	got, err := eng.Render(TemplateAppointmentReminder, map[string]string{
		"patient_name": "Luis Pérez",
		"date":         "03/03/2026",
		"time":         "09:30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(got.Body, "Luis Pérez") || !strings.Contains(got.Body, "09:30") {
		t.Errorf("unexpected body %q", got.Body)
	}
	// {{type}} was not supplied and stays in place.
	if !strings.Contains(got.Body, "{{type}}") {
		t.Errorf("expected unfilled placeholder to remain, got %q", got.Body)
	}
	if got.Channel != ChannelSMS {
		t.Errorf("expected sms channel, got %s", got.Channel)
	}
}

// ---------------------------------------------------------------------------
// Notifier Tests
// ---------------------------------------------------------------------------

func TestNotifier_SendFromTemplate(t *testing.T) {
	fallback := &recordingSender{}
	sms := &recordingSender{}
	n := NewNotifier(nil, fallback)
	n.Route(ChannelSMS, sms)

	m, err := n.SendFromTemplate(context.Background(), TemplateAppointmentReminder,
		map[string]string{"patient_name": "Ana"}, "600111222")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Status != StatusSent || m.SentAt == nil || m.ID == "" {
		t.Errorf("unexpected message %+v", m)
	}
	if len(sms.sent) != 1 || len(fallback.sent) != 0 {
		t.Errorf("expected routing to sms sender, got sms=%d fallback=%d", len(sms.sent), len(fallback.sent))
	}

	if _, err := n.SendFromTemplate(context.Background(), TemplateConsentSigned, nil, "ana@example.com"); err != nil {
		t.Fatal(err)
	}
	if len(fallback.sent) != 1 {
		t.Error("expected email to use the fallback sender")
	}
}

func TestNotifier_SendFailure(t *testing.T) {
	n := NewNotifier(nil, &recordingSender{err: errors.New("gateway down")})
	m, err := n.SendFromTemplate(context.Background(), TemplateAppointmentCancelled, nil, "600")
	if err == nil {
		t.Fatal("expected error")
	}
	if m.Status != StatusFailed || m.Error != "gateway down" {
		t.Errorf("unexpected message %+v", m)
	}
	if n.Stats()[StatusFailed] != 1 {
		t.Error("expected failed message in stats")
	}
}

func TestNotifier_NoSender(t *testing.T) {
	n := NewNotifier(nil, nil)
	if err := n.Send(context.Background(), &Message{Channel: ChannelLog}); err == nil {
		t.Fatal("expected error without sender")
	}
}

func TestNotifier_OutboxBounded(t *testing.T) {
	n := NewNotifier(nil, LogSender{Logger: zerolog.Nop()})
	n.limit = 3
	for i := 0; i < 5; i++ {
		n.Send(context.Background(), &Message{Channel: ChannelLog, Body: string(rune('a' + i))})
	}
	recent := n.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	if recent[0].Body != "e" || recent[2].Body != "c" {
		t.Errorf("expected newest first, got %q..%q", recent[0].Body, recent[2].Body)
	}
}

func TestNotifier_ConcurrentSend(t *testing.T) {
	n := NewNotifier(nil, &recordingSender{})
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.Send(context.Background(), &Message{Channel: ChannelLog})
		}()
	}
	wg.Wait()
	if got := n.Stats()[StatusSent]; got != 20 {
		t.Errorf("expected 20 sent, got %d", got)
	}
}

// ---------------------------------------------------------------------------
// HTTP Handler Tests
// ---------------------------------------------------------------------------

func TestHandler_List(t *testing.T) {
	n := NewNotifier(nil, &recordingSender{})
	n.Send(context.Background(), &Message{Channel: ChannelLog, Body: "uno"})
	n.Send(context.Background(), &Message{Channel: ChannelLog, Body: "dos"})
	h := NewHandler(n)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/?limit=1", nil)
	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []Message
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Body != "dos" {
		t.Errorf("unexpected items %+v", items)
	}

	req = httptest.NewRequest(http.MethodGet, "/?limit=x", nil)
	err := h.List(e.NewContext(req, httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Stats(t *testing.T) {
	n := NewNotifier(nil, &recordingSender{})
	n.Send(context.Background(), &Message{Channel: ChannelLog})
	h := NewHandler(n)
	e := echo.New()
	rec := httptest.NewRecorder()
	if err := h.HandleStats(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"status":"sent","count":1`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}
