// Package notification renders patient-facing messages from templates and
// hands them to a delivery channel, keeping a bounded outbox of what was sent.
package notification

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

// Channel is the medium a message is delivered through.
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Message is a single rendered notification.
type Message struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Recipient  string            `json:"recipient"`
	Subject    string            `json:"subject,omitempty"`
	Body       string            `json:"body"`
	TemplateID string            `json:"template_id,omitempty"`
	Status     string            `json:"status"`
	Error      string            `json:"error,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	SentAt     *time.Time        `json:"sent_at,omitempty"`
}

// Sender delivers a message on one channel.
type Sender interface {
	Send(ctx context.Context, m *Message) error
}

// LogSender writes messages to the structured log. It is the delivery
// channel in deployments without an SMS or email gateway.
type LogSender struct {
	Logger zerolog.Logger
}

func (s LogSender) Send(_ context.Context, m *Message) error {
	s.Logger.Info().
		Str("channel", string(m.Channel)).
		Str("recipient", m.Recipient).
		Str("template", m.TemplateID).
		Str("subject", m.Subject).
		Msg("notification")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable message.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages message templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

const (
	TemplateAppointmentReminder  = "appointment-reminder"
	TemplateAppointmentCancelled = "appointment-cancelled"
	TemplateConsentSigned        = "consent-signed"
)

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateAppointmentReminder,
			Name:    "Recordatorio de cita",
			Subject: "Recordatorio de cita para {{patient_name}}",
			Body:    "Estimado/a {{patient_name}}, le recordamos su cita ({{type}}) el {{date}} a las {{time}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateAppointmentCancelled,
			Name:    "Cita cancelada",
			Subject: "Cita cancelada",
			Body:    "Estimado/a {{patient_name}}, su cita del {{date}} a las {{time}} ha sido cancelada.",
			Channel: ChannelSMS,
		},
		{
			ID:      TemplateConsentSigned,
			Name:    "Consentimiento firmado",
			Subject: "Copia de su consentimiento informado",
			Body:    "Estimado/a {{patient_name}}, adjuntamos el consentimiento para {{procedure}} firmado el {{date}}.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (Template, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return Template{}, fmt.Errorf("template %q not found", templateID)
	}

	out := *t
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		out.Subject = strings.ReplaceAll(out.Subject, placeholder, v)
		out.Body = strings.ReplaceAll(out.Body, placeholder, v)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Notifier
// ---------------------------------------------------------------------------

const defaultOutboxSize = 500

// Notifier renders templates, delivers them through the sender registered
// for the template's channel and records the outcome.
type Notifier struct {
	templates *TemplateEngine
	senders   map[Channel]Sender
	fallback  Sender

	mu     sync.RWMutex
	outbox []*Message
	limit  int
}

// NewNotifier returns a Notifier delivering every channel through fallback
// until a channel-specific sender is registered with Route.
func NewNotifier(tpl *TemplateEngine, fallback Sender) *Notifier {
	if tpl == nil {
		tpl = NewTemplateEngine()
	}
	return &Notifier{
		templates: tpl,
		senders:   make(map[Channel]Sender),
		fallback:  fallback,
		limit:     defaultOutboxSize,
	}
}

// Route sends messages of channel ch through s.
func (n *Notifier) Route(ch Channel, s Sender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.senders[ch] = s
}

func (n *Notifier) senderFor(ch Channel) Sender {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if s, ok := n.senders[ch]; ok {
		return s
	}
	return n.fallback
}

// Send delivers m and records it. The returned error is the sender's.
func (n *Notifier) Send(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	m.CreatedAt = time.Now().UTC()

	var err error
	if s := n.senderFor(m.Channel); s != nil {
		err = s.Send(ctx, m)
	} else {
		err = fmt.Errorf("no sender for channel %s", m.Channel)
	}
	if err != nil {
		m.Status = StatusFailed
		m.Error = err.Error()
	} else {
		m.Status = StatusSent
		sentAt := time.Now().UTC()
		m.SentAt = &sentAt
	}

	n.mu.Lock()
	n.outbox = append(n.outbox, m)
	if over := len(n.outbox) - n.limit; over > 0 {
		n.outbox = append([]*Message(nil), n.outbox[over:]...)
	}
	n.mu.Unlock()
	return err
}

// SendFromTemplate renders templateID with data and sends the result.
func (n *Notifier) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Message, error) {
	t, err := n.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	m := &Message{
		Channel:    t.Channel,
		Recipient:  recipient,
		Subject:    t.Subject,
		Body:       t.Body,
		TemplateID: templateID,
		Metadata:   data,
	}
	return m, n.Send(ctx, m)
}

// Recent returns up to limit messages, newest first.
func (n *Notifier) Recent(limit int) []*Message {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Message, 0, limit)
	for i := len(n.outbox) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, n.outbox[i])
	}
	return out
}

// Stats counts recorded messages by status.
func (n *Notifier) Stats() map[string]int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	stats := make(map[string]int)
	for _, m := range n.outbox {
		stats[m.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

type Handler struct {
	notifier *Notifier
}

func NewHandler(n *Notifier) *Handler {
	return &Handler{notifier: n}
}

// RegisterRoutes mounts the outbox endpoints on g; the caller restricts g to
// administrators.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications", h.List)
	g.GET("/notifications/stats", h.HandleStats)
}

func (h *Handler) List(c echo.Context) error {
	limit := 50
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		limit = n
	}
	items := h.notifier.Recent(limit)
	if status := c.QueryParam("status"); status != "" {
		kept := items[:0]
		for _, m := range items {
			if m.Status == status {
				kept = append(kept, m)
			}
		}
		items = kept
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) HandleStats(c echo.Context) error {
	stats := h.notifier.Stats()
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	type row struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	out := make([]row, 0, len(keys))
	for _, k := range keys {
		out = append(out, row{Status: k, Count: stats[k]})
	}
	return c.JSON(http.StatusOK, out)
}
