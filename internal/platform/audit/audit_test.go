package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/auth"
)

type failingStore struct{ Memory }

func (f *failingStore) Record(context.Context, *Entry) error { return errors.New("db down") }

func newServer(store Store) *echo.Echo {
	e := echo.New()
	api := e.Group("/api")
	api.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := auth.WithIdentity(c.Request().Context(), "u-1", "Dra. Ruiz", []string{auth.RolePhysician})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	api.Use(Middleware(store, "/api", zerolog.Nop()))
	api.GET("/patients/:id", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	api.PUT("/patients/:id", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	})
	api.POST("/generate-consent-pdf", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	api.GET("/specialties", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func TestMiddleware_RecordsAuditedRoutes(t *testing.T) {
	store := NewMemory()
	e := newServer(store)
	pid := uuid.New()

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/api/patients/" + pid.String()},
		{http.MethodPut, "/api/patients/" + pid.String()},
		{http.MethodPost, "/api/generate-consent-pdf"},
		{http.MethodGet, "/api/specialties"},
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(r.method, r.path, nil))
	}

	items, total, err := store.List(context.Background(), Filter{}, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Fatalf("expected 3 entries, got %d", total)
	}

	byAction := map[string]*Entry{}
	for _, it := range items {
		byAction[it.Action] = it
	}
	read := byAction[ActionRead]
	if read == nil || read.ResourceType != "patient" || read.ResourceID == nil || *read.ResourceID != pid {
		t.Fatalf("unexpected read entry %+v", read)
	}
	if read.UserID != "u-1" || read.UserName != "Dra. Ruiz" || read.Status != http.StatusOK {
		t.Errorf("unexpected identity or status %+v", read)
	}
	if upd := byAction[ActionUpdate]; upd == nil || upd.Status != http.StatusForbidden {
		t.Errorf("refused update must be logged with 403, got %+v", upd)
	}
	if c := byAction[ActionCreate]; c == nil || c.ResourceType != "consent" || c.ResourceID != nil {
		t.Errorf("unexpected create entry %+v", c)
	}
}

func TestMiddleware_StoreFailureDoesNotFailRequest(t *testing.T) {
	e := newServer(&failingStore{})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/patients/"+uuid.NewString(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestResourceFor(t *testing.T) {
	tests := []struct {
		route string
		want  string
		ok    bool
	}{
		{"/api/patients", "patient", true},
		{"/api/consultations/:id/report", "consultation", true},
		{"/api/consultation-responses/batch", "consultation", true},
		{"/api/appointments", "", false},
		{"/health", "", false},
	}
	for _, tt := range tests {
		got, ok := resourceFor(tt.route, "/api")
		if got != tt.want || ok != tt.ok {
			t.Errorf("resourceFor(%q) = %q, %v", tt.route, got, ok)
		}
	}
}

func TestMemory_ListFiltersAndPages(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	pid := uuid.New()
	for i := 0; i < 5; i++ {
		e := &Entry{UserID: "u-1", ResourceType: "patient", Action: ActionRead, AccessedAt: base.Add(time.Duration(i) * time.Hour)}
		if i == 4 {
			e.ResourceID = &pid
		}
		_ = m.Record(ctx, e)
	}
	_ = m.Record(ctx, &Entry{UserID: "u-2", ResourceType: "consent", Action: ActionCreate, AccessedAt: base})

	items, total, _ := m.List(ctx, Filter{UserID: "u-1"}, 2, 0)
	if total != 5 || len(items) != 2 {
		t.Fatalf("expected 2 of 5, got %d of %d", len(items), total)
	}
	if !items[0].AccessedAt.After(items[1].AccessedAt) {
		t.Error("expected newest first")
	}

	items, total, _ = m.List(ctx, Filter{ResourceID: &pid}, 10, 0)
	if total != 1 || items[0].ResourceID == nil {
		t.Errorf("resource filter: got %d", total)
	}

	to := base.Add(2 * time.Hour)
	_, total, _ = m.List(ctx, Filter{ResourceType: "patient", To: &to}, 10, 0)
	if total != 2 {
		t.Errorf("to is exclusive: expected 2, got %d", total)
	}

	items, total, _ = m.List(ctx, Filter{}, 10, 20)
	if total != 6 || len(items) != 0 {
		t.Errorf("offset past end: got %d items of %d", len(items), total)
	}
}

func TestHandler_ListAccess(t *testing.T) {
	m := NewMemory()
	_ = m.Record(context.Background(), &Entry{UserID: "u-1", ResourceType: "patient", Action: ActionRead})
	h := NewHandler(m)

	rec := httptest.NewRecorder()
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/?resource_type=patient", nil), rec)
	if err := h.ListAccess(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var body struct {
		Data  []Entry `json:"data"`
		Total int     `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Total != 1 || body.Data[0].UserID != "u-1" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	for _, q := range []string{"?resource_id=nope", "?from=10/03/2026", "?to=x"} {
		c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		err := h.ListAccess(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}
