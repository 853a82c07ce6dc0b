package scheduling

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	h.now = func() time.Time { return time.Date(2026, 3, 3, 8, 0, 0, 0, time.UTC) }
	return h, svc, echo.New()
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func expectCode(t *testing.T, err error, code int) {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != code {
		t.Errorf("expected %d, got %v", code, err)
	}
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, "/",
		`{"patient_name":"Ana García","date":"2026-03-03","time":"09:00","type":"primera-visita"}`), rec)

	if err := h.CreateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.ID == uuid.Nil || a.Status != StatusScheduled {
		t.Errorf("unexpected appointment %+v", a)
	}
}

func TestHandler_CreateAppointment_Errors(t *testing.T) {
	h, _, e := newTestHandler()

	c := e.NewContext(jsonRequest(http.MethodPost, "/", `{"patient_name":"Ana","date":"03/03/2026","time":"09:00"}`), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusBadRequest)

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"date":"2026-03-03","time":"09:00"}`), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusBadRequest)

	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"patient_name":"Ana","date":"2026-03-03","time":"09:00"}`), httptest.NewRecorder())
	if err := h.CreateAppointment(c); err != nil {
		t.Fatal(err)
	}
	c = e.NewContext(jsonRequest(http.MethodPost, "/", `{"patient_name":"Luis","date":"2026-03-03","time":"09:10"}`), httptest.NewRecorder())
	expectCode(t, h.CreateAppointment(c), http.StatusConflict)
}

func TestHandler_ListAppointments_ByDate(t *testing.T) {
	h, svc, e := newTestHandler()
	mustCreate(t, svc, "Ana", "2026-03-03", "09:00")
	mustCreate(t, svc, "Luis", "2026-03-04", "09:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2026-03-04", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatal(err)
	}
	var items []Appointment
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].PatientName != "Luis" {
		t.Errorf("unexpected items %+v", items)
	}

	// No date means today.
	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatal(err)
	}
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].PatientName != "Ana" {
		t.Errorf("expected today's appointment, got %+v", items)
	}
}

func TestHandler_ListAppointments_Empty(t *testing.T) {
	h, _, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?date=2026-08-15", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("expected empty JSON array, got %s", rec.Body.String())
	}
}

func TestHandler_ListAppointments_Range(t *testing.T) {
	h, svc, e := newTestHandler()
	mustCreate(t, svc, "Ana", "2026-03-02", "09:00")
	mustCreate(t, svc, "Luis", "2026-03-06", "09:00")
	mustCreate(t, svc, "Eva", "2026-03-09", "09:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?from=2026-03-02&to=2026-03-08", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatal(err)
	}
	var items []Appointment
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 2 {
		t.Errorf("expected 2 appointments in range, got %d", len(items))
	}

	for _, q := range []string{"/?from=2026-03-02", "/?from=x&to=2026-03-08", "/?date=mañana", "/?from=2026-03-08&to=2026-03-02"} {
		c = e.NewContext(httptest.NewRequest(http.MethodGet, q, nil), httptest.NewRecorder())
		expectCode(t, h.ListAppointments(c), http.StatusBadRequest)
	}
}

func TestHandler_UpdateAndStatus(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustCreate(t, svc, "Ana", "2026-03-03", "09:00")

	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPut, "/", `{"time":"12:00","notes":"ayunas"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.UpdateAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Appointment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Time != "12:00" || got.Notes == nil || *got.Notes != "ayunas" {
		t.Errorf("unexpected appointment %+v", got)
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(jsonRequest(http.MethodPatch, "/", `{"status":"completed"}`), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.SetStatus(c); err != nil {
		t.Fatal(err)
	}

	c = e.NewContext(jsonRequest(http.MethodPatch, "/", `{"status":"scheduled"}`), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectCode(t, h.SetStatus(c), http.StatusConflict)
}

func TestHandler_GetAndDelete(t *testing.T) {
	h, svc, e := newTestHandler()
	a := mustCreate(t, svc, "Ana", "2026-03-03", "09:00")

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	expectCode(t, h.GetAppointment(c), http.StatusBadRequest)

	rec := httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.DeleteAppointment(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	expectCode(t, h.GetAppointment(c), http.StatusNotFound)
}
