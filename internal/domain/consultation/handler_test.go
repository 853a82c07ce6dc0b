package consultation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/httperr"
	"github.com/medconsult/medconsult/pkg/pagination"
)

func newTestHandler() (*Handler, *fixture, *echo.Echo) {
	svc, f := newTestService()
	return NewHandler(svc), f, echo.New()
}

func postJSON(e *echo.Echo, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_CreateConsultation(t *testing.T) {
	h, f, e := newTestHandler()
	body := `{"age":54,"gender":"M","specialty_id":"` + uuid.NewString() + `","answers":{"peso":82,"hta":"Sí"}}`
	c, rec := postJSON(e, body)

	if err := h.CreateConsultation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var out Consultation
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if out.Age != 54 || len(out.Responses) != 2 {
		t.Errorf("unexpected consultation %+v", out)
	}
	if f.repo.creates != 1 {
		t.Errorf("expected 1 create, got %d", f.repo.creates)
	}
}

func TestHandler_CreateConsultation_EmptyAge(t *testing.T) {
	h, f, e := newTestHandler()
	c, _ := postJSON(e, `{"age":"","gender":"F","specialty_id":"`+uuid.NewString()+`"}`)

	err := h.CreateConsultation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if !strings.Contains(he.Message.(string), "edad") {
		t.Errorf("expected message naming edad, got %v", he.Message)
	}
	if f.repo.creates != 0 {
		t.Error("repository must not be reached")
	}
}

func TestHandler_CreateConsultation_BadAge(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := postJSON(e, `{"age":"200","gender":"F","specialty_id":"`+uuid.NewString()+`"}`)

	err := h.CreateConsultation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
	if _, toast := httperr.FromError(err); toast.Title != "Datos incompletos" {
		t.Errorf("expected toast title Datos incompletos, got %q", toast.Title)
	}
}

func TestHandler_GetConsultation(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := postJSON(e, `{"age":"30","gender":"F","specialty_id":"`+uuid.NewString()+`"}`)
	if err := h.CreateConsultation(c); err != nil {
		t.Fatal(err)
	}
	var created Consultation
	json.Unmarshal(rec.Body.Bytes(), &created)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(created.ID.String())
	if err := h.GetConsultation(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetConsultation_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	err := h.GetConsultation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetConsultation_BadID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")

	err := h.GetConsultation(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListConsultations(t *testing.T) {
	h, _, e := newTestHandler()
	for i := 0; i < 3; i++ {
		c, _ := postJSON(e, `{"age":"30","gender":"F","specialty_id":"`+uuid.NewString()+`"}`)
		if err := h.CreateConsultation(c); err != nil {
			t.Fatal(err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/?limit=2", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := h.ListConsultations(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 3 || !resp.HasMore {
		t.Errorf("expected total 3 with more, got %+v", resp)
	}
}

func TestHandler_ListConsultations_BadFilter(t *testing.T) {
	h, _, e := newTestHandler()
	for _, q := range []string{"?patient_id=x", "?specialty_id=x", "?from=ayer", "?to=13-13-2024"} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+q, nil), httptest.NewRecorder())
		err := h.ListConsultations(c)
		he, ok := err.(*echo.HTTPError)
		if !ok || he.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %v", q, err)
		}
	}
}

func TestHandler_AddResponses(t *testing.T) {
	h, _, e := newTestHandler()
	c, rec := postJSON(e, `{"age":"30","gender":"F","specialty_id":"`+uuid.NewString()+`"}`)
	if err := h.CreateConsultation(c); err != nil {
		t.Fatal(err)
	}
	var created Consultation
	json.Unmarshal(rec.Body.Bytes(), &created)

	body := `{"consultation_id":"` + created.ID.String() + `","responses":[{"field_name":"plan","value":"control en 3 meses"}]}`
	c, rec = postJSON(e, body)
	if err := h.AddResponses(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	c, _ = postJSON(e, `{"consultation_id":"`+uuid.NewString()+`","responses":[{"field_name":"plan","value":"x"}]}`)
	err := h.AddResponses(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}
