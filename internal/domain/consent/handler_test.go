package consent

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func TestHandler_GeneratePDF(t *testing.T) {
	svc, f := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	body := `{"patient_name":"Ana García","procedure":"Colonoscopia","physician_name":"Dra. Ruiz","risks":["Perforación"]}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.GeneratePDF(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if rec.Header().Get(echo.HeaderContentType) != "application/pdf" {
		t.Errorf("unexpected content type %s", rec.Header().Get(echo.HeaderContentType))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF-")) {
		t.Error("expected PDF body")
	}
	id, err := uuid.Parse(rec.Header().Get("X-Consent-ID"))
	if err != nil {
		t.Fatalf("expected consent id header: %v", err)
	}
	if _, ok := f.repo.items[id]; !ok {
		t.Error("expected consent stored")
	}
}

func TestHandler_GeneratePDF_Invalid(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"procedure":"Biopsia"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	err := h.GeneratePDF(e.NewContext(req, httptest.NewRecorder()))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_ListGetAndDownload(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	c1, pdf, err := svc.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	if err := h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=active", nil), rec)); err != nil {
		t.Fatal(err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected 1 consent, got %d", resp.Total)
	}

	err = h.List(e.NewContext(httptest.NewRequest(http.MethodGet, "/?status=draft", nil), httptest.NewRecorder()))
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad status, got %v", err)
	}

	rec = httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(c1.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rec.Body.String(), `"procedure":"Colonoscopia"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(c1.ID.String())
	if err := h.DownloadPDF(c); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(rec.Body.Bytes(), pdf) {
		t.Error("expected stored PDF")
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())
	if he, ok := h.DownloadPDF(c).(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Error("expected 404 for unknown consent")
	}
}

func TestHandler_Revoke(t *testing.T) {
	svc, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	c1, _, err := svc.Generate(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}

	for i, want := range []int{http.StatusOK, http.StatusConflict} {
		rec := httptest.NewRecorder()
		c := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)
		c.SetParamNames("id")
		c.SetParamValues(c1.ID.String())
		err := h.Revoke(c)
		if i == 0 {
			if err != nil || rec.Code != want {
				t.Errorf("expected %d, got %d %v", want, rec.Code, err)
			}
			continue
		}
		if he, ok := err.(*echo.HTTPError); !ok || he.Code != want {
			t.Errorf("expected %d, got %v", want, err)
		}
	}
}
