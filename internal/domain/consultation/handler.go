package consultation

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/domain/forms"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	readGroup.GET("/consultations", h.ListConsultations)
	readGroup.GET("/consultations/:id", h.GetConsultation)

	writeGroup := api.Group("", auth.RequireRole(auth.Clinical...))
	writeGroup.POST("/consultations", h.CreateConsultation)
	writeGroup.POST("/consultation-responses/batch", h.AddResponses)
}

// CreateRequest is the body of POST /consultations.
type CreateRequest struct {
	Age                Age             `json:"age"`
	Gender             string          `json:"gender"`
	PatientID          *uuid.UUID      `json:"patient_id"`
	AnonymousPatientID *uuid.UUID      `json:"anonymous_patient_id"`
	SpecialtyID        uuid.UUID       `json:"specialty_id"`
	TemplateID         *uuid.UUID      `json:"template_id"`
	Answers            forms.AnswerMap `json:"answers"`
}

func (r CreateRequest) Basic() BasicData {
	return BasicData{Age: r.Age, Gender: r.Gender, PatientID: r.PatientID, AnonymousPatientID: r.AnonymousPatientID}
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrIncompleteData):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, ErrInvalidAge):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, ErrCalculatedField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, forms.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

func (h *Handler) CreateConsultation(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	out, err := h.svc.CreateConsultation(c.Request().Context(), req.Basic(), req.SpecialtyID, req.TemplateID, req.Answers)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) GetConsultation(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	out, err := h.svc.GetConsultation(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListConsultations(c echo.Context) error {
	pg := pagination.FromContext(c)
	var filter ListFilter
	if v := c.QueryParam("patient_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		filter.PatientID = &id
	}
	if v := c.QueryParam("specialty_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid specialty_id")
		}
		filter.SpecialtyID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		filter.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		end := d.AddDate(0, 0, 1)
		filter.To = &end
	}
	items, total, err := h.svc.ListConsultations(c.Request().Context(), filter, pg.Limit, pg.Offset)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

type batchRequest struct {
	ConsultationID uuid.UUID `json:"consultation_id"`
	Responses      []struct {
		FieldID   *uuid.UUID  `json:"field_id"`
		FieldName string      `json:"field_name"`
		Value     forms.Value `json:"value"`
	} `json:"responses"`
}

func (h *Handler) AddResponses(c echo.Context) error {
	var req batchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	responses := make([]*Response, 0, len(req.Responses))
	for _, r := range req.Responses {
		responses = append(responses, &Response{FieldID: r.FieldID, FieldName: r.FieldName, Value: r.Value})
	}
	if err := h.svc.AddResponses(c.Request().Context(), req.ConsultationID, responses); err != nil {
		if errors.Is(err, ErrNotFound) {
			return serviceError(err)
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, responses)
}
