package scheduling

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.Staff...))
	staff.GET("/appointments", h.ListAppointments)
	staff.GET("/appointments/:id", h.GetAppointment)
	staff.POST("/appointments", h.CreateAppointment)
	staff.PUT("/appointments/:id", h.UpdateAppointment)
	staff.PATCH("/appointments/:id/status", h.SetStatus)
	staff.DELETE("/appointments/:id", h.DeleteAppointment)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

type createRequest struct {
	PatientID   *uuid.UUID `json:"patient_id"`
	PatientName string     `json:"patient_name"`
	Date        Day        `json:"date"`
	Time        string     `json:"time"`
	Duration    int        `json:"duration"`
	Type        string     `json:"type"`
	Notes       *string    `json:"notes"`
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a := &Appointment{
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		Date:        req.Date.Time,
		Time:        req.Time,
		Duration:    req.Duration,
		Type:        req.Type,
		Notes:       req.Notes,
	}
	if err := h.svc.CreateAppointment(c.Request().Context(), a); err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, a)
}

// ListAppointments serves ?date=YYYY-MM-DD (default today) or an inclusive
// ?from=&to= range.
func (h *Handler) ListAppointments(c echo.Context) error {
	ctx := c.Request().Context()
	from, to := c.QueryParam("from"), c.QueryParam("to")
	if from != "" || to != "" {
		if from == "" || to == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "from and to must be given together")
		}
		f, err := ParseDay(from)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		t, err := ParseDay(to)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		items, err := h.svc.ListRange(ctx, f, t)
		if err != nil {
			return serviceError(err)
		}
		return c.JSON(http.StatusOK, items)
	}

	day := Truncate(h.now())
	if d := c.QueryParam("date"); d != "" {
		parsed, err := ParseDay(d)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		day = parsed
	}
	items, err := h.svc.GetAppointmentsForDate(ctx, day)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), id, patch)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) SetStatus(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a, err := h.svc.SetStatus(c.Request().Context(), id, body.Status)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), id); err != nil {
		return serviceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
