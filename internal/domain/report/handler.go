package report

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/domain/consultation"
	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	clinical := api.Group("", auth.RequireRole(auth.Clinical...))
	clinical.GET("/consultations/:id/report", h.GetReport)
	clinical.POST("/consultations/:id/report/archive", h.ArchiveReport)
	clinical.GET("/reports/consultations.xlsx", h.ExportConsultations)
}

func serviceError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "consultation not found")
	case errors.Is(err, ErrNoArchive):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

// GetReport renders the consultation report as JSON (default) or printable
// text with ?format=text.
func (h *Handler) GetReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	format := c.QueryParam("format")
	if format != "" && format != "json" && format != "text" {
		return echo.NewHTTPError(http.StatusBadRequest, "format must be json or text")
	}
	r, err := h.svc.ForConsultation(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	if format == "text" {
		return c.String(http.StatusOK, r.Text())
	}
	return c.JSON(http.StatusOK, r)
}

func (h *Handler) ArchiveReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	meta, err := h.svc.ArchiveReport(c.Request().Context(), id)
	if err != nil {
		return serviceError(err)
	}
	return c.JSON(http.StatusCreated, meta)
}

// ExportConsultations answers with an xlsx workbook of the consultations
// matching specialty_id, from and to. With archive=true the workbook is also
// stored and its blob id returned in X-Blob-ID.
func (h *Handler) ExportConsultations(c echo.Context) error {
	var filter consultation.ListFilter
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

	ctx := c.Request().Context()
	workbook, rows, err := h.svc.Export(ctx, filter)
	if err != nil {
		return serviceError(err)
	}
	if c.QueryParam("archive") == "true" {
		meta, err := h.svc.ArchiveExport(ctx, workbook)
		if err != nil {
			return serviceError(err)
		}
		c.Response().Header().Set("X-Blob-ID", meta.ID.String())
	}
	c.Response().Header().Set("X-Total-Count", fmt.Sprint(rows))
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="consultas.xlsx"`)
	return c.Blob(http.StatusOK, blobstore.ContentTypeXLSX, workbook)
}
