package blobstore

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
)

// Handler serves uploads and downloads of stored documents.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole(auth.Staff...))
	staff.POST("/blobs/upload", h.Upload)
	staff.GET("/blobs/:id/metadata", h.GetMetadata)
	staff.GET("/blobs/:id", h.Download)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.DELETE("/blobs/:id", h.Delete)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrInvalidCategory):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// Upload accepts a multipart "file" with optional patient_id and category
// (default consent-scan).
func (h *Handler) Upload(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file").SetInternal(err)
	}
	defer src.Close()

	meta := Metadata{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Category:    c.FormValue("category"),
		CreatedBy:   auth.UserIDFromContext(c.Request().Context()),
	}
	if meta.Category == "" {
		meta.Category = CategoryConsentScan
	}
	if v := c.FormValue("patient_id"); v != "" {
		pid, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		meta.PatientID = &pid
	}

	out, err := h.store.Upload(c.Request().Context(), meta, src)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *Handler) Download(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, meta, err := h.store.Download(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	defer rc.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) GetMetadata(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	meta, err := h.store.GetMetadata(c.Request().Context(), id)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
