package audit

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/pkg/pagination"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	admin := api.Group("/audit", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/access-log", h.ListAccess)
}

// ListAccess pages through the access log. Filters: user_id, resource_type,
// resource_id, action, from and to (YYYY-MM-DD, to inclusive).
func (h *Handler) ListAccess(c echo.Context) error {
	f := Filter{
		UserID:       c.QueryParam("user_id"),
		ResourceType: c.QueryParam("resource_type"),
		Action:       c.QueryParam("action"),
	}
	if v := c.QueryParam("resource_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid resource_id")
		}
		f.ResourceID = &id
	}
	if v := c.QueryParam("from"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from date")
		}
		f.From = &d
	}
	if v := c.QueryParam("to"); v != "" {
		d, err := time.Parse("2006-01-02", v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to date")
		}
		end := d.AddDate(0, 0, 1)
		f.To = &end
	}

	pg := pagination.FromContext(c)
	items, total, err := h.store.List(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list access log").SetInternal(err)
	}
	if items == nil {
		items = []*Entry{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}
