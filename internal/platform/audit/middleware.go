package audit

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medconsult/medconsult/internal/platform/auth"
	"github.com/medconsult/medconsult/internal/platform/middleware"
)

// Resources maps the first route segment under the API prefix to the audited
// resource type.
var Resources = map[string]string{
	"patients":               "patient",
	"anonymous-patients":     "anonymous_patient",
	"consultations":          "consultation",
	"consultation-responses": "consultation",
	"consents":               "consent",
	"generate-consent-pdf":   "consent",
}

const recordTimeout = 2 * time.Second

// resourceFor resolves the audited resource type of a route such as
// "/api/patients/:id". ok is false for routes outside Resources.
func resourceFor(route, prefix string) (string, bool) {
	rest := strings.TrimPrefix(route, prefix)
	if rest == route && prefix != "" {
		return "", false
	}
	rest = strings.TrimPrefix(rest, "/")
	segment, _, _ := strings.Cut(rest, "/")
	typ, ok := Resources[segment]
	return typ, ok
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return ActionCreate
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ActionRead
	}
}

func statusOf(c echo.Context, err error) int {
	if err == nil {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}

// Middleware records every request to an audited resource under prefix,
// including refused ones. A failed write is logged and never fails the
// request.
func Middleware(store Store, prefix string, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)

			typ, ok := resourceFor(c.Path(), prefix)
			if !ok {
				return err
			}
			req := c.Request()
			ctx := req.Context()
			e := &Entry{
				UserID:       auth.UserIDFromContext(ctx),
				UserName:     auth.UserNameFromContext(ctx),
				Roles:        auth.RolesFromContext(ctx),
				Action:       actionFor(req.Method),
				ResourceType: typ,
				Method:       req.Method,
				Path:         req.URL.Path,
				Status:       statusOf(c, err),
				IPAddress:    c.RealIP(),
				UserAgent:    req.UserAgent(),
				RequestID:    middleware.RequestIDFromContext(ctx),
			}
			if id, perr := uuid.Parse(c.Param("id")); perr == nil {
				e.ResourceID = &id
			}

			recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
			defer cancel()
			if rerr := store.Record(recCtx, e); rerr != nil {
				logger.Error().Err(rerr).Str("resource_type", typ).Str("path", e.Path).Msg("access log write failed")
			}
			return err
		}
	}
}
