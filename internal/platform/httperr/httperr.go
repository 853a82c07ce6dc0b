// Package httperr renders every failed request as a one-shot notification
// body the client shows as a toast.
package httperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	VariantDefault     = "default"
	VariantDestructive = "destructive"
)

// Toast is the error envelope returned for every non-2xx response.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant"`
	RequestID   string `json:"request_id,omitempty"`
}

// Titled lets domain errors pick their own toast title, e.g. "Datos incompletos".
type Titled interface {
	error
	ToastTitle() string
}

func titleFor(code int) string {
	switch {
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return "Solicitud inválida"
	case code == http.StatusUnauthorized:
		return "Sesión no válida"
	case code == http.StatusForbidden:
		return "Acceso denegado"
	case code == http.StatusNotFound:
		return "No encontrado"
	case code == http.StatusConflict:
		return "Conflicto"
	case code == http.StatusTooManyRequests:
		return "Demasiadas solicitudes"
	default:
		return "Error"
	}
}

// FromError maps err to a status code and toast.
func FromError(err error) (int, Toast) {
	code := http.StatusInternalServerError
	desc := "Ocurrió un error inesperado. Intente nuevamente."

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Internal != nil && code >= 500 {
			desc = http.StatusText(code)
		} else {
			desc = fmt.Sprint(he.Message)
		}
	}

	toast := Toast{Title: titleFor(code), Description: desc, Variant: VariantDestructive}

	var titled Titled
	if errors.As(err, &titled) {
		toast.Title = titled.ToastTitle()
		if he == nil {
			code = http.StatusBadRequest
			toast.Description = titled.Error()
		}
	}
	return code, toast
}

// Handler returns an echo.HTTPErrorHandler that writes Toast bodies.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, toast := FromError(err)
		toast.RequestID, _ = c.Get("request_id").(string)
		if code >= 500 {
			logger.Error().Err(err).Str("request_id", toast.RequestID).Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, toast)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}
