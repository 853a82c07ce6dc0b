package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	RoleAdmin        = "admin"
	RolePhysician    = "physician"
	RoleNurse        = "nurse"
	RoleReceptionist = "receptionist"
)

// Clinical covers everyone who fills consultation forms.
var Clinical = []string{RolePhysician, RoleNurse}

// Staff covers every authenticated clinic role.
var Staff = []string{RolePhysician, RoleNurse, RoleReceptionist}

// HasRole reports whether roles grants any of required. Admin grants all.
func HasRole(roles []string, required ...string) bool {
	for _, has := range roles {
		if has == RoleAdmin {
			return true
		}
		for _, r := range required {
			if has == r {
				return true
			}
		}
	}
	return false
}

// RequireRole returns middleware that checks the user has at least one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if HasRole(RolesFromContext(c.Request().Context()), roles...) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
