package middleware // middleware provides shared request processing for handlers

import (
    "fmt"

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context

    "github.com/iliyamo/elearning-backend/internal/apperr"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  If the user's role
// is not in the allowed set, the request is aborted with Forbidden.  It
// must run after SessionAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    // Build a set of allowed roles for constant‑time lookups.
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            u, ok := CurrentUser(c)
            if !ok {
                return apperr.Unauthorized("Please login to access this resource")
            }
            if !allowed[u.Role] {
                return apperr.Forbidden(fmt.Sprintf("Role: %s is not allowed to access this resource", u.Role))
            }
            return next(c)
        }
    }
}
