package middleware

// identity.go defines helpers shared across middleware and handlers for
// reading the authenticated user placed in the Echo context by SessionAuth.

import (
    "strconv"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/elearning-backend/internal/model"
)

const userKey = "user"

// CurrentUser returns the session snapshot stored by SessionAuth.
func CurrentUser(c echo.Context) (*model.User, bool) {
    u, ok := c.Get(userKey).(*model.User)
    return u, ok && u != nil
}

// userID returns the authenticated user's id as a string, or "anon" when
// the request is not authenticated.
func userID(c echo.Context) string {
    if u, ok := CurrentUser(c); ok {
        return strconv.FormatUint(u.ID, 10)
    }
    return "anon"
}
