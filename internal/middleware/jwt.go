package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "context"
    "strings" // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/elearning-backend/internal/apperr"
    "github.com/iliyamo/elearning-backend/internal/model"
)

// AccessCookie and RefreshCookie name the session credential cookies.
const (
    AccessCookie  = "access_token"
    RefreshCookie = "refresh_token"
)

// Authenticator resolves an access token into the cached user snapshot.
// service.TokenService implements it.
type Authenticator interface {
    Authenticate(ctx context.Context, accessToken string) (model.User, error)
}

// SessionAuth returns an Echo middleware that requires a valid access token
// and a live session.  The token is read from the access_token cookie, or
// from an "Authorization: Bearer" header when the cookie is absent.  On
// success the user snapshot is stored in the context under "user" and can
// be read with CurrentUser.
func SessionAuth(auth Authenticator) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            raw := accessToken(c)
            if raw == "" {
                return apperr.Unauthorized("Please login to access this resource")
            }
            u, err := auth.Authenticate(c.Request().Context(), raw)
            if err != nil {
                return err
            }
            c.Set(userKey, &u)
            return next(c)
        }
    }
}

func accessToken(c echo.Context) string {
    if ck, err := c.Cookie(AccessCookie); err == nil && ck.Value != "" {
        return ck.Value
    }
    auth := c.Request().Header.Get(echo.HeaderAuthorization)
    if strings.HasPrefix(auth, "Bearer ") {
        return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
    }
    return ""
}
