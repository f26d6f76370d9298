package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/middleware"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/utils"
)

// storeTimeout bounds every store round-trip made on behalf of a request.
const storeTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), storeTimeout)
}

// respond writes the success envelope: {"success": true, ...payload}.
func respond(c echo.Context, status int, payload echo.Map) error {
	if payload == nil {
		payload = echo.Map{}
	}
	payload["success"] = true
	return c.JSON(status, payload)
}

// bind decodes the request body into dst and runs the registered validator.
func bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return apperr.Validation("Invalid request body").Wrap(err)
	}
	return c.Validate(dst)
}

func currentUser(c echo.Context) (*model.User, error) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return nil, apperr.Unauthorized("Please login to access this resource")
	}
	return u, nil
}

// ErrorHandler renders every error returned by a handler or middleware as
// {"success": false, "message": ...} with the status derived from its kind.
// Internal failures are logged with their cause; the client only sees the
// generic message.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, msg := classify(err, c)
		if status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}
		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, echo.Map{"success": false, "message": msg})
		}
		if werr != nil {
			log.Warn("write error response", zap.Error(werr))
		}
	}
}

func classify(err error, c echo.Context) (int, string) {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Kind.Status(), ae.Message
	}
	switch {
	case errors.Is(err, utils.ErrTokenExpired):
		return http.StatusUnauthorized, "Json web token is expired, try again"
	case errors.Is(err, utils.ErrTokenInvalid):
		return http.StatusUnauthorized, "Json web token is invalid, try again"
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Code == http.StatusNotFound {
			return he.Code, fmt.Sprintf("Route %s not found", c.Request().URL.Path)
		}
		msg := http.StatusText(he.Code)
		if s, ok := he.Message.(string); ok && s != "" {
			msg = s
		}
		return he.Code, msg
	}
	return http.StatusInternalServerError, "Internal server error"
}
