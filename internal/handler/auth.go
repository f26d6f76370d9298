package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/middleware"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/service"
)

// Accounts is the part of service.UserService the account endpoints use.
type Accounts interface {
	Register(ctx context.Context, in service.RegisterInput) (string, error)
	Activate(ctx context.Context, token, code string) error
	Login(ctx context.Context, email, password string) (service.Session, error)
	Logout(ctx context.Context, userID uint64) error
	GetMe(ctx context.Context, userID uint64) (model.User, error)
	SocialLogin(ctx context.Context, in service.SocialLoginInput) (service.Session, error)
	UpdateProfile(ctx context.Context, userID uint64, in service.UpdateProfileInput) (model.User, error)
	UpdatePassword(ctx context.Context, userID uint64, in service.UpdatePasswordInput) (model.User, error)
}

// Sessions rotates a token pair from a refresh token.
type Sessions interface {
	RefreshSession(ctx context.Context, refreshToken string) (service.Session, error)
}

// AuthHandler bundles dependencies for the account endpoints.
type AuthHandler struct {
	users    Accounts
	sessions Sessions
	secure   bool // Secure flag on session cookies
}

func NewAuthHandler(users Accounts, sessions Sessions, secureCookies bool) *AuthHandler {
	return &AuthHandler{users: users, sessions: sessions, secure: secureCookies}
}

// ----- DTOs -----

type activateReq struct {
	Token string `json:"activation_token" validate:"required"`
	Code  string `json:"activation_code" validate:"required"`
}

type loginReq struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register: POST /register.  Nothing is stored until the code is confirmed.
func (h *AuthHandler) Register(c echo.Context) error {
	var in service.RegisterInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	token, err := h.users.Register(ctx, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{
		"message":         fmt.Sprintf("Please check your email: %s to activate your account!", in.Email),
		"activationToken": token,
	})
}

// Activate: POST /activate-user.
func (h *AuthHandler) Activate(c echo.Context) error {
	var req activateReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.users.Activate(ctx, req.Token, req.Code); err != nil {
		return err
	}
	return respond(c, http.StatusCreated, nil)
}

// Login: POST /login-user.  Sets both session cookies.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := bind(c, &req); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.users.Login(ctx, req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.sendSession(c, s)
}

// SocialAuth: POST /social-auth.
func (h *AuthHandler) SocialAuth(c echo.Context) error {
	var in service.SocialLoginInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.users.SocialLogin(ctx, in)
	if err != nil {
		return err
	}
	return h.sendSession(c, s)
}

// Logout: POST /logout-user.  Expires the cookies and drops the session.
func (h *AuthHandler) Logout(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.users.Logout(ctx, u.ID); err != nil {
		return err
	}
	h.clearCookies(c)
	return respond(c, http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// Refresh: GET /refresh.  Reads the refresh_token cookie and rotates both tokens.
func (h *AuthHandler) Refresh(c echo.Context) error {
	ck, err := c.Cookie(middleware.RefreshCookie)
	if err != nil || ck.Value == "" {
		return apperr.Unauthorized("Could not refresh token")
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	s, err := h.sessions.RefreshSession(ctx, ck.Value)
	if err != nil {
		return err
	}
	h.setCookies(c, s)
	return respond(c, http.StatusOK, echo.Map{"accessToken": s.AccessToken.Token})
}

// Me: GET /me returns the cached session snapshot.
func (h *AuthHandler) Me(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	me, err := h.users.GetMe(ctx, u.ID)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": me})
}

// UpdateInfo: PUT /update-user-info.
func (h *AuthHandler) UpdateInfo(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.UpdateProfileInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	updated, err := h.users.UpdateProfile(ctx, u.ID, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"user": updated})
}

// UpdatePassword: PUT /update-user-password.
func (h *AuthHandler) UpdatePassword(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.UpdatePasswordInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	updated, err := h.users.UpdatePassword(ctx, u.ID, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"user": updated})
}

func (h *AuthHandler) sendSession(c echo.Context, s service.Session) error {
	h.setCookies(c, s)
	return respond(c, http.StatusOK, echo.Map{
		"user":        s.User,
		"accessToken": s.AccessToken.Token,
	})
}

func (h *AuthHandler) setCookies(c echo.Context, s service.Session) {
	c.SetCookie(h.cookie(middleware.AccessCookie, s.AccessToken.Token, s.AccessToken.Exp))
	c.SetCookie(h.cookie(middleware.RefreshCookie, s.RefreshToken.Token, s.RefreshToken.Exp))
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		ck := h.cookie(name, "", time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

func (h *AuthHandler) cookie(name, value string, exp time.Time) *http.Cookie {
	maxAge := int(time.Until(exp).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  exp,
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.secure,
	}
}
