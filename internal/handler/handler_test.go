package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/middleware"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/service"
	"github.com/iliyamo/elearning-backend/internal/utils"
)

// ----- fakes -----

type fakeAuth map[string]model.User

func (f fakeAuth) Authenticate(_ context.Context, token string) (model.User, error) {
	u, ok := f[token]
	if !ok {
		return model.User{}, apperr.Unauthorized("Access token is not valid")
	}
	return u, nil
}

type fakeAccounts struct {
	loggedOut []uint64
	loginErr  error
}

func session(u model.User) service.Session {
	exp := time.Now().Add(5 * time.Minute)
	return service.Session{
		AccessToken:  utils.SignedToken{Token: "acc-" + u.Email, Exp: exp},
		RefreshToken: utils.SignedToken{Token: "ref-" + u.Email, Exp: exp.Add(72 * time.Hour)},
		User:         u,
	}
}

func (f *fakeAccounts) Register(_ context.Context, in service.RegisterInput) (string, error) {
	if in.Email == "taken@example.com" {
		return "", apperr.Conflict("Email already exist")
	}
	return "activation-token", nil
}

func (f *fakeAccounts) Activate(_ context.Context, token, code string) error {
	if code != "1234" {
		return apperr.InvalidCredential("Invalid activation code")
	}
	return nil
}

func (f *fakeAccounts) Login(_ context.Context, email, password string) (service.Session, error) {
	if f.loginErr != nil {
		return service.Session{}, f.loginErr
	}
	if password != "secret1" {
		return service.Session{}, apperr.InvalidCredential("Invalid email or password")
	}
	return session(model.User{ID: 1, Name: "Ada", Email: email, Role: model.RoleUser}), nil
}

func (f *fakeAccounts) Logout(_ context.Context, userID uint64) error {
	f.loggedOut = append(f.loggedOut, userID)
	return nil
}

func (f *fakeAccounts) GetMe(_ context.Context, userID uint64) (model.User, error) {
	return model.User{ID: userID, Name: "Ada"}, nil
}

func (f *fakeAccounts) SocialLogin(_ context.Context, in service.SocialLoginInput) (service.Session, error) {
	return session(model.User{ID: 9, Name: in.Name, Email: in.Email}), nil
}

func (f *fakeAccounts) UpdateProfile(_ context.Context, userID uint64, in service.UpdateProfileInput) (model.User, error) {
	return model.User{ID: userID, Name: in.Name}, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, userID uint64, in service.UpdatePasswordInput) (model.User, error) {
	return model.User{ID: userID}, nil
}

type fakeSessions struct{}

func (fakeSessions) RefreshSession(_ context.Context, token string) (service.Session, error) {
	if token != "ref-ok" {
		return service.Session{}, apperr.Unauthorized("Could not refresh token")
	}
	return session(model.User{ID: 1, Email: "ok"}), nil
}

type fakeCatalog struct {
	owners map[string]uint64
}

func (f *fakeCatalog) CreateCourse(_ context.Context, in service.CourseInput) (model.Course, error) {
	return model.Course{Name: in.Name}, nil
}

func (f *fakeCatalog) EditCourse(_ context.Context, id string, p service.CoursePatch) (model.Course, error) {
	if id == "missing" {
		return model.Course{}, apperr.NotFound("Course not found")
	}
	c := model.Course{}
	if p.Name != nil {
		c.Name = *p.Name
	}
	return c, nil
}

func (f *fakeCatalog) GetCourse(_ context.Context, id string) (model.CoursePreview, error) {
	if id == "bad" {
		return model.CoursePreview{}, apperr.Validation("Invalid course id")
	}
	return model.CoursePreview{Name: "Go"}, nil
}

func (f *fakeCatalog) ListCourses(context.Context) ([]model.CoursePreview, error) {
	return []model.CoursePreview{}, nil
}

func (f *fakeCatalog) GetCourseContent(_ context.Context, userID uint64, courseID string) ([]model.ContentUnit, error) {
	if f.owners[courseID] != userID {
		return nil, apperr.Forbidden("You are not eligible to access this course")
	}
	return []model.ContentUnit{{Title: "Intro"}}, nil
}

func (f *fakeCatalog) AddQuestion(_ context.Context, _ model.User, _ service.QuestionInput) (model.Course, error) {
	return model.Course{}, nil
}

func (f *fakeCatalog) AddAnswer(_ context.Context, _ model.User, _ service.AnswerInput) (model.Course, error) {
	return model.Course{}, nil
}

func (f *fakeCatalog) AddReview(_ context.Context, _ model.User, _ string, _ service.ReviewInput) (model.Course, error) {
	return model.Course{Rating: 4}, nil
}

func (f *fakeCatalog) AddReviewReply(_ context.Context, _ model.User, _ service.ReviewReplyInput) (model.Course, error) {
	return model.Course{}, nil
}

type fakeOrders struct{}

func (fakeOrders) CreateOrder(_ context.Context, userID uint64, in service.OrderInput) (model.Order, error) {
	if in.CourseID == "owned" {
		return model.Order{}, apperr.Conflict("You have already purchased this course")
	}
	return model.Order{UserID: userID, CourseID: in.CourseID}, nil
}

// ----- harness -----

type testServer struct {
	e        *echo.Echo
	accounts *fakeAccounts
}

func newServer(t *testing.T) *testServer {
	t.Helper()
	e := echo.New()
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())

	accounts := &fakeAccounts{}
	auth := fakeAuth{
		"user-token":  {ID: 1, Name: "Ada", Role: model.RoleUser},
		"admin-token": {ID: 2, Name: "Root", Role: model.RoleAdmin},
	}
	ah := NewAuthHandler(accounts, fakeSessions{}, false)
	ch := NewCourseHandler(&fakeCatalog{owners: map[string]uint64{"c1": 1}})
	oh := NewOrderHandler(fakeOrders{})
	gate := middleware.SessionAuth(auth)
	admin := middleware.RequireRole(model.RoleAdmin)

	e.GET("/test", Test)
	e.POST("/register", ah.Register)
	e.POST("/activate-user", ah.Activate)
	e.POST("/login-user", ah.Login)
	e.POST("/logout-user", ah.Logout, gate)
	e.GET("/refresh", ah.Refresh)
	e.GET("/me", ah.Me, gate)
	e.POST("/social-auth", ah.SocialAuth)
	e.PUT("/update-user-info", ah.UpdateInfo, gate)
	e.POST("/create-course", ch.CreateCourse, gate, admin)
	e.PUT("/edit-course/:id", ch.EditCourse, gate, admin)
	e.GET("/get-course/:id", ch.GetCourse)
	e.GET("/get-courses", ch.GetCourses)
	e.GET("/get-course-content/:id", ch.GetCourseContent, gate)
	e.PUT("/add-review/:id", ch.AddReview, gate)
	e.POST("/create-order", oh.CreateOrder, gate)
	return &testServer{e: e, accounts: accounts}
}

func (s *testServer) do(method, path, body string, cookies ...*http.Cookie) (*httptest.ResponseRecorder, map[string]any) {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func as(token string) *http.Cookie {
	return &http.Cookie{Name: middleware.AccessCookie, Value: token}
}

func cookieByName(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == name {
			return ck
		}
	}
	return nil
}

// ----- tests -----

func TestTestEndpoint(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/test", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "API is working", body["message"])
}

func TestUnknownRoute(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "Route /nope not found", body["message"])
}

func TestRegister(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPost, "/register", `{"name":"Ada","email":"ada@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "activation-token", body["activationToken"])
	assert.Contains(t, body["message"], "ada@example.com")

	rec, body = s.do(http.MethodPost, "/register", `{"name":"Ada","email":"taken@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Email already exist", body["message"])
}

func TestValidationAndBindErrors(t *testing.T) {
	s := newServer(t)

	rec, body := s.do(http.MethodPost, "/login-user", `{"password":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email is required", body["message"])

	rec, body = s.do(http.MethodPost, "/register", `{"name":"Ada","email":"not-an-email","password":"secret1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "email must be a valid email", body["message"])

	rec, body = s.do(http.MethodPost, "/login-user", `{"email":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", body["message"])
}

func TestActivate(t *testing.T) {
	s := newServer(t)
	rec, _ := s.do(http.MethodPost, "/activate-user", `{"activation_token":"t","activation_code":"1234"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, body := s.do(http.MethodPost, "/activate-user", `{"activation_token":"t","activation_code":"0000"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid activation code", body["message"])
}

func TestLogin_SetsSessionCookies(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPost, "/login-user", `{"email":"ada@example.com","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-ada@example.com", body["accessToken"])
	user, _ := body["user"].(map[string]any)
	assert.Equal(t, "Ada", user["name"])
	assert.NotContains(t, rec.Body.String(), "password")

	access := cookieByName(rec, middleware.AccessCookie)
	require.NotNil(t, access)
	assert.Equal(t, "acc-ada@example.com", access.Value)
	assert.True(t, access.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, access.SameSite)
	assert.False(t, access.Secure)
	assert.Greater(t, access.MaxAge, 0)
	require.NotNil(t, cookieByName(rec, middleware.RefreshCookie))

	rec, body = s.do(http.MethodPost, "/login-user", `{"email":"ada@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email or password", body["message"])
}

func TestLogin_InternalErrorHidesCause(t *testing.T) {
	s := newServer(t)
	s.accounts.loginErr = apperr.Internal(errors.New("dial tcp: connection refused"))
	rec, body := s.do(http.MethodPost, "/login-user", `{"email":"ada@example.com","password":"secret1"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal server error", body["message"])
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestLogout_ExpiresCookies(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPost, "/logout-user", "", as("user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", body["message"])
	assert.Equal(t, []uint64{1}, s.accounts.loggedOut)

	for _, name := range []string{middleware.AccessCookie, middleware.RefreshCookie} {
		ck := cookieByName(rec, name)
		require.NotNil(t, ck, name)
		assert.Empty(t, ck.Value)
		assert.Less(t, ck.MaxAge, 0)
	}

	rec, _ = s.do(http.MethodPost, "/logout-user", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRefresh(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/refresh", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Could not refresh token", body["message"])

	rec, body = s.do(http.MethodGet, "/refresh", "", &http.Cookie{Name: middleware.RefreshCookie, Value: "ref-ok"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-ok", body["accessToken"])
	assert.NotNil(t, cookieByName(rec, middleware.AccessCookie))
}

func TestMeAndProfile(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/me", "", as("user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", body["user"].(map[string]any)["name"])

	rec, body = s.do(http.MethodPut, "/update-user-info", `{"name":"Grace"}`, as("user-token"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Grace", body["user"].(map[string]any)["name"])
}

func TestSocialAuth(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPost, "/social-auth", `{"email":"g@example.com","name":"G","avatar":"https://img.example.com/a.png"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "acc-g@example.com", body["accessToken"])
}

func TestCourseRoutes_RoleGate(t *testing.T) {
	s := newServer(t)
	payload := `{"name":"Go","description":"d","price":10}`

	rec, _ := s.do(http.MethodPost, "/create-course", payload)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, body := s.do(http.MethodPost, "/create-course", payload, as("user-token"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "Role: user is not allowed to access this resource", body["message"])

	rec, body = s.do(http.MethodPost, "/create-course", payload, as("admin-token"))
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Go", body["course"].(map[string]any)["name"])

	rec, _ = s.do(http.MethodPut, "/edit-course/missing", `{"name":"x"}`, as("admin-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCoursePublicReads(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/get-course/abc", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Go", body["course"].(map[string]any)["name"])

	rec, _ = s.do(http.MethodGet, "/get-course/bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = s.do(http.MethodGet, "/get-courses", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["courses"])
}

func TestCourseContent_Entitlement(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodGet, "/get-course-content/c1", "", as("user-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["content"], 1)

	rec, body = s.do(http.MethodGet, "/get-course-content/c1", "", as("admin-token"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "You are not eligible to access this course", body["message"])
}

func TestAddReview_RatingValidated(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPut, "/add-review/c1", `{"review":"nice","rating":7}`, as("user-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "rating must be at most 5", body["message"])

	rec, _ = s.do(http.MethodPut, "/add-review/c1", `{"review":"nice","rating":4}`, as("user-token"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	s := newServer(t)
	rec, body := s.do(http.MethodPost, "/create-order", `{"courseId":"c1","payment_info":{"id":"pi_1"}}`, as("user-token"))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, body["order"])

	rec, body = s.do(http.MethodPost, "/create-order", `{"courseId":"owned"}`, as("user-token"))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "You have already purchased this course", body["message"])

	rec, _ = s.do(http.MethodPost, "/create-order", `{}`, as("user-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorHandler_TokenErrors(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())
	e.GET("/expired", func(echo.Context) error { return utils.ErrTokenExpired })
	e.GET("/invalid", func(echo.Context) error { return utils.ErrTokenInvalid })

	for path, msg := range map[string]string{
		"/expired": "Json web token is expired, try again",
		"/invalid": "Json web token is invalid, try again",
	} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Contains(t, rec.Body.String(), msg)
	}
}
