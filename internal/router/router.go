package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/elearning-backend/internal/handler"
	"github.com/iliyamo/elearning-backend/internal/middleware"
	"github.com/iliyamo/elearning-backend/internal/model"
)

// APIPrefix is the versioned path every business route lives under.
const APIPrefix = "/api/v1"

// RegisterRoutes registers the operational endpoints that sit outside the
// versioned API: the health check, the liveness probe and the Prometheus
// scrape endpoint backed by reg.
func RegisterRoutes(e *echo.Echo, reg prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	e.GET("/test", handler.Test)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

// RegisterAuth registers the account endpoints.  The unauthenticated entry
// points (register, activate, login, social) run behind the limiter; the
// rest require a live session.
func RegisterAuth(g *echo.Group, a *handler.AuthHandler, gate, limiter echo.MiddlewareFunc) {
	g.POST("/register", a.Register, limiter)
	g.POST("/activate-user", a.Activate, limiter)
	g.POST("/login-user", a.Login, limiter)
	g.POST("/social-auth", a.SocialAuth, limiter)
	g.GET("/refresh", a.Refresh)

	g.POST("/logout-user", a.Logout, gate)
	g.GET("/me", a.Me, gate)
	g.PUT("/update-user-info", a.UpdateInfo, gate)
	g.PUT("/update-user-password", a.UpdatePassword, gate)
}

// RegisterCourses registers the catalog endpoints.  Authoring and review
// replies are admin only; reads are public except the paid content.
func RegisterCourses(g *echo.Group, h *handler.CourseHandler, gate echo.MiddlewareFunc) {
	admin := middleware.RequireRole(model.RoleAdmin)

	g.POST("/create-course", h.CreateCourse, gate, admin)
	g.PUT("/edit-course/:id", h.EditCourse, gate, admin)
	g.GET("/get-course/:id", h.GetCourse)
	g.GET("/get-courses", h.GetCourses)
	g.GET("/get-course-content/:id", h.GetCourseContent, gate)
	g.PUT("/add-question", h.AddQuestion, gate)
	g.PUT("/add-answer", h.AddAnswer, gate)
	g.PUT("/add-review/:id", h.AddReview, gate)
	g.PUT("/add-review-reply", h.AddReviewReply, gate, admin)
}

// RegisterOrders registers the purchase endpoint.
func RegisterOrders(g *echo.Group, h *handler.OrderHandler, gate echo.MiddlewareFunc) {
	g.POST("/create-order", h.CreateOrder, gate)
}
