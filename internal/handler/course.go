package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/service"
)

// Catalog is the part of service.CourseService the course endpoints use.
type Catalog interface {
	CreateCourse(ctx context.Context, in service.CourseInput) (model.Course, error)
	EditCourse(ctx context.Context, id string, p service.CoursePatch) (model.Course, error)
	GetCourse(ctx context.Context, id string) (model.CoursePreview, error)
	ListCourses(ctx context.Context) ([]model.CoursePreview, error)
	GetCourseContent(ctx context.Context, userID uint64, courseID string) ([]model.ContentUnit, error)
	AddQuestion(ctx context.Context, author model.User, in service.QuestionInput) (model.Course, error)
	AddAnswer(ctx context.Context, author model.User, in service.AnswerInput) (model.Course, error)
	AddReview(ctx context.Context, author model.User, courseID string, in service.ReviewInput) (model.Course, error)
	AddReviewReply(ctx context.Context, author model.User, in service.ReviewReplyInput) (model.Course, error)
}

type CourseHandler struct {
	catalog Catalog
}

func NewCourseHandler(catalog Catalog) *CourseHandler {
	return &CourseHandler{catalog: catalog}
}

// CreateCourse handles POST /create-course (admin).
func (h *CourseHandler) CreateCourse(c echo.Context) error {
	var in service.CourseInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.CreateCourse(ctx, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"course": course})
}

// EditCourse handles PUT /edit-course/:id (admin).  Absent fields are kept.
func (h *CourseHandler) EditCourse(c echo.Context) error {
	var p service.CoursePatch
	if err := bind(c, &p); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.EditCourse(ctx, c.Param("id"), p)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"course": course})
}

// GetCourse handles GET /get-course/:id.  Public, preview only.
func (h *CourseHandler) GetCourse(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.GetCourse(ctx, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"course": course})
}

// GetCourses handles GET /get-courses.
func (h *CourseHandler) GetCourses(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	courses, err := h.catalog.ListCourses(ctx)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"courses": courses})
}

// GetCourseContent handles GET /get-course-content/:id for owners of the course.
func (h *CourseHandler) GetCourseContent(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	content, err := h.catalog.GetCourseContent(ctx, u.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"content": content})
}

// AddQuestion handles PUT /add-question.
func (h *CourseHandler) AddQuestion(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.QuestionInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.AddQuestion(ctx, *u, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"course": course})
}

// AddAnswer handles PUT /add-answer.
func (h *CourseHandler) AddAnswer(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.AnswerInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.AddAnswer(ctx, *u, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"course": course})
}

// AddReview handles PUT /add-review/:id.
func (h *CourseHandler) AddReview(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.ReviewInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.AddReview(ctx, *u, c.Param("id"), in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"course": course})
}

// AddReviewReply handles PUT /add-review-reply (admin).
func (h *CourseHandler) AddReviewReply(c echo.Context) error {
	u, err := currentUser(c)
	if err != nil {
		return err
	}
	var in service.ReviewReplyInput
	if err := bind(c, &in); err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	course, err := h.catalog.AddReviewReply(ctx, *u, in)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"course": course})
}
