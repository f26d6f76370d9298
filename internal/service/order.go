package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/mail"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/queue"
	"github.com/iliyamo/elearning-backend/internal/repository"
)

// OrderInput is the payload of POST /create-order.
type OrderInput struct {
	CourseID    string          `json:"courseId" validate:"required"`
	PaymentInfo json.RawMessage `json:"payment_info"`
}

// OrderService records purchases.  The order row, the entitlement and the
// in-app notification are written in one transaction; everything after the
// commit is best effort and only logged on failure.
type OrderService struct {
	orders  OrderStore
	users   UserStore
	courses CourseStore
	catalog *CourseService
	tokens  *TokenService
	mail    MailPublisher
	log     *zap.Logger
	now     func() time.Time
}

func NewOrderService(orders OrderStore, users UserStore, courses CourseStore, catalog *CourseService,
	tokens *TokenService, mail MailPublisher, log *zap.Logger) *OrderService {
	return &OrderService{
		orders:  orders,
		users:   users,
		courses: courses,
		catalog: catalog,
		tokens:  tokens,
		mail:    mail,
		log:     log,
		now:     time.Now,
	}
}

// CreateOrder buys courseID for userID.
func (s *OrderService) CreateOrder(ctx context.Context, userID uint64, in OrderInput) (model.Order, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Order{}, apperr.NotFound("User not found")
	}
	if err != nil {
		return model.Order{}, apperr.Internal(err)
	}
	oid, err := parseID(in.CourseID, "Invalid course id")
	if err != nil {
		return model.Order{}, err
	}
	if u.OwnsCourse(oid.Hex()) {
		return model.Order{}, apperr.Conflict("You have already purchased this course")
	}
	course, err := s.courses.FindByID(ctx, oid)
	if err != nil {
		return model.Order{}, notFoundOr(err, "Course not found")
	}

	order := model.Order{UserID: userID, CourseID: oid.Hex(), PaymentInfo: in.PaymentInfo}
	note := model.Notification{
		Title:   "New Order",
		Message: "You have a new order from " + course.Name,
	}
	if err := s.orders.CreateWithEntitlement(ctx, &order, &note); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Order{}, apperr.Conflict("You have already purchased this course")
		}
		return model.Order{}, apperr.Internal(err)
	}
	s.log.Info("order created",
		zap.Uint64("order_id", order.ID), zap.Uint64("user_id", userID), zap.String("course_id", order.CourseID))

	s.afterCommit(ctx, u, course, order)
	return order, nil
}

func (s *OrderService) afterCommit(ctx context.Context, u model.User, course model.Course, order model.Order) {
	if err := s.courses.IncrementPurchased(ctx, course.ID); err != nil {
		s.log.Error("increment purchased failed", zap.String("course_id", order.CourseID), zap.Error(err))
	}

	u.Courses = append(u.Courses, model.CourseRef{CourseID: order.CourseID})
	if err := s.tokens.StoreSession(ctx, u); err != nil {
		s.log.Error("refresh session after order failed", zap.Uint64("user_id", u.ID), zap.Error(err))
	}

	s.catalog.InvalidateCourse(ctx, order.CourseID)

	err := s.mail.PublishMail(ctx, queue.MailEvent{
		To:       u.Email,
		Subject:  "Order Confirmation",
		Template: mail.TemplateOrderConfirmation,
		Data:     orderMailData(u, course, s.now()),
	})
	if err != nil {
		s.log.Error("queue order confirmation failed", zap.Uint64("order_id", order.ID), zap.Error(err))
	}
}

func orderMailData(u model.User, course model.Course, at time.Time) map[string]any {
	return map[string]any{
		"name": u.Name,
		"order": map[string]any{
			"_id":   course.ID.Hex()[:6],
			"name":  course.Name,
			"price": course.Price,
			"date":  at.Format("January 2, 2006"),
		},
	}
}
