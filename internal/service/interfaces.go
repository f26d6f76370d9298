// Package service holds the application logic behind the HTTP handlers.
// Services depend on the narrow interfaces below rather than on concrete
// stores, so tests run against in-memory fakes and main wires MySQL,
// MongoDB, Redis, RabbitMQ and MinIO.
package service

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/queue"
)

// UserStore is implemented by repository.UserRepo.
type UserStore interface {
	Create(ctx context.Context, u *model.User) error
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByEmailWithPassword(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByIDWithPassword(ctx context.Context, id uint64) (model.User, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	UpdateProfile(ctx context.Context, id uint64, name, email string) error
	UpdatePassword(ctx context.Context, id uint64, hash string) error
	OwnsCourse(ctx context.Context, userID uint64, courseID string) (bool, error)
}

// CourseStore is implemented by repository.CourseRepo.
type CourseStore interface {
	Create(ctx context.Context, c *model.Course) error
	Update(ctx context.Context, id bson.ObjectID, fields bson.D) (model.Course, error)
	FindByID(ctx context.Context, id bson.ObjectID) (model.Course, error)
	FindPreviewByID(ctx context.Context, id bson.ObjectID) (model.CoursePreview, error)
	ListPreviews(ctx context.Context) ([]model.CoursePreview, error)
	AddQuestion(ctx context.Context, courseID, contentID bson.ObjectID, q model.Question) (model.Course, error)
	AddAnswer(ctx context.Context, courseID, contentID, questionID bson.ObjectID, a model.Answer) (model.Course, error)
	AddReview(ctx context.Context, courseID bson.ObjectID, r model.Review) (model.Course, error)
	AddReviewReply(ctx context.Context, courseID, reviewID bson.ObjectID, reply model.ReviewReply) (model.Course, error)
	IncrementPurchased(ctx context.Context, id bson.ObjectID) error
}

// OrderStore is implemented by repository.OrderRepo.
type OrderStore interface {
	CreateWithEntitlement(ctx context.Context, o *model.Order, n *model.Notification) error
}

// MailPublisher is implemented by queue.Publisher.
type MailPublisher interface {
	PublishMail(ctx context.Context, ev queue.MailEvent) error
}

// AssetStore is implemented by storage.MinioAssets.
type AssetStore interface {
	Upload(ctx context.Context, folder, name, data string) (model.Asset, error)
	Delete(ctx context.Context, publicID string) error
}
