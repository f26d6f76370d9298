package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/apperr"
	"github.com/iliyamo/elearning-backend/internal/cache"
	"github.com/iliyamo/elearning-backend/internal/mail"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/queue"
	"github.com/iliyamo/elearning-backend/internal/repository"
	"github.com/iliyamo/elearning-backend/internal/storage"
)

// Catalog cache keys.  Every course write deletes the keys it affects;
// catalogTTL only bounds an entry written by a read that raced an edit.
const (
	catalogKey      = "courses:all"
	coursePrefix    = "course:"
	thumbnailFolder = "courses"
	catalogTTL      = 6 * time.Hour
)

// courseKey keys a preview by the canonical lower-case hex id, whatever
// case the caller used.
func courseKey(id string) string {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		id = oid.Hex()
	}
	return coursePrefix + id
}

// CourseService manages the catalog, the curriculum Q&A and reviews.
type CourseService struct {
	courses  CourseStore
	users    UserStore
	assets   AssetStore
	cache    cache.Cache
	mail     MailPublisher
	cacheOn  bool
	sanitize *bluemonday.Policy
	log      *zap.Logger
	now      func() time.Time
}

func NewCourseService(courses CourseStore, users UserStore, assets AssetStore, c cache.Cache,
	mail MailPublisher, catalogCache bool, log *zap.Logger) *CourseService {
	return &CourseService{
		courses:  courses,
		users:    users,
		assets:   assets,
		cache:    c,
		mail:     mail,
		cacheOn:  catalogCache,
		sanitize: bluemonday.StrictPolicy(),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ContentInput is one curriculum entry in a create or edit payload.  An
// existing unit is matched by ID on edit and keeps its question threads.
type ContentInput struct {
	ID             string       `json:"_id"`
	Title          string       `json:"title" validate:"required"`
	Description    string       `json:"description"`
	VideoURL       string       `json:"videoUrl"`
	VideoThumbnail model.Asset  `json:"videoThumbnail"`
	VideoSection   string       `json:"videoSection"`
	VideoLength    float64      `json:"videoLength" validate:"gte=0"`
	VideoPlayer    string       `json:"videoPlayer"`
	Links          []model.Link `json:"links" validate:"dive"`
	Suggestion     string       `json:"suggestion"`
}

// CourseInput is the payload of POST /create-course.  Thumbnail is a data
// URI, bare base64 or an external URL.
type CourseInput struct {
	Name           string         `json:"name" validate:"required"`
	Description    string         `json:"description" validate:"required"`
	Price          float64        `json:"price" validate:"gte=0"`
	EstimatedPrice *float64       `json:"estimatedPrice" validate:"omitempty,gte=0"`
	Thumbnail      string         `json:"thumbnail"`
	Tags           string         `json:"tags"`
	Level          string         `json:"level"`
	DemoURL        string         `json:"demoUrl"`
	Benefits       []model.Title  `json:"benefits"`
	Prerequisites  []model.Title  `json:"prerequisites"`
	CourseData     []ContentInput `json:"courseData" validate:"dive"`
}

// CoursePatch is the payload of PUT /edit-course/:id.  Nil fields are left
// untouched; present fields replace the stored value.
type CoursePatch struct {
	Name           *string         `json:"name" validate:"omitempty,min=1"`
	Description    *string         `json:"description"`
	Price          *float64        `json:"price" validate:"omitempty,gte=0"`
	EstimatedPrice *float64        `json:"estimatedPrice" validate:"omitempty,gte=0"`
	Thumbnail      *string         `json:"thumbnail"`
	Tags           *string         `json:"tags"`
	Level          *string         `json:"level"`
	DemoURL        *string         `json:"demoUrl"`
	Benefits       *[]model.Title  `json:"benefits"`
	Prerequisites  *[]model.Title  `json:"prerequisites"`
	CourseData     *[]ContentInput `json:"courseData" validate:"omitempty,dive"`
}

// CreateCourse uploads the thumbnail, if any, and stores the course.
func (s *CourseService) CreateCourse(ctx context.Context, in CourseInput) (model.Course, error) {
	c := model.Course{
		Name:           in.Name,
		Description:    in.Description,
		Price:          in.Price,
		EstimatedPrice: in.EstimatedPrice,
		Tags:           in.Tags,
		Level:          in.Level,
		DemoURL:        in.DemoURL,
		Benefits:       in.Benefits,
		Prerequisites:  in.Prerequisites,
		CourseData:     buildContent(in.CourseData, nil),
	}
	if in.Thumbnail != "" {
		asset, err := s.upload(ctx, in.Name, in.Thumbnail)
		if err != nil {
			return model.Course{}, err
		}
		c.Thumbnail = asset
	}
	if err := s.courses.Create(ctx, &c); err != nil {
		return model.Course{}, apperr.Internal(err)
	}
	s.invalidate(ctx, c.ID.Hex())
	return c, nil
}

// EditCourse replaces the thumbnail if a new one is given and applies a
// shallow field-level merge of the patch.
func (s *CourseService) EditCourse(ctx context.Context, id string, p CoursePatch) (model.Course, error) {
	oid, err := parseID(id, "Invalid course id")
	if err != nil {
		return model.Course{}, err
	}
	existing, err := s.courses.FindByID(ctx, oid)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Course not found")
	}

	set := bson.D{}
	add := func(key string, v any) { set = append(set, bson.E{Key: key, Value: v}) }
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Price != nil {
		add("price", *p.Price)
	}
	if p.EstimatedPrice != nil {
		add("estimatedPrice", *p.EstimatedPrice)
	}
	if p.Tags != nil {
		add("tags", *p.Tags)
	}
	if p.Level != nil {
		add("level", *p.Level)
	}
	if p.DemoURL != nil {
		add("demoUrl", *p.DemoURL)
	}
	if p.Benefits != nil {
		add("benefits", nonNilTitles(*p.Benefits))
	}
	if p.Prerequisites != nil {
		add("prerequisites", nonNilTitles(*p.Prerequisites))
	}
	if p.CourseData != nil {
		add("courseData", buildContent(*p.CourseData, existing.CourseData))
	}
	if p.Thumbnail != nil && *p.Thumbnail != "" {
		if err := s.assets.Delete(ctx, existing.Thumbnail.PublicID); err != nil {
			s.log.Warn("delete old thumbnail failed",
				zap.String("course_id", id), zap.String("public_id", existing.Thumbnail.PublicID), zap.Error(err))
		}
		name := existing.Name
		if p.Name != nil {
			name = *p.Name
		}
		asset, err := s.upload(ctx, name, *p.Thumbnail)
		if err != nil {
			return model.Course{}, err
		}
		add("thumbnail", asset)
	}

	updated, err := s.courses.Update(ctx, oid, set)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Course not found")
	}
	s.invalidate(ctx, oid.Hex())
	return updated, nil
}

// GetCourse returns the public preview of one course, read through the
// cache.
func (s *CourseService) GetCourse(ctx context.Context, id string) (model.CoursePreview, error) {
	oid, err := parseID(id, "Invalid course id")
	if err != nil {
		return model.CoursePreview{}, err
	}
	key := courseKey(oid.Hex())
	var out model.CoursePreview
	if s.cacheGet(ctx, key, &out) {
		return out, nil
	}
	out, err = s.courses.FindPreviewByID(ctx, oid)
	if err != nil {
		return model.CoursePreview{}, notFoundOr(err, "Course not found")
	}
	s.cacheSet(ctx, key, out)
	return out, nil
}

// ListCourses returns the public preview of every course, read through the
// cache.
func (s *CourseService) ListCourses(ctx context.Context) ([]model.CoursePreview, error) {
	var out []model.CoursePreview
	if s.cacheGet(ctx, catalogKey, &out) {
		return out, nil
	}
	out, err := s.courses.ListPreviews(ctx)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.cacheSet(ctx, catalogKey, out)
	return out, nil
}

// GetCourseContent returns the full curriculum to an owner of the course.
// Ownership is checked first, so non-owners cannot probe which ids exist.
func (s *CourseService) GetCourseContent(ctx context.Context, userID uint64, courseID string) ([]model.ContentUnit, error) {
	if err := s.requireOwnership(ctx, userID, courseID); err != nil {
		return nil, err
	}
	oid, err := parseID(courseID, "Invalid course id")
	if err != nil {
		return nil, err
	}
	c, err := s.courses.FindByID(ctx, oid)
	if err != nil {
		return nil, notFoundOr(err, "Course not found")
	}
	return c.CourseData, nil
}

// QuestionInput is the payload of PUT /add-question.
type QuestionInput struct {
	Question  string `json:"question" validate:"required"`
	CourseID  string `json:"courseId" validate:"required"`
	ContentID string `json:"contentId" validate:"required"`
}

// AddQuestion opens a thread on one content unit.
func (s *CourseService) AddQuestion(ctx context.Context, author model.User, in QuestionInput) (model.Course, error) {
	text := s.clean(in.Question)
	if text == "" {
		return model.Course{}, apperr.Validation("Question is required")
	}
	courseID, err := parseID(in.CourseID, "Invalid course id")
	if err != nil {
		return model.Course{}, err
	}
	contentID, err := parseID(in.ContentID, "Invalid content id")
	if err != nil {
		return model.Course{}, err
	}
	q := model.Question{
		ID:        bson.NewObjectID(),
		User:      model.AuthorOf(&author),
		Question:  text,
		Answers:   []model.Answer{},
		CreatedAt: s.now(),
	}
	c, err := s.courses.AddQuestion(ctx, courseID, contentID, q)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Invalid content id")
	}
	s.invalidate(ctx, courseID.Hex())
	return c, nil
}

// AnswerInput is the payload of PUT /add-answer.
type AnswerInput struct {
	Answer     string `json:"answer" validate:"required"`
	CourseID   string `json:"courseId" validate:"required"`
	ContentID  string `json:"contentId" validate:"required"`
	QuestionID string `json:"questionId" validate:"required"`
}

// AddAnswer replies to a question.  When someone other than the asker
// answers, a notification mail to the asker is queued after the write.
func (s *CourseService) AddAnswer(ctx context.Context, author model.User, in AnswerInput) (model.Course, error) {
	text := s.clean(in.Answer)
	if text == "" {
		return model.Course{}, apperr.Validation("Answer is required")
	}
	courseID, err := parseID(in.CourseID, "Invalid course id")
	if err != nil {
		return model.Course{}, err
	}
	contentID, err := parseID(in.ContentID, "Invalid content id")
	if err != nil {
		return model.Course{}, err
	}
	questionID, err := parseID(in.QuestionID, "Invalid question id")
	if err != nil {
		return model.Course{}, err
	}
	a := model.Answer{
		ID:        bson.NewObjectID(),
		User:      model.AuthorOf(&author),
		Answer:    text,
		CreatedAt: s.now(),
	}
	c, err := s.courses.AddAnswer(ctx, courseID, contentID, questionID, a)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Invalid question id")
	}
	s.invalidate(ctx, courseID.Hex())

	unit, _ := c.FindContent(contentID)
	if unit == nil {
		return c, nil
	}
	q, _ := unit.FindQuestion(questionID)
	if q != nil && q.User.ID != author.ID && q.User.Email != "" {
		s.notify(ctx, queue.MailEvent{
			To:       q.User.Email,
			Subject:  "Question Reply",
			Template: mail.TemplateQuestionReply,
			Data:     map[string]any{"name": q.User.Name, "title": unit.Title},
		})
	}
	return c, nil
}

// ReviewInput is the payload of PUT /add-review/:id.
type ReviewInput struct {
	Review string  `json:"review"`
	Rating float64 `json:"rating" validate:"required,gte=1,lte=5"`
}

// AddReview appends a review from an owner of the course; the stored
// rating is recomputed in the same update.
func (s *CourseService) AddReview(ctx context.Context, author model.User, courseID string, in ReviewInput) (model.Course, error) {
	if err := s.requireOwnership(ctx, author.ID, courseID); err != nil {
		return model.Course{}, err
	}
	if in.Rating < 1 || in.Rating > 5 {
		return model.Course{}, apperr.Validation("Rating must be between 1 and 5")
	}
	oid, err := parseID(courseID, "Invalid course id")
	if err != nil {
		return model.Course{}, err
	}
	r := model.Review{
		ID:        bson.NewObjectID(),
		User:      model.AuthorOf(&author),
		Rating:    in.Rating,
		Comment:   s.clean(in.Review),
		Replies:   []model.ReviewReply{},
		CreatedAt: s.now(),
	}
	c, err := s.courses.AddReview(ctx, oid, r)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Course not found")
	}
	s.invalidate(ctx, oid.Hex())
	return c, nil
}

// ReviewReplyInput is the payload of PUT /add-review-reply.
type ReviewReplyInput struct {
	Comment  string `json:"comment" validate:"required"`
	CourseID string `json:"courseId" validate:"required"`
	ReviewID string `json:"reviewId" validate:"required"`
}

// AddReviewReply appends an admin reply to a review.
func (s *CourseService) AddReviewReply(ctx context.Context, author model.User, in ReviewReplyInput) (model.Course, error) {
	text := s.clean(in.Comment)
	if text == "" {
		return model.Course{}, apperr.Validation("Comment is required")
	}
	courseID, err := parseID(in.CourseID, "Invalid course id")
	if err != nil {
		return model.Course{}, err
	}
	reviewID, err := parseID(in.ReviewID, "Invalid review id")
	if err != nil {
		return model.Course{}, err
	}
	reply := model.ReviewReply{
		ID:        bson.NewObjectID(),
		User:      model.AuthorOf(&author),
		Comment:   text,
		CreatedAt: s.now(),
	}
	c, err := s.courses.AddReviewReply(ctx, courseID, reviewID, reply)
	if err != nil {
		return model.Course{}, notFoundOr(err, "Review not found")
	}
	s.invalidate(ctx, courseID.Hex())
	return c, nil
}

// InvalidateCourse drops the cached preview of id and the catalog list.
func (s *CourseService) InvalidateCourse(ctx context.Context, id string) { s.invalidate(ctx, id) }

func (s *CourseService) requireOwnership(ctx context.Context, userID uint64, courseID string) error {
	if oid, err := bson.ObjectIDFromHex(courseID); err == nil {
		courseID = oid.Hex()
	}
	owns, err := s.users.OwnsCourse(ctx, userID, courseID)
	if err != nil {
		return apperr.Internal(err)
	}
	if !owns {
		return apperr.Forbidden("You are not eligible to access this course")
	}
	return nil
}

func (s *CourseService) upload(ctx context.Context, name, data string) (model.Asset, error) {
	asset, err := s.assets.Upload(ctx, thumbnailFolder, name, data)
	if errors.Is(err, storage.ErrInvalidImage) {
		return model.Asset{}, apperr.Validation("Invalid thumbnail image")
	}
	if err != nil {
		return model.Asset{}, apperr.Internal(err)
	}
	return asset, nil
}

func (s *CourseService) clean(text string) string {
	return strings.TrimSpace(s.sanitize.Sanitize(text))
}

func (s *CourseService) notify(ctx context.Context, ev queue.MailEvent) {
	if err := s.mail.PublishMail(ctx, ev); err != nil {
		s.log.Error("queue notification mail failed", zap.String("template", ev.Template), zap.Error(err))
	}
}

func (s *CourseService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Del(ctx, courseKey(id), catalogKey); err != nil {
		s.log.Error("catalog cache invalidation failed", zap.String("course_id", id), zap.Error(err))
	}
}

// cacheGet decodes key into dst.  Any cache failure is treated as a miss.
func (s *CourseService) cacheGet(ctx context.Context, key string, dst any) bool {
	if !s.cacheOn {
		return false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn("catalog cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (s *CourseService) cacheSet(ctx context.Context, key string, v any) {
	if !s.cacheOn {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, raw, catalogTTL); err != nil {
		s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// buildContent converts payload entries into content units.  Entries whose
// id matches an existing unit keep that unit's questions.
func buildContent(in []ContentInput, existing []model.ContentUnit) []model.ContentUnit {
	prior := make(map[bson.ObjectID][]model.Question, len(existing))
	for _, u := range existing {
		prior[u.ID] = u.Questions
	}
	out := make([]model.ContentUnit, 0, len(in))
	for _, ci := range in {
		u := model.ContentUnit{
			Title:          ci.Title,
			Description:    ci.Description,
			VideoURL:       ci.VideoURL,
			VideoThumbnail: ci.VideoThumbnail,
			VideoSection:   ci.VideoSection,
			VideoLength:    ci.VideoLength,
			VideoPlayer:    ci.VideoPlayer,
			Links:          ci.Links,
			Suggestion:     ci.Suggestion,
		}
		if id, err := bson.ObjectIDFromHex(ci.ID); err == nil {
			u.ID = id
			u.Questions = prior[id]
		}
		repository.NormalizeContent(&u)
		out = append(out, u)
	}
	return out
}

func nonNilTitles(t []model.Title) []model.Title {
	if t == nil {
		return []model.Title{}
	}
	return t
}

func parseID(hex, msg string) (bson.ObjectID, error) {
	id, err := repository.ParseID(hex)
	if err != nil {
		return bson.NilObjectID, apperr.Validation(msg).Wrap(err)
	}
	return id, nil
}

// notFoundOr maps repository.ErrNotFound to NotFound(msg) and anything
// else to Internal.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(msg).Wrap(err)
	}
	return apperr.Internal(err)
}
