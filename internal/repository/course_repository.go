package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/elearning-backend/internal/model"
)

// ColCourses is the MongoDB collection holding course documents.
const ColCourses = "courses"

// previewProjection strips the owner-only fields from every curriculum
// entry.
var previewProjection = bson.D{
	{Key: "courseData.videoUrl", Value: 0},
	{Key: "courseData.suggestion", Value: 0},
	{Key: "courseData.questions", Value: 0},
	{Key: "courseData.links", Value: 0},
}

// CourseRepo stores courses as single documents.  Every nested write
// (question, answer, review, reply) is one atomic update on the course
// document; nothing is read, modified in memory and saved back.
type CourseRepo struct {
	col *mongo.Collection
	now func() time.Time
}

// NewCourseRepo binds the repository to db.courses and creates its
// indexes.  Index failures are logged, not fatal.
func NewCourseRepo(ctx context.Context, db *mongo.Database) *CourseRepo {
	r := &CourseRepo{col: db.Collection(ColCourses), now: func() time.Time { return time.Now().UTC() }}
	if err := r.ensureIndexes(ctx); err != nil {
		log.Printf("WARNING: courses: ensure indexes failed: %v", err)
	}
	return r
}

func (r *CourseRepo) ensureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "courseData._id", Value: 1}}},
		{Keys: bson.D{{Key: "reviews._id", Value: 1}}},
	})
	return err
}

// wrapError converts driver errors into repository sentinels.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

// findOne decodes a single document; a missing document is ErrNotFound.
func findOne[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOneOptions]) (T, error) {
	var result T
	err := col.FindOne(ctx, filter, opts...).Decode(&result)
	return result, wrapError(err)
}

// findMany decodes every matching document; never returns a nil slice.
func findMany[T any](ctx context.Context, col *mongo.Collection, filter bson.D, opts ...options.Lister[options.FindOptions]) ([]T, error) {
	cursor, err := col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, wrapError(err)
	}
	defer cursor.Close(ctx)

	results := make([]T, 0)
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		results = append(results, item)
	}
	return results, cursor.Err()
}

// ParseID converts a hex string into an ObjectID, ErrInvalidID otherwise.
func ParseID(hex string) (bson.ObjectID, error) {
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return bson.NilObjectID, ErrInvalidID
	}
	return id, nil
}

// Create assigns ids and timestamps and inserts c.
func (r *CourseRepo) Create(ctx context.Context, c *model.Course) error {
	now := r.now()
	if c.ID.IsZero() {
		c.ID = bson.NewObjectID()
	}
	c.CreatedAt, c.UpdatedAt = now, now
	Normalize(c)
	_, err := r.col.InsertOne(ctx, c)
	return wrapError(err)
}

// Update applies a shallow $set of fields and returns the stored result.
func (r *CourseRepo) Update(ctx context.Context, id bson.ObjectID, fields bson.D) (model.Course, error) {
	set := append(bson.D{}, fields...)
	set = append(set, bson.E{Key: "updatedAt", Value: r.now()})
	return r.findAndUpdate(ctx, bson.D{{Key: "_id", Value: id}}, bson.D{{Key: "$set", Value: set}})
}

// FindByID returns the full course document.
func (r *CourseRepo) FindByID(ctx context.Context, id bson.ObjectID) (model.Course, error) {
	return findOne[model.Course](ctx, r.col, bson.D{{Key: "_id", Value: id}})
}

// FindPreviewByID returns the public projection of a course.
func (r *CourseRepo) FindPreviewByID(ctx context.Context, id bson.ObjectID) (model.CoursePreview, error) {
	return findOne[model.CoursePreview](ctx, r.col, bson.D{{Key: "_id", Value: id}},
		options.FindOne().SetProjection(previewProjection))
}

// ListPreviews returns the public projection of every course, newest first.
func (r *CourseRepo) ListPreviews(ctx context.Context) ([]model.CoursePreview, error) {
	opts := options.Find().
		SetProjection(previewProjection).
		SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findMany[model.CoursePreview](ctx, r.col, bson.D{}, opts)
}

// AddQuestion appends q to the questions of one content unit.
func (r *CourseRepo) AddQuestion(ctx context.Context, courseID, contentID bson.ObjectID, q model.Question) (model.Course, error) {
	if q.Answers == nil {
		q.Answers = []model.Answer{}
	}
	filter := bson.D{
		{Key: "_id", Value: courseID},
		{Key: "courseData._id", Value: contentID},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "courseData.$.questions", Value: q}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: r.now()}}},
	}
	return r.findAndUpdate(ctx, filter, update)
}

// AddAnswer appends a to one question thread.  The filter requires both
// the content unit and the question to exist; otherwise ErrNotFound.
func (r *CourseRepo) AddAnswer(ctx context.Context, courseID, contentID, questionID bson.ObjectID, a model.Answer) (model.Course, error) {
	filter := bson.D{
		{Key: "_id", Value: courseID},
		{Key: "courseData", Value: bson.D{{Key: "$elemMatch", Value: bson.D{
			{Key: "_id", Value: contentID},
			{Key: "questions._id", Value: questionID},
		}}}},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "courseData.$[c].questions.$[q].questionReplies", Value: a}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: r.now()}}},
	}
	opts := options.FindOneAndUpdate().
		SetArrayFilters([]any{
			bson.D{{Key: "c._id", Value: contentID}},
			bson.D{{Key: "q._id", Value: questionID}},
		}).
		SetReturnDocument(options.After)
	var out model.Course
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&out)
	return out, wrapError(err)
}

// AddReview appends rv and recomputes rating from the full review set in
// one pipeline update, so concurrent reviews cannot leave a stale mean.
func (r *CourseRepo) AddReview(ctx context.Context, courseID bson.ObjectID, rv model.Review) (model.Course, error) {
	if rv.Replies == nil {
		rv.Replies = []model.ReviewReply{}
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "reviews", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$reviews", bson.A{}}}},
				bson.A{bson.D{{Key: "$literal", Value: rv}}},
			}}}},
			{Key: "updatedAt", Value: r.now()},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "rating", Value: bson.D{{Key: "$avg", Value: "$reviews.rating"}}},
		}}},
	}
	return r.findAndUpdate(ctx, bson.D{{Key: "_id", Value: courseID}}, pipeline)
}

// AddReviewReply appends reply to one review.
func (r *CourseRepo) AddReviewReply(ctx context.Context, courseID, reviewID bson.ObjectID, reply model.ReviewReply) (model.Course, error) {
	filter := bson.D{
		{Key: "_id", Value: courseID},
		{Key: "reviews._id", Value: reviewID},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "reviews.$.commentReplies", Value: reply}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: r.now()}}},
	}
	return r.findAndUpdate(ctx, filter, update)
}

// IncrementPurchased bumps the purchase counter by one.
func (r *CourseRepo) IncrementPurchased(ctx context.Context, id bson.ObjectID) error {
	res, err := r.col.UpdateOne(ctx, bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "purchased", Value: 1}}}})
	if err != nil {
		return wrapError(err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CourseRepo) findAndUpdate(ctx context.Context, filter bson.D, update any) (model.Course, error) {
	var out model.Course
	err := r.col.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&out)
	return out, wrapError(err)
}

// Normalize gives every nested array a non-nil value and every content
// unit an id.  A null array in the stored document would make later
// $push updates fail.
func Normalize(c *model.Course) {
	if c.Benefits == nil {
		c.Benefits = []model.Title{}
	}
	if c.Prerequisites == nil {
		c.Prerequisites = []model.Title{}
	}
	if c.Reviews == nil {
		c.Reviews = []model.Review{}
	}
	if c.CourseData == nil {
		c.CourseData = []model.ContentUnit{}
	}
	for i := range c.CourseData {
		NormalizeContent(&c.CourseData[i])
	}
}

// NormalizeContent is Normalize for a single curriculum entry.
func NormalizeContent(u *model.ContentUnit) {
	if u.ID.IsZero() {
		u.ID = bson.NewObjectID()
	}
	if u.Links == nil {
		u.Links = []model.Link{}
	}
	if u.Questions == nil {
		u.Questions = []model.Question{}
	}
	for j := range u.Questions {
		if u.Questions[j].Answers == nil {
			u.Questions[j].Answers = []model.Answer{}
		}
	}
}
