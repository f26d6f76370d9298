package repository

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/iliyamo/elearning-backend/internal/model"
)

// newTestCourseRepo connects to MONGO_TEST_URI and returns a repository
// on a throwaway database.  The test is skipped when no server is reachable.
func newTestCourseRepo(t *testing.T) *CourseRepo {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set, skipping MongoDB integration test")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}

	db := client.Database("elearning_test_" + bson.NewObjectID().Hex())
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return NewCourseRepo(context.Background(), db)
}

func seedCourse(t *testing.T, r *CourseRepo) *model.Course {
	t.Helper()
	c := &model.Course{
		Name:  "Go in practice",
		Price: 49,
		CourseData: []model.ContentUnit{{
			Title:      "Intro",
			VideoURL:   "https://video.example/1",
			Suggestion: "read the docs",
			Links:      []model.Link{{Title: "docs", URL: "https://go.dev"}},
		}},
	}
	require.NoError(t, r.Create(context.Background(), c))
	return c
}

func TestCourseRepo_CreateAndPreview(t *testing.T) {
	r := newTestCourseRepo(t)
	ctx := context.Background()
	c := seedCourse(t, r)

	full, err := r.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://video.example/1", full.CourseData[0].VideoURL)

	preview, err := r.FindPreviewByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Intro", preview.CourseData[0].Title)

	list, err := r.ListPreviews(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = r.FindByID(ctx, bson.NewObjectID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCourseRepo_UpdateMergesFields(t *testing.T) {
	r := newTestCourseRepo(t)
	c := seedCourse(t, r)

	updated, err := r.Update(context.Background(), c.ID, bson.D{{Key: "price", Value: 59.0}})
	require.NoError(t, err)
	assert.Equal(t, 59.0, updated.Price)
	assert.Equal(t, "Go in practice", updated.Name)

	_, err = r.Update(context.Background(), bson.NewObjectID(), bson.D{{Key: "price", Value: 1.0}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCourseRepo_QuestionAndAnswer(t *testing.T) {
	r := newTestCourseRepo(t)
	ctx := context.Background()
	c := seedCourse(t, r)
	contentID := c.CourseData[0].ID

	q := model.Question{ID: bson.NewObjectID(), Question: "why?", CreatedAt: time.Now().UTC()}
	after, err := r.AddQuestion(ctx, c.ID, contentID, q)
	require.NoError(t, err)
	require.Len(t, after.CourseData[0].Questions, 1)

	a := model.Answer{ID: bson.NewObjectID(), Answer: "because", CreatedAt: time.Now().UTC()}
	after, err = r.AddAnswer(ctx, c.ID, contentID, q.ID, a)
	require.NoError(t, err)
	assert.Equal(t, "because", after.CourseData[0].Questions[0].Answers[0].Answer)

	_, err = r.AddAnswer(ctx, c.ID, contentID, bson.NewObjectID(), a)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = r.AddQuestion(ctx, c.ID, bson.NewObjectID(), q)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCourseRepo_ConcurrentReviewsKeepExactMean(t *testing.T) {
	r := newTestCourseRepo(t)
	c := seedCourse(t, r)

	ratings := []float64{5, 4, 3, 2, 1, 5, 5, 4}
	var wg sync.WaitGroup
	for _, rating := range ratings {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			_, err := r.AddReview(context.Background(), c.ID, model.Review{ID: bson.NewObjectID(), Rating: v})
			assert.NoError(t, err)
		}(rating)
	}
	wg.Wait()

	got, err := r.FindByID(context.Background(), c.ID)
	require.NoError(t, err)
	require.Len(t, got.Reviews, len(ratings))
	assert.InDelta(t, 29.0/8.0, got.Rating, 1e-9)
	assert.InDelta(t, model.AverageRating(got.Reviews), got.Rating, 1e-9)
}

func TestCourseRepo_ReviewReplyAndPurchased(t *testing.T) {
	r := newTestCourseRepo(t)
	ctx := context.Background()
	c := seedCourse(t, r)

	rv := model.Review{ID: bson.NewObjectID(), Rating: 4, Comment: "good"}
	_, err := r.AddReview(ctx, c.ID, rv)
	require.NoError(t, err)

	after, err := r.AddReviewReply(ctx, c.ID, rv.ID, model.ReviewReply{ID: bson.NewObjectID(), Comment: "thanks"})
	require.NoError(t, err)
	stored, ok := after.FindReview(rv.ID)
	require.True(t, ok)
	require.Len(t, stored.Replies, 1)
	assert.Equal(t, "thanks", stored.Replies[0].Comment)
	_, ok = after.FindReview(bson.NewObjectID())
	assert.False(t, ok)

	require.NoError(t, r.IncrementPurchased(ctx, c.ID))
	got, err := r.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Purchased)

	assert.ErrorIs(t, r.IncrementPurchased(ctx, bson.NewObjectID()), ErrNotFound)
}
