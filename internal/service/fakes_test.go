package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/iliyamo/elearning-backend/internal/cache"
	"github.com/iliyamo/elearning-backend/internal/model"
	"github.com/iliyamo/elearning-backend/internal/queue"
	"github.com/iliyamo/elearning-backend/internal/repository"
)

// fakeUsers is an in-memory UserStore.
type fakeUsers struct {
	mu     sync.Mutex
	nextID uint64
	byID   map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, u *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, other := range f.byID {
		if other.Email == u.Email {
			return repository.ErrDuplicate
		}
	}
	f.nextID++
	u.ID = f.nextID
	if u.Courses == nil {
		u.Courses = []model.CourseRef{}
	}
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.byID[u.ID] = *u
	return nil
}

func (f *fakeUsers) find(match func(model.User) bool) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			u.Courses = append([]model.CourseRef{}, u.Courses...)
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (f *fakeUsers) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := f.GetByEmailWithPassword(ctx, email)
	u.PasswordHash = ""
	return u, err
}

func (f *fakeUsers) GetByEmailWithPassword(_ context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return f.find(func(u model.User) bool { return u.Email == email })
}

func (f *fakeUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := f.GetByIDWithPassword(ctx, id)
	u.PasswordHash = ""
	return u, err
}

func (f *fakeUsers) GetByIDWithPassword(_ context.Context, id uint64) (model.User, error) {
	return f.find(func(u model.User) bool { return u.ID == id })
}

func (f *fakeUsers) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := f.GetByEmailWithPassword(ctx, email)
	return err == nil, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id uint64, name, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil
	}
	if email != "" {
		for _, other := range f.byID {
			if other.ID != id && other.Email == email {
				return repository.ErrDuplicate
			}
		}
		u.Email = email
	}
	if name != "" {
		u.Name = name
	}
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, id uint64, hash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) OwnsCourse(_ context.Context, userID uint64, courseID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[userID]
	return u.OwnsCourse(courseID), nil
}

func (f *fakeUsers) grant(userID uint64, courseID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[userID]
	if !ok {
		return repository.ErrNotFound
	}
	if u.OwnsCourse(courseID) {
		return repository.ErrDuplicate
	}
	u.Courses = append(u.Courses, model.CourseRef{CourseID: courseID})
	f.byID[userID] = u
	return nil
}

// fakeCourses is an in-memory CourseStore.  Each method holds the lock for
// the whole read-modify-write, mirroring single-document atomicity.
type fakeCourses struct {
	mu       sync.Mutex
	docs     map[bson.ObjectID]model.Course
	previews int // FindPreviewByID + ListPreviews calls
}

func newFakeCourses() *fakeCourses { return &fakeCourses{docs: map[bson.ObjectID]model.Course{}} }

func (f *fakeCourses) Create(_ context.Context, c *model.Course) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = bson.NewObjectID()
	}
	repository.Normalize(c)
	f.docs[c.ID] = *c
	return nil
}

func (f *fakeCourses) Update(_ context.Context, id bson.ObjectID, fields bson.D) (model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.docs[id]
	if !ok {
		return model.Course{}, repository.ErrNotFound
	}
	for _, e := range fields {
		switch e.Key {
		case "name":
			c.Name = e.Value.(string)
		case "description":
			c.Description = e.Value.(string)
		case "price":
			c.Price = e.Value.(float64)
		case "thumbnail":
			c.Thumbnail = e.Value.(model.Asset)
		case "courseData":
			c.CourseData = e.Value.([]model.ContentUnit)
		case "level":
			c.Level = e.Value.(string)
		}
	}
	f.docs[id] = c
	return c, nil
}

func (f *fakeCourses) FindByID(_ context.Context, id bson.ObjectID) (model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.docs[id]
	if !ok {
		return model.Course{}, repository.ErrNotFound
	}
	return c, nil
}

func (f *fakeCourses) FindPreviewByID(_ context.Context, id bson.ObjectID) (model.CoursePreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews++
	c, ok := f.docs[id]
	if !ok {
		return model.CoursePreview{}, repository.ErrNotFound
	}
	return c.Preview(), nil
}

func (f *fakeCourses) ListPreviews(_ context.Context) ([]model.CoursePreview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.previews++
	out := make([]model.CoursePreview, 0, len(f.docs))
	for _, c := range f.docs {
		out = append(out, c.Preview())
	}
	return out, nil
}

func (f *fakeCourses) mutate(id bson.ObjectID, fn func(c *model.Course) bool) (model.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.docs[id]
	if !ok || !fn(&c) {
		return model.Course{}, repository.ErrNotFound
	}
	f.docs[id] = c
	return c, nil
}

func (f *fakeCourses) AddQuestion(_ context.Context, courseID, contentID bson.ObjectID, q model.Question) (model.Course, error) {
	return f.mutate(courseID, func(c *model.Course) bool {
		unit, ok := c.FindContent(contentID)
		if ok {
			unit.Questions = append(unit.Questions, q)
		}
		return ok
	})
}

func (f *fakeCourses) AddAnswer(_ context.Context, courseID, contentID, questionID bson.ObjectID, a model.Answer) (model.Course, error) {
	return f.mutate(courseID, func(c *model.Course) bool {
		unit, ok := c.FindContent(contentID)
		if !ok {
			return false
		}
		q, ok := unit.FindQuestion(questionID)
		if ok {
			q.Answers = append(q.Answers, a)
		}
		return ok
	})
}

func (f *fakeCourses) AddReview(_ context.Context, courseID bson.ObjectID, r model.Review) (model.Course, error) {
	return f.mutate(courseID, func(c *model.Course) bool {
		c.Reviews = append(c.Reviews, r)
		c.Rating = model.AverageRating(c.Reviews)
		return true
	})
}

func (f *fakeCourses) AddReviewReply(_ context.Context, courseID, reviewID bson.ObjectID, reply model.ReviewReply) (model.Course, error) {
	return f.mutate(courseID, func(c *model.Course) bool {
		r, ok := c.FindReview(reviewID)
		if ok {
			r.Replies = append(r.Replies, reply)
		}
		return ok
	})
}

func (f *fakeCourses) IncrementPurchased(_ context.Context, id bson.ObjectID) error {
	_, err := f.mutate(id, func(c *model.Course) bool { c.Purchased++; return true })
	return err
}

// fakeOrders grants entitlements on the fake user store.
type fakeOrders struct {
	users         *fakeUsers
	nextID        uint64
	notifications []model.Notification
	err           error
}

func (f *fakeOrders) CreateWithEntitlement(_ context.Context, o *model.Order, n *model.Notification) error {
	if f.err != nil {
		return f.err
	}
	if err := f.users.grant(o.UserID, o.CourseID); err != nil {
		return err
	}
	f.nextID++
	o.ID = f.nextID
	o.CreatedAt = time.Now().UTC()
	n.UserID = o.UserID
	n.Status = model.NotificationUnread
	f.notifications = append(f.notifications, *n)
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []queue.MailEvent
	err    error
}

func (f *fakePublisher) PublishMail(_ context.Context, ev queue.MailEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) last() queue.MailEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[len(f.events)-1]
}

// fakeAssets records uploads and deletions in call order.
type fakeAssets struct {
	calls []string
	err   error
}

func (f *fakeAssets) Upload(_ context.Context, folder, name, _ string) (model.Asset, error) {
	if f.err != nil {
		return model.Asset{}, f.err
	}
	id := folder + "/" + name
	f.calls = append(f.calls, "upload:"+id)
	return model.Asset{PublicID: id, URL: "https://assets.example/" + id}, nil
}

func (f *fakeAssets) Delete(_ context.Context, publicID string) error {
	f.calls = append(f.calls, "delete:"+publicID)
	return nil
}

// testEnv wires every service against fakes.
type testEnv struct {
	users   *fakeUsers
	courses *fakeCourses
	orders  *fakeOrders
	mail    *fakePublisher
	assets  *fakeAssets
	cache   *cache.Memory

	tokens    *TokenService
	userSvc   *UserService
	courseSvc *CourseService
	orderSvc  *OrderService
}

var testTokenConfig = TokenConfig{
	ActivationSecret: "activation-secret",
	AccessSecret:     "access-secret",
	RefreshSecret:    "refresh-secret",
	AccessTTL:        5 * time.Minute,
	RefreshTTL:       72 * time.Hour,
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zap.NewNop()
	e := &testEnv{
		users:   newFakeUsers(),
		courses: newFakeCourses(),
		mail:    &fakePublisher{},
		assets:  &fakeAssets{},
		cache:   cache.NewMemory(),
	}
	e.orders = &fakeOrders{users: e.users}
	e.tokens = NewTokenService(testTokenConfig, e.cache)
	e.userSvc = NewUserService(e.users, e.tokens, e.mail, 4, log)
	e.courseSvc = NewCourseService(e.courses, e.users, e.assets, e.cache, e.mail, true, log)
	e.orderSvc = NewOrderService(e.orders, e.users, e.courses, e.courseSvc, e.tokens, e.mail, log)
	return e
}

// seedUser creates an account directly in the store.
func (e *testEnv) seedUser(t *testing.T, name, email string) model.User {
	t.Helper()
	u := model.User{Name: name, Email: email, Role: model.RoleUser}
	if err := e.users.Create(context.Background(), &u); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// seedCourse creates a one-lesson course directly in the store.
func (e *testEnv) seedCourse(t *testing.T) model.Course {
	t.Helper()
	c := model.Course{
		Name:  "Go in practice",
		Price: 49,
		CourseData: []model.ContentUnit{{
			Title:      "Intro",
			VideoURL:   "https://video.example/1",
			Suggestion: "read the docs",
			Links:      []model.Link{{Title: "docs", URL: "https://go.dev"}},
		}},
	}
	if err := e.courses.Create(context.Background(), &c); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	return c
}
