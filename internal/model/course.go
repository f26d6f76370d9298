package model

import (
    "time"

    "go.mongodb.org/mongo-driver/v2/bson"
)

// Course is a document in the `courses` collection.  It owns its
// curriculum (CourseData) and its reviews; both are embedded arrays and
// are mutated with positional updates, never by rewriting the document.
// Rating is derived: the mean of Reviews[*].Rating, recomputed by the
// store in the same update that appends a review.
type Course struct {
    ID             bson.ObjectID `json:"_id" bson:"_id,omitempty"`
    Name           string        `json:"name" bson:"name"`
    Description    string        `json:"description" bson:"description"`
    Price          float64       `json:"price" bson:"price"`
    EstimatedPrice *float64      `json:"estimatedPrice,omitempty" bson:"estimatedPrice,omitempty"`
    Thumbnail      Asset         `json:"thumbnail" bson:"thumbnail"`
    Tags           string        `json:"tags" bson:"tags"`
    Level          string        `json:"level" bson:"level"`
    DemoURL        string        `json:"demoUrl" bson:"demoUrl"`
    Benefits       []Title       `json:"benefits" bson:"benefits"`
    Prerequisites  []Title       `json:"prerequisites" bson:"prerequisites"`
    Reviews        []Review      `json:"reviews" bson:"reviews"`
    CourseData     []ContentUnit `json:"courseData" bson:"courseData"`
    Rating         float64       `json:"rating" bson:"rating"`
    Purchased      int           `json:"purchased" bson:"purchased"`
    CreatedAt      time.Time     `json:"createdAt" bson:"createdAt"`
    UpdatedAt      time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// Title is a single benefit or prerequisite line.
type Title struct {
    Title string `json:"title" bson:"title"`
}

// Link is an external resource attached to a content unit.
type Link struct {
    Title string `json:"title" bson:"title"`
    URL   string `json:"url" bson:"url"`
}

// ContentUnit is one lesson in a course's ordered curriculum.
type ContentUnit struct {
    ID             bson.ObjectID `json:"_id" bson:"_id"`
    Title          string        `json:"title" bson:"title"`
    Description    string        `json:"description" bson:"description"`
    VideoURL       string        `json:"videoUrl" bson:"videoUrl"`
    VideoThumbnail Asset         `json:"videoThumbnail" bson:"videoThumbnail"`
    VideoSection   string        `json:"videoSection" bson:"videoSection"`
    VideoLength    float64       `json:"videoLength" bson:"videoLength"`
    VideoPlayer    string        `json:"videoPlayer" bson:"videoPlayer"`
    Links          []Link        `json:"links" bson:"links"`
    Suggestion     string        `json:"suggestion" bson:"suggestion"`
    Questions      []Question    `json:"questions" bson:"questions"`
}

// Author is a frozen copy of the posting user taken when a question,
// answer, review or reply is written.  Later profile edits do not rewrite
// it; old posts keep the name and avatar they were made under.  Email is
// stored for reply notifications and never serialised.
type Author struct {
    ID     uint64 `json:"_id" bson:"_id"`
    Name   string `json:"name" bson:"name"`
    Email  string `json:"-" bson:"email"`
    Avatar Asset  `json:"avatar" bson:"avatar"`
    Role   string `json:"role" bson:"role"`
}

// AuthorOf snapshots u.
func AuthorOf(u *User) Author {
    return Author{ID: u.ID, Name: u.Name, Email: u.Email, Avatar: u.Avatar, Role: u.Role}
}

// Question is a thread opened on a content unit.
type Question struct {
    ID        bson.ObjectID `json:"_id" bson:"_id"`
    User      Author        `json:"user" bson:"user"`
    Question  string        `json:"question" bson:"question"`
    Answers   []Answer      `json:"questionReplies" bson:"questionReplies"`
    CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
}

// Answer is a reply inside a question thread.  Replies to answers are not
// modelled.
type Answer struct {
    ID        bson.ObjectID `json:"_id" bson:"_id"`
    User      Author        `json:"user" bson:"user"`
    Answer    string        `json:"answer" bson:"answer"`
    CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
}

// Review is a rated comment left by an owner of the course.
type Review struct {
    ID        bson.ObjectID `json:"_id" bson:"_id"`
    User      Author        `json:"user" bson:"user"`
    Rating    float64       `json:"rating" bson:"rating"`
    Comment   string        `json:"comment" bson:"comment"`
    Replies   []ReviewReply `json:"commentReplies" bson:"commentReplies"`
    CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
}

// ReviewReply is an admin response to a review.
type ReviewReply struct {
    ID        bson.ObjectID `json:"_id" bson:"_id"`
    User      Author        `json:"user" bson:"user"`
    Comment   string        `json:"comment" bson:"comment"`
    CreatedAt time.Time     `json:"createdAt" bson:"createdAt"`
}

// FindContent returns the content unit with the given id.
func (c *Course) FindContent(id bson.ObjectID) (*ContentUnit, bool) {
    for i := range c.CourseData {
        if c.CourseData[i].ID == id {
            return &c.CourseData[i], true
        }
    }
    return nil, false
}

// FindQuestion returns the question with the given id inside the unit.
func (u *ContentUnit) FindQuestion(id bson.ObjectID) (*Question, bool) {
    for i := range u.Questions {
        if u.Questions[i].ID == id {
            return &u.Questions[i], true
        }
    }
    return nil, false
}

// FindReview returns the review with the given id.
func (c *Course) FindReview(id bson.ObjectID) (*Review, bool) {
    for i := range c.Reviews {
        if c.Reviews[i].ID == id {
            return &c.Reviews[i], true
        }
    }
    return nil, false
}

// AverageRating is the arithmetic mean of all review ratings, 0 without
// reviews.  It is recomputed from the full set, never accumulated.
func AverageRating(reviews []Review) float64 {
    if len(reviews) == 0 {
        return 0
    }
    var sum float64
    for _, r := range reviews {
        sum += r.Rating
    }
    return sum / float64(len(reviews))
}
