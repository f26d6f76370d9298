package model

import (
    "time"

    "go.mongodb.org/mongo-driver/v2/bson"
)

// CoursePreview is the public view of a course.  Its curriculum entries
// carry no video URL, suggestion, links or question threads: the fields do
// not exist on the type, so neither a store projection slip nor a stale
// cache entry can leak them.
type CoursePreview struct {
    ID             bson.ObjectID    `json:"_id" bson:"_id"`
    Name           string           `json:"name" bson:"name"`
    Description    string           `json:"description" bson:"description"`
    Price          float64          `json:"price" bson:"price"`
    EstimatedPrice *float64         `json:"estimatedPrice,omitempty" bson:"estimatedPrice,omitempty"`
    Thumbnail      Asset            `json:"thumbnail" bson:"thumbnail"`
    Tags           string           `json:"tags" bson:"tags"`
    Level          string           `json:"level" bson:"level"`
    DemoURL        string           `json:"demoUrl" bson:"demoUrl"`
    Benefits       []Title          `json:"benefits" bson:"benefits"`
    Prerequisites  []Title          `json:"prerequisites" bson:"prerequisites"`
    Reviews        []Review         `json:"reviews" bson:"reviews"`
    CourseData     []ContentPreview `json:"courseData" bson:"courseData"`
    Rating         float64          `json:"rating" bson:"rating"`
    Purchased      int              `json:"purchased" bson:"purchased"`
    CreatedAt      time.Time        `json:"createdAt" bson:"createdAt"`
    UpdatedAt      time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// ContentPreview is a curriculum entry as shown to visitors.
type ContentPreview struct {
    ID             bson.ObjectID `json:"_id" bson:"_id"`
    Title          string        `json:"title" bson:"title"`
    Description    string        `json:"description" bson:"description"`
    VideoThumbnail Asset         `json:"videoThumbnail" bson:"videoThumbnail"`
    VideoSection   string        `json:"videoSection" bson:"videoSection"`
    VideoLength    float64       `json:"videoLength" bson:"videoLength"`
    VideoPlayer    string        `json:"videoPlayer" bson:"videoPlayer"`
}

// Preview projects the course onto its public view.
func (c *Course) Preview() CoursePreview {
    units := make([]ContentPreview, 0, len(c.CourseData))
    for _, u := range c.CourseData {
        units = append(units, ContentPreview{
            ID:             u.ID,
            Title:          u.Title,
            Description:    u.Description,
            VideoThumbnail: u.VideoThumbnail,
            VideoSection:   u.VideoSection,
            VideoLength:    u.VideoLength,
            VideoPlayer:    u.VideoPlayer,
        })
    }
    return CoursePreview{
        ID:             c.ID,
        Name:           c.Name,
        Description:    c.Description,
        Price:          c.Price,
        EstimatedPrice: c.EstimatedPrice,
        Thumbnail:      c.Thumbnail,
        Tags:           c.Tags,
        Level:          c.Level,
        DemoURL:        c.DemoURL,
        Benefits:       c.Benefits,
        Prerequisites:  c.Prerequisites,
        Reviews:        c.Reviews,
        CourseData:     units,
        Rating:         c.Rating,
        Purchased:      c.Purchased,
        CreatedAt:      c.CreatedAt,
        UpdatedAt:      c.UpdatedAt,
    }
}
