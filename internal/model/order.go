package model

import (
    "encoding/json"
    "time"
)

// Order records a course purchase in the `orders` table.  The pair
// (UserID, CourseID) is unique: an account can buy a course once.
//
// Fields:
//  ID          – orders.id primary key.
//  CourseID    – purchased course (MongoDB hex id).
//  UserID      – buyer.
//  PaymentInfo – opaque payment provider payload, stored as JSON.
//  CreatedAt   – creation timestamp.
type Order struct {
    ID          uint64          `json:"_id"`
    CourseID    string          `json:"courseId"`
    UserID      uint64          `json:"userId"`
    PaymentInfo json.RawMessage `json:"payment_info,omitempty"`
    CreatedAt   time.Time       `json:"createdAt"`
}

// Notification status values.
const (
    NotificationUnread = "unread"
)

// Notification is an in-app message row in the `notifications` table.
type Notification struct {
    ID        uint64    `json:"_id"`
    UserID    uint64    `json:"userId"`
    Title     string    `json:"title"`
    Message   string    `json:"message"`
    Status    string    `json:"status"`
    CreatedAt time.Time `json:"createdAt"`
}
