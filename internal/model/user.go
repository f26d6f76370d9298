package model

import "time"

// Role names stored in users.role.
const (
    RoleUser  = "user"
    RoleAdmin = "admin"
)

// User is an account record from the `users` table joined with the ids of
// the courses the account owns (`user_courses`).  The same struct is what
// gets serialized into the session snapshot, so PasswordHash carries a "-"
// JSON tag: the hash is only loaded on the login and password-change paths
// and never leaves the process.
//
// Fields:
//  ID           – users.id primary key.
//  Name         – display name.
//  Email        – unique, lower-cased address.
//  PasswordHash – bcrypt hash; empty for social accounts.
//  Role         – RoleUser or RoleAdmin.
//  Avatar       – externally hosted picture.
//  Courses      – entitlements, one per purchased course.
type User struct {
    ID           uint64      `json:"_id"`
    Name         string      `json:"name"`
    Email        string      `json:"email"`
    PasswordHash string      `json:"-"`
    Role         string      `json:"role"`
    Avatar       Asset       `json:"avatar"`
    Courses      []CourseRef `json:"courses"`
    CreatedAt    time.Time   `json:"createdAt"`
    UpdatedAt    time.Time   `json:"updatedAt"`
}

// CourseRef is a weak reference to a purchased course (MongoDB hex id).
type CourseRef struct {
    CourseID string `json:"courseId"`
}

// Asset is an object hosted on the asset store: the object key used for
// deletion and the public URL used for display.
type Asset struct {
    PublicID string `json:"public_id" bson:"public_id"`
    URL      string `json:"url" bson:"url"`
}

// OwnsCourse reports whether courseID is among the user's entitlements.
func (u *User) OwnsCourse(courseID string) bool {
    for _, c := range u.Courses {
        if c.CourseID == courseID {
            return true
        }
    }
    return false
}

// PendingUser is the registration payload embedded in an activation token
// until the address is confirmed.  The password is already hashed so the
// plaintext never travels inside the (readable) token body.
type PendingUser struct {
    Name         string `json:"name"`
    Email        string `json:"email"`
    PasswordHash string `json:"password_hash"`
}
