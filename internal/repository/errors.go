// Package repository defines error types that are reused across the MySQL
// and MongoDB repositories. These sentinel values allow the service layer
// to distinguish between different failure scenarios without knowing which
// store produced them. For example, ErrDuplicate is returned for a unique
// key violation in either store, while ErrNotFound covers both
// sql.ErrNoRows and mongo.ErrNoDocuments.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when the requested row or document does not
// exist. Services translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert or update violates a unique
// index (users.email, orders(user_id, course_id), user_courses PK).
var ErrDuplicate = errors.New("duplicate key")

// ErrInvalidID is returned when a course id is not a valid ObjectID.
var ErrInvalidID = errors.New("invalid id")

// isDuplicateSQL reports whether err is MySQL error 1062.
func isDuplicateSQL(err error) bool {
	if err == nil {
		return false
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	return strings.Contains(strings.ToLower(err.Error()), "1062")
}
