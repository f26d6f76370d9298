package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/elearning-backend/internal/model"
)

// UserRepo reads and writes the users table and the user_courses
// entitlement table.  Methods return model.User with Courses populated.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

const userColumns = "id,name,email,password_hash,role,avatar_public_id,avatar_url,created_at,updated_at"

func normalizeEmail(email string) string { return strings.ToLower(strings.TrimSpace(email)) }

// Create inserts u and fills in its ID and timestamps.  A taken email
// yields ErrDuplicate.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Email = normalizeEmail(u.Email)
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	res, err := r.db.ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role, avatar_public_id, avatar_url) VALUES (?,?,?,?,?,?)",
		u.Name, u.Email, nullIfEmpty(u.PasswordHash), u.Role, u.Avatar.PublicID, u.Avatar.URL)
	if err != nil {
		if isDuplicateSQL(err) {
			return ErrDuplicate
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	created, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	hash := u.PasswordHash
	*u = created
	u.PasswordHash = hash
	return nil
}

// GetByEmail fetches a user by normalized email, without the password hash.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := r.GetByEmailWithPassword(ctx, email)
	u.PasswordHash = ""
	return u, err
}

// GetByEmailWithPassword is GetByEmail for the login path.
func (r *UserRepo) GetByEmailWithPassword(ctx context.Context, email string) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? LIMIT 1", normalizeEmail(email))
	return r.scanWithCourses(ctx, row)
}

// GetByID fetches a user by id, without the password hash.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	u, err := r.GetByIDWithPassword(ctx, id)
	u.PasswordHash = ""
	return u, err
}

// GetByIDWithPassword is GetByID for the password-change path.
func (r *UserRepo) GetByIDWithPassword(ctx context.Context, id uint64) (model.User, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id)
	return r.scanWithCourses(ctx, row)
}

// EmailTaken reports whether any account uses email.
func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM users WHERE email=? LIMIT 1", normalizeEmail(email)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// UpdateProfile sets name and email.  Empty arguments keep the stored value.
// A missing id is not an error here; callers re-read the row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uint64, name, email string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE users SET name=IF(?='',name,?), email=IF(?='',email,?) WHERE id=?",
		name, name, normalizeEmail(email), normalizeEmail(email), id)
	if isDuplicateSQL(err) {
		return ErrDuplicate
	}
	return err
}

// UpdatePassword replaces the stored hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id uint64, hash string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE users SET password_hash=? WHERE id=?", hash, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// OwnsCourse checks user_courses directly; it does not trust a cached
// snapshot.
func (r *UserRepo) OwnsCourse(ctx context.Context, userID uint64, courseID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx,
		"SELECT 1 FROM user_courses WHERE user_id=? AND course_id=? LIMIT 1", userID, courseID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// GrantCourseTx adds an entitlement within the caller's transaction.
func (r *UserRepo) GrantCourseTx(ctx context.Context, tx *sql.Tx, userID uint64, courseID string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO user_courses (user_id, course_id) VALUES (?,?)", userID, courseID)
	if isDuplicateSQL(err) {
		return ErrDuplicate
	}
	return err
}

func (r *UserRepo) scanWithCourses(ctx context.Context, row *sql.Row) (model.User, error) {
	var (
		u    model.User
		hash sql.NullString
	)
	err := row.Scan(&u.ID, &u.Name, &u.Email, &hash, &u.Role,
		&u.Avatar.PublicID, &u.Avatar.URL, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, err
	}
	u.PasswordHash = hash.String
	u.Courses, err = r.courses(ctx, u.ID)
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepo) courses(ctx context.Context, userID uint64) ([]model.CourseRef, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT course_id FROM user_courses WHERE user_id=? ORDER BY created_at, course_id", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.CourseRef, 0)
	for rows.Next() {
		var ref model.CourseRef
		if err := rows.Scan(&ref.CourseID); err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
