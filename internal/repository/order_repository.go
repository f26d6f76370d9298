package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/iliyamo/elearning-backend/internal/model"
)

// OrderRepo persists purchases.  CreateWithEntitlement is the only write
// path: the order row, the user_courses grant and the in-app notification
// commit or roll back together.
type OrderRepo struct {
	db            *sql.DB
	users         *UserRepo
	notifications *NotificationRepo
}

func NewOrderRepo(db *sql.DB, users *UserRepo, notifications *NotificationRepo) *OrderRepo {
	return &OrderRepo{db: db, users: users, notifications: notifications}
}

// CreateWithEntitlement inserts o, grants o.CourseID to o.UserID and
// records n in a single transaction.  A repeated purchase of the same
// course yields ErrDuplicate and nothing is written.
func (r *OrderRepo) CreateWithEntitlement(ctx context.Context, o *model.Order, n *model.Notification) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := r.createTx(ctx, tx, o); err != nil {
		return err
	}
	if err := r.users.GrantCourseTx(ctx, tx, o.UserID, o.CourseID); err != nil {
		return err
	}
	n.UserID = o.UserID
	if err := r.notifications.CreateTx(ctx, tx, n); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *OrderRepo) createTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	var payment any
	if len(o.PaymentInfo) > 0 && json.Valid(o.PaymentInfo) {
		payment = string(o.PaymentInfo)
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO orders (user_id, course_id, payment_info) VALUES (?,?,?)",
		o.UserID, o.CourseID, payment)
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
	o.ID = uint64(id)
	return tx.QueryRowContext(ctx, "SELECT created_at FROM orders WHERE id=?", o.ID).Scan(&o.CreatedAt)
}
