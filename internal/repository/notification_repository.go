package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/elearning-backend/internal/model"
)

// NotificationRepo stores in-app notifications.
type NotificationRepo struct{ db *sql.DB }

func NewNotificationRepo(db *sql.DB) *NotificationRepo { return &NotificationRepo{db: db} }

// CreateTx inserts n within tx.  Status defaults to unread.
func (r *NotificationRepo) CreateTx(ctx context.Context, tx *sql.Tx, n *model.Notification) error {
	if n.Status == "" {
		n.Status = model.NotificationUnread
	}
	res, err := tx.ExecContext(ctx,
		"INSERT INTO notifications (user_id, title, message, status) VALUES (?,?,?,?)",
		n.UserID, n.Title, n.Message, n.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	n.ID = uint64(id)
	return tx.QueryRowContext(ctx, "SELECT created_at FROM notifications WHERE id=?", n.ID).Scan(&n.CreatedAt)
}
