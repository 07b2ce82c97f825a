package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/kodax/deposit-reconciler/internal/domain/model"
)

type NotificationRepo struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, now())
	`, n.ID, n.UserID, n.Type, n.Title, n.Message)
	if err != nil {
		return fmt.Errorf("create notification for %s: %w", n.UserID, err)
	}
	return nil
}
