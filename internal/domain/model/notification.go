package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationTypeCommission NotificationType = "referral_commission"
)

// Notification is a user-facing record created best-effort; failure to
// create one never fails the operation that triggered it.
type Notification struct {
	ID        uuid.UUID        `db:"id"`
	UserID    string           `db:"user_id"`
	Type      NotificationType `db:"type"`
	Title     string           `db:"title"`
	Message   string           `db:"message"`
	Read      bool             `db:"read"`
	CreatedAt time.Time        `db:"created_at"`
}
