package notify

import (
	"context"
	"time"
)

type Type string

const (
	TypeOrder   Type = "order"
	TypeListing Type = "listing"
	TypeDispute Type = "dispute"
	TypeSystem  Type = "system"
)

// PageSize caps every notification listing.
const PageSize = 50

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Type      Type      `json:"type"`
	IsRead    bool      `json:"isRead"`
	CreatedAt time.Time `json:"createdAt"`
}

type Store interface {
	CreateNotification(ctx context.Context, n Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	// ListNotifications returns the user's notifications newest first.
	ListNotifications(ctx context.Context, userID string, limit int) ([]Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error
	// MarkAllNotificationsRead returns how many unread notifications it flipped.
	MarkAllNotificationsRead(ctx context.Context, userID string) (int, error)
}

// Pusher delivers an encoded notification to the user's live sessions.
type Pusher interface {
	Push(ctx context.Context, userID string, msg []byte) error
}
