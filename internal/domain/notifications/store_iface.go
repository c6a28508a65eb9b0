package notifications

import (
	"context"
	"time"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type Filter struct {
	Type   string
	Read   *bool
	Limit  int
	Offset int
}

type StoreAPI interface {
	CreateNotification(ctx context.Context, userID, ntype, title, body string) error
	ListNotifications(ctx context.Context, userID string, filter Filter) ([]Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	MarkAllRead(ctx context.Context, userID string) error
	DeleteNotification(ctx context.Context, userID, notificationID string) error
	UserEmail(ctx context.Context, userID string) (string, error)
}
