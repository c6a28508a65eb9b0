package notifications

import (
	"context"
	"log/slog"
)

type Mailer interface {
	Send(ctx context.Context, from, to, subject, body string) error
}

type Service struct {
	store       StoreAPI
	Mailer      Mailer
	DefaultFrom string
}

func New(store StoreAPI, mailer Mailer, from string) *Service {
	if from == "" {
		from = "no-reply@example.com"
	}
	return &Service{store: store, Mailer: mailer, DefaultFrom: from}
}

// Create stores the notification and, when a mailer is configured, mirrors it
// to the user's inbox. Email delivery is best effort; a failed send never
// fails the notification itself.
func (s *Service) Create(ctx context.Context, userID, ntype, title, body string) error {
	if err := s.store.CreateNotification(ctx, userID, ntype, title, body); err != nil {
		return err
	}

	if s.Mailer == nil {
		return nil
	}
	email, err := s.store.UserEmail(ctx, userID)
	if err != nil {
		slog.Warn("notification email lookup failed", "err", err)
		return nil
	}
	if email == "" {
		return nil
	}
	if err := s.Mailer.Send(ctx, s.DefaultFrom, email, title, body); err != nil {
		slog.Warn("notification email send failed", "err", err)
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID string, filter Filter) ([]Notification, error) {
	return s.store.ListNotifications(ctx, userID, filter)
}

func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return s.store.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, notificationID string) error {
	return s.store.MarkRead(ctx, userID, notificationID)
}

func (s *Service) MarkAllRead(ctx context.Context, userID string) error {
	return s.store.MarkAllRead(ctx, userID)
}

func (s *Service) Delete(ctx context.Context, userID, notificationID string) error {
	return s.store.DeleteNotification(ctx, userID, notificationID)
}
