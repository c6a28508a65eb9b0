package notifications

import (
	"context"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

func (s *Store) CreateNotification(ctx context.Context, userID, ntype, title, body string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO notifications (id, user_id, type, title, body, read)
    VALUES ($1, $2, $3, $4, $5, false)
  `, uuid.NewString(), userID, ntype, title, body)
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, filter Filter) ([]Notification, error) {
	query := `
    SELECT id, user_id, type, title, body, read, created_at
    FROM notifications
    WHERE user_id = $1
  `
	args := []any{userID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += " AND type = $2"
	}
	if filter.Read != nil {
		args = append(args, *filter.Read)
		query += " AND read = $" + strconv.Itoa(len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Body, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, "SELECT COUNT(1) FROM notifications WHERE user_id = $1 AND read = false", userID).Scan(&count)
	return count, err
}

func (s *Store) MarkRead(ctx context.Context, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read = true, updated_at = now()
    WHERE id = $1 AND user_id = $2
  `, notificationID, userID)
	return err
}

func (s *Store) MarkAllRead(ctx context.Context, userID string) error {
	_, err := s.DB.Exec(ctx, `
    UPDATE notifications SET read = true, updated_at = now()
    WHERE user_id = $1 AND read = false
  `, userID)
	return err
}

func (s *Store) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	_, err := s.DB.Exec(ctx, "DELETE FROM notifications WHERE id = $1 AND user_id = $2", notificationID, userID)
	return err
}

func (s *Store) UserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.DB.QueryRow(ctx, "SELECT email FROM profiles WHERE id = $1", userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return email, err
}
