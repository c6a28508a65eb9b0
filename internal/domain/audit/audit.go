package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Event struct {
	ID         string          `json:"id"`
	ActorID    string          `json:"actorId"`
	Action     string          `json:"action"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	RequestID  string          `json:"requestId"`
	IP         string          `json:"ip"`
	CreatedAt  time.Time       `json:"createdAt"`
	Before     json.RawMessage `json:"before,omitempty"`
	After      json.RawMessage `json:"after,omitempty"`
}

type Service struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Service {
	return &Service{DB: db}
}

func (s *Service) Record(ctx context.Context, actorID, action, entityType, entityID, requestID, ip string, before, after any) error {
	var beforeJSON, afterJSON []byte
	if before != nil {
		payload, err := json.Marshal(before)
		if err != nil {
			return err
		}
		beforeJSON = payload
	}
	if after != nil {
		payload, err := json.Marshal(after)
		if err != nil {
			return err
		}
		afterJSON = payload
	}
	_, err := s.DB.Exec(ctx, `
    INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, request_id, ip, before, after)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
  `, uuid.NewString(), actorID, action, entityType, entityID, requestID, ip, beforeJSON, afterJSON)
	return err
}

func (s *Service) List(ctx context.Context, action string, limit, offset int) ([]Event, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
    SELECT id, actor_id, action, entity_type, entity_id, request_id, ip, created_at, before, after
    FROM audit_events
    WHERE ($1 = '' OR action = $1)
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, action, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		if err := rows.Scan(&event.ID, &event.ActorID, &event.Action, &event.EntityType, &event.EntityID, &event.RequestID, &event.IP, &event.CreatedAt, &event.Before, &event.After); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}
