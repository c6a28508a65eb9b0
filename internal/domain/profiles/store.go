package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("profile not found")

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

func (s *Store) GetProfile(ctx context.Context, id string) (Profile, error) {
	var profile Profile
	err := s.DB.QueryRow(ctx, `
    SELECT id, email, full_name, department, role, created_at, updated_at
    FROM profiles
    WHERE id = $1
  `, id).Scan(&profile.ID, &profile.Email, &profile.FullName, &profile.Department, &profile.Role, &profile.CreatedAt, &profile.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Profile{}, err
	}
	return profile, nil
}

func (s *Store) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, email, full_name, department, role, created_at, updated_at
    FROM profiles
    ORDER BY full_name
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var profile Profile
		if err := rows.Scan(&profile.ID, &profile.Email, &profile.FullName, &profile.Department, &profile.Role, &profile.CreatedAt, &profile.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, profile)
	}
	return out, rows.Err()
}

func (s *Store) UpdateProfile(ctx context.Context, id string, input UpdateInput) (Profile, error) {
	tag, err := s.DB.Exec(ctx, `
    UPDATE profiles
    SET full_name = $2, department = $3, updated_at = now()
    WHERE id = $1
  `, id, input.FullName, input.Department)
	if err != nil {
		return Profile{}, err
	}
	if tag.RowsAffected() == 0 {
		return Profile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.GetProfile(ctx, id)
}
