package db

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"eval360/internal/domain/auth"
	"eval360/internal/platform/config"
)

var defaultCriteria = []struct {
	Name        string
	Description string
}{
	{"Communication", "Shares information clearly and listens to others."},
	{"Teamwork", "Collaborates well and supports colleagues."},
	{"Leadership", "Guides and motivates others toward shared goals."},
	{"Problem Solving", "Analyzes issues and finds effective solutions."},
	{"Adaptability", "Adjusts well to changing priorities and conditions."},
	{"Time Management", "Organizes work and meets deadlines reliably."},
	{"Creativity", "Brings original ideas and fresh perspectives."},
	{"Technical Skills", "Applies the knowledge the role requires."},
	{"Initiative", "Acts proactively without waiting to be asked."},
	{"Professionalism", "Maintains high standards of conduct and quality."},
}

// Seed ensures the reference data a fresh deployment needs: the competency
// catalog and an initial admin account. Every step is idempotent.
func Seed(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.SeedCriteria {
		if err := ensureCriteria(ctx, pool); err != nil {
			return err
		}
	}
	if cfg.SeedAdminEmail != "" && cfg.SeedAdminPassword != "" {
		if err := ensureAdminUser(ctx, pool, cfg.SeedAdminEmail, cfg.SeedAdminPassword); err != nil {
			return err
		}
	}
	return nil
}

func ensureCriteria(ctx context.Context, pool *pgxpool.Pool) error {
	for _, c := range defaultCriteria {
		if _, err := pool.Exec(ctx, `
      INSERT INTO evaluation_criteria (name, description)
      VALUES ($1, $2)
      ON CONFLICT (name) DO NOTHING
    `, c.Name, c.Description); err != nil {
			return err
		}
	}
	return nil
}

func ensureAdminUser(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(1) FROM profiles WHERE lower(email) = lower($1)", email).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, `
    INSERT INTO profiles (email, full_name, role, password_hash)
    VALUES (lower($1), 'Administrator', $2, $3)
  `, email, auth.RoleAdmin, hash); err != nil {
		return err
	}
	slog.Info("seeded admin account", "email", email)
	return nil
}
