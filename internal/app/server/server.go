package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eval360/internal/domain/audit"
	"eval360/internal/domain/auth"
	"eval360/internal/domain/evaluation"
	"eval360/internal/domain/notifications"
	"eval360/internal/domain/profiles"
	"eval360/internal/platform/config"
	"eval360/internal/platform/db"
	"eval360/internal/platform/email"
	audithandler "eval360/internal/transport/http/handlers/audit"
	authhandler "eval360/internal/transport/http/handlers/auth"
	evaluationshandler "eval360/internal/transport/http/handlers/evaluations"
	notificationshandler "eval360/internal/transport/http/handlers/notifications"
	profileshandler "eval360/internal/transport/http/handlers/profiles"
	"eval360/internal/transport/http/middleware"
)

type App struct {
	Config config.Config
	Pool   *pgxpool.Pool
	Router http.Handler
}

// New connects to the database, applies migrations and seed data when
// configured, and assembles the full HTTP router.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, locateMigrations()); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	notifySvc := notifications.New(notifications.NewStore(pool), email.New(cfg), cfg.EmailFrom)
	evalSvc := evaluation.NewService(evaluation.NewStore(pool), cfg.ResponseRetries)
	auditSvc := audit.New(pool)
	authStore := auth.NewStore(pool)
	profileStore := profiles.NewStore(pool)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(cfg.Environment == "production"))
	router.Use(middleware.BodyLimit(cfg.MaxBodyBytes))
	router.Use(middleware.Auth(cfg.JWTSecret))
	router.Use(middleware.RateLimit(cfg.RateLimitPerMinute, time.Minute))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	router.Route("/api/v1", func(r chi.Router) {
		authhandler.NewHandler(authStore, notifySvc, cfg.JWTSecret, cfg.TokenTTL).RegisterRoutes(r)
		evaluationshandler.NewHandler(evalSvc, profileStore, notifySvc, auditSvc).RegisterRoutes(r)
		profileshandler.NewHandler(profileStore).RegisterRoutes(r)
		notificationshandler.NewHandler(notifySvc).RegisterRoutes(r)
		audithandler.NewHandler(auditSvc).RegisterRoutes(r)
	})

	router.Mount("/", spaHandler{staticPath: cfg.FrontendDir, indexPath: "index.html"})

	return &App{Config: cfg, Pool: pool, Router: router}, nil
}

// locateMigrations walks up from the working directory so the app starts
// correctly whether launched from the repo root or a test package.
func locateMigrations() string {
	dir := "migrations"
	for depth := 0; depth < 6; depth++ {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		dir = filepath.Join("..", dir)
	}
	return "migrations"
}

func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
}

func Run() {
	cfg := config.Load()

	app, err := New(context.Background(), cfg)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.Close()

	log.Printf("evaluation server listening on %s", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, app.Router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

// spaHandler serves the built frontend and falls back to index.html so
// client-side routes survive a hard refresh.
type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	path := filepath.Join(h.staticPath, r.URL.Path)
	_, err := os.Stat(path)
	if err == nil {
		http.FileServer(http.Dir(h.staticPath)).ServeHTTP(w, r)
		return
	}

	if os.IsNotExist(err) {
		http.ServeFile(w, r, filepath.Join(h.staticPath, h.indexPath))
		return
	}

	http.NotFound(w, r)
}
