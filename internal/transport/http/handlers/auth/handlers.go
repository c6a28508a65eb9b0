package authhandler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"eval360/internal/domain/auth"
	"eval360/internal/domain/notifications"
	"eval360/internal/transport/http/api"
	"eval360/internal/transport/http/middleware"
	"eval360/internal/transport/http/shared"
)

type Handler struct {
	Store    *auth.Store
	Notify   *notifications.Service
	Secret   string
	TokenTTL time.Duration
}

func NewHandler(store *auth.Store, notify *notifications.Service, secret string, tokenTTL time.Duration) *Handler {
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	return &Handler{Store: store, Notify: notify, Secret: secret, TokenTTL: tokenTTL}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.handleLogin)
		r.Post("/logout", h.handleLogout)
		r.Post("/request-reset", h.handleRequestReset)
		r.Post("/reset", h.handleReset)
		r.With(middleware.RequireAuth).Get("/me", h.handleMe)
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Required("password", payload.Password, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	user, err := h.Store.FindUserByEmail(r.Context(), payload.Email)
	if err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, payload.Password); err != nil {
		api.Fail(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials", middleware.GetRequestID(r.Context()))
		return
	}

	sessionToken, err := generateToken()
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}
	expires := time.Now().Add(h.TokenTTL)
	if err := h.Store.CreateSession(r.Context(), user.ID, auth.HashToken(sessionToken), expires); err != nil {
		api.Fail(w, http.StatusInternalServerError, "session_error", "failed to start session", middleware.GetRequestID(r.Context()))
		return
	}

	token, err := auth.GenerateToken(h.Secret, auth.Claims{UserID: user.ID, Role: user.Role}, h.TokenTTL)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "token_error", "failed to issue token", middleware.GetRequestID(r.Context()))
		return
	}

	api.Success(w, map[string]any{
		"token":        token,
		"sessionToken": sessionToken,
		"user":         map[string]string{"id": user.ID, "email": user.Email, "role": user.Role},
	}, middleware.GetRequestID(r.Context()))
}

type logoutRequest struct {
	SessionToken string `json:"sessionToken"`
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return
	}

	var payload logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.SessionToken != "" {
		if err := h.Store.RevokeSession(r.Context(), user.UserID, auth.HashToken(payload.SessionToken)); err != nil {
			slog.Warn("session revoke failed", "userId", user.UserID, "err", err)
		}
	}
	api.Success(w, map[string]string{"status": "logged_out"}, middleware.GetRequestID(r.Context()))
}

type resetRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleRequestReset(w http.ResponseWriter, r *http.Request) {
	var payload resetRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Email == "" {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "email required", middleware.GetRequestID(r.Context()))
		return
	}

	// Always answer 200 so the endpoint cannot be used to enumerate accounts.
	userID, err := h.Store.UserIDByEmail(r.Context(), payload.Email)
	if err == nil && userID != "" {
		token, tokenErr := generateToken()
		if tokenErr == nil {
			expires := time.Now().Add(time.Hour)
			if storeErr := h.Store.CreatePasswordReset(r.Context(), userID, auth.HashToken(token), expires); storeErr != nil {
				slog.Warn("password reset store failed", "userId", userID, "err", storeErr)
			} else if h.Notify != nil {
				if notifyErr := h.Notify.Create(r.Context(), userID, notifications.TypePasswordReset, "Password reset requested", "Use token "+token+" to reset your password within the next hour."); notifyErr != nil {
					slog.Warn("password reset notification failed", "userId", userID, "err", notifyErr)
				}
			}
		}
	}
	api.Success(w, map[string]string{"status": "ok"}, middleware.GetRequestID(r.Context()))
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	var payload resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	if payload.Token == "" || len(payload.NewPassword) < 8 {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "token and a password of at least 8 characters are required", middleware.GetRequestID(r.Context()))
		return
	}

	tokenHash := auth.HashToken(payload.Token)
	userID, err := h.Store.PasswordResetUserID(r.Context(), tokenHash)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			api.Fail(w, http.StatusBadRequest, "invalid_token", "reset token is invalid or expired", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "reset_failed", "failed to reset password", middleware.GetRequestID(r.Context()))
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "reset_failed", "failed to reset password", middleware.GetRequestID(r.Context()))
		return
	}
	if err := h.Store.UpdateUserPassword(r.Context(), userID, hash); err != nil {
		api.Fail(w, http.StatusInternalServerError, "reset_failed", "failed to reset password", middleware.GetRequestID(r.Context()))
		return
	}
	if err := h.Store.MarkPasswordResetUsed(r.Context(), tokenHash); err != nil {
		slog.Warn("mark password reset used failed", "userId", userID, "err", err)
	}
	api.Success(w, map[string]string{"status": "password_updated"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	api.Success(w, map[string]string{"id": user.UserID, "role": user.Role}, middleware.GetRequestID(r.Context()))
}

func generateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
