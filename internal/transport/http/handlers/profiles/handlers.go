package profileshandler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"eval360/internal/domain/auth"
	"eval360/internal/domain/profiles"
	"eval360/internal/transport/http/api"
	"eval360/internal/transport/http/middleware"
	"eval360/internal/transport/http/shared"
)

type Handler struct {
	Store *profiles.Store
}

func NewHandler(store *profiles.Store) *Handler {
	return &Handler{Store: store}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/profiles", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Get("/{profileID}", h.handleGet)
		r.Put("/{profileID}", h.handleUpdate)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListProfiles(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "profile_list_failed", "failed to list profiles", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "profileID")
	profile, err := h.Store.GetProfile(r.Context(), id)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "profile not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "profile_load_failed", "failed to load profile", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "profileID")
	if id != user.UserID && user.Role != auth.RoleAdmin {
		api.Fail(w, http.StatusForbidden, "forbidden", "you can only edit your own profile", middleware.GetRequestID(r.Context()))
		return
	}

	var payload profiles.UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("fullName", payload.FullName, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	profile, err := h.Store.UpdateProfile(r.Context(), id, payload)
	if err != nil {
		if errors.Is(err, profiles.ErrNotFound) {
			api.Fail(w, http.StatusNotFound, "not_found", "profile not found", middleware.GetRequestID(r.Context()))
			return
		}
		api.Fail(w, http.StatusInternalServerError, "profile_update_failed", "failed to update profile", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, profile, middleware.GetRequestID(r.Context()))
}
