package notificationshandler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"eval360/internal/domain/notifications"
	"eval360/internal/transport/http/api"
	"eval360/internal/transport/http/middleware"
	"eval360/internal/transport/http/shared"
)

type Handler struct {
	Service *notifications.Service
}

func NewHandler(service *notifications.Service) *Handler {
	return &Handler{Service: service}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/notifications", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleList)
		r.Get("/unread-count", h.handleUnreadCount)
		r.Post("/{notificationID}/read", h.handleMarkRead)
		r.Post("/read-all", h.handleMarkAllRead)
		r.Delete("/{notificationID}", h.handleDelete)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	page := shared.ParsePagination(r, 50, 200)

	filter := notifications.Filter{
		Type:   strings.TrimSpace(r.URL.Query().Get("type")),
		Limit:  page.Limit,
		Offset: page.Offset,
	}
	switch strings.ToLower(r.URL.Query().Get("read")) {
	case "true":
		read := true
		filter.Read = &read
	case "false":
		read := false
		filter.Read = &read
	}

	list, err := h.Service.List(r.Context(), user.UserID, filter)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_list_failed", "failed to list notifications", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, list, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	count, err := h.Service.UnreadCount(r.Context(), user.UserID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_count_failed", "failed to count notifications", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]int{"unread": count}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "notificationID")
	if err := h.Service.MarkRead(r.Context(), user.UserID, id); err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to mark notification read", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	if err := h.Service.MarkAllRead(r.Context(), user.UserID); err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_update_failed", "failed to mark notifications read", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "read"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "notificationID")
	if err := h.Service.Delete(r.Context(), user.UserID, id); err != nil {
		api.Fail(w, http.StatusInternalServerError, "notification_delete_failed", "failed to delete notification", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}
