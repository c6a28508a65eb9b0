package evaluationshandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"eval360/internal/domain/audit"
	"eval360/internal/domain/auth"
	"eval360/internal/domain/evaluation"
	"eval360/internal/domain/notifications"
	"eval360/internal/domain/profiles"
	"eval360/internal/domain/reports"
	"eval360/internal/transport/http/api"
	"eval360/internal/transport/http/middleware"
	"eval360/internal/transport/http/shared"
)

type Handler struct {
	Service  *evaluation.Service
	Profiles *profiles.Store
	Notify   *notifications.Service
	Audit    *audit.Service
}

func NewHandler(service *evaluation.Service, profileStore *profiles.Store, notify *notifications.Service, auditSvc *audit.Service) *Handler {
	return &Handler{Service: service, Profiles: profileStore, Notify: notify, Audit: auditSvc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/evaluations", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Get("/", h.handleList)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreate)
		r.Get("/mine", h.handleListMine)
		r.Get("/{evaluationID}", h.handleGet)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{evaluationID}/start", h.handleStart)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/{evaluationID}/stop", h.handleStop)
		r.Post("/{evaluationID}/responses", h.handleSubmitResponse)
		r.Get("/{evaluationID}/results", h.handleResults)
		r.Get("/{evaluationID}/results.pdf", h.handleResultsPDF)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Delete("/{evaluationID}", h.handleDelete)
	})
	r.Route("/criteria", func(r chi.Router) {
		r.Use(middleware.RequireAuth)
		r.Get("/", h.handleListCriteria)
		r.With(middleware.RequireRole(auth.RoleAdmin)).Post("/", h.handleCreateCriterion)
	})
}

// failDomain translates domain sentinel errors into the API error taxonomy.
func failDomain(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, evaluation.ErrValidation):
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), requestID)
	case errors.Is(err, evaluation.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, evaluation.ErrConflict):
		api.Fail(w, http.StatusConflict, "conflict", err.Error(), requestID)
	case errors.Is(err, evaluation.ErrForbidden):
		api.Fail(w, http.StatusForbidden, "forbidden", err.Error(), requestID)
	default:
		slog.Error(fallback, "err", err, "requestId", requestID)
		api.Fail(w, http.StatusInternalServerError, "internal_error", fallback, requestID)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	evaluations, err := h.Service.List(r.Context())
	if err != nil {
		if evaluations == nil {
			failDomain(w, r, err, "failed to list evaluations")
			return
		}
		// Convergence write failed but the data itself loaded fine.
		slog.Warn("evaluation status convergence failed", "err", err)
	}
	api.Success(w, evaluations, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	evaluations, err := h.Service.ListForUser(r.Context(), user.UserID)
	if err != nil {
		failDomain(w, r, err, "failed to list evaluations")
		return
	}
	api.Success(w, evaluations, middleware.GetRequestID(r.Context()))
}

type createRequest struct {
	Type           string   `json:"evaluationType"`
	Title          string   `json:"title"`
	EndDate        string   `json:"endDate"`
	EvaluatedID    string   `json:"evaluatedId"`
	CriteriaIDs    []string `json:"criteriaIds"`
	ParticipantIDs []string `json:"participantIds"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload createRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	v := shared.NewValidator()
	v.Required("title", payload.Title, "is required")
	v.Required("evaluationType", payload.Type, "is required")
	v.Enum("evaluationType", payload.Type, []string{string(evaluation.TypeSimple), string(evaluation.TypeFullCircle)}, "must be simple or full_circle")
	v.Required("endDate", payload.EndDate, "is required")
	endDate, _ := v.Date("endDate", payload.EndDate)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	created, err := h.Service.Create(r.Context(), evaluation.CreateInput{
		Type:           evaluation.Type(payload.Type),
		Title:          payload.Title,
		EndDate:        endDate,
		EvaluatedID:    payload.EvaluatedID,
		CriteriaIDs:    payload.CriteriaIDs,
		ParticipantIDs: payload.ParticipantIDs,
	})
	if err != nil {
		failDomain(w, r, err, "failed to create evaluation")
		return
	}

	h.recordAudit(r, user.UserID, "evaluation.create", created.ID, nil, created)
	api.Created(w, created, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")

	ev, err := h.Service.Get(r.Context(), id)
	if err != nil {
		failDomain(w, r, err, "failed to load evaluation")
		return
	}
	if !canView(user, ev) {
		api.Fail(w, http.StatusForbidden, "forbidden", "you are not part of this evaluation", middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, ev, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")

	ev, err := h.Service.Start(r.Context(), id)
	if err != nil {
		failDomain(w, r, err, "failed to start evaluation")
		return
	}

	h.recordAudit(r, user.UserID, "evaluation.start", ev.ID, nil, map[string]any{"status": ev.Status})
	h.notifyParticipants(r, ev, notifications.TypeEvaluationStarted, "Evaluation started",
		"The evaluation \""+ev.Title+"\" is now open. Please submit your responses before "+ev.EndDate.Format("2006-01-02")+".")
	api.Success(w, ev, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")

	ev, err := h.Service.Stop(r.Context(), id)
	if err != nil {
		failDomain(w, r, err, "failed to stop evaluation")
		return
	}

	h.recordAudit(r, user.UserID, "evaluation.stop", ev.ID, nil, map[string]any{"status": ev.Status})
	api.Success(w, ev, middleware.GetRequestID(r.Context()))
}

type submitResponseRequest struct {
	SubjectID string         `json:"subjectId"`
	Scores    map[string]int `json:"scores"`
}

func (h *Handler) handleSubmitResponse(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")

	var payload submitResponseRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	ev, err := h.Service.RecordResponse(r.Context(), id, user.UserID, payload.SubjectID, payload.Scores)
	if err != nil {
		failDomain(w, r, err, "failed to record response")
		return
	}

	h.recordAudit(r, user.UserID, "evaluation.response", ev.ID, nil, map[string]any{
		"subjectId":  payload.SubjectID,
		"percentage": ev.Percentage,
	})
	if ev.Status == evaluation.StatusCompleted {
		h.notifyParticipants(r, ev, notifications.TypeEvaluationCompleted, "Evaluation completed",
			"All responses for \""+ev.Title+"\" are in. Results are now available.")
	}
	api.Success(w, ev, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")
	subjectID := r.URL.Query().Get("subjectId")

	if !h.authorizeResults(w, r, user, id, &subjectID) {
		return
	}

	results, err := h.Service.Results(r.Context(), id, subjectID)
	if err != nil {
		failDomain(w, r, err, "failed to aggregate results")
		return
	}
	api.Success(w, results, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleResultsPDF(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")
	subjectID := r.URL.Query().Get("subjectId")

	if !h.authorizeResults(w, r, user, id, &subjectID) {
		return
	}

	ev, err := h.Service.Get(r.Context(), id)
	if err != nil {
		failDomain(w, r, err, "failed to load evaluation")
		return
	}
	results, err := h.Service.Results(r.Context(), id, subjectID)
	if err != nil {
		failDomain(w, r, err, "failed to aggregate results")
		return
	}

	if subjectID == "" {
		subjectID = ev.EvaluatedID
	}
	doc := reports.ResultsDocument{
		Title:       ev.Title,
		SubjectName: subjectID,
		GeneratedAt: time.Now(),
		Rows:        results,
	}
	if h.Profiles != nil && subjectID != "" {
		if profile, err := h.Profiles.GetProfile(r.Context(), subjectID); err == nil {
			doc.SubjectName = profile.FullName
			doc.Department = profile.Department
		} else {
			slog.Warn("results pdf profile lookup failed", "subjectId", subjectID, "err", err)
		}
	}

	pdfBytes, err := reports.BuildResultsPDF(doc)
	if err != nil {
		slog.Error("results pdf render failed", "evaluationId", id, "err", err)
		api.Fail(w, http.StatusInternalServerError, "report_failed", "failed to render results report", middleware.GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="evaluation-results.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(pdfBytes)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdfBytes); err != nil {
		slog.Warn("results pdf write failed", "err", err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	id := chi.URLParam(r, "evaluationID")

	if err := h.Service.Delete(r.Context(), evaluation.Identity{UserID: user.UserID, Role: user.Role}, id); err != nil {
		failDomain(w, r, err, "failed to delete evaluation")
		return
	}
	h.recordAudit(r, user.UserID, "evaluation.delete", id, nil, nil)
	api.Success(w, map[string]string{"status": "deleted"}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListCriteria(w http.ResponseWriter, r *http.Request) {
	criteria, err := h.Service.ListCriteria(r.Context())
	if err != nil {
		failDomain(w, r, err, "failed to list criteria")
		return
	}
	api.Success(w, criteria, middleware.GetRequestID(r.Context()))
}

type createCriterionRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *Handler) handleCreateCriterion(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())

	var payload createCriterionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}

	criterion, err := h.Service.CreateCriterion(r.Context(), evaluation.Identity{UserID: user.UserID, Role: user.Role}, payload.Name, payload.Description)
	if err != nil {
		failDomain(w, r, err, "failed to create criterion")
		return
	}
	h.recordAudit(r, user.UserID, "criterion.create", criterion.ID, nil, criterion)
	api.Created(w, criterion, middleware.GetRequestID(r.Context()))
}

// authorizeResults restricts result access to admins and the subject
// themself, defaulting the subject to the caller for non-admin users.
func (h *Handler) authorizeResults(w http.ResponseWriter, r *http.Request, user auth.UserContext, evaluationID string, subjectID *string) bool {
	if user.IsAdmin() {
		return true
	}
	if *subjectID == "" {
		ev, err := h.Service.Get(r.Context(), evaluationID)
		if err != nil {
			failDomain(w, r, err, "failed to load evaluation")
			return false
		}
		if ev.EvaluatedID == "" {
			*subjectID = user.UserID
			return true
		}
		*subjectID = ev.EvaluatedID
	}
	if *subjectID != user.UserID {
		api.Fail(w, http.StatusForbidden, "forbidden", "results are only visible to the evaluated person", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func canView(user auth.UserContext, ev evaluation.Evaluation) bool {
	if user.IsAdmin() || ev.EvaluatedID == user.UserID {
		return true
	}
	for _, p := range ev.Participants {
		if p.ID == user.UserID {
			return true
		}
	}
	return false
}

func (h *Handler) recordAudit(r *http.Request, actorID, action, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	if err := h.Audit.Record(r.Context(), actorID, action, "evaluation", entityID, middleware.GetRequestID(r.Context()), middleware.ClientIP(r), before, after); err != nil {
		slog.Warn("audit record failed", "action", action, "err", err)
	}
}

func (h *Handler) notifyParticipants(r *http.Request, ev evaluation.Evaluation, ntype, title, body string) {
	if h.Notify == nil {
		return
	}
	seen := map[string]bool{}
	for _, p := range ev.Participants {
		if p.ID == "" || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		if err := h.Notify.Create(r.Context(), p.ID, ntype, title, body); err != nil {
			slog.Warn("participant notification failed", "userId", p.ID, "type", ntype, "err", err)
		}
	}
	if ev.EvaluatedID != "" && !seen[ev.EvaluatedID] {
		if err := h.Notify.Create(r.Context(), ev.EvaluatedID, ntype, title, body); err != nil {
			slog.Warn("subject notification failed", "userId", ev.EvaluatedID, "type", ntype, "err", err)
		}
	}
}
