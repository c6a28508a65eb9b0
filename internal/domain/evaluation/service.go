package evaluation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Service struct {
	store   StoreAPI
	retries int
	now     func() time.Time
}

func NewService(store StoreAPI, retries int) *Service {
	if retries <= 0 {
		retries = 5
	}
	return &Service{store: store, retries: retries, now: time.Now}
}

// Create validates the input, builds the initial participant list with every
// flag pending, and persists the evaluation as pending with no start date.
// Criteria and the participant set are immutable afterwards.
func (s *Service) Create(ctx context.Context, input CreateInput) (Evaluation, error) {
	if !input.Type.Valid() {
		return Evaluation{}, fmt.Errorf("%w: unknown evaluation type %q", ErrValidation, input.Type)
	}
	if strings.TrimSpace(input.Title) == "" {
		return Evaluation{}, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if input.EndDate.IsZero() {
		return Evaluation{}, fmt.Errorf("%w: end date is required", ErrValidation)
	}
	criteriaIDs := dedupe(input.CriteriaIDs)
	if len(criteriaIDs) == 0 {
		return Evaluation{}, fmt.Errorf("%w: at least one criterion is required", ErrValidation)
	}
	participantIDs := dedupe(input.ParticipantIDs)
	if len(participantIDs) == 0 {
		return Evaluation{}, fmt.Errorf("%w: at least one participant is required", ErrValidation)
	}
	if input.Type == TypeSimple {
		if strings.TrimSpace(input.EvaluatedID) == "" {
			return Evaluation{}, fmt.Errorf("%w: simple evaluations require an evaluated subject", ErrValidation)
		}
		// The subject always appears in the participant list.
		if !containsID(participantIDs, input.EvaluatedID) {
			participantIDs = append(participantIDs, input.EvaluatedID)
		}
	}

	known, err := s.store.CriteriaByIDs(ctx, criteriaIDs)
	if err != nil {
		return Evaluation{}, err
	}
	if len(known) != len(criteriaIDs) {
		return Evaluation{}, fmt.Errorf("%w: one or more criteria do not exist", ErrNotFound)
	}

	participants := make([]Participant, 0, len(participantIDs))
	for _, id := range participantIDs {
		participant := Participant{ID: id, Status: ParticipantPending}
		if input.Type == TypeFullCircle {
			participant.Evaluated = EvaluatedPending
		}
		participants = append(participants, participant)
	}

	now := s.now().UTC()
	ev := Evaluation{
		ID:           uuid.NewString(),
		Type:         input.Type,
		Title:        strings.TrimSpace(input.Title),
		EvaluatedID:  input.EvaluatedID,
		CriteriaIDs:  criteriaIDs,
		Participants: participants,
		Status:       StatusPending,
		StartDate:    nil,
		EndDate:      input.EndDate,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.InsertEvaluation(ctx, ev); err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}

// Start launches the campaign: start date set to now, status forced to
// started. Deadline enforcement stays with the caller.
func (s *Service) Start(ctx context.Context, id string) (Evaluation, error) {
	ev, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	startedAt := s.now().UTC()
	if err := s.store.SetEvaluationSchedule(ctx, id, &startedAt, StatusStarted); err != nil {
		return Evaluation{}, err
	}
	ev.StartDate = &startedAt
	ev.Status = StatusStarted
	ev.Percentage = ComputeProgress(ev.Participants, ev.Type)
	return ev, nil
}

// Stop clears the start date and parks the evaluation as stopped.
func (s *Service) Stop(ctx context.Context, id string) (Evaluation, error) {
	ev, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	if err := s.store.SetEvaluationSchedule(ctx, id, nil, StatusStopped); err != nil {
		return Evaluation{}, err
	}
	ev.StartDate = nil
	ev.Status = StatusStopped
	ev.Percentage = ComputeProgress(ev.Participants, ev.Type)
	return ev, nil
}

// RecordResponse persists one rater's score set and folds the completion into
// the evaluation row. The response insert happens once; the participant and
// status update is a compare-and-swap read-modify-write retried on version
// conflicts, so two raters submitting at the same time never lose an update.
// The operation is idempotent per rater and subject: if the response row
// already exists (a resubmission, or a retry after an earlier attempt lost
// every CAS round), the stored row is reused and the completion fold runs
// again, so the evaluation always converges.
func (s *Service) RecordResponse(ctx context.Context, evaluationID, raterID, subjectID string, scores map[string]int) (Evaluation, error) {
	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return Evaluation{}, err
	}
	subjectID, err = s.validateSubmission(ev, raterID, subjectID, scores)
	if err != nil {
		return Evaluation{}, err
	}

	resp := Response{
		ID:           uuid.NewString(),
		EvaluationID: ev.ID,
		RaterID:      raterID,
		SubjectID:    subjectID,
		Scores:       scores,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.InsertResponse(ctx, resp); err != nil {
		if !errors.Is(err, errDuplicateResponse) {
			return Evaluation{}, err
		}
		// A row from an earlier attempt survived; converge from it.
	}

	for attempt := 0; attempt < s.retries; attempt++ {
		if attempt > 0 {
			ev, err = s.store.GetEvaluation(ctx, evaluationID)
			if err != nil {
				return Evaluation{}, err
			}
		}

		participants, err := s.applyCompletion(ctx, ev, raterID, subjectID)
		if err != nil {
			return Evaluation{}, err
		}
		percentage := ComputeProgress(participants, ev.Type)
		newStatus := ResolveStatus(percentage, ev.Status)

		ok, err := s.store.UpdateEvaluationState(ctx, ev.ID, participants, newStatus, ev.Version)
		if err != nil {
			return Evaluation{}, err
		}
		if ok {
			ev.Participants = participants
			ev.Status = newStatus
			ev.Percentage = percentage
			ev.Version++
			return ev, nil
		}
	}
	return Evaluation{}, fmt.Errorf("%w: gave up after %d attempts", ErrConflict, s.retries)
}

func (s *Service) validateSubmission(ev Evaluation, raterID, subjectID string, scores map[string]int) (string, error) {
	if len(scores) == 0 {
		return "", fmt.Errorf("%w: scores are required", ErrValidation)
	}
	for criterionID, score := range scores {
		if !containsID(ev.CriteriaIDs, criterionID) {
			return "", fmt.Errorf("%w: criterion %s is not part of this evaluation", ErrValidation, criterionID)
		}
		if score < ScoreMin || score > ScoreMax {
			return "", fmt.Errorf("%w: score %d for criterion %s is outside [%d..%d]", ErrValidation, score, criterionID, ScoreMin, ScoreMax)
		}
	}
	for _, criterionID := range ev.CriteriaIDs {
		if _, ok := scores[criterionID]; !ok {
			return "", fmt.Errorf("%w: missing score for criterion %s", ErrValidation, criterionID)
		}
	}
	if !hasParticipant(ev.Participants, raterID) {
		return "", fmt.Errorf("%w: rater %s is not a participant", ErrNotFound, raterID)
	}

	switch ev.Type {
	case TypeSimple:
		if subjectID != "" && subjectID != ev.EvaluatedID {
			return "", fmt.Errorf("%w: simple evaluations rate only the designated subject", ErrValidation)
		}
		return "", nil
	case TypeFullCircle:
		if subjectID == "" {
			return "", fmt.Errorf("%w: full-circle submissions must name a subject", ErrValidation)
		}
		if subjectID == raterID {
			return "", fmt.Errorf("%w: participants do not rate themselves", ErrValidation)
		}
		if !hasParticipant(ev.Participants, subjectID) {
			return "", fmt.Errorf("%w: subject %s is not a participant", ErrNotFound, subjectID)
		}
		return subjectID, nil
	default:
		return "", fmt.Errorf("%w: unknown evaluation type %q", ErrValidation, ev.Type)
	}
}

// applyCompletion returns a fresh participants slice with the flags the new
// response unlocks. Simple: the rater is done after a single submission.
// Full-circle: the rater completes once they have rated the other N-1
// participants, and the subject counts as evaluated once the other N-1 raters
// have covered them; both counts derive from the stored responses.
func (s *Service) applyCompletion(ctx context.Context, ev Evaluation, raterID, subjectID string) ([]Participant, error) {
	participants := cloneParticipants(ev.Participants)

	switch ev.Type {
	case TypeFullCircle:
		required := len(participants) - 1
		rated, err := s.store.CountSubjectsRatedBy(ctx, ev.ID, raterID)
		if err != nil {
			return nil, err
		}
		raterStatus := ParticipantInProgress
		if rated >= required {
			raterStatus = ParticipantCompleted
		}
		setRaterStatus(participants, raterID, raterStatus)

		raters, err := s.store.CountRatersOf(ctx, ev.ID, subjectID)
		if err != nil {
			return nil, err
		}
		if raters >= required {
			setSubjectEvaluated(participants, subjectID)
		}
	default:
		setRaterStatus(participants, raterID, ParticipantCompleted)
	}
	return participants, nil
}

// Get loads one evaluation with its percentage recomputed.
func (s *Service) Get(ctx context.Context, id string) (Evaluation, error) {
	ev, err := s.store.GetEvaluation(ctx, id)
	if err != nil {
		return Evaluation{}, err
	}
	ev.Percentage = ComputeProgress(ev.Participants, ev.Type)
	return ev, nil
}

// List returns every evaluation with percentages recomputed and converges any
// stored status that has drifted from the derived one. Convergence writes are
// compare-and-swap; a version conflict means another writer already advanced
// the row and is not an error. Other write failures are returned alongside
// the loaded data so the caller can decide to retry or log.
func (s *Service) List(ctx context.Context) ([]Evaluation, error) {
	evaluations, err := s.store.ListEvaluations(ctx)
	if err != nil {
		return nil, err
	}

	var writeErr error
	for i := range evaluations {
		ev := &evaluations[i]
		ev.Percentage = ComputeProgress(ev.Participants, ev.Type)
		resolved := ResolveStatus(ev.Percentage, ev.Status)
		if resolved == ev.Status {
			continue
		}
		ok, err := s.store.UpdateEvaluationState(ctx, ev.ID, ev.Participants, resolved, ev.Version)
		if err != nil {
			writeErr = err
			continue
		}
		if ok {
			ev.Status = resolved
			ev.Version++
		}
	}
	return evaluations, writeErr
}

// ListForUser projects the evaluations visible to one participant: those
// where the user is the subject or a rater, restricted to campaigns that have
// actually launched (start date set and not in the future).
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Evaluation, error) {
	evaluations, err := s.store.ListEvaluations(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	visible := make([]Evaluation, 0, len(evaluations))
	for _, ev := range evaluations {
		if ev.EvaluatedID != userID && !hasParticipant(ev.Participants, userID) {
			continue
		}
		if ev.StartDate == nil || ev.StartDate.After(now) {
			continue
		}
		ev.Percentage = ComputeProgress(ev.Participants, ev.Type)
		visible = append(visible, ev)
	}
	return visible, nil
}

// Delete hard-deletes an evaluation. Admin only; the caller identity comes
// from the auth layer.
func (s *Service) Delete(ctx context.Context, actor Identity, id string) error {
	if actor.Role != RoleAdmin {
		return fmt.Errorf("%w: deleting evaluations requires the admin role", ErrForbidden)
	}
	return s.store.DeleteEvaluation(ctx, id)
}

// Results aggregates per-criterion peer averages against the subject's self
// score. subjectID defaults to the evaluation's designated subject; for
// full-circle evaluations any participant can be reported on.
func (s *Service) Results(ctx context.Context, evaluationID, subjectID string) ([]CriterionResult, error) {
	ev, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if subjectID == "" {
		subjectID = ev.EvaluatedID
	}
	if subjectID == "" {
		return nil, fmt.Errorf("%w: a subject is required for results", ErrValidation)
	}
	if !hasParticipant(ev.Participants, subjectID) && subjectID != ev.EvaluatedID {
		return nil, fmt.Errorf("%w: subject %s is not a participant", ErrNotFound, subjectID)
	}

	criteria, err := s.store.CriteriaByIDs(ctx, ev.CriteriaIDs)
	if err != nil {
		return nil, err
	}
	responses, err := s.store.ListResponses(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if ev.Type == TypeFullCircle {
		filtered := responses[:0]
		for _, resp := range responses {
			if resp.SubjectID == subjectID {
				filtered = append(filtered, resp)
			}
		}
		responses = filtered
	}
	return AggregateResults(criteria, responses, subjectID), nil
}

func (s *Service) ListCriteria(ctx context.Context) ([]Criterion, error) {
	return s.store.ListCriteria(ctx)
}

// CreateCriterion adds reference data to the catalog. Admin only.
func (s *Service) CreateCriterion(ctx context.Context, actor Identity, name, description string) (Criterion, error) {
	if actor.Role != RoleAdmin {
		return Criterion{}, fmt.Errorf("%w: managing criteria requires the admin role", ErrForbidden)
	}
	if strings.TrimSpace(name) == "" {
		return Criterion{}, fmt.Errorf("%w: criterion name is required", ErrValidation)
	}
	criterion := Criterion{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.store.InsertCriterion(ctx, criterion); err != nil {
		return Criterion{}, err
	}
	return criterion, nil
}

func cloneParticipants(participants []Participant) []Participant {
	out := make([]Participant, len(participants))
	copy(out, participants)
	return out
}

func setRaterStatus(participants []Participant, raterID string, status ParticipantStatus) {
	for i := range participants {
		if participants[i].ID == raterID {
			participants[i].Status = status
			return
		}
	}
}

func setSubjectEvaluated(participants []Participant, subjectID string) {
	for i := range participants {
		if participants[i].ID == subjectID {
			participants[i].Evaluated = EvaluatedCompleted
			return
		}
	}
}

func hasParticipant(participants []Participant, id string) bool {
	for _, p := range participants {
		if p.ID == id {
			return true
		}
	}
	return false
}

func containsID(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
