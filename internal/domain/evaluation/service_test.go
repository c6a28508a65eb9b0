package evaluation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type fakeStore struct {
	evaluations map[string]Evaluation
	responses   []Response
	criteria    map[string]Criterion

	// beforeUpdate runs before every UpdateEvaluationState version check,
	// letting tests interleave a competing writer.
	beforeUpdate func(*fakeStore)
	updateCalls  int
}

func newFakeStore(criteriaIDs ...string) *fakeStore {
	fs := &fakeStore{
		evaluations: map[string]Evaluation{},
		criteria:    map[string]Criterion{},
	}
	for _, id := range criteriaIDs {
		fs.criteria[id] = Criterion{ID: id, Name: "Criterion " + id}
	}
	return fs
}

func (f *fakeStore) InsertEvaluation(_ context.Context, ev Evaluation) error {
	f.evaluations[ev.ID] = ev
	return nil
}

func (f *fakeStore) GetEvaluation(_ context.Context, id string) (Evaluation, error) {
	ev, ok := f.evaluations[id]
	if !ok {
		return Evaluation{}, fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	ev.Participants = cloneParticipants(ev.Participants)
	return ev, nil
}

func (f *fakeStore) ListEvaluations(_ context.Context) ([]Evaluation, error) {
	var out []Evaluation
	for _, ev := range f.evaluations {
		ev.Participants = cloneParticipants(ev.Participants)
		out = append(out, ev)
	}
	return out, nil
}

func (f *fakeStore) UpdateEvaluationState(_ context.Context, id string, participants []Participant, status Status, expectedVersion int64) (bool, error) {
	f.updateCalls++
	if f.beforeUpdate != nil {
		f.beforeUpdate(f)
	}
	ev, ok := f.evaluations[id]
	if !ok {
		return false, nil
	}
	if ev.Version != expectedVersion {
		return false, nil
	}
	ev.Participants = cloneParticipants(participants)
	ev.Status = status
	ev.Version++
	f.evaluations[id] = ev
	return true, nil
}

func (f *fakeStore) SetEvaluationSchedule(_ context.Context, id string, startDate *time.Time, status Status) error {
	ev, ok := f.evaluations[id]
	if !ok {
		return fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	ev.StartDate = startDate
	ev.Status = status
	ev.Version++
	f.evaluations[id] = ev
	return nil
}

func (f *fakeStore) DeleteEvaluation(_ context.Context, id string) error {
	if _, ok := f.evaluations[id]; !ok {
		return fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	delete(f.evaluations, id)
	return nil
}

func (f *fakeStore) InsertResponse(_ context.Context, resp Response) error {
	for _, existing := range f.responses {
		if existing.EvaluationID == resp.EvaluationID && existing.RaterID == resp.RaterID && existing.SubjectID == resp.SubjectID {
			return errDuplicateResponse
		}
	}
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeStore) ListResponses(_ context.Context, evaluationID string) ([]Response, error) {
	var out []Response
	for _, resp := range f.responses {
		if resp.EvaluationID == evaluationID {
			out = append(out, resp)
		}
	}
	return out, nil
}

func (f *fakeStore) CountSubjectsRatedBy(_ context.Context, evaluationID, raterID string) (int, error) {
	subjects := map[string]struct{}{}
	for _, resp := range f.responses {
		if resp.EvaluationID == evaluationID && resp.RaterID == raterID && resp.SubjectID != "" {
			subjects[resp.SubjectID] = struct{}{}
		}
	}
	return len(subjects), nil
}

func (f *fakeStore) CountRatersOf(_ context.Context, evaluationID, subjectID string) (int, error) {
	raters := map[string]struct{}{}
	for _, resp := range f.responses {
		if resp.EvaluationID == evaluationID && resp.SubjectID == subjectID {
			raters[resp.RaterID] = struct{}{}
		}
	}
	return len(raters), nil
}

func (f *fakeStore) ListCriteria(_ context.Context) ([]Criterion, error) {
	var out []Criterion
	for _, criterion := range f.criteria {
		out = append(out, criterion)
	}
	return out, nil
}

func (f *fakeStore) CriteriaByIDs(_ context.Context, ids []string) ([]Criterion, error) {
	var out []Criterion
	for _, id := range ids {
		if criterion, ok := f.criteria[id]; ok {
			out = append(out, criterion)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertCriterion(_ context.Context, criterion Criterion) error {
	f.criteria[criterion.ID] = criterion
	return nil
}

func fullScores(ids ...string) map[string]int {
	scores := map[string]int{}
	for _, id := range ids {
		scores[id] = 4
	}
	return scores
}

func newTestService(fs *fakeStore) *Service {
	svc := NewService(fs, 5)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateValidation(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	end := time.Now().Add(14 * 24 * time.Hour)

	tests := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"unknown type", CreateInput{Type: "upward", Title: "T", EndDate: end, CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a"}}, ErrValidation},
		{"missing title", CreateInput{Type: TypeSimple, EndDate: end, EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a"}}, ErrValidation},
		{"missing end date", CreateInput{Type: TypeSimple, Title: "T", EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a"}}, ErrValidation},
		{"no criteria", CreateInput{Type: TypeSimple, Title: "T", EndDate: end, EvaluatedID: "a", ParticipantIDs: []string{"a"}}, ErrValidation},
		{"no participants", CreateInput{Type: TypeFullCircle, Title: "T", EndDate: end, CriteriaIDs: []string{"c1"}}, ErrValidation},
		{"simple without subject", CreateInput{Type: TypeSimple, Title: "T", EndDate: end, CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a"}}, ErrValidation},
		{"unknown criterion", CreateInput{Type: TypeSimple, Title: "T", EndDate: end, EvaluatedID: "a", CriteriaIDs: []string{"missing"}, ParticipantIDs: []string{"a"}}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreateSimpleAddsSubjectToParticipants(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)

	ev, err := svc.Create(context.Background(), CreateInput{
		Type:           TypeSimple,
		Title:          "Q3 review",
		EndDate:        time.Now().Add(30 * 24 * time.Hour),
		EvaluatedID:    "alice",
		CriteriaIDs:    []string{"c1"},
		ParticipantIDs: []string{"bob", "carol"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !hasParticipant(ev.Participants, "alice") {
		t.Fatal("expected the evaluated subject to be added to participants")
	}
	if ev.Status != StatusPending || ev.StartDate != nil {
		t.Fatalf("expected pending unlaunched evaluation, got status=%s start=%v", ev.Status, ev.StartDate)
	}
	for _, p := range ev.Participants {
		if p.Status != ParticipantPending {
			t.Fatalf("expected all participants pending, got %+v", p)
		}
		if p.Evaluated != "" {
			t.Fatalf("simple participants must not carry an evaluated flag, got %+v", p)
		}
	}
}

func TestCreateFullCircleInitialisesEvaluatedFlags(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)

	ev, err := svc.Create(context.Background(), CreateInput{
		Type:           TypeFullCircle,
		Title:          "Team 360",
		EndDate:        time.Now().Add(30 * 24 * time.Hour),
		CriteriaIDs:    []string{"c1"},
		ParticipantIDs: []string{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, p := range ev.Participants {
		if p.Evaluated != EvaluatedPending {
			t.Fatalf("expected evaluated=pending for %s, got %q", p.ID, p.Evaluated)
		}
	}
}

func TestSimpleEvaluationScenario(t *testing.T) {
	fs := newFakeStore("c1", "c2")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type:           TypeSimple,
		Title:          "Manager review",
		EndDate:        time.Now().Add(30 * 24 * time.Hour),
		EvaluatedID:    "a",
		CriteriaIDs:    []string{"c1", "c2"},
		ParticipantIDs: []string{"a", "b", "c", "d"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	steps := []struct {
		rater      string
		percentage int
		status     Status
	}{
		{"b", 25, StatusStarted},
		{"c", 50, StatusStarted},
		{"d", 75, StatusStarted},
		{"a", 100, StatusCompleted},
	}
	for _, step := range steps {
		updated, err := svc.RecordResponse(ctx, ev.ID, step.rater, "", fullScores("c1", "c2"))
		if err != nil {
			t.Fatalf("submission by %s failed: %v", step.rater, err)
		}
		if updated.Percentage != step.percentage {
			t.Fatalf("after %s: expected %d%%, got %d%%", step.rater, step.percentage, updated.Percentage)
		}
		if updated.Status != step.status {
			t.Fatalf("after %s: expected status %s, got %s", step.rater, step.status, updated.Status)
		}
	}
}

func TestFullCircleEvaluationScenario(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type:           TypeFullCircle,
		Title:          "Team 360",
		EndDate:        time.Now().Add(30 * 24 * time.Hour),
		CriteriaIDs:    []string{"c1"},
		ParticipantIDs: []string{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	submit := func(rater, subject string) Evaluation {
		t.Helper()
		updated, err := svc.RecordResponse(ctx, ev.ID, rater, subject, fullScores("c1"))
		if err != nil {
			t.Fatalf("submission %s->%s failed: %v", rater, subject, err)
		}
		return updated
	}

	submit("x", "y")
	state := submit("x", "z")
	if statusOf(t, state, "x") != ParticipantCompleted {
		t.Fatal("expected x completed after rating both peers")
	}
	if evaluatedOf(t, state, "z") != EvaluatedPending {
		t.Fatal("z has only one rater so far, must still be pending as a subject")
	}

	submit("y", "x")
	submit("y", "z")
	state = submit("z", "x")
	if evaluatedOf(t, state, "x") != EvaluatedCompleted {
		t.Fatal("expected x evaluated=completed once both peers rated them")
	}

	final := submit("z", "y")
	if final.Percentage != 100 {
		t.Fatalf("expected 100%% after all 6 submissions, got %d%%", final.Percentage)
	}
	if final.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	for _, p := range final.Participants {
		if p.Status != ParticipantCompleted || p.Evaluated != EvaluatedCompleted {
			t.Fatalf("expected both flags completed for %s, got %+v", p.ID, p)
		}
	}
}

func TestFullCircleRaterInProgressUntilAllSubjectsRated(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type:           TypeFullCircle,
		Title:          "Team 360",
		EndDate:        time.Now().Add(30 * 24 * time.Hour),
		CriteriaIDs:    []string{"c1"},
		ParticipantIDs: []string{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	state, err := svc.RecordResponse(ctx, ev.ID, "x", "y", fullScores("c1"))
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if statusOf(t, state, "x") != ParticipantInProgress {
		t.Fatalf("expected x in_progress after 1 of 2 subjects, got %s", statusOf(t, state, "x"))
	}
}

func TestRecordResponseValidation(t *testing.T) {
	fs := newFakeStore("c1", "c2")
	svc := newTestService(fs)
	ctx := context.Background()

	simple, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1", "c2"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	circle, err := svc.Create(ctx, CreateInput{
		Type: TypeFullCircle, Title: "T", EndDate: time.Now().Add(time.Hour),
		CriteriaIDs: []string{"c1", "c2"}, ParticipantIDs: []string{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	tests := []struct {
		name    string
		evID    string
		rater   string
		subject string
		scores  map[string]int
		want    error
	}{
		{"empty scores", simple.ID, "b", "", nil, ErrValidation},
		{"score too high", simple.ID, "b", "", map[string]int{"c1": 6, "c2": 3}, ErrValidation},
		{"score too low", simple.ID, "b", "", map[string]int{"c1": 0, "c2": 3}, ErrValidation},
		{"foreign criterion", simple.ID, "b", "", map[string]int{"c1": 3, "c2": 3, "c9": 3}, ErrValidation},
		{"missing criterion", simple.ID, "b", "", map[string]int{"c1": 3}, ErrValidation},
		{"rater not participant", simple.ID, "stranger", "", fullScores("c1", "c2"), ErrNotFound},
		{"full-circle without subject", circle.ID, "x", "", fullScores("c1", "c2"), ErrValidation},
		{"full-circle self rating", circle.ID, "x", "x", fullScores("c1", "c2"), ErrValidation},
		{"full-circle unknown subject", circle.ID, "x", "stranger", fullScores("c1", "c2"), ErrNotFound},
		{"missing evaluation", "nope", "b", "", fullScores("c1", "c2"), ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordResponse(ctx, tt.evID, tt.rater, tt.subject, tt.scores)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestRecordResponseConcurrentSubmissionsMerge(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b", "c", "d"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Rater c commits between b's read and b's write, forcing b to retry
	// against the merged state.
	raced := false
	fs.beforeUpdate = func(f *fakeStore) {
		if raced {
			return
		}
		raced = true
		stored := f.evaluations[ev.ID]
		participants := cloneParticipants(stored.Participants)
		setRaterStatus(participants, "c", ParticipantCompleted)
		stored.Participants = participants
		stored.Status = ResolveStatus(ComputeProgress(participants, stored.Type), stored.Status)
		stored.Version++
		f.evaluations[ev.ID] = stored
	}

	updated, err := svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1"))
	if err != nil {
		t.Fatalf("submission failed despite retry budget: %v", err)
	}
	if statusOf(t, updated, "b") != ParticipantCompleted {
		t.Fatal("b's completion was lost")
	}
	if statusOf(t, updated, "c") != ParticipantCompleted {
		t.Fatal("c's competing completion was lost")
	}
	if updated.Percentage != 50 {
		t.Fatalf("expected 50%% with 2 of 4 completed, got %d%%", updated.Percentage)
	}
}

func TestRecordResponseConflictExhaustion(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Every attempt loses the race.
	fs.beforeUpdate = func(f *fakeStore) {
		stored := f.evaluations[ev.ID]
		stored.Version++
		f.evaluations[ev.ID] = stored
	}

	_, err = svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1"))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if fs.updateCalls != 5 {
		t.Fatalf("expected exactly 5 bounded attempts, got %d", fs.updateCalls)
	}
}

func TestRecordResponseRetryAfterConflictExhaustion(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// First submission loses every version race and gives up, but the
	// response row is already persisted at that point.
	fs.beforeUpdate = func(f *fakeStore) {
		stored := f.evaluations[ev.ID]
		stored.Version++
		f.evaluations[ev.ID] = stored
	}
	if _, err := svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1")); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on the losing attempt, got %v", err)
	}

	// The client retries once the contention is gone. The stored row must
	// not block the resubmission, and b's completion must converge.
	fs.beforeUpdate = nil
	updated, err := svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1"))
	if err != nil {
		t.Fatalf("retry after conflict failed: %v", err)
	}
	if statusOf(t, updated, "b") != ParticipantCompleted {
		t.Fatal("b's completion was never folded in after the retry")
	}
	if updated.Percentage != 50 {
		t.Fatalf("expected 50%% with 1 of 2 completed, got %d%%", updated.Percentage)
	}
	if got := len(fs.responses); got != 1 {
		t.Fatalf("expected a single stored response row, got %d", got)
	}
}

func TestRecordResponseResubmissionIsIdempotent(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	first, err := svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1"))
	if err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	second, err := svc.RecordResponse(ctx, ev.ID, "b", "", fullScores("c1"))
	if err != nil {
		t.Fatalf("resubmission failed: %v", err)
	}
	if first.Percentage != second.Percentage || second.Percentage != 50 {
		t.Fatalf("expected stable 50%%, got %d%% then %d%%", first.Percentage, second.Percentage)
	}
	if got := len(fs.responses); got != 1 {
		t.Fatalf("expected a single stored response row, got %d", got)
	}
}

func TestStartAndStop(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	started, err := svc.Start(ctx, ev.ID)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if started.StartDate == nil || started.Status != StatusStarted {
		t.Fatalf("expected launched evaluation, got %+v", started)
	}

	stopped, err := svc.Stop(ctx, ev.ID)
	if err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if stopped.StartDate != nil || stopped.Status != StatusStopped {
		t.Fatalf("expected stopped evaluation, got %+v", stopped)
	}

	if _, err := svc.Start(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", err)
	}
}

func TestDeleteRequiresAdminRole(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := svc.Delete(ctx, Identity{UserID: "u", Role: RoleUser}, ev.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-admin, got %v", err)
	}
	if err := svc.Delete(ctx, Identity{UserID: "root", Role: RoleAdmin}, ev.ID); err != nil {
		t.Fatalf("admin delete failed: %v", err)
	}
	if err := svc.Delete(ctx, Identity{UserID: "root", Role: RoleAdmin}, ev.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListForUserHidesUnlaunchedCampaigns(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	mk := func(title string, participants []string) Evaluation {
		ev, err := svc.Create(ctx, CreateInput{
			Type: TypeFullCircle, Title: title, EndDate: time.Now().Add(time.Hour),
			CriteriaIDs: []string{"c1"}, ParticipantIDs: participants,
		})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		return ev
	}

	launched := mk("launched", []string{"me", "peer"})
	if _, err := svc.Start(ctx, launched.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	mk("not launched", []string{"me", "peer"})
	future := mk("future", []string{"me", "peer"})
	futureStart := time.Now().Add(48 * time.Hour)
	if err := fs.SetEvaluationSchedule(ctx, future.ID, &futureStart, StatusStarted); err != nil {
		t.Fatalf("schedule failed: %v", err)
	}
	other := mk("not mine", []string{"peer", "another"})
	if _, err := svc.Start(ctx, other.ID); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	visible, err := svc.ListForUser(ctx, "me")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(visible) != 1 || visible[0].Title != "launched" {
		t.Fatalf("expected exactly the launched campaign, got %+v", visible)
	}
}

func TestListConvergesDriftedStatus(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Simulate a partial write: one participant completed but the stored
	// status was never advanced.
	stored := fs.evaluations[ev.ID]
	setRaterStatus(stored.Participants, "b", ParticipantCompleted)
	fs.evaluations[ev.ID] = stored

	listed, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(listed) != 1 {
		t.Fatalf("expected 1 evaluation, got %d", len(listed))
	}
	if listed[0].Status != StatusStarted || listed[0].Percentage != 50 {
		t.Fatalf("expected converged started/50%%, got %s/%d%%", listed[0].Status, listed[0].Percentage)
	}
	if fs.evaluations[ev.ID].Status != StatusStarted {
		t.Fatal("expected converged status to be persisted")
	}

	// Listing again changes nothing: convergence is idempotent.
	version := fs.evaluations[ev.ID].Version
	if _, err := svc.List(ctx); err != nil {
		t.Fatalf("second list failed: %v", err)
	}
	if fs.evaluations[ev.ID].Version != version {
		t.Fatal("idempotent convergence must not rewrite an already correct status")
	}
}

func TestResultsFullCircleFiltersBySubject(t *testing.T) {
	fs := newFakeStore("c1")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeFullCircle, Title: "T", EndDate: time.Now().Add(time.Hour),
		CriteriaIDs: []string{"c1"}, ParticipantIDs: []string{"x", "y", "z"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.RecordResponse(ctx, ev.ID, "y", "x", map[string]int{"c1": 5}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if _, err := svc.RecordResponse(ctx, ev.ID, "z", "x", map[string]int{"c1": 4}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}
	if _, err := svc.RecordResponse(ctx, ev.ID, "x", "y", map[string]int{"c1": 1}); err != nil {
		t.Fatalf("submission failed: %v", err)
	}

	results, err := svc.Results(ctx, ev.ID, "x")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 row, got %d", len(results))
	}
	if results[0].PeerAverage != 4.5 {
		t.Fatalf("expected x's peer average 4.5 (ratings about y must not leak in), got %v", results[0].PeerAverage)
	}

	if _, err := svc.Results(ctx, ev.ID, ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without a subject, got %v", err)
	}
}

func TestResultsSimpleWithZeroResponses(t *testing.T) {
	fs := newFakeStore("c1", "c2")
	svc := newTestService(fs)
	ctx := context.Background()

	ev, err := svc.Create(ctx, CreateInput{
		Type: TypeSimple, Title: "T", EndDate: time.Now().Add(time.Hour),
		EvaluatedID: "a", CriteriaIDs: []string{"c1", "c2"}, ParticipantIDs: []string{"a", "b"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	results, err := svc.Results(ctx, ev.ID, "")
	if err != nil {
		t.Fatalf("results failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(results))
	}
	for _, row := range results {
		if row.PeerAverage != 0 || row.SelfScore != 0 {
			t.Fatalf("expected zeroed row, got %+v", row)
		}
	}
}

func TestCreateCriterionAuthz(t *testing.T) {
	fs := newFakeStore()
	svc := newTestService(fs)
	ctx := context.Background()

	if _, err := svc.CreateCriterion(ctx, Identity{Role: RoleUser}, "Ownership", ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.CreateCriterion(ctx, Identity{Role: RoleAdmin}, "  ", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for blank name, got %v", err)
	}
	criterion, err := svc.CreateCriterion(ctx, Identity{Role: RoleAdmin}, "Ownership", "Takes responsibility")
	if err != nil {
		t.Fatalf("create criterion failed: %v", err)
	}
	if criterion.ID == "" || criterion.Name != "Ownership" {
		t.Fatalf("unexpected criterion: %+v", criterion)
	}
}

func statusOf(t *testing.T, ev Evaluation, id string) ParticipantStatus {
	t.Helper()
	for _, p := range ev.Participants {
		if p.ID == id {
			return p.Status
		}
	}
	t.Fatalf("participant %s not found", id)
	return ""
}

func evaluatedOf(t *testing.T, ev Evaluation, id string) EvaluatedStatus {
	t.Helper()
	for _, p := range ev.Participants {
		if p.ID == id {
			return p.Evaluated
		}
	}
	t.Fatalf("participant %s not found", id)
	return ""
}
