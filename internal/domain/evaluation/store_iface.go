package evaluation

import (
	"context"
	"time"
)

type StoreAPI interface {
	InsertEvaluation(ctx context.Context, ev Evaluation) error
	GetEvaluation(ctx context.Context, id string) (Evaluation, error)
	ListEvaluations(ctx context.Context) ([]Evaluation, error)
	// UpdateEvaluationState persists the participants array and status in a
	// single compare-and-swap write; it reports false when the stored version
	// no longer matches expectedVersion and nothing was written.
	UpdateEvaluationState(ctx context.Context, id string, participants []Participant, status Status, expectedVersion int64) (bool, error)
	SetEvaluationSchedule(ctx context.Context, id string, startDate *time.Time, status Status) error
	DeleteEvaluation(ctx context.Context, id string) error

	InsertResponse(ctx context.Context, resp Response) error
	ListResponses(ctx context.Context, evaluationID string) ([]Response, error)
	CountSubjectsRatedBy(ctx context.Context, evaluationID, raterID string) (int, error)
	CountRatersOf(ctx context.Context, evaluationID, subjectID string) (int, error)

	ListCriteria(ctx context.Context) ([]Criterion, error)
	CriteriaByIDs(ctx context.Context, ids []string) ([]Criterion, error)
	InsertCriterion(ctx context.Context, criterion Criterion) error
}
