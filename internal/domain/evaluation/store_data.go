package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

type Store struct {
	DB *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{DB: pool}
}

func (s *Store) InsertEvaluation(ctx context.Context, ev Evaluation) error {
	criteriaJSON, err := json.Marshal(ev.CriteriaIDs)
	if err != nil {
		return err
	}
	participantsJSON, err := json.Marshal(ev.Participants)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO evaluations (id, evaluation_type, title, evaluated_id, criteria_ids, participants, status, start_date, end_date, version, created_at, updated_at)
    VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12)
  `, ev.ID, string(ev.Type), ev.Title, ev.EvaluatedID, criteriaJSON, participantsJSON, string(ev.Status), ev.StartDate, ev.EndDate, ev.Version, ev.CreatedAt, ev.UpdatedAt)
	return err
}

func (s *Store) GetEvaluation(ctx context.Context, id string) (Evaluation, error) {
	row := s.DB.QueryRow(ctx, `
    SELECT id, evaluation_type, title, COALESCE(evaluated_id, ''), criteria_ids, participants, status, start_date, end_date, version, created_at, updated_at
    FROM evaluations
    WHERE id = $1
  `, id)
	ev, err := scanEvaluation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Evaluation{}, fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	return ev, err
}

func (s *Store) ListEvaluations(ctx context.Context) ([]Evaluation, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, evaluation_type, title, COALESCE(evaluated_id, ''), criteria_ids, participants, status, start_date, end_date, version, created_at, updated_at
    FROM evaluations
    ORDER BY created_at DESC
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var evaluations []Evaluation
	for rows.Next() {
		ev, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evaluations = append(evaluations, ev)
	}
	return evaluations, rows.Err()
}

func (s *Store) UpdateEvaluationState(ctx context.Context, id string, participants []Participant, status Status, expectedVersion int64) (bool, error) {
	participantsJSON, err := json.Marshal(participants)
	if err != nil {
		return false, err
	}
	tag, err := s.DB.Exec(ctx, `
    UPDATE evaluations
    SET participants = $2, status = $3, version = version + 1, updated_at = now()
    WHERE id = $1 AND version = $4
  `, id, participantsJSON, string(status), expectedVersion)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) SetEvaluationSchedule(ctx context.Context, id string, startDate *time.Time, status Status) error {
	tag, err := s.DB.Exec(ctx, `
    UPDATE evaluations
    SET start_date = $2, status = $3, version = version + 1, updated_at = now()
    WHERE id = $1
  `, id, startDate, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) DeleteEvaluation(ctx context.Context, id string) error {
	tag, err := s.DB.Exec(ctx, "DELETE FROM evaluations WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: evaluation %s", ErrNotFound, id)
	}
	return nil
}

func (s *Store) InsertResponse(ctx context.Context, resp Response) error {
	scoresJSON, err := json.Marshal(resp.Scores)
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO evaluation_responses (id, evaluation_id, rater_id, subject_id, scores, created_at)
    VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
  `, resp.ID, resp.EvaluationID, resp.RaterID, resp.SubjectID, scoresJSON, resp.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return errDuplicateResponse
	}
	return err
}

func (s *Store) ListResponses(ctx context.Context, evaluationID string) ([]Response, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, evaluation_id, rater_id, COALESCE(subject_id, ''), scores, created_at
    FROM evaluation_responses
    WHERE evaluation_id = $1
    ORDER BY created_at
  `, evaluationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var responses []Response
	for rows.Next() {
		var resp Response
		var scoresJSON []byte
		if err := rows.Scan(&resp.ID, &resp.EvaluationID, &resp.RaterID, &resp.SubjectID, &scoresJSON, &resp.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(scoresJSON, &resp.Scores); err != nil {
			return nil, err
		}
		responses = append(responses, resp)
	}
	return responses, rows.Err()
}

func (s *Store) CountSubjectsRatedBy(ctx context.Context, evaluationID, raterID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(DISTINCT subject_id)
    FROM evaluation_responses
    WHERE evaluation_id = $1 AND rater_id = $2 AND subject_id IS NOT NULL
  `, evaluationID, raterID).Scan(&count)
	return count, err
}

func (s *Store) CountRatersOf(ctx context.Context, evaluationID, subjectID string) (int, error) {
	var count int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(DISTINCT rater_id)
    FROM evaluation_responses
    WHERE evaluation_id = $1 AND subject_id = $2
  `, evaluationID, subjectID).Scan(&count)
	return count, err
}

func (s *Store) ListCriteria(ctx context.Context) ([]Criterion, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, name, description, created_at FROM evaluation_criteria ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCriteria(rows)
}

func (s *Store) CriteriaByIDs(ctx context.Context, ids []string) ([]Criterion, error) {
	rows, err := s.DB.Query(ctx, "SELECT id, name, description, created_at FROM evaluation_criteria WHERE id = ANY($1) ORDER BY name", ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectCriteria(rows)
}

func (s *Store) InsertCriterion(ctx context.Context, criterion Criterion) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO evaluation_criteria (id, name, description, created_at)
    VALUES ($1, $2, $3, $4)
  `, criterion.ID, criterion.Name, criterion.Description, criterion.CreatedAt)
	return err
}

func collectCriteria(rows pgx.Rows) ([]Criterion, error) {
	var criteria []Criterion
	for rows.Next() {
		var criterion Criterion
		if err := rows.Scan(&criterion.ID, &criterion.Name, &criterion.Description, &criterion.CreatedAt); err != nil {
			return nil, err
		}
		criteria = append(criteria, criterion)
	}
	return criteria, rows.Err()
}

func scanEvaluation(row pgx.Row) (Evaluation, error) {
	var ev Evaluation
	var typ, status string
	var criteriaJSON, participantsJSON []byte
	if err := row.Scan(&ev.ID, &typ, &ev.Title, &ev.EvaluatedID, &criteriaJSON, &participantsJSON, &status, &ev.StartDate, &ev.EndDate, &ev.Version, &ev.CreatedAt, &ev.UpdatedAt); err != nil {
		return Evaluation{}, err
	}
	ev.Type = Type(typ)
	ev.Status = Status(status)
	if err := json.Unmarshal(criteriaJSON, &ev.CriteriaIDs); err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal(participantsJSON, &ev.Participants); err != nil {
		return Evaluation{}, err
	}
	return ev, nil
}
