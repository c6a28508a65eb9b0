package evaluation

import "time"

type Evaluation struct {
	ID           string        `json:"id"`
	Type         Type          `json:"evaluationType"`
	Title        string        `json:"title"`
	EvaluatedID  string        `json:"evaluatedId,omitempty"`
	CriteriaIDs  []string      `json:"criteriaIds"`
	Participants []Participant `json:"participants"`
	Status       Status        `json:"status"`
	StartDate    *time.Time    `json:"startDate"`
	EndDate      time.Time     `json:"endDate"`

	// Percentage is recomputed from participants on every read and is not
	// persisted; only the resolved status is written back.
	Percentage int `json:"completionPercentage"`

	// Version guards concurrent read-modify-write of the participants array
	// and status against lost updates.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Participant is embedded in the evaluation row as part of a JSON array.
// Status tracks the participant's own rating work; Evaluated tracks whether
// the participant has been fully rated as a subject and is only meaningful
// for full-circle evaluations.
type Participant struct {
	ID        string            `json:"id"`
	Status    ParticipantStatus `json:"status"`
	Evaluated EvaluatedStatus   `json:"evaluated,omitempty"`
}

type Criterion struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Response is one rater's submitted score set. SubjectID disambiguates which
// participant was rated in a full-circle evaluation; it is empty for simple
// evaluations where the subject is implied by the evaluation itself.
type Response struct {
	ID           string         `json:"id"`
	EvaluationID string         `json:"evaluationId"`
	RaterID      string         `json:"raterId"`
	SubjectID    string         `json:"subjectId,omitempty"`
	Scores       map[string]int `json:"scores"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// CriterionResult is one row of the aggregated report: the peer average
// against the subject's self score for a single criterion.
type CriterionResult struct {
	CriterionID string  `json:"criterionId"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PeerAverage float64 `json:"peerAverage"`
	SelfScore   float64 `json:"selfScore"`
}

// Identity is the caller identity handed in by the auth layer; the service
// never looks roles up itself.
type Identity struct {
	UserID string
	Role   string
}

type CreateInput struct {
	Type           Type      `json:"evaluationType"`
	Title          string    `json:"title"`
	EndDate        time.Time `json:"endDate"`
	EvaluatedID    string    `json:"evaluatedId"`
	CriteriaIDs    []string  `json:"criteriaIds"`
	ParticipantIDs []string  `json:"participantIds"`
}
