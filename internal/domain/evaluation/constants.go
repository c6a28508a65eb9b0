package evaluation

// Type distinguishes the two evaluation topologies. Simple evaluations have a
// single subject rated by the participant group; full-circle evaluations are
// reciprocal, every participant rates and is rated by the others.
type Type string

const (
	TypeSimple     Type = "simple"
	TypeFullCircle Type = "full_circle"
)

func (t Type) Valid() bool {
	return t == TypeSimple || t == TypeFullCircle
}

// Status is the derived lifecycle state of an evaluation. It is never
// authored directly; ResolveStatus recomputes it from progress, except for
// stopped which only an explicit stop action can reach.
type Status string

const (
	StatusPending   Status = "pending"
	StatusStarted   Status = "started"
	StatusStopped   Status = "stopped"
	StatusCompleted Status = "completed"
)

type ParticipantStatus string

const (
	ParticipantPending    ParticipantStatus = "pending"
	ParticipantInProgress ParticipantStatus = "in_progress"
	ParticipantCompleted  ParticipantStatus = "completed"
)

type EvaluatedStatus string

const (
	EvaluatedPending   EvaluatedStatus = "pending"
	EvaluatedCompleted EvaluatedStatus = "completed"
)

// Scores are a closed ordinal scale, 1 = never, 5 = always.
const (
	ScoreMin = 1
	ScoreMax = 5
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)
