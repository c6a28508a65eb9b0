package notifications

const (
	TypeEvaluationStarted   = "evaluation_started"
	TypeEvaluationCompleted = "evaluation_completed"
	TypeEvaluationReminder  = "evaluation_reminder"
	TypePasswordReset       = "password_reset"
)
