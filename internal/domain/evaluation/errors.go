package evaluation

import "errors"

var (
	ErrValidation = errors.New("invalid evaluation input")
	ErrNotFound   = errors.New("evaluation record not found")
	ErrConflict   = errors.New("evaluation update conflict")
	ErrForbidden  = errors.New("operation not permitted")

	// errDuplicateResponse signals that the response row already exists.
	// RecordResponse treats it as "already persisted" and proceeds to fold
	// the completion into the evaluation, making resubmission idempotent.
	errDuplicateResponse = errors.New("response already submitted")
)
