package evaluation

import "math"

// ComputeProgress returns the completion percentage (0..100) derived from the
// participant collection. Pure; callers persist nothing here.
//
// Simple: completed raters over total participants. Full-circle: each
// participant owes two units of work, rating the group and being rated by it,
// so the denominator is twice the participant count and both the status and
// evaluated flags contribute.
//
// Percentages are rounded half-up via math.Round, matching the Math.round
// semantics the product rules were written against (1/3 -> 33, 2/3 -> 67).
func ComputeProgress(participants []Participant, typ Type) int {
	total := len(participants)
	if total == 0 {
		return 0
	}

	switch typ {
	case TypeFullCircle:
		completed := 0
		for _, p := range participants {
			if p.Status == ParticipantCompleted {
				completed++
			}
			if p.Evaluated == EvaluatedCompleted {
				completed++
			}
		}
		return roundPercent(completed, total*2)
	default:
		completed := 0
		for _, p := range participants {
			if p.Status == ParticipantCompleted {
				completed++
			}
		}
		return roundPercent(completed, total)
	}
}

// ResolveStatus derives the lifecycle status from the current completion
// percentage. A stopped evaluation with no progress stays stopped instead of
// silently reverting to pending; any progress overrides a stop.
func ResolveStatus(percentage int, current Status) Status {
	switch {
	case percentage == 100:
		return StatusCompleted
	case percentage > 0:
		return StatusStarted
	case current == StatusStopped:
		return StatusStopped
	default:
		return StatusPending
	}
}

func roundPercent(completed, total int) int {
	return int(math.Round(100 * float64(completed) / float64(total)))
}
