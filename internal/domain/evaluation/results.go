package evaluation

import "math"

// AggregateResults builds the per-criterion report rows for one subject from
// the submitted responses. The subject's own response supplies SelfScore, all
// other raters feed PeerAverage. Missing data degrades to zero rather than
// failing: an in-progress evaluation yields best-effort partial averages.
//
// Callers pass only the responses that target the subject; for simple
// evaluations that is every response, for full-circle the ones whose
// SubjectID matches.
func AggregateResults(criteria []Criterion, responses []Response, subjectID string) []CriterionResult {
	results := make([]CriterionResult, 0, len(criteria))
	for _, criterion := range criteria {
		selfScore := 0.0
		for _, resp := range responses {
			if resp.RaterID != subjectID {
				continue
			}
			if score, ok := resp.Scores[criterion.ID]; ok {
				selfScore = float64(score)
			}
			break
		}

		peerSum := 0
		peerCount := 0
		for _, resp := range responses {
			if resp.RaterID == subjectID {
				continue
			}
			if score, ok := resp.Scores[criterion.ID]; ok && score > 0 {
				peerSum += score
				peerCount++
			}
		}

		peerAverage := 0.0
		if peerCount > 0 {
			peerAverage = float64(peerSum) / float64(peerCount)
		}

		results = append(results, CriterionResult{
			CriterionID: criterion.ID,
			Name:        criterion.Name,
			Description: criterion.Description,
			PeerAverage: round2(peerAverage),
			SelfScore:   round2(selfScore),
		})
	}
	return results
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
