package evaluation

import "testing"

var resultCriteria = []Criterion{
	{ID: "c1", Name: "Communication", Description: "Conveys ideas clearly"},
	{ID: "c2", Name: "Teamwork", Description: "Collaborates effectively"},
}

func TestAggregateResultsNoResponses(t *testing.T) {
	results := AggregateResults(resultCriteria, nil, "subject")
	if len(results) != len(resultCriteria) {
		t.Fatalf("expected %d rows, got %d", len(resultCriteria), len(results))
	}
	for _, row := range results {
		if row.PeerAverage != 0 || row.SelfScore != 0 {
			t.Fatalf("expected zero scores with no responses, got %+v", row)
		}
	}
}

func TestAggregateResultsPeerAverageExcludesSubject(t *testing.T) {
	responses := []Response{
		{RaterID: "subject", Scores: map[string]int{"c1": 5, "c2": 2}},
		{RaterID: "peer1", Scores: map[string]int{"c1": 4, "c2": 3}},
		{RaterID: "peer2", Scores: map[string]int{"c1": 5, "c2": 4}},
	}
	results := AggregateResults(resultCriteria, responses, "subject")

	if results[0].SelfScore != 5 {
		t.Fatalf("expected self score 5 for c1, got %v", results[0].SelfScore)
	}
	if results[0].PeerAverage != 4.5 {
		t.Fatalf("expected peer average 4.5 for c1, got %v", results[0].PeerAverage)
	}
	if results[1].PeerAverage != 3.5 {
		t.Fatalf("expected peer average 3.5 for c2, got %v", results[1].PeerAverage)
	}
}

func TestAggregateResultsRoundsToTwoDecimals(t *testing.T) {
	responses := []Response{
		{RaterID: "peer1", Scores: map[string]int{"c1": 3}},
		{RaterID: "peer2", Scores: map[string]int{"c1": 4}},
		{RaterID: "peer3", Scores: map[string]int{"c1": 4}},
	}
	results := AggregateResults(resultCriteria, responses, "subject")
	if results[0].PeerAverage != 3.67 {
		t.Fatalf("expected 3.67, got %v", results[0].PeerAverage)
	}
}

func TestAggregateResultsMissingSelfDefaultsToZero(t *testing.T) {
	responses := []Response{
		{RaterID: "peer1", Scores: map[string]int{"c1": 4, "c2": 4}},
	}
	results := AggregateResults(resultCriteria, responses, "subject")
	for _, row := range results {
		if row.SelfScore != 0 {
			t.Fatalf("expected self score 0 without a self response, got %v", row.SelfScore)
		}
		if row.PeerAverage != 4 {
			t.Fatalf("expected peer average 4, got %v", row.PeerAverage)
		}
	}
}

func TestAggregateResultsPartialCriterionCoverage(t *testing.T) {
	// peer2 skipped c2 entirely; the c2 average only counts peer1.
	responses := []Response{
		{RaterID: "peer1", Scores: map[string]int{"c1": 2, "c2": 5}},
		{RaterID: "peer2", Scores: map[string]int{"c1": 4}},
	}
	results := AggregateResults(resultCriteria, responses, "subject")
	if results[0].PeerAverage != 3 {
		t.Fatalf("expected c1 average 3, got %v", results[0].PeerAverage)
	}
	if results[1].PeerAverage != 5 {
		t.Fatalf("expected c2 average 5, got %v", results[1].PeerAverage)
	}
}
