package grader

import (
	"encoding/json"
	"fmt"
)

// Wire shapes exchanged with the provider. Every item carries a stable
// question id so the response can be realigned even if the model reorders
// or drops entries.

type batchRequest struct {
	Items []BatchItem `json:"items"`
}

type batchResponse struct {
	Items   []ItemGrade `json:"items"`
	Summary string      `json:"summary"`
}

// EncodeBatch serializes the request payload embedded into the grading prompt.
func EncodeBatch(items []BatchItem) (string, error) {
	payload, err := json.Marshal(batchRequest{Items: items})
	if err != nil {
		return "", fmt.Errorf("failed to encode grading batch: %w", err)
	}
	return string(payload), nil
}

// DecodeBatch parses the raw provider output and validates it against the
// request: every requested question id present exactly once, every score
// within [0, max_points]. Grades are returned in request order.
//
// Out-of-range scores are rejected rather than clamped so a misbehaving
// model cannot silently inflate or deflate an assessment record.
func DecodeBatch(raw string, items []BatchItem) (*BatchResult, error) {
	var resp batchResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("%w: non-JSON output: %s", ErrResponseInvalid, truncate(raw, 200))
	}

	requested := make(map[uint]BatchItem, len(items))
	for _, item := range items {
		requested[item.QuestionID] = item
	}

	graded := make(map[uint]ItemGrade, len(resp.Items))
	for _, grade := range resp.Items {
		item, ok := requested[grade.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: unrequested question id %d", ErrResponseInvalid, grade.QuestionID)
		}
		if _, dup := graded[grade.QuestionID]; dup {
			return nil, fmt.Errorf("%w: duplicate grade for question id %d", ErrResponseInvalid, grade.QuestionID)
		}
		if grade.Score < 0 || grade.Score > item.MaxPoints {
			return nil, fmt.Errorf("%w: score %.2f out of range [0, %.2f] for question id %d",
				ErrResponseInvalid, grade.Score, item.MaxPoints, grade.QuestionID)
		}
		graded[grade.QuestionID] = grade
	}

	var missing []uint
	for _, item := range items {
		if _, ok := graded[item.QuestionID]; !ok {
			missing = append(missing, item.QuestionID)
		}
	}
	if len(missing) > 0 {
		return nil, &IncompleteGradingError{MissingIDs: missing}
	}

	grades := make([]ItemGrade, len(items))
	for i, item := range items {
		grades[i] = graded[item.QuestionID]
	}

	return &BatchResult{Grades: grades, Summary: resp.Summary}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
