package grader

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider is a deterministic Provider for tests. Scores are configured
// per question id; FailWith schedules errors for the leading calls so retry
// behavior can be exercised.
type MockProvider struct {
	mu sync.Mutex

	// Scores maps question id to the score to award. Items without an entry
	// get full points.
	Scores     map[uint]float64
	Rationales map[uint]string
	Summary    string

	// FailWith is consumed one error per call before any grading happens.
	FailWith []error

	// OmitIDs lists question ids to leave out of the response, simulating an
	// incomplete provider reply.
	OmitIDs []uint

	calls int
}

func (m *MockProvider) Name() string {
	return "mock"
}

// Calls reports how many times GradeBatch was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) GradeBatch(ctx context.Context, items []BatchItem) (*BatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	if len(m.FailWith) > 0 {
		err := m.FailWith[0]
		m.FailWith = m.FailWith[1:]
		if err != nil {
			return nil, err
		}
	}

	omitted := make(map[uint]bool, len(m.OmitIDs))
	for _, id := range m.OmitIDs {
		omitted[id] = true
	}

	var missing []uint
	grades := make([]ItemGrade, 0, len(items))
	for _, item := range items {
		if omitted[item.QuestionID] {
			missing = append(missing, item.QuestionID)
			continue
		}
		score := item.MaxPoints
		if s, ok := m.Scores[item.QuestionID]; ok {
			score = s
		}
		grades = append(grades, ItemGrade{
			QuestionID: item.QuestionID,
			Score:      score,
			Rationale:  m.Rationales[item.QuestionID],
		})
	}

	if len(missing) > 0 {
		return nil, &IncompleteGradingError{MissingIDs: missing}
	}

	return &BatchResult{Grades: grades, Summary: m.Summary}, nil
}
