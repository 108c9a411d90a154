// Package grader abstracts subjective-answer grading behind a provider
// capability. The orchestrating service depends only on the Provider
// interface; the LLM-backed and mock implementations are interchangeable.
package grader

import (
	"context"
	"errors"
	"fmt"
)

// BatchItem is one subjective question/answer pair submitted for grading.
type BatchItem struct {
	QuestionID uint    `json:"id"`
	Prompt     string  `json:"prompt"`
	Rubric     string  `json:"rubric"`
	Answer     string  `json:"answer"`
	MaxPoints  float64 `json:"max_points"`
}

// ItemGrade is the provider's verdict for one batch item.
type ItemGrade struct {
	QuestionID uint    `json:"id"`
	Score      float64 `json:"score"`
	Rationale  string  `json:"rationale"`
}

// BatchResult carries per-item grades aligned 1:1 with the request order,
// plus an optional overall summary produced by the provider.
type BatchResult struct {
	Grades  []ItemGrade
	Summary string
}

// Provider grades a batch of subjective answers in a single call.
//
// Implementations must return grades in request order with exactly one entry
// per requested item, or one of the errors below.
type Provider interface {
	Name() string
	GradeBatch(ctx context.Context, items []BatchItem) (*BatchResult, error)
}

// Failure modes surfaced to the orchestrator.
var (
	// ErrUnavailable covers network, auth and rate-limit failures. Transient,
	// safe to retry.
	ErrUnavailable = errors.New("grading provider unavailable")

	// ErrTimeout means the provider call exceeded its request timeout.
	// Treated as transient.
	ErrTimeout = errors.New("grading provider timed out")

	// ErrResponseInvalid means the provider produced unparseable or
	// inconsistent output. Not retryable without re-prompting.
	ErrResponseInvalid = errors.New("grading provider returned an invalid response")
)

// IncompleteGradingError is returned when the provider response omits one or
// more requested question ids.
type IncompleteGradingError struct {
	MissingIDs []uint
}

func (e *IncompleteGradingError) Error() string {
	return fmt.Sprintf("provider response missing grades for question ids %v", e.MissingIDs)
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrTimeout)
}
