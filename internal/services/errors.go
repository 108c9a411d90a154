package services

import (
	"errors"

	apperrors "github.com/acadex/grading-service/internal/errors"
	"github.com/acadex/grading-service/internal/grader"
	"github.com/acadex/grading-service/internal/repositories"
)

// ===== SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrValidationFailed = errors.New("validation failed")
	ErrConflict         = errors.New("resource conflict")

	// Exam specific errors
	ErrExamNotFound = errors.New("exam not found")
	ErrExamClosed   = errors.New("exam is not open for submissions")

	// Submission specific errors
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrDuplicateSubmission = errors.New("student has already submitted this exam")
	ErrQuestionNotInExam   = errors.New("answer references a question outside the exam")
	ErrChoiceNotInQuestion = errors.New("selected choice does not belong to the question")

	// Grading specific errors
	ErrAlreadyGraded = errors.New("submission already graded")

	// Deterministic grader programming/data errors
	ErrInvalidQuestionType = errors.New("question type not gradeable deterministically")
	ErrMalformedQuestion   = errors.New("question has no grading key")
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from the errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

// ===== ERROR HELPERS =====

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrExamNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		repositories.IsNotFoundError(err)
}

// IsConflict checks if error represents a resource conflict
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrDuplicateSubmission) ||
		errors.Is(err, ErrAlreadyGraded) ||
		repositories.IsConflictError(err)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) ||
		errors.Is(err, ErrExamClosed) ||
		errors.Is(err, ErrQuestionNotInExam) ||
		errors.Is(err, ErrChoiceNotInQuestion) {
		return true
	}
	var ve ValidationErrors
	if errors.As(err, &ve) {
		return true
	}
	var single *ValidationError
	return errors.As(err, &single)
}

// IsProviderFailure checks if error originates from the grading provider
func IsProviderFailure(err error) bool {
	var incomplete *grader.IncompleteGradingError
	return errors.Is(err, grader.ErrUnavailable) ||
		errors.Is(err, grader.ErrTimeout) ||
		errors.Is(err, grader.ErrResponseInvalid) ||
		errors.As(err, &incomplete)
}
