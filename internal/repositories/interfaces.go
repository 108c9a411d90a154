package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/acadex/grading-service/internal/models"
)

// ===== SHARED ERRORS =====

var (
	ErrNotFound = errors.New("record not found")

	// ErrConflict signals a concurrent-write collision: the guarded status
	// transition found the submission in an unexpected state.
	ErrConflict = errors.New("conflicting concurrent update")
)

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

// ===== SHARED FILTER STRUCTS =====

type SubmissionFilters struct {
	Status    *models.SubmissionStatus `json:"status"`
	StudentID *string                  `json:"student_id"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "submitted_at", "graded_at", "total_score"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

type Repository interface {
	Exam() ExamRepository
	Submission() SubmissionRepository
}

// TransactionRepository scopes a group of writes to one database transaction.
type TransactionRepository interface {
	Repository
	Begin(ctx context.Context) (Repository, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type ExamRepository interface {
	GetByID(ctx context.Context, id uint) (*models.Exam, error)

	// GetByIDWithQuestions loads the exam together with its questions and
	// their choices, ordered by question order.
	GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	CreateAnswers(ctx context.Context, answers []*models.SubmissionAnswer) error

	GetByID(ctx context.Context, id uint) (*models.Submission, error)

	// GetByIDWithAnswers loads the submission with its answers (and their
	// questions/choices), ordered by the questions' exam order.
	GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error)

	ExistsByStudentAndExam(ctx context.Context, studentID string, examID uint) (bool, error)
	GetByExam(ctx context.Context, examID uint, filters SubmissionFilters) ([]*models.Submission, int64, error)

	// TransitionStatus updates the submission status only if it currently
	// holds the expected value; ErrConflict otherwise.
	TransitionStatus(ctx context.Context, id uint, from, to models.SubmissionStatus) error

	// PersistGradeResult commits the result and the terminal status
	// transition atomically: re-reads the row under lock, rejects with
	// ErrConflict if the submission is no longer grading_in_progress, then
	// writes per-question grades, totals, feedback and graded status
	// together.
	PersistGradeResult(ctx context.Context, result *models.GradeResult) error

	// MarkGradingFailed records a failed grading run, leaving score fields
	// untouched. A submission that already reached graded keeps that state.
	MarkGradingFailed(ctx context.Context, id uint, cause string) error
}
