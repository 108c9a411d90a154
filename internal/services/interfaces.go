package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/acadex/grading-service/internal/cache"
	"github.com/acadex/grading-service/internal/events"
	"github.com/acadex/grading-service/internal/grader"
	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"github.com/acadex/grading-service/internal/utils"
)

// ===== GRADING =====

// GradeOptions tunes one grading run.
type GradeOptions struct {
	// Regrade allows grading a submission that is already graded. The old
	// result is superseded by the new run's result, never mutated in place.
	Regrade bool
}

// RetryPolicy bounds retries of transient provider failures.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
}

// GradingService runs the grading orchestration for one submission:
// partition answers by question type, grade objective answers locally,
// send subjective answers to the provider in one batch, merge, persist.
type GradingService interface {
	GradeSubmission(ctx context.Context, submissionID uint, opts GradeOptions) (*models.GradeResult, error)
}

// ===== SUBMISSIONS =====

type SubmissionAnswerRequest struct {
	QuestionID        uint   `json:"question_id" validate:"required"`
	SelectedChoiceIDs []uint `json:"selected_choice_ids"`
	AnswerText        string `json:"answer_text"`
}

type CreateSubmissionRequest struct {
	ExamID    uint                      `json:"exam_id" validate:"required"`
	StudentID string                    `json:"student_id" validate:"required,max=64"`
	Answers   []SubmissionAnswerRequest `json:"answers" validate:"required,min=1,dive"`
}

// SubmissionService handles submission intake and lookup. Create persists
// the submission and immediately runs a grading pass over it.
type SubmissionService interface {
	Create(ctx context.Context, req *CreateSubmissionRequest) (*models.Submission, *models.GradeResult, error)
	GetByID(ctx context.Context, id uint) (*models.Submission, error)
	GetByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error)
}

// ===== EXPORT =====

// ExportService produces instructor-facing exports of graded results.
type ExportService interface {
	ExportExamResults(ctx context.Context, examID uint) ([]byte, error)
}

// ===== SERVICE MANAGER =====

// ServiceManager wires all services over shared dependencies.
type ServiceManager interface {
	Grading() GradingService
	Submission() SubmissionService
	Export() ExportService
}

type serviceManager struct {
	grading    GradingService
	submission SubmissionService
	export     ExportService
}

type ManagerConfig struct {
	Repo      repositories.Repository
	Provider  grader.Provider
	Publisher events.EventPublisher
	Cache     cache.CacheService
	Logger    *slog.Logger
	Validator *utils.Validator
	Retry     RetryPolicy
}

func NewServiceManager(cfg ManagerConfig) ServiceManager {
	grading := NewGradingService(cfg.Repo, cfg.Provider, cfg.Publisher, cfg.Cache, cfg.Logger, cfg.Retry)
	return &serviceManager{
		grading:    grading,
		submission: NewSubmissionService(cfg.Repo, grading, cfg.Logger, cfg.Validator),
		export:     NewExportService(cfg.Repo, cfg.Logger),
	}
}

func (m *serviceManager) Grading() GradingService {
	return m.grading
}

func (m *serviceManager) Submission() SubmissionService {
	return m.submission
}

func (m *serviceManager) Export() ExportService {
	return m.export
}
