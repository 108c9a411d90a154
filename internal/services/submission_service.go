package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"github.com/acadex/grading-service/internal/utils"
)

type submissionService struct {
	repo      repositories.Repository
	grading   GradingService
	logger    *slog.Logger
	validator *utils.Validator
}

func NewSubmissionService(repo repositories.Repository, grading GradingService, logger *slog.Logger, validator *utils.Validator) SubmissionService {
	return &submissionService{
		repo:      repo,
		grading:   grading,
		logger:    logger,
		validator: validator,
	}
}

// Create validates and persists a submission with its answers, then runs a
// grading pass. The submission is created in grading_in_progress so the
// grading run finds its precondition satisfied and duplicate enqueues are
// rejected up front.
func (s *submissionService) Create(ctx context.Context, req *CreateSubmissionRequest) (*models.Submission, *models.GradeResult, error) {
	s.logger.Info("Creating submission",
		"exam_id", req.ExamID,
		"student_id", req.StudentID,
		"answers_count", len(req.Answers))

	if err := s.validator.Validate(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, req.ExamID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, nil, ErrExamNotFound
		}
		return nil, nil, fmt.Errorf("failed to get exam: %w", err)
	}

	if !exam.IsOpen(time.Now()) {
		return nil, nil, ErrExamClosed
	}

	exists, err := s.repo.Submission().ExistsByStudentAndExam(ctx, req.StudentID, req.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check existing submission: %w", err)
	}
	if exists {
		return nil, nil, ErrDuplicateSubmission
	}

	answers, err := s.buildAnswers(exam, req.Answers)
	if err != nil {
		return nil, nil, err
	}

	submission := &models.Submission{
		StudentID:   req.StudentID,
		ExamID:      req.ExamID,
		Status:      models.SubmissionGradingActive,
		SubmittedAt: time.Now(),
	}

	// The submission row and its answers land in one transaction so a
	// half-written submission can never be picked up for grading.
	txRepo := s.repo
	txManager, transactional := s.repo.(repositories.TransactionRepository)
	if transactional {
		txRepo, err = txManager.Begin(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		tx := txRepo.(repositories.TransactionRepository)
		defer func() {
			if err != nil {
				tx.Rollback(ctx)
			}
		}()
	}

	if err = txRepo.Submission().Create(ctx, submission); err != nil {
		if repositories.IsConflictError(err) {
			err = ErrDuplicateSubmission
		}
		return nil, nil, err
	}

	for _, answer := range answers {
		answer.SubmissionID = submission.ID
	}
	if err = txRepo.Submission().CreateAnswers(ctx, answers); err != nil {
		return nil, nil, fmt.Errorf("failed to create answers: %w", err)
	}

	if transactional {
		if err = txRepo.(repositories.TransactionRepository).Commit(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to commit transaction: %w", err)
		}
	}

	s.logger.Info("Submission created",
		"submission_id", submission.ID,
		"exam_id", req.ExamID,
		"student_id", req.StudentID)

	result, gradeErr := s.grading.GradeSubmission(ctx, submission.ID, GradeOptions{})
	if gradeErr != nil {
		// The submission exists and is marked grading_failed; surface both.
		updated, getErr := s.repo.Submission().GetByID(ctx, submission.ID)
		if getErr == nil {
			submission = updated
		}
		return submission, nil, gradeErr
	}

	updated, refetchErr := s.repo.Submission().GetByIDWithAnswers(ctx, submission.ID)
	if refetchErr != nil {
		return submission, result, nil
	}
	return updated, result, nil
}

func (s *submissionService) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return submission, nil
}

func (s *submissionService) GetByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	if _, err := s.repo.Exam().GetByID(ctx, examID); err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, 0, ErrExamNotFound
		}
		return nil, 0, fmt.Errorf("failed to get exam: %w", err)
	}

	submissions, total, err := s.repo.Submission().GetByExam(ctx, examID, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return submissions, total, nil
}

// buildAnswers validates each answer against the exam structure and maps it
// to a persistable row. Answers are immutable once grading begins.
func (s *submissionService) buildAnswers(exam *models.Exam, reqs []SubmissionAnswerRequest) ([]*models.SubmissionAnswer, error) {
	questionsByID := make(map[uint]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		questionsByID[exam.Questions[i].ID] = &exam.Questions[i]
	}

	seen := make(map[uint]bool, len(reqs))
	answers := make([]*models.SubmissionAnswer, 0, len(reqs))

	for _, req := range reqs {
		question, ok := questionsByID[req.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %d", ErrQuestionNotInExam, req.QuestionID)
		}
		if seen[req.QuestionID] {
			return nil, NewValidationError("answers", "duplicate answer for question", req.QuestionID)
		}
		seen[req.QuestionID] = true

		answer := &models.SubmissionAnswer{QuestionID: req.QuestionID}

		if question.Type.IsObjective() {
			choicesByID := make(map[uint]bool, len(question.Choices))
			for _, choice := range question.Choices {
				choicesByID[choice.ID] = true
			}
			for _, choiceID := range req.SelectedChoiceIDs {
				if !choicesByID[choiceID] {
					return nil, fmt.Errorf("%w: choice %d for question %d", ErrChoiceNotInQuestion, choiceID, req.QuestionID)
				}
			}
			answer.SelectedChoiceIDs = req.SelectedChoiceIDs
		} else {
			answer.AnswerText = req.AnswerText
		}

		answers = append(answers, answer)
	}

	return answers, nil
}
