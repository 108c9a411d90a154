package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/acadex/grading-service/internal/cache"
	"github.com/acadex/grading-service/internal/events"
	"github.com/acadex/grading-service/internal/grader"
	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
)

const (
	// GradingVersionLLM tags results where a provider graded subjective answers.
	GradingVersionLLM = "llm-v1"
	// GradingVersionDeterministic tags results graded entirely locally.
	GradingVersionDeterministic = "deterministic-v1"

	examSnapshotTTL = 10 * time.Minute
)

type gradingService struct {
	repo      repositories.Repository
	provider  grader.Provider
	publisher events.EventPublisher
	cache     cache.CacheService
	logger    *slog.Logger
	retry     RetryPolicy

	// sleep is swapped out in tests to observe the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGradingService(
	repo repositories.Repository,
	provider grader.Provider,
	publisher events.EventPublisher,
	cacheService cache.CacheService,
	logger *slog.Logger,
	retry RetryPolicy,
) GradingService {
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 3
	}
	if retry.BackoffBase <= 0 {
		retry.BackoffBase = 800 * time.Millisecond
	}
	return &gradingService{
		repo:      repo,
		provider:  provider,
		publisher: publisher,
		cache:     cacheService,
		logger:    logger,
		retry:     retry,
		sleep:     sleepContext,
	}
}

type providerOutcome struct {
	result   *grader.BatchResult
	attempts int
	err      error
}

// GradeSubmission runs one grading attempt end to end. The run is atomic
// from the caller's perspective: either a complete GradeResult is committed
// together with the graded status, or the submission ends in grading_failed
// and no partial scores are persisted.
func (s *gradingService) GradeSubmission(ctx context.Context, submissionID uint, opts GradeOptions) (*models.GradeResult, error) {
	logger := s.logger.With("submission_id", submissionID)
	logger.Info("Starting grading run", "regrade", opts.Regrade)

	submission, err := s.repo.Submission().GetByIDWithAnswers(ctx, submissionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if err := s.ensureGradingInProgress(ctx, submission, opts); err != nil {
		return nil, err
	}

	exam, err := s.examSnapshot(ctx, submission.ExamID)
	if err != nil {
		s.failRun(ctx, submission, fmt.Sprintf("failed to load exam: %v", err))
		return nil, fmt.Errorf("failed to load exam %d: %w", submission.ExamID, err)
	}

	questionsByID := make(map[uint]*models.Question, len(exam.Questions))
	for i := range exam.Questions {
		questionsByID[exam.Questions[i].ID] = &exam.Questions[i]
	}

	// Partition answers by question type, preserving submission order.
	var batch []grader.BatchItem
	var objective []*models.SubmissionAnswer
	grades := make(map[uint]models.PerQuestionGrade, len(submission.Answers))
	partial := false

	for i := range submission.Answers {
		answer := &submission.Answers[i]
		question, ok := questionsByID[answer.QuestionID]
		if !ok {
			logger.Warn("Answer references unknown question", "question_id", answer.QuestionID)
			grades[answer.QuestionID] = zeroGrade(answer.QuestionID, 0, "Question no longer part of the exam.")
			partial = true
			continue
		}

		if question.Type.IsSubjective() {
			batch = append(batch, grader.BatchItem{
				QuestionID: question.ID,
				Prompt:     question.Prompt,
				Rubric:     question.ExpectedAnswer,
				Answer:     answer.AnswerText,
				MaxPoints:  question.Points,
			})
			continue
		}
		objective = append(objective, answer)
	}

	// Kick off the single batched provider call first so local grading
	// overlaps the provider round trip; the orchestrator waits for both
	// before merging.
	var outcomeCh chan providerOutcome
	if len(batch) > 0 {
		outcomeCh = make(chan providerOutcome, 1)
		go func() {
			result, attempts, batchErr := s.gradeBatchWithRetry(ctx, submissionID, batch)
			outcomeCh <- providerOutcome{result: result, attempts: attempts, err: batchErr}
		}()
	}

	for _, answer := range objective {
		question := questionsByID[answer.QuestionID]

		// A single malformed objective answer never fails the whole run;
		// it degrades to a zero score with a note.
		grade, gradeErr := GradeObjective(question, answer)
		if gradeErr != nil {
			logger.Warn("Deterministic grading degraded to zero score",
				"question_id", question.ID,
				"error", gradeErr)
			grades[question.ID] = zeroGrade(question.ID, question.Points, fmt.Sprintf("Not gradeable: %v", gradeErr))
			partial = true
			continue
		}
		grades[question.ID] = grade
	}

	var summary string
	if outcomeCh != nil {
		outcome := <-outcomeCh
		if outcome.err != nil {
			cause := fmt.Sprintf("subjective grading failed after %d attempt(s): %v", outcome.attempts, outcome.err)
			s.failRun(ctx, submission, cause)
			return nil, fmt.Errorf("subjective grading failed after %d attempt(s): %w", outcome.attempts, outcome.err)
		}

		providerName := s.provider.Name()
		for _, itemGrade := range outcome.result.Grades {
			question := questionsByID[itemGrade.QuestionID]
			grades[itemGrade.QuestionID] = models.PerQuestionGrade{
				QuestionID:    itemGrade.QuestionID,
				AwardedPoints: itemGrade.Score,
				MaxPoints:     question.Points,
				IsCorrect:     nil,
				Rationale:     itemGrade.Rationale,
				Source:        models.SourceProvider,
				GraderName:    providerName,
			}
		}
		summary = outcome.result.Summary
	}

	result := s.mergeResult(submission, grades, partial, len(batch) > 0, summary)

	if err := s.repo.Submission().PersistGradeResult(ctx, result); err != nil {
		if repositories.IsConflictError(err) {
			logger.Warn("Concurrent grading run won the commit", "error", err)
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		s.failRun(ctx, submission, fmt.Sprintf("failed to persist result: %v", err))
		return nil, fmt.Errorf("failed to persist grade result: %w", err)
	}

	s.publish(ctx, events.NewSubmissionGradedEvent(submission, result))

	logger.Info("Grading run completed",
		"status", result.Status,
		"total_score", result.TotalScore,
		"max_score", result.MaxScore,
		"grading_version", result.GradingVersion)

	return result, nil
}

// ensureGradingInProgress re-validates the caller's precondition and claims
// the submission for this run. Two concurrent runs race on the conditional
// status update; the loser gets ErrConflict.
func (s *gradingService) ensureGradingInProgress(ctx context.Context, submission *models.Submission, opts GradeOptions) error {
	switch submission.Status {
	case models.SubmissionGraded:
		if !opts.Regrade {
			return ErrAlreadyGraded
		}
		if err := s.repo.Submission().TransitionStatus(ctx, submission.ID, models.SubmissionGraded, models.SubmissionGradingActive); err != nil {
			return fmt.Errorf("failed to claim submission for re-grade: %w", err)
		}
	case models.SubmissionPending, models.SubmissionGradingFailed:
		if err := s.repo.Submission().TransitionStatus(ctx, submission.ID, submission.Status, models.SubmissionGradingActive); err != nil {
			return fmt.Errorf("failed to claim submission for grading: %w", err)
		}
	case models.SubmissionGradingActive:
		// Caller already transitioned the status before invoking us.
	default:
		return fmt.Errorf("%w: unexpected submission status %s", ErrConflict, submission.Status)
	}

	submission.Status = models.SubmissionGradingActive
	return nil
}

// gradeBatchWithRetry invokes the provider once per attempt, retrying only
// transient failures with exponential backoff. Content errors (invalid or
// incomplete responses) are surfaced immediately.
func (s *gradingService) gradeBatchWithRetry(ctx context.Context, submissionID uint, items []grader.BatchItem) (*grader.BatchResult, int, error) {
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxAttempts; attempt++ {
		result, err := s.provider.GradeBatch(ctx, items)
		if err == nil {
			s.logger.Info("Provider batch graded",
				"submission_id", submissionID,
				"provider", s.provider.Name(),
				"items", len(items),
				"attempt", attempt)
			return result, attempt, nil
		}

		lastErr = err
		s.logger.Error("Provider batch grading failed",
			"submission_id", submissionID,
			"provider", s.provider.Name(),
			"attempt", attempt,
			"error_kind", providerErrorKind(err),
			"error", err)

		if !grader.IsTransient(err) {
			return nil, attempt, err
		}
		if attempt == s.retry.MaxAttempts {
			break
		}

		backoff := s.retry.BackoffBase << (attempt - 1)
		if sleepErr := s.sleep(ctx, backoff); sleepErr != nil {
			return nil, attempt, fmt.Errorf("%w: %v", grader.ErrTimeout, sleepErr)
		}
	}
	return nil, s.retry.MaxAttempts, lastErr
}

// mergeResult combines local and provider grades back into the submission's
// original answer order and computes the aggregate score.
func (s *gradingService) mergeResult(
	submission *models.Submission,
	grades map[uint]models.PerQuestionGrade,
	partial bool,
	usedProvider bool,
	providerSummary string,
) *models.GradeResult {
	result := &models.GradeResult{
		SubmissionID:   submission.ID,
		Status:         models.GradeStatusSuccess,
		GradingVersion: GradingVersionDeterministic,
		GradedAt:       time.Now(),
		PerQuestion:    make([]models.PerQuestionGrade, 0, len(submission.Answers)),
	}
	if usedProvider {
		result.GradingVersion = GradingVersionLLM
	}
	if partial {
		result.Status = models.GradeStatusPartialFailure
	}

	for i := range submission.Answers {
		grade, ok := grades[submission.Answers[i].QuestionID]
		if !ok {
			// Defensive: a gap here would mean the provider result passed
			// codec validation yet misses an id. Record it visibly.
			grade = zeroGrade(submission.Answers[i].QuestionID, 0, "No grade produced.")
			result.Status = models.GradeStatusPartialFailure
		}
		result.PerQuestion = append(result.PerQuestion, grade)
		result.TotalScore += grade.AwardedPoints
		result.MaxScore += grade.MaxPoints
	}

	result.FeedbackSummary = buildFeedbackSummary(result, providerSummary)
	return result
}

func (s *gradingService) examSnapshot(ctx context.Context, examID uint) (*models.Exam, error) {
	key := fmt.Sprintf("grading:exam:%d:snapshot", examID)

	if s.cache != nil {
		var cached models.Exam
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Exam snapshot cache read failed", "exam_id", examID, "error", err)
		}
	}

	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, exam, examSnapshotTTL); err != nil {
			s.logger.Warn("Exam snapshot cache write failed", "exam_id", examID, "error", err)
		}
	}
	return exam, nil
}

func (s *gradingService) failRun(ctx context.Context, submission *models.Submission, cause string) {
	if err := s.repo.Submission().MarkGradingFailed(ctx, submission.ID, cause); err != nil {
		s.logger.Error("Failed to mark submission grading_failed",
			"submission_id", submission.ID,
			"error", err)
	}
	s.publish(ctx, events.NewGradingFailedEvent(submission, cause))
}

func (s *gradingService) publish(ctx context.Context, event *events.GradingEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishGradingEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish grading event",
			"event_type", event.Type,
			"submission_id", event.SubmissionID,
			"error", err)
	}
}

// ===== HELPERS =====

func zeroGrade(questionID uint, maxPoints float64, note string) models.PerQuestionGrade {
	return models.PerQuestionGrade{
		QuestionID:    questionID,
		AwardedPoints: 0,
		MaxPoints:     maxPoints,
		IsCorrect:     boolPtr(false),
		Rationale:     note,
		Source:        models.SourceDeterministic,
	}
}

func providerErrorKind(err error) string {
	var incomplete *grader.IncompleteGradingError
	switch {
	case errors.Is(err, grader.ErrTimeout):
		return "timeout"
	case errors.Is(err, grader.ErrUnavailable):
		return "unavailable"
	case errors.As(err, &incomplete):
		return "incomplete_grading"
	case errors.Is(err, grader.ErrResponseInvalid):
		return "response_invalid"
	default:
		return "other"
	}
}

func buildFeedbackSummary(result *models.GradeResult, providerSummary string) string {
	percentage := 0.0
	if result.MaxScore > 0 {
		percentage = result.TotalScore / result.MaxScore * 100
	}
	summary := fmt.Sprintf("Overall performance: %.2f/%.2f (%.1f%%).", result.TotalScore, result.MaxScore, percentage)

	var objectiveCorrect, objectiveTotal int
	var subjectiveTotal int
	var subjectivePoints float64
	for _, grade := range result.PerQuestion {
		switch grade.Source {
		case models.SourceDeterministic:
			objectiveTotal++
			if grade.IsCorrect != nil && *grade.IsCorrect {
				objectiveCorrect++
			}
		case models.SourceProvider:
			subjectiveTotal++
			subjectivePoints += grade.AwardedPoints
		}
	}

	if objectiveTotal > 0 {
		summary += fmt.Sprintf(" Objective questions: %d/%d correct.", objectiveCorrect, objectiveTotal)
	}

	if providerSummary != "" {
		summary += " " + providerSummary
	} else if subjectiveTotal > 0 {
		summary += fmt.Sprintf(" Free-text questions: %d graded (%.2f points).", subjectiveTotal, subjectivePoints)
	}

	return summary
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
