package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/acadex/grading-service/internal/events"
	"github.com/acadex/grading-service/internal/grader"
	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ===== REPOSITORY MOCKS =====

// MockExamRepository is a mock implementation of ExamRepository
type MockExamRepository struct {
	mock.Mock
}

func (m *MockExamRepository) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exam), args.Error(1)
}

func (m *MockExamRepository) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Exam), args.Error(1)
}

// MockSubmissionRepository is a mock implementation of SubmissionRepository
type MockSubmissionRepository struct {
	mock.Mock
}

func (m *MockSubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	args := m.Called(ctx, submission)
	return args.Error(0)
}

func (m *MockSubmissionRepository) CreateAnswers(ctx context.Context, answers []*models.SubmissionAnswer) error {
	args := m.Called(ctx, answers)
	return args.Error(0)
}

func (m *MockSubmissionRepository) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Submission), args.Error(1)
}

func (m *MockSubmissionRepository) ExistsByStudentAndExam(ctx context.Context, studentID string, examID uint) (bool, error) {
	args := m.Called(ctx, studentID, examID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSubmissionRepository) GetByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	args := m.Called(ctx, examID, filters)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Submission), args.Get(1).(int64), args.Error(2)
}

func (m *MockSubmissionRepository) TransitionStatus(ctx context.Context, id uint, from, to models.SubmissionStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockSubmissionRepository) PersistGradeResult(ctx context.Context, result *models.GradeResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

func (m *MockSubmissionRepository) MarkGradingFailed(ctx context.Context, id uint, cause string) error {
	args := m.Called(ctx, id, cause)
	return args.Error(0)
}

// MockRepository bundles the repository mocks behind the aggregate interface
type MockRepository struct {
	exam       *MockExamRepository
	submission *MockSubmissionRepository
}

func newMockRepository() *MockRepository {
	return &MockRepository{
		exam:       new(MockExamRepository),
		submission: new(MockSubmissionRepository),
	}
}

func (m *MockRepository) Exam() repositories.ExamRepository {
	return m.exam
}

func (m *MockRepository) Submission() repositories.SubmissionRepository {
	return m.submission
}

// ===== FIXTURES =====

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mixedExam has two single-choice questions worth 1 point each and one essay
// worth 3 points.
func mixedExam() *models.Exam {
	return &models.Exam{
		ID:       5,
		Title:    "Networks midterm",
		IsActive: true,
		Questions: []models.Question{
			{
				ID: 1, ExamID: 5, Type: models.SingleChoice, Prompt: "Q1", Points: 1, Order: 1,
				Choices: []models.Choice{
					{ID: 11, QuestionID: 1, Text: "right", IsCorrect: true},
					{ID: 12, QuestionID: 1, Text: "wrong"},
				},
			},
			{
				ID: 2, ExamID: 5, Type: models.SingleChoice, Prompt: "Q2", Points: 1, Order: 2,
				Choices: []models.Choice{
					{ID: 21, QuestionID: 2, Text: "right", IsCorrect: true},
					{ID: 22, QuestionID: 2, Text: "wrong"},
				},
			},
			{
				ID: 3, ExamID: 5, Type: models.Essay, Prompt: "Q3", Points: 3, Order: 3,
				ExpectedAnswer: "Mentions congestion control.",
			},
		},
	}
}

func mixedSubmission(status models.SubmissionStatus) *models.Submission {
	return &models.Submission{
		ID:        100,
		StudentID: "student-1",
		ExamID:    5,
		Status:    status,
		Answers: []models.SubmissionAnswer{
			{ID: 1000, SubmissionID: 100, QuestionID: 1, SelectedChoiceIDs: []uint{11}},
			{ID: 1001, SubmissionID: 100, QuestionID: 2, SelectedChoiceIDs: []uint{22}},
			{ID: 1002, SubmissionID: 100, QuestionID: 3, AnswerText: "TCP uses congestion windows."},
		},
	}
}

type gradingFixture struct {
	repo      *MockRepository
	provider  *grader.MockProvider
	publisher *events.MockEventPublisher
	service   *gradingService
}

func newGradingFixture(provider *grader.MockProvider, retry RetryPolicy) *gradingFixture {
	repo := newMockRepository()
	publisher := &events.MockEventPublisher{}
	service := NewGradingService(repo, provider, publisher, nil, testLogger(), retry).(*gradingService)
	// Backoff sleeps are recorded, not slept.
	service.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return &gradingFixture{
		repo:      repo,
		provider:  provider,
		publisher: publisher,
		service:   service,
	}
}

// ===== TESTS =====

func TestGradeSubmission_MixedQuestionTypes(t *testing.T) {
	provider := &grader.MockProvider{
		Scores:     map[uint]float64{3: 2.0},
		Rationales: map[uint]string{3: "Covers the rubric."},
		Summary:    "Strong grasp of congestion control.",
	}
	f := newGradingFixture(provider, RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})

	submission := mixedSubmission(models.SubmissionGradingActive)
	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(submission, nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)

	var persisted *models.GradeResult
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			persisted = args.Get(1).(*models.GradeResult)
		}).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.GradeStatusSuccess, result.Status)
	assert.Equal(t, 3.0, result.TotalScore)
	assert.Equal(t, 5.0, result.MaxScore)
	assert.Equal(t, GradingVersionLLM, result.GradingVersion)
	assert.Same(t, result, persisted)

	// Per-question grades come back in the submission's answer order.
	require.Len(t, result.PerQuestion, 3)
	assert.Equal(t, uint(1), result.PerQuestion[0].QuestionID)
	assert.Equal(t, 1.0, result.PerQuestion[0].AwardedPoints)
	assert.Equal(t, models.SourceDeterministic, result.PerQuestion[0].Source)
	assert.Equal(t, uint(2), result.PerQuestion[1].QuestionID)
	assert.Zero(t, result.PerQuestion[1].AwardedPoints)
	assert.Equal(t, uint(3), result.PerQuestion[2].QuestionID)
	assert.Equal(t, 2.0, result.PerQuestion[2].AwardedPoints)
	assert.Equal(t, models.SourceProvider, result.PerQuestion[2].Source)
	assert.Equal(t, "mock", result.PerQuestion[2].GraderName)
	assert.Nil(t, result.PerQuestion[2].IsCorrect)

	assert.Contains(t, result.FeedbackSummary, "3.00/5.00")
	assert.Contains(t, result.FeedbackSummary, "1/2 correct")
	assert.Contains(t, result.FeedbackSummary, "Strong grasp")

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.SubmissionGraded, published[0].Type)
	assert.Equal(t, uint(100), published[0].SubmissionID)
}

func TestGradeSubmission_DeterministicOnly(t *testing.T) {
	provider := &grader.MockProvider{}
	f := newGradingFixture(provider, RetryPolicy{})

	submission := &models.Submission{
		ID: 101, StudentID: "student-2", ExamID: 5,
		Status: models.SubmissionGradingActive,
		Answers: []models.SubmissionAnswer{
			{ID: 1100, SubmissionID: 101, QuestionID: 1, SelectedChoiceIDs: []uint{11}},
			{ID: 1101, SubmissionID: 101, QuestionID: 2, SelectedChoiceIDs: []uint{21}},
		},
	}
	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(101)).Return(submission, nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 101, GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, GradingVersionDeterministic, result.GradingVersion)
	assert.Equal(t, 2.0, result.TotalScore)
	assert.Equal(t, 2.0, result.MaxScore)
	assert.Zero(t, provider.Calls(), "no provider call for objective-only submissions")
}

func TestGradeSubmission_RetriesTransientFailures(t *testing.T) {
	provider := &grader.MockProvider{
		Scores:   map[uint]float64{3: 1.5},
		FailWith: []error{grader.ErrUnavailable, grader.ErrTimeout},
	}
	f := newGradingFixture(provider, RetryPolicy{MaxAttempts: 3, BackoffBase: 100 * time.Millisecond})

	var backoffs []time.Duration
	f.service.sleep = func(ctx context.Context, d time.Duration) error {
		backoffs = append(backoffs, d)
		return nil
	}

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGradingActive), nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, provider.Calls())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, backoffs,
		"backoff doubles per attempt")
	assert.Equal(t, 2.5, result.TotalScore)
}

func TestGradeSubmission_RetryExhaustion(t *testing.T) {
	provider := &grader.MockProvider{
		FailWith: []error{grader.ErrTimeout, grader.ErrTimeout, grader.ErrTimeout},
	}
	f := newGradingFixture(provider, RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})

	submission := mixedSubmission(models.SubmissionGradingActive)
	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(submission, nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("MarkGradingFailed", mock.Anything, uint(100), mock.Anything).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, grader.ErrTimeout)
	assert.Contains(t, err.Error(), "after 3 attempt(s)")

	assert.Equal(t, 3, provider.Calls())
	f.repo.submission.AssertNotCalled(t, "PersistGradeResult", mock.Anything, mock.Anything)
	f.repo.submission.AssertCalled(t, "MarkGradingFailed", mock.Anything, uint(100), mock.Anything)

	published := f.publisher.Published()
	require.Len(t, published, 1)
	assert.Equal(t, events.SubmissionGradingFailed, published[0].Type)
	assert.NotEmpty(t, published[0].Error)
}

func TestGradeSubmission_InvalidResponseNotRetried(t *testing.T) {
	provider := &grader.MockProvider{
		FailWith: []error{grader.ErrResponseInvalid},
	}
	f := newGradingFixture(provider, RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGradingActive), nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("MarkGradingFailed", mock.Anything, uint(100), mock.Anything).Return(nil)

	_, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, grader.ErrResponseInvalid)
	assert.Equal(t, 1, provider.Calls(), "content errors are not retried")
}

func TestGradeSubmission_IncompleteResponseFailsRun(t *testing.T) {
	provider := &grader.MockProvider{
		OmitIDs: []uint{3},
	}
	f := newGradingFixture(provider, RetryPolicy{MaxAttempts: 3, BackoffBase: time.Millisecond})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGradingActive), nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("MarkGradingFailed", mock.Anything, uint(100), mock.Anything).Return(nil)

	_, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.Error(t, err)

	var incomplete *grader.IncompleteGradingError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, []uint{3}, incomplete.MissingIDs)
	assert.Equal(t, 1, provider.Calls())
	f.repo.submission.AssertNotCalled(t, "PersistGradeResult", mock.Anything, mock.Anything)
}

func TestGradeSubmission_AlreadyGraded(t *testing.T) {
	provider := &grader.MockProvider{}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGraded), nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	assert.ErrorIs(t, err, ErrAlreadyGraded)
	assert.Nil(t, result)
	assert.Zero(t, provider.Calls())
	f.repo.submission.AssertNotCalled(t, "PersistGradeResult", mock.Anything, mock.Anything)
}

func TestGradeSubmission_RegradeSupersedes(t *testing.T) {
	provider := &grader.MockProvider{Scores: map[uint]float64{3: 1.0}}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGraded), nil)
	f.repo.submission.On("TransitionStatus", mock.Anything, uint(100), models.SubmissionGraded, models.SubmissionGradingActive).
		Return(nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{Regrade: true})
	require.NoError(t, err)
	assert.Equal(t, 2.0, result.TotalScore)
	f.repo.submission.AssertCalled(t, "TransitionStatus",
		mock.Anything, uint(100), models.SubmissionGraded, models.SubmissionGradingActive)
}

func TestGradeSubmission_ClaimsPendingSubmission(t *testing.T) {
	provider := &grader.MockProvider{Scores: map[uint]float64{3: 2.0}}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionPending), nil)
	f.repo.submission.On("TransitionStatus", mock.Anything, uint(100), models.SubmissionPending, models.SubmissionGradingActive).
		Return(nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).Return(nil)

	_, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.NoError(t, err)
	f.repo.submission.AssertCalled(t, "TransitionStatus",
		mock.Anything, uint(100), models.SubmissionPending, models.SubmissionGradingActive)
}

func TestGradeSubmission_ConcurrentClaimLoses(t *testing.T) {
	provider := &grader.MockProvider{}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionPending), nil)
	f.repo.submission.On("TransitionStatus", mock.Anything, uint(100), models.SubmissionPending, models.SubmissionGradingActive).
		Return(repositories.ErrConflict)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, IsConflict(err))
	assert.Zero(t, provider.Calls())
}

func TestGradeSubmission_PersistConflict(t *testing.T) {
	provider := &grader.MockProvider{Scores: map[uint]float64{3: 2.0}}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).
		Return(mixedSubmission(models.SubmissionGradingActive), nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).
		Return(repositories.ErrConflict)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrConflict)
	// The losing run must not flip the winner's committed state to failed.
	f.repo.submission.AssertNotCalled(t, "MarkGradingFailed", mock.Anything, mock.Anything, mock.Anything)
}

func TestGradeSubmission_NotFound(t *testing.T) {
	provider := &grader.MockProvider{}
	f := newGradingFixture(provider, RetryPolicy{})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(404)).
		Return(nil, repositories.ErrNotFound)

	_, err := f.service.GradeSubmission(context.Background(), 404, GradeOptions{})
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGradeSubmission_UnknownQuestionDegradesToPartial(t *testing.T) {
	provider := &grader.MockProvider{Scores: map[uint]float64{3: 2.0}}
	f := newGradingFixture(provider, RetryPolicy{})

	submission := mixedSubmission(models.SubmissionGradingActive)
	submission.Answers = append(submission.Answers, models.SubmissionAnswer{
		ID: 1003, SubmissionID: 100, QuestionID: 999, SelectedChoiceIDs: []uint{1},
	})

	f.repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(submission, nil)
	f.repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	f.repo.submission.On("PersistGradeResult", mock.Anything, mock.Anything).Return(nil)

	result, err := f.service.GradeSubmission(context.Background(), 100, GradeOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.GradeStatusPartialFailure, result.Status)
	require.Len(t, result.PerQuestion, 4)
	orphan := result.PerQuestion[3]
	assert.Equal(t, uint(999), orphan.QuestionID)
	assert.Zero(t, orphan.AwardedPoints)
	assert.Zero(t, orphan.MaxPoints)
}
