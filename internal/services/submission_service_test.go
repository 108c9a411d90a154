package services

import (
	"context"
	"testing"
	"time"

	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"github.com/acadex/grading-service/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// gradingStub satisfies GradingService without touching a provider.
type gradingStub struct {
	result *models.GradeResult
	err    error
	calls  int
}

func (g *gradingStub) GradeSubmission(ctx context.Context, submissionID uint, opts GradeOptions) (*models.GradeResult, error) {
	g.calls++
	return g.result, g.err
}

func validRequest() *CreateSubmissionRequest {
	return &CreateSubmissionRequest{
		ExamID:    5,
		StudentID: "student-1",
		Answers: []SubmissionAnswerRequest{
			{QuestionID: 1, SelectedChoiceIDs: []uint{11}},
			{QuestionID: 2, SelectedChoiceIDs: []uint{22}},
			{QuestionID: 3, AnswerText: "TCP uses congestion windows."},
		},
	}
}

func newSubmissionFixture(grading GradingService) (*MockRepository, SubmissionService) {
	repo := newMockRepository()
	service := NewSubmissionService(repo, grading, testLogger(), utils.NewValidator())
	return repo, service
}

func TestCreateSubmission_Success(t *testing.T) {
	grading := &gradingStub{result: &models.GradeResult{
		SubmissionID: 100,
		Status:       models.GradeStatusSuccess,
		TotalScore:   3,
		MaxScore:     4,
	}}
	repo, service := newSubmissionFixture(grading)

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)

	repo.submission.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Submission).ID = 100
		}).Return(nil)

	var createdAnswers []*models.SubmissionAnswer
	repo.submission.On("CreateAnswers", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			createdAnswers = args.Get(1).([]*models.SubmissionAnswer)
		}).Return(nil)

	graded := mixedSubmission(models.SubmissionGraded)
	repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(100)).Return(graded, nil)

	submission, result, err := service.Create(context.Background(), validRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, grading.calls)
	assert.Equal(t, models.SubmissionGraded, submission.Status)
	assert.Equal(t, 3.0, result.TotalScore)

	require.Len(t, createdAnswers, 3)
	for _, answer := range createdAnswers {
		assert.Equal(t, uint(100), answer.SubmissionID)
	}
	assert.Equal(t, []uint{11}, []uint(createdAnswers[0].SelectedChoiceIDs))
	assert.Equal(t, "TCP uses congestion windows.", createdAnswers[2].AnswerText)
}

func TestCreateSubmission_DuplicateStudent(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(true, nil)

	_, _, err := service.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
	repo.submission.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreateSubmission_DuplicateLostRace(t *testing.T) {
	// The uniqueness pre-check passes but the insert hits the unique index.
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)
	repo.submission.On("Create", mock.Anything, mock.Anything).Return(repositories.ErrConflict)

	_, _, err := service.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrDuplicateSubmission)
}

func TestCreateSubmission_ExamClosed(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	closed := mixedExam()
	past := time.Now().Add(-time.Hour)
	closed.EndsAt = &past
	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(closed, nil)

	_, _, err := service.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrExamClosed)
}

func TestCreateSubmission_ExamInactive(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	inactive := mixedExam()
	inactive.IsActive = false
	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(inactive, nil)

	_, _, err := service.Create(context.Background(), validRequest())
	assert.ErrorIs(t, err, ErrExamClosed)
}

func TestCreateSubmission_QuestionNotInExam(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)

	req := validRequest()
	req.Answers[1].QuestionID = 999

	_, _, err := service.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrQuestionNotInExam)
	assert.Contains(t, err.Error(), "999")
}

func TestCreateSubmission_ChoiceNotInQuestion(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)

	req := validRequest()
	req.Answers[0].SelectedChoiceIDs = []uint{21} // belongs to question 2

	_, _, err := service.Create(context.Background(), req)
	assert.ErrorIs(t, err, ErrChoiceNotInQuestion)
}

func TestCreateSubmission_DuplicateAnswers(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)

	req := validRequest()
	req.Answers = append(req.Answers, SubmissionAnswerRequest{QuestionID: 1, SelectedChoiceIDs: []uint{12}})

	_, _, err := service.Create(context.Background(), req)
	assert.True(t, IsValidation(err))
}

func TestCreateSubmission_MissingFields(t *testing.T) {
	_, service := newSubmissionFixture(&gradingStub{})

	_, _, err := service.Create(context.Background(), &CreateSubmissionRequest{ExamID: 5})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestCreateSubmission_GradingFailureSurfacesSubmission(t *testing.T) {
	grading := &gradingStub{err: ErrConflict}
	repo, service := newSubmissionFixture(grading)

	repo.exam.On("GetByIDWithQuestions", mock.Anything, uint(5)).Return(mixedExam(), nil)
	repo.submission.On("ExistsByStudentAndExam", mock.Anything, "student-1", uint(5)).Return(false, nil)
	repo.submission.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Submission).ID = 100
		}).Return(nil)
	repo.submission.On("CreateAnswers", mock.Anything, mock.Anything).Return(nil)

	failed := mixedSubmission(models.SubmissionGradingFailed)
	repo.submission.On("GetByID", mock.Anything, uint(100)).Return(failed, nil)

	submission, result, err := service.Create(context.Background(), validRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	require.NotNil(t, submission)
	assert.Equal(t, models.SubmissionGradingFailed, submission.Status)
}

func TestGetSubmission_NotFound(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.submission.On("GetByIDWithAnswers", mock.Anything, uint(404)).
		Return(nil, repositories.ErrNotFound)

	_, err := service.GetByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestGetByExam_PassesFilters(t *testing.T) {
	repo, service := newSubmissionFixture(&gradingStub{})

	repo.exam.On("GetByID", mock.Anything, uint(5)).Return(mixedExam(), nil)

	status := models.SubmissionGraded
	filters := repositories.SubmissionFilters{Status: &status, Limit: 10}
	expected := []*models.Submission{mixedSubmission(models.SubmissionGraded)}
	repo.submission.On("GetByExam", mock.Anything, uint(5), filters).Return(expected, int64(1), nil)

	submissions, total, err := service.GetByExam(context.Background(), 5, filters)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, submissions, 1)
}
