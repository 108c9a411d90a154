package services

import (
	"testing"

	"github.com/acadex/grading-service/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion(id uint, qType models.QuestionType, points float64, correctIDs ...uint) *models.Question {
	correct := make(map[uint]bool, len(correctIDs))
	for _, c := range correctIDs {
		correct[c] = true
	}

	q := &models.Question{
		ID:     id,
		Type:   qType,
		Prompt: "prompt",
		Points: points,
	}
	// Four choices with ids 1..4 keeps fixtures short.
	for cid := uint(1); cid <= 4; cid++ {
		q.Choices = append(q.Choices, models.Choice{
			ID:         cid,
			QuestionID: id,
			Text:       "choice",
			IsCorrect:  correct[cid],
		})
	}
	return q
}

func answerWith(selected ...uint) *models.SubmissionAnswer {
	return &models.SubmissionAnswer{SelectedChoiceIDs: selected}
}

func TestGradeObjective_SingleChoice(t *testing.T) {
	question := choiceQuestion(10, models.SingleChoice, 2.0, 3)

	tests := []struct {
		name       string
		selected   []uint
		wantPoints float64
		wantOK     bool
	}{
		{"correct choice", []uint{3}, 2.0, true},
		{"wrong choice", []uint{1}, 0, false},
		{"multiple selections never correct", []uint{3, 1}, 0, false},
		{"no selection", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, err := GradeObjective(question, answerWith(tt.selected...))
			require.NoError(t, err)

			assert.Equal(t, tt.wantPoints, grade.AwardedPoints)
			assert.Equal(t, 2.0, grade.MaxPoints)
			require.NotNil(t, grade.IsCorrect)
			assert.Equal(t, tt.wantOK, *grade.IsCorrect)
			assert.Equal(t, models.SourceDeterministic, grade.Source)
		})
	}
}

func TestGradeObjective_TrueFalse(t *testing.T) {
	question := choiceQuestion(11, models.TrueFalse, 1.0, 1)

	grade, err := GradeObjective(question, answerWith(1))
	require.NoError(t, err)
	assert.Equal(t, 1.0, grade.AwardedPoints)

	grade, err = GradeObjective(question, answerWith(2))
	require.NoError(t, err)
	assert.Zero(t, grade.AwardedPoints)
}

func TestGradeObjective_MultipleChoiceProportional(t *testing.T) {
	// Correct set {1, 2, 3}, 3 points total.
	question := choiceQuestion(12, models.MultipleChoice, 3.0, 1, 2, 3)

	tests := []struct {
		name       string
		selected   []uint
		wantPoints float64
		wantOK     bool
	}{
		{"all correct", []uint{1, 2, 3}, 3.0, true},
		{"two of three", []uint{1, 2}, 2.0, false},
		{"two hits one miss", []uint{1, 2, 4}, 1.0, false},
		{"misses outweigh hits floor at zero", []uint{4}, 0, false},
		{"full set plus a wrong one", []uint{1, 2, 3, 4}, 2.0, false},
		{"duplicates count once", []uint{1, 1, 2}, 2.0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grade, err := GradeObjective(question, answerWith(tt.selected...))
			require.NoError(t, err)

			assert.InDelta(t, tt.wantPoints, grade.AwardedPoints, 1e-9)
			require.NotNil(t, grade.IsCorrect)
			assert.Equal(t, tt.wantOK, *grade.IsCorrect)
		})
	}
}

func TestGradeObjective_Deterministic(t *testing.T) {
	question := choiceQuestion(13, models.MultipleChoice, 5.0, 2, 4)
	answer := answerWith(2, 3)

	first, err := GradeObjective(question, answer)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := GradeObjective(question, answer)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestGradeObjective_Errors(t *testing.T) {
	essay := &models.Question{ID: 20, Type: models.Essay, Points: 5}
	_, err := GradeObjective(essay, answerWith(1))
	assert.ErrorIs(t, err, ErrInvalidQuestionType)

	noKey := &models.Question{ID: 21, Type: models.SingleChoice, Points: 1,
		Choices: []models.Choice{{ID: 1, IsCorrect: false}}}
	_, err = GradeObjective(noKey, answerWith(1))
	assert.ErrorIs(t, err, ErrMalformedQuestion)
}
