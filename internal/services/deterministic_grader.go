package services

import (
	"fmt"

	"github.com/acadex/grading-service/internal/models"
)

// GradeObjective grades one objective answer by exact comparison against the
// question's correct choices. It is a pure function: no I/O, no randomness,
// so the same (question, answer) pair always yields the same grade.
//
// Scoring policy per question type:
//   - single_choice, true_false: all-or-nothing.
//   - multiple_choice: proportional. Correct selections count for, incorrect
//     selections count against, floored at zero:
//     max(0, hits-misses) / totalCorrect * points.
//
// Calling it with a subjective question type is a programming error and
// returns ErrInvalidQuestionType. A question without any correct choice
// returns ErrMalformedQuestion.
func GradeObjective(question *models.Question, answer *models.SubmissionAnswer) (models.PerQuestionGrade, error) {
	if !question.Type.IsObjective() {
		return models.PerQuestionGrade{}, fmt.Errorf("%w: question %d is %s", ErrInvalidQuestionType, question.ID, question.Type)
	}

	correct := question.CorrectChoiceIDs()
	if len(correct) == 0 {
		return models.PerQuestionGrade{}, fmt.Errorf("%w: question %d", ErrMalformedQuestion, question.ID)
	}

	grade := models.PerQuestionGrade{
		QuestionID: question.ID,
		MaxPoints:  question.Points,
		Source:     models.SourceDeterministic,
	}

	if len(answer.SelectedChoiceIDs) == 0 {
		grade.IsCorrect = boolPtr(false)
		grade.Rationale = "No answer selected."
		return grade, nil
	}

	switch question.Type {
	case models.SingleChoice, models.TrueFalse:
		gradeAllOrNothing(&grade, correct, answer.SelectedChoiceIDs, question.Points)
	case models.MultipleChoice:
		gradeProportional(&grade, correct, answer.SelectedChoiceIDs, question.Points)
	}

	return grade, nil
}

func gradeAllOrNothing(grade *models.PerQuestionGrade, correct, selected []uint, points float64) {
	if len(selected) == 1 && selected[0] == correct[0] {
		grade.AwardedPoints = points
		grade.IsCorrect = boolPtr(true)
		grade.Rationale = "Correct."
		return
	}
	grade.IsCorrect = boolPtr(false)
	grade.Rationale = "Incorrect."
}

func gradeProportional(grade *models.PerQuestionGrade, correct, selected []uint, points float64) {
	correctSet := make(map[uint]bool, len(correct))
	for _, id := range correct {
		correctSet[id] = true
	}

	var hits, misses int
	seen := make(map[uint]bool, len(selected))
	for _, id := range selected {
		if seen[id] {
			continue
		}
		seen[id] = true
		if correctSet[id] {
			hits++
		} else {
			misses++
		}
	}

	raw := hits - misses
	if raw < 0 {
		raw = 0
	}

	grade.AwardedPoints = float64(raw) / float64(len(correct)) * points
	grade.IsCorrect = boolPtr(hits == len(correct) && misses == 0)
	grade.Rationale = fmt.Sprintf("Selected %d of %d correct options, %d incorrect.", hits, len(correct), misses)
}

func boolPtr(b bool) *bool {
	return &b
}
