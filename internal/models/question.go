package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	TrueFalse      QuestionType = "true_false"
	ShortText      QuestionType = "short_text"
	Essay          QuestionType = "essay"
)

// IsObjective reports whether answers of this type are graded locally by
// exact comparison against the question's choices.
func (t QuestionType) IsObjective() bool {
	switch t {
	case SingleChoice, MultipleChoice, TrueFalse:
		return true
	}
	return false
}

// IsSubjective reports whether answers of this type require provider grading.
func (t QuestionType) IsSubjective() bool {
	switch t {
	case ShortText, Essay:
		return true
	}
	return false
}

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	ExamID uint         `json:"exam_id" gorm:"not null;index:idx_exam_order"`
	Type   QuestionType `json:"type" gorm:"not null;size:32" validate:"required,question_type"`
	Prompt string       `json:"prompt" gorm:"type:text;not null" validate:"required"`

	// ExpectedAnswer holds the grading rubric for subjective questions.
	ExpectedAnswer string  `json:"expected_answer" gorm:"type:text"`
	Points         float64 `json:"points" gorm:"not null;default:1" validate:"min=0"`
	Order          int     `json:"order" gorm:"not null;default:0;index:idx_exam_order"`

	Metadata datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Choices []Choice `json:"choices" gorm:"foreignKey:QuestionID"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectChoiceIDs returns the ids of all choices marked correct.
func (q *Question) CorrectChoiceIDs() []uint {
	var ids []uint
	for _, c := range q.Choices {
		if c.IsCorrect {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

type Choice struct {
	ID         uint   `json:"id" gorm:"primaryKey"`
	QuestionID uint   `json:"question_id" gorm:"not null;index"`
	Text       string `json:"text" gorm:"not null;size:500" validate:"required,max=500"`
	IsCorrect  bool   `json:"is_correct" gorm:"default:false"`
}

func (Choice) TableName() string {
	return "choices"
}
