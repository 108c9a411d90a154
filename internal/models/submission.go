package models

import (
	"time"

	"gorm.io/datatypes"
)

type SubmissionStatus string

const (
	SubmissionPending       SubmissionStatus = "pending"
	SubmissionGradingActive SubmissionStatus = "grading_in_progress"
	SubmissionGraded        SubmissionStatus = "graded"
	SubmissionGradingFailed SubmissionStatus = "grading_failed"
)

type Submission struct {
	ID        uint   `json:"id" gorm:"primaryKey"`
	StudentID string `json:"student_id" gorm:"not null;size:64;uniqueIndex:uniq_student_exam"`
	ExamID    uint   `json:"exam_id" gorm:"not null;uniqueIndex:uniq_student_exam;index"`

	Status SubmissionStatus `json:"status" gorm:"not null;size:32;default:pending;index" validate:"omitempty,oneof=pending grading_in_progress graded grading_failed"`

	// Score fields stay null until a grading run completes.
	TotalScore *float64 `json:"total_score"`
	MaxScore   *float64 `json:"max_score"`

	Feedback       datatypes.JSON `json:"feedback" gorm:"type:jsonb"`
	GradingVersion string         `json:"grading_version" gorm:"size:64"`
	GradingError   *string        `json:"grading_error" gorm:"type:text"`

	SubmittedAt time.Time  `json:"submitted_at"`
	GradedAt    *time.Time `json:"graded_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Exam    Exam               `json:"exam" gorm:"foreignKey:ExamID"`
	Answers []SubmissionAnswer `json:"answers" gorm:"foreignKey:SubmissionID"`
}

func (Submission) TableName() string {
	return "submissions"
}

type SubmissionAnswer struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	SubmissionID uint `json:"submission_id" gorm:"not null;uniqueIndex:uniq_submission_question"`
	QuestionID   uint `json:"question_id" gorm:"not null;uniqueIndex:uniq_submission_question;index"`

	// Submitted content: selected choice ids for objective questions,
	// free text for subjective ones.
	SelectedChoiceIDs datatypes.JSONSlice[uint] `json:"selected_choice_ids" gorm:"type:jsonb"`
	AnswerText        string                    `json:"answer_text" gorm:"type:text"`

	// Grade fields, written once by a grading run.
	AwardedPoints *float64 `json:"awarded_points"`
	IsCorrect     *bool    `json:"is_correct"`
	Rationale     *string  `json:"rationale" gorm:"type:text"`
	GradedBy      string   `json:"graded_by" gorm:"size:64"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Question Question `json:"question" gorm:"foreignKey:QuestionID"`
}

func (SubmissionAnswer) TableName() string {
	return "submission_answers"
}
