package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;size:255" validate:"required,max=255"`
	Code string `json:"code" gorm:"not null;size:64;uniqueIndex" validate:"required,max=64"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Exam struct {
	ID              uint    `json:"id" gorm:"primaryKey"`
	Title           string  `json:"title" gorm:"not null;size:255;index" validate:"required,min=1,max=255"`
	CourseID        uint    `json:"course_id" gorm:"not null;index"`
	DurationMinutes int     `json:"duration_minutes" gorm:"not null" validate:"required,min=5,max=300"`
	IsActive        bool    `json:"is_active" gorm:"default:true"`

	StartsAt *time.Time `json:"starts_at"`
	EndsAt   *time.Time `json:"ends_at"`

	Metadata datatypes.JSON `json:"metadata" gorm:"type:jsonb"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Course    Course     `json:"course" gorm:"foreignKey:CourseID"`
	Questions []Question `json:"questions" gorm:"foreignKey:ExamID"`

	// Computed fields (not stored)
	QuestionsCount int     `json:"questions_count" gorm:"-"`
	MaxScore       float64 `json:"max_score" gorm:"-"`
}

func (Exam) TableName() string {
	return "exams"
}

// IsOpen reports whether the exam currently accepts submissions.
func (e *Exam) IsOpen(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && now.After(*e.EndsAt) {
		return false
	}
	return true
}

// TotalPoints sums the points of all questions attached to the exam.
func (e *Exam) TotalPoints() float64 {
	var total float64
	for _, q := range e.Questions {
		total += q.Points
	}
	return total
}
