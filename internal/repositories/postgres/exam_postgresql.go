package postgres

import (
	"context"

	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"gorm.io/gorm"
)

type ExamPostgreSQL struct {
	db *gorm.DB
}

func NewExamPostgreSQL(db *gorm.DB) repositories.ExamRepository {
	return &ExamPostgreSQL{db: db}
}

func (e *ExamPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).Preload("Course").First(&exam, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &exam, nil
}

func (e *ExamPostgreSQL) GetByIDWithQuestions(ctx context.Context, id uint) (*models.Exam, error) {
	var exam models.Exam
	if err := e.db.WithContext(ctx).
		Preload("Course").
		Preload("Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order(`questions."order" ASC`)
		}).
		Preload("Questions.Choices").
		First(&exam, id).Error; err != nil {
		return nil, translateError(err)
	}

	exam.QuestionsCount = len(exam.Questions)
	exam.MaxScore = exam.TotalPoints()
	return &exam, nil
}
