package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SubmissionPostgreSQL struct {
	db *gorm.DB
}

func NewSubmissionPostgreSQL(db *gorm.DB) repositories.SubmissionRepository {
	return &SubmissionPostgreSQL{db: db}
}

func (s *SubmissionPostgreSQL) Create(ctx context.Context, submission *models.Submission) error {
	return translateError(s.db.WithContext(ctx).Create(submission).Error)
}

func (s *SubmissionPostgreSQL) CreateAnswers(ctx context.Context, answers []*models.SubmissionAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return translateError(s.db.WithContext(ctx).Create(answers).Error)
}

func (s *SubmissionPostgreSQL) GetByID(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) GetByIDWithAnswers(ctx context.Context, id uint) (*models.Submission, error) {
	var submission models.Submission
	if err := s.db.WithContext(ctx).
		Preload("Exam").
		Preload("Answers", func(db *gorm.DB) *gorm.DB {
			return db.Joins("JOIN questions ON questions.id = submission_answers.question_id").
				Order(`questions."order" ASC`)
		}).
		Preload("Answers.Question").
		Preload("Answers.Question.Choices").
		First(&submission, id).Error; err != nil {
		return nil, translateError(err)
	}
	return &submission, nil
}

func (s *SubmissionPostgreSQL) ExistsByStudentAndExam(ctx context.Context, studentID string, examID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("student_id = ? AND exam_id = ?", studentID, examID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SubmissionPostgreSQL) GetByExam(ctx context.Context, examID uint, filters repositories.SubmissionFilters) ([]*models.Submission, int64, error) {
	var submissions []*models.Submission
	var total int64

	query := s.db.WithContext(ctx).Model(&models.Submission{}).Where("exam_id = ?", examID)
	query = s.applyFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = s.applyPaginationAndSort(query, filters)

	if err := query.Preload("Answers").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

func (s *SubmissionPostgreSQL) TransitionStatus(ctx context.Context, id uint, from, to models.SubmissionStatus) error {
	result := s.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// Either the row is missing or another writer moved the status first.
		var count int64
		if err := s.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return repositories.ErrNotFound
		}
		return repositories.ErrConflict
	}
	return nil
}

func (s *SubmissionPostgreSQL) PersistGradeResult(ctx context.Context, result *models.GradeResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&submission, result.SubmissionID).Error; err != nil {
			return translateError(err)
		}

		// Only an in-progress run may commit. A submission that is already
		// graded, or that a concurrent run failed, is never overwritten here.
		if submission.Status != models.SubmissionGradingActive {
			return fmt.Errorf("%w: submission %d is %s", repositories.ErrConflict, submission.ID, submission.Status)
		}

		for _, grade := range result.PerQuestion {
			gradedBy := string(grade.Source)
			if grade.GraderName != "" {
				gradedBy = grade.GraderName
			}
			updates := map[string]interface{}{
				"awarded_points": grade.AwardedPoints,
				"is_correct":     grade.IsCorrect,
				"rationale":      grade.Rationale,
				"graded_by":      gradedBy,
			}
			res := tx.Model(&models.SubmissionAnswer{}).
				Where("submission_id = ? AND question_id = ?", result.SubmissionID, grade.QuestionID).
				Updates(updates)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("no answer row for submission %d question %d", result.SubmissionID, grade.QuestionID)
			}
		}

		feedback, err := json.Marshal(map[string]string{"summary": result.FeedbackSummary})
		if err != nil {
			return fmt.Errorf("failed to marshal feedback: %w", err)
		}

		return tx.Model(&submission).Updates(map[string]interface{}{
			"status":          models.SubmissionGraded,
			"total_score":     result.TotalScore,
			"max_score":       result.MaxScore,
			"feedback":        feedback,
			"grading_version": result.GradingVersion,
			"grading_error":   nil,
			"graded_at":       result.GradedAt,
		}).Error
	})
}

func (s *SubmissionPostgreSQL) MarkGradingFailed(ctx context.Context, id uint, cause string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var submission models.Submission
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&submission, id).Error; err != nil {
			return translateError(err)
		}

		// A completed grade outranks a late failure report.
		if submission.Status == models.SubmissionGraded {
			return nil
		}

		return tx.Model(&submission).Updates(map[string]interface{}{
			"status":        models.SubmissionGradingFailed,
			"grading_error": cause,
		}).Error
	})
}

// ===== QUERY HELPERS =====

func (s *SubmissionPostgreSQL) applyFilters(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.StudentID != nil {
		query = query.Where("student_id = ?", *filters.StudentID)
	}
	if filters.DateFrom != nil {
		query = query.Where("submitted_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("submitted_at <= ?", *filters.DateTo)
	}
	return query
}

func (s *SubmissionPostgreSQL) applyPaginationAndSort(query *gorm.DB, filters repositories.SubmissionFilters) *gorm.DB {
	sortBy := filters.SortBy
	switch sortBy {
	case "submitted_at", "graded_at", "total_score":
	default:
		sortBy = "submitted_at"
	}
	sortOrder := "desc"
	if filters.SortOrder == "asc" {
		sortOrder = "asc"
	}
	query = query.Order(fmt.Sprintf("%s %s", sortBy, sortOrder))

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	return query
}
