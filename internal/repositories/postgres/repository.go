package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/acadex/grading-service/internal/repositories"
	"gorm.io/gorm"
)

// GormRepository aggregates the PostgreSQL repositories over one *gorm.DB,
// which may be a transaction handle produced by Begin.
type GormRepository struct {
	db         *gorm.DB
	exam       repositories.ExamRepository
	submission repositories.SubmissionRepository
	inTx       bool
}

func NewRepository(db *gorm.DB) repositories.Repository {
	return newGormRepository(db, false)
}

func newGormRepository(db *gorm.DB, inTx bool) *GormRepository {
	return &GormRepository{
		db:         db,
		exam:       NewExamPostgreSQL(db),
		submission: NewSubmissionPostgreSQL(db),
		inTx:       inTx,
	}
}

func (r *GormRepository) Exam() repositories.ExamRepository {
	return r.exam
}

func (r *GormRepository) Submission() repositories.SubmissionRepository {
	return r.submission
}

func (r *GormRepository) Begin(ctx context.Context) (repositories.Repository, error) {
	if r.inTx {
		return nil, fmt.Errorf("transaction already in progress")
	}
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}
	return newGormRepository(tx, true), nil
}

func (r *GormRepository) Commit(ctx context.Context) error {
	if !r.inTx {
		return fmt.Errorf("no transaction in progress")
	}
	return r.db.Commit().Error
}

func (r *GormRepository) Rollback(ctx context.Context) error {
	if !r.inTx {
		return fmt.Errorf("no transaction in progress")
	}
	return r.db.Rollback().Error
}

// translateError maps gorm errors onto the repository error vocabulary.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return repositories.ErrNotFound
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repositories.ErrConflict
	}
	return err
}
