package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/acadex/grading-service/internal/repositories"
	"github.com/xuri/excelize/v2"
)

type exportService struct {
	repo   repositories.Repository
	logger *slog.Logger
}

func NewExportService(repo repositories.Repository, logger *slog.Logger) ExportService {
	return &exportService{
		repo:   repo,
		logger: logger,
	}
}

// ExportExamResults renders the graded submissions of one exam into an XLSX
// workbook: one row per submission, one column per question, plus totals.
func (s *exportService) ExportExamResults(ctx context.Context, examID uint) ([]byte, error) {
	exam, err := s.repo.Exam().GetByIDWithQuestions(ctx, examID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("failed to get exam: %w", err)
	}

	submissions, _, err := s.repo.Submission().GetByExam(ctx, examID, repositories.SubmissionFilters{
		SortBy:    "submitted_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []interface{}{"Student ID", "Status", "Submitted At", "Graded At"}
	for i, q := range exam.Questions {
		headers = append(headers, fmt.Sprintf("Q%d (%.1f pts)", i+1, q.Points))
	}
	headers = append(headers, "Total", "Max")

	if err := f.SetSheetRow(sheet, "A1", &headers); err != nil {
		return nil, fmt.Errorf("failed to write header row: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(headers), 1)
		f.SetCellStyle(sheet, "A1", endCell, headerStyle)
	}

	for rowIdx, submission := range submissions {
		full, err := s.repo.Submission().GetByIDWithAnswers(ctx, submission.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load submission %d: %w", submission.ID, err)
		}

		pointsByQuestion := make(map[uint]*float64, len(full.Answers))
		for _, answer := range full.Answers {
			pointsByQuestion[answer.QuestionID] = answer.AwardedPoints
		}

		row := []interface{}{
			full.StudentID,
			string(full.Status),
			full.SubmittedAt.Format(time.RFC3339),
			formatGradedAt(full.GradedAt),
		}
		for _, q := range exam.Questions {
			if pts, ok := pointsByQuestion[q.ID]; ok && pts != nil {
				row = append(row, *pts)
			} else {
				row = append(row, "")
			}
		}
		row = append(row, formatScore(full.TotalScore), formatScore(full.MaxScore))

		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row for submission %d: %w", full.ID, err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Exported exam results",
		"exam_id", examID,
		"submissions", len(submissions))

	return buf.Bytes(), nil
}

func formatGradedAt(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

func formatScore(v *float64) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
