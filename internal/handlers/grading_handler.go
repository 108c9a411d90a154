package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/acadex/grading-service/internal/services"
	"github.com/acadex/grading-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type GradingHandler struct {
	BaseHandler
	gradingService services.GradingService
	exportService  services.ExportService
	validator      *utils.Validator
}

func NewGradingHandler(
	gradingService services.GradingService,
	exportService services.ExportService,
	validator *utils.Validator,
	logger utils.Logger,
) *GradingHandler {
	return &GradingHandler{
		BaseHandler:    NewBaseHandler(logger),
		gradingService: gradingService,
		exportService:  exportService,
		validator:      validator,
	}
}

type gradeSubmissionBody struct {
	Regrade bool `json:"regrade"`
}

// GradeSubmission runs (or re-runs) grading for a submission
// @Summary Grade submission
// @Description Grades a pending or failed submission; with regrade, supersedes an existing result
// @Tags grading
// @Accept json
// @Produce json
// @Param id path uint true "Submission ID"
// @Param options body gradeSubmissionBody false "Grading options"
// @Success 200 {object} SuccessResponse{data=models.GradeResult}
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /submissions/{id}/grade [post]
func (h *GradingHandler) GradeSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var body gradeSubmissionBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Message: "Invalid request payload",
				Details: err.Error(),
			})
			return
		}
	}

	h.LogRequest(c, "Grading submission", "submission_id", id, "regrade", body.Regrade)

	result, err := h.gradingService.GradeSubmission(c.Request.Context(), id, services.GradeOptions{
		Regrade: body.Regrade,
	})
	if err != nil {
		h.handleGradingError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Submission graded",
		Data:    result,
	})
}

// ExportResults streams an XLSX workbook of an exam's graded submissions
// @Summary Export exam results
// @Tags grading
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Exam ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/results/export [get]
func (h *GradingHandler) ExportResults(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	h.LogRequest(c, "Exporting exam results", "exam_id", examID)

	data, err := h.exportService.ExportExamResults(c.Request.Context(), examID)
	if err != nil {
		h.handleGradingError(c, err)
		return
	}

	filename := fmt.Sprintf("exam-%d-results-%s.xlsx", examID, time.Now().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		data)
}

func (h *GradingHandler) handleGradingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrAlreadyGraded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission already graded",
			Details: "pass regrade=true to supersede the existing result",
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Resource not found",
			Details: err.Error(),
		})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Concurrent grading in progress",
			Details: err.Error(),
		})
	case services.IsProviderFailure(err):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "Grading provider failed",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unhandled grading error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
