package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/acadex/grading-service/internal/models"
	"github.com/acadex/grading-service/internal/repositories"
	"github.com/acadex/grading-service/internal/services"
	"github.com/acadex/grading-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type SubmissionHandler struct {
	BaseHandler
	submissionService services.SubmissionService
	validator         *utils.Validator
}

func NewSubmissionHandler(
	submissionService services.SubmissionService,
	validator *utils.Validator,
	logger utils.Logger,
) *SubmissionHandler {
	return &SubmissionHandler{
		BaseHandler:       NewBaseHandler(logger),
		submissionService: submissionService,
		validator:         validator,
	}
}

type createSubmissionBody struct {
	StudentID string                             `json:"student_id"`
	Answers   []services.SubmissionAnswerRequest `json:"answers"`
}

// CreateSubmission accepts a student's answers for an exam and grades them
// @Summary Submit exam answers
// @Description Creates a submission for an exam and runs a grading pass over it
// @Tags submissions
// @Accept json
// @Produce json
// @Param id path uint true "Exam ID"
// @Param submission body createSubmissionBody true "Submission data"
// @Success 201 {object} SuccessResponse{data=models.Submission}
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /exams/{id}/submissions [post]
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	var body createSubmissionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Creating submission", "exam_id", examID, "student_id", body.StudentID)

	req := &services.CreateSubmissionRequest{
		ExamID:    examID,
		StudentID: body.StudentID,
		Answers:   body.Answers,
	}

	submission, result, err := h.submissionService.Create(c.Request.Context(), req)
	if err != nil {
		// The submission may exist already with grading_failed recorded.
		if submission != nil && services.IsProviderFailure(err) {
			c.JSON(http.StatusBadGateway, ErrorResponse{
				Message: "Submission accepted but grading failed",
				Details: gin.H{
					"submission_id": submission.ID,
					"error":         err.Error(),
				},
			})
			return
		}
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Submission graded",
		Data: gin.H{
			"submission": submission,
			"result":     result,
		},
	})
}

// GetSubmission returns one submission with its answers and grades
// @Summary Get submission
// @Tags submissions
// @Produce json
// @Param id path uint true "Submission ID"
// @Success 200 {object} models.Submission
// @Failure 404 {object} ErrorResponse
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) GetSubmission(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	submission, err := h.submissionService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, submission)
}

// ListSubmissions lists an exam's submissions with filters and pagination
// @Summary List exam submissions
// @Tags submissions
// @Produce json
// @Param id path uint true "Exam ID"
// @Param status query string false "Filter by status"
// @Param student_id query string false "Filter by student"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} ListResponse
// @Failure 404 {object} ErrorResponse
// @Router /exams/{id}/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	examID := h.parseIDParam(c, "id")
	if examID == 0 {
		return
	}

	filters := parseSubmissionFilters(c)

	submissions, total, err := h.submissionService.GetByExam(c.Request.Context(), examID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, ListResponse{
		Items: submissions,
		Total: total,
	})
}

func parseSubmissionFilters(c *gin.Context) repositories.SubmissionFilters {
	filters := repositories.SubmissionFilters{
		Limit:     20,
		SortBy:    "submitted_at",
		SortOrder: "desc",
	}

	if status := c.Query("status"); status != "" {
		s := models.SubmissionStatus(status)
		filters.Status = &s
	}
	if studentID := c.Query("student_id"); studentID != "" {
		filters.StudentID = &studentID
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && limit <= 100 {
		filters.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset")); err == nil && offset >= 0 {
		filters.Offset = offset
	}
	if from, err := time.Parse(time.RFC3339, c.Query("date_from")); err == nil {
		filters.DateFrom = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("date_to")); err == nil {
		filters.DateTo = &to
	}
	if sortBy := c.Query("sort_by"); sortBy != "" {
		filters.SortBy = sortBy
	}
	if sortOrder := c.Query("sort_order"); sortOrder != "" {
		filters.SortOrder = sortOrder
	}

	return filters
}

func (h *SubmissionHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}
	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationError,
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrExamClosed):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Exam is not open for submissions",
		})
	case errors.Is(err, services.ErrDuplicateSubmission):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Student has already submitted this exam",
		})
	case errors.Is(err, services.ErrQuestionNotInExam),
		errors.Is(err, services.ErrChoiceNotInQuestion),
		errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid submission",
			Details: err.Error(),
		})
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "Resource not found",
			Details: err.Error(),
		})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Resource conflict",
			Details: err.Error(),
		})
	case services.IsProviderFailure(err):
		c.JSON(http.StatusBadGateway, ErrorResponse{
			Message: "Grading provider failed",
			Details: err.Error(),
		})
	default:
		h.LogError(c, err, "Unhandled service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
