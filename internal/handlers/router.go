package handlers

import (
	"net/http"

	"github.com/acadex/grading-service/internal/services"
	"github.com/acadex/grading-service/internal/utils"
	"github.com/gin-gonic/gin"
)

type HandlerManager struct {
	submissionHandler *SubmissionHandler
	gradingHandler    *GradingHandler
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *utils.Validator,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		submissionHandler: NewSubmissionHandler(serviceManager.Submission(), validator, logger),
		gradingHandler:    NewGradingHandler(serviceManager.Grading(), serviceManager.Export(), validator, logger),
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		exams := v1.Group("/exams")
		{
			exams.POST("/:id/submissions", hm.submissionHandler.CreateSubmission)
			exams.GET("/:id/submissions", hm.submissionHandler.ListSubmissions)
			exams.GET("/:id/results/export", hm.gradingHandler.ExportResults)
		}

		submissions := v1.Group("/submissions")
		{
			submissions.GET("/:id", hm.submissionHandler.GetSubmission)
			submissions.POST("/:id/grade", hm.gradingHandler.GradeSubmission)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "grading-service",
		})
	})
}
