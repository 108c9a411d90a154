package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/acadex/grading-service/internal/models"
)

type GradingEventType string

const (
	SubmissionGraded        GradingEventType = "submission.graded"
	SubmissionGradingFailed GradingEventType = "submission.grading_failed"
)

// GradingEvent is published after a grading run reaches a terminal state so
// downstream consumers (notifications, analytics) can react.
type GradingEvent struct {
	ID           string           `json:"id"`
	Type         GradingEventType `json:"type"`
	SubmissionID uint             `json:"submission_id"`
	ExamID       uint             `json:"exam_id"`
	StudentID    string           `json:"student_id"`

	// Set for submission.graded events.
	TotalScore     *float64                 `json:"total_score,omitempty"`
	MaxScore       *float64                 `json:"max_score,omitempty"`
	ResultStatus   models.GradeResultStatus `json:"result_status,omitempty"`
	GradingVersion string                   `json:"grading_version,omitempty"`

	// Set for submission.grading_failed events.
	Error string `json:"error,omitempty"`

	Source    string    `json:"source"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

func newGradingEvent(eventType GradingEventType, submission *models.Submission) *GradingEvent {
	return &GradingEvent{
		ID:           watermill.NewUUID(),
		Type:         eventType,
		SubmissionID: submission.ID,
		ExamID:       submission.ExamID,
		StudentID:    submission.StudentID,
		Source:       "grading-service",
		Version:      "1.0",
		Timestamp:    time.Now(),
	}
}

// NewSubmissionGradedEvent builds the event for a committed grade result.
func NewSubmissionGradedEvent(submission *models.Submission, result *models.GradeResult) *GradingEvent {
	event := newGradingEvent(SubmissionGraded, submission)
	event.TotalScore = &result.TotalScore
	event.MaxScore = &result.MaxScore
	event.ResultStatus = result.Status
	event.GradingVersion = result.GradingVersion
	return event
}

// NewGradingFailedEvent builds the event for a grading run that ended in failure.
func NewGradingFailedEvent(submission *models.Submission, cause string) *GradingEvent {
	event := newGradingEvent(SubmissionGradingFailed, submission)
	event.Error = cause
	return event
}
