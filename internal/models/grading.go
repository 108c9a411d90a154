package models

import "time"

// GradeSource identifies which grader produced a per-question grade.
type GradeSource string

const (
	SourceDeterministic GradeSource = "deterministic"
	SourceProvider      GradeSource = "provider"
)

type GradeResultStatus string

const (
	GradeStatusSuccess        GradeResultStatus = "success"
	GradeStatusPartialFailure GradeResultStatus = "partial_failure"
	GradeStatusFailure        GradeResultStatus = "failure"
)

// PerQuestionGrade is an immutable record of one graded answer. Corrections
// never mutate it; a re-grade run produces a fresh set.
type PerQuestionGrade struct {
	QuestionID    uint        `json:"question_id"`
	AwardedPoints float64     `json:"awarded_points"`
	MaxPoints     float64     `json:"max_points"`
	IsCorrect     *bool       `json:"is_correct"`
	Rationale     string      `json:"rationale"`
	Source        GradeSource `json:"source"`

	// GraderName carries the provider name when Source is SourceProvider.
	GraderName string `json:"grader_name,omitempty"`
}

// GradeResult is the single output shape of a grading run. Downstream code
// consumes only this, regardless of which grader produced each entry.
type GradeResult struct {
	SubmissionID    uint               `json:"submission_id"`
	Status          GradeResultStatus  `json:"status"`
	TotalScore      float64            `json:"total_score"`
	MaxScore        float64            `json:"max_score"`
	GradingVersion  string             `json:"grading_version"`
	FeedbackSummary string             `json:"feedback_summary"`
	PerQuestion     []PerQuestionGrade `json:"per_question"`
	GradedAt        time.Time          `json:"graded_at"`
}

// QuestionIDs returns the ids covered by the result, in result order.
func (r *GradeResult) QuestionIDs() []uint {
	ids := make([]uint, len(r.PerQuestion))
	for i, g := range r.PerQuestion {
		ids[i] = g.QuestionID
	}
	return ids
}
