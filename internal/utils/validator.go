package utils

import (
	"reflect"
	"strings"

	"github.com/acadex/grading-service/internal/errors"
	"github.com/acadex/grading-service/internal/models"
	"github.com/go-playground/validator/v10"
)

// Validator wraps go-playground/validator with our custom rules registered.
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates the shared validator instance
func NewValidator() *Validator {
	validate := validator.New()
	registerCustomValidators(validate)

	return &Validator{validate: validate}
}

// Validate validates struct tags and converts failures to ValidationErrors
func (v *Validator) Validate(s interface{}) error {
	if err := v.validate.Struct(s); err != nil {
		if ve := errors.ToValidationErrors(err); len(ve) > 0 {
			return ve
		}
		return err
	}
	return nil
}

func registerCustomValidators(validate *validator.Validate) {
	validate.RegisterValidation("question_type", validateQuestionType)
	validate.RegisterValidation("submission_status", validateSubmissionStatus)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateQuestionType(fl validator.FieldLevel) bool {
	validTypes := []models.QuestionType{
		models.SingleChoice,
		models.MultipleChoice,
		models.TrueFalse,
		models.ShortText,
		models.Essay,
	}

	value := fl.Field().String()
	for _, validType := range validTypes {
		if string(validType) == value {
			return true
		}
	}
	return false
}

func validateSubmissionStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.SubmissionStatus{
		models.SubmissionPending,
		models.SubmissionGradingActive,
		models.SubmissionGraded,
		models.SubmissionGradingFailed,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}
