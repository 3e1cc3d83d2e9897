package application

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// RegisterElectionValidators registers the custom validation functions used
// by election configuration struct tags.
func RegisterElectionValidators(v *validator.Validate) error {
	if err := v.RegisterValidation("semver", validateSemver); err != nil {
		return fmt.Errorf("failed to register semver validator: %w", err)
	}
	v.RegisterStructValidation(validateQuestionBounds, QuestionConfig{})
	return nil
}

// validateSemver validates that a string follows semantic versioning
// format (X.Y.Z where X, Y, Z are non-negative integers).
func validateSemver(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	var major, minor, patch int
	var rest string
	n, _ := fmt.Sscanf(value, "%d.%d.%d%s", &major, &minor, &patch, &rest)
	return n == 3 && major >= 0 && minor >= 0 && patch >= 0
}

// validateQuestionBounds checks the constraints that relate several fields
// of one question.
func validateQuestionBounds(sl validator.StructLevel) {
	qc := sl.Current().Interface().(QuestionConfig)
	answers := len(qc.Answers)

	if answers > 0 && qc.NumWinners > answers {
		sl.ReportError(qc.NumWinners, "NumWinners", "num_winners", "lteanswers", "")
	}
	if answers > 0 && qc.Min > qc.EffectiveMax() {
		sl.ReportError(qc.Min, "Min", "min", "ltemax", "")
	}
	if answers > 0 && qc.Max > answers {
		sl.ReportError(qc.Max, "Max", "max", "lteanswers", "")
	}
	for _, w := range qc.Withdrawals {
		if w >= answers {
			sl.ReportError(qc.Withdrawals, "Withdrawals", "withdrawals", "ltanswers", "")
			break
		}
	}
}
