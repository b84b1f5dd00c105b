package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationCategory identifies the source of a validation error.
type ValidationCategory string

const (
	// ValidationCategoryConfig indicates a configuration file validation error.
	ValidationCategoryConfig ValidationCategory = "config"

	// ValidationCategoryDependency indicates an unmet test dependency.
	ValidationCategoryDependency ValidationCategory = "dependency"

	// ValidationCategoryCondition indicates a condition that could not be built
	// or registered (unknown name, unknown typename, missing related condition).
	ValidationCategoryCondition ValidationCategory = "condition"
)

// ValidationError represents a configuration, dependency or condition
// validation failure.
//
// Fields:
//   - Category: Source of validation
//   - Field: Name of the invalid field or setting (e.g. "properties.minversion")
//   - Message: Description of what's wrong
//   - Expected: What the valid value should look like
//   - Hint: Actionable hint for fixing the error
type ValidationError struct {
	Category ValidationCategory
	Field    string
	Message  string
	Expected string
	Hint     string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	var sb strings.Builder

	if e.Category == ValidationCategoryDependency {
		sb.WriteString("unmet dependency")
		if e.Field != "" {
			sb.WriteString(" " + e.Field)
		}
		if e.Message != "" {
			sb.WriteString(": " + e.Message)
		}
		return sb.String()
	}

	if e.Field != "" {
		sb.WriteString(fmt.Sprintf("%s: %s", e.Field, e.Message))
	} else {
		sb.WriteString(e.Message)
	}
	return sb.String()
}

// VerboseError returns the error with the expected value and hint appended.
func (e *ValidationError) VerboseError() string {
	var sb strings.Builder
	sb.WriteString(e.Error())
	if e.Expected != "" {
		sb.WriteString(fmt.Sprintf("\n  Expected: %s", e.Expected))
	}
	if e.Hint != "" {
		sb.WriteString(fmt.Sprintf("\n  Hint: %s", e.Hint))
	}
	return sb.String()
}

// IsValidationError checks if err is a ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NewConfigValidationError creates a config validation error.
func NewConfigValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Category: ValidationCategoryConfig,
		Field:    field,
		Message:  message,
	}
}

// NewDependencyError creates an unmet dependency error.
func NewDependencyError(name, message string) *ValidationError {
	return &ValidationError{
		Category: ValidationCategoryDependency,
		Field:    name,
		Message:  message,
		Hint:     GetHintForDependency(name),
	}
}

// NewConditionError creates a condition registration error.
func NewConditionError(name, message string) *ValidationError {
	return &ValidationError{
		Category: ValidationCategoryCondition,
		Field:    name,
		Message:  message,
	}
}

// ValidationResult collects validation errors and warnings.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []string
}

// NewValidationResult returns an empty ValidationResult.
func NewValidationResult() *ValidationResult {
	return &ValidationResult{}
}

// HasErrors reports whether any errors were recorded.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings reports whether any warnings were recorded.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// AddError records a validation error.
func (r *ValidationResult) AddError(err *ValidationError) {
	r.Errors = append(r.Errors, err)
}

// AddWarning records a warning message.
func (r *ValidationResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Err returns the first error, or nil when there are none.
func (r *ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// ErrorMessage joins every error into a multi-line message.
func (r *ValidationResult) ErrorMessage() string {
	if !r.HasErrors() {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("validation failed:")
	for _, e := range r.Errors {
		sb.WriteString("\n  - " + e.Error())
	}
	return sb.String()
}
