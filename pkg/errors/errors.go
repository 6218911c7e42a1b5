// Package errors defines custom error types for the station service.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error cases.
var (
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidInput     = errors.New("invalid input")
	ErrConflict         = errors.New("resource conflict")
	ErrInternalError    = errors.New("internal error")
	ErrEvaluationFailed = errors.New("rule evaluation failed")
	ErrExecutionFailed  = errors.New("operation execution failed")
	ErrNotInitialized   = errors.New("station is not initialized")
)

// Derived sentinels. Each wraps the broad category it belongs to, so call
// sites can match either the specific condition or the category.
var (
	ErrNoApplicablePolicy = fmt.Errorf("no approval policy applies to request: %w", ErrInvalidInput)
	ErrNotEligible        = fmt.Errorf("caller is not an eligible approver: %w", ErrInvalidInput)
	ErrRuleCycle          = fmt.Errorf("named rule reference cycle: %w", ErrInvalidInput)
	ErrRequestNotPending  = fmt.Errorf("request is not pending: %w", ErrConflict)
	ErrDuplicateDecision  = fmt.Errorf("approver already submitted a decision: %w", ErrConflict)
	ErrRuleInUse          = fmt.Errorf("named rule is still referenced: %w", ErrConflict)
	ErrRequestLocked      = fmt.Errorf("request is locked by another execution: %w", ErrConflict)
)

// ValidationError represents a validation error with field-specific details.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// EvaluationError represents a failure inside the policy rule evaluator,
// such as a dangling named rule reference. It is never downgraded to a
// Pending outcome; a stalled custody decision must be visible to the caller.
type EvaluationError struct {
	RuleID string
	Cause  error
}

func (e *EvaluationError) Error() string {
	if e.RuleID != "" {
		return fmt.Sprintf("evaluation of rule '%s' failed: %v", e.RuleID, e.Cause)
	}
	return fmt.Sprintf("evaluation failed: %v", e.Cause)
}

func (e *EvaluationError) Unwrap() error {
	return ErrEvaluationFailed
}

// NewEvaluationError creates a new evaluation error.
func NewEvaluationError(ruleID string, cause error) *EvaluationError {
	return &EvaluationError{RuleID: ruleID, Cause: cause}
}

// ExecutionError represents a failure of an operation executor after a
// request was adopted. It is recorded on the request as a terminal Failed
// status and surfaced to whichever call triggered the transition.
type ExecutionError struct {
	RequestID string
	Operation string
	Cause     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution of '%s' for request '%s' failed: %v", e.Operation, e.RequestID, e.Cause)
}

func (e *ExecutionError) Unwrap() error {
	return ErrExecutionFailed
}

// NewExecutionError creates a new execution error.
func NewExecutionError(requestID, operation string, cause error) *ExecutionError {
	return &ExecutionError{RequestID: requestID, Operation: operation, Cause: cause}
}
