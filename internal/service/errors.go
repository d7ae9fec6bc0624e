package service

import (
	"errors"
	"fmt"

	"portal/internal/repository"

	"gorm.io/gorm"
)

// Error taxonomy of the approval engine. Handlers map these to HTTP statuses.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidState = errors.New("invalid state")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
)

// ResourceConflictError is returned when equipment stock cannot cover a request.
// It always aborts the transaction that produced it.
type ResourceConflictError struct {
	Report StockReport
}

func (e *ResourceConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Report.Conflicts))
}

// SideEffectError wraps a failed notification or document re-sign. It is logged and
// counted, never returned to callers.
type SideEffectError struct {
	Op  string
	Err error
}

func (e *SideEffectError) Error() string {
	return fmt.Sprintf("side effect %s failed: %v", e.Op, e.Err)
}

func (e *SideEffectError) Unwrap() error {
	return e.Err
}

// Error codes, also used as the "code" of failed batch items.
const (
	CodeUnauthorized     = "unauthorized"
	CodeInvalidState     = "invalid_state"
	CodeNotFound         = "not_found"
	CodeValidation       = "validation"
	CodeResourceConflict = "resource_conflict"
	CodeInternal         = "internal"
)

// ErrorCode classifies err into the engine's taxonomy.
func ErrorCode(err error) string {
	var conflict *ResourceConflictError
	switch {
	case errors.As(err, &conflict):
		return CodeResourceConflict
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	case errors.Is(err, ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrValidation):
		return CodeValidation
	default:
		return CodeInternal
	}
}

// notFoundOr maps a missing row to ErrNotFound and wraps everything else.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s: %w", what, err)
}

// conflictOr maps a unique violation to ErrInvalidState; the constraint only fires
// when another transaction got there first.
func conflictOr(err error, what string) error {
	if repository.IsUniqueViolation(err) {
		return fmt.Errorf("%s already exists: %w", what, ErrInvalidState)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}
