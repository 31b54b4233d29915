package stock

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrReservationExceeded = errors.New("reservation exceeded")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrNotFound            = errors.New("stock record not found")
	ErrAlreadyExists       = errors.New("stock record already exists")

	// ErrVersionConflict is returned by a Repository when Save is called with a
	// record whose Version no longer matches the stored one.
	ErrVersionConflict = errors.New("stock record version conflict")
	// ErrStoreUnavailable is returned once the store retry budget is exhausted.
	ErrStoreUnavailable = errors.New("stock store unavailable")
)

type ValidationError struct {
	Field  string
	Reason string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type InsufficientStockError struct {
	ProductID string
	Requested int32
	Available int32
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type ReservationExceededError struct {
	ProductID string
	Requested int32
	Reserved  int32
}

func (e *ReservationExceededError) Error() string {
	return fmt.Sprintf("reservation exceeded for product %s: requested %d, reserved %d", e.ProductID, e.Requested, e.Reserved)
}

func (e *ReservationExceededError) Is(target error) bool { return target == ErrReservationExceeded }

type CapacityExceededError struct {
	ProductID string
	Requested int32
	Quantity  int32
	Capacity  int32
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for product %s: %d + %d > %d", e.ProductID, e.Quantity, e.Requested, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

type NotFoundError struct {
	ProductID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("stock record not found for product %s", e.ProductID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IsBusinessRejection reports whether err is one of the rule rejections that
// must be surfaced to the caller as-is and never retried.
func IsBusinessRejection(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrReservationExceeded) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyExists)
}
