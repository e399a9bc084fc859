package core

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrDelivery   = errors.New("notification delivery failed")
)

// ValidationError reports missing or malformed input. Nothing was written.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Reason != "":
		return e.Reason
	case len(e.Fields) > 0:
		return "missing required fields: " + strings.Join(e.Fields, ", ")
	default:
		return ErrValidation.Error()
	}
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NotFoundError reports an owner or transaction id that does not resolve.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// DeliveryError wraps a failed notification send. It is logged, never
// returned to the caller of a write.
type DeliveryError struct {
	Channel string
	Kind    AlertKind
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s alert via %s: %v", e.Kind, e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}

// OwnerNotFound is a shorthand for the most common NotFoundError.
func OwnerNotFound(id string) error {
	return &NotFoundError{Resource: "owner", ID: id}
}

// TransactionNotFound is a shorthand for a missing transaction id.
func TransactionNotFound(id string) error {
	return &NotFoundError{Resource: "transaction", ID: id}
}
