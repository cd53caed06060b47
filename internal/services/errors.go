package services

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// CapacityExceededError means the session already holds its maximum participants.
type CapacityExceededError struct{ Message string }

func (e *CapacityExceededError) Error() string { return e.Message }

// notFoundOr maps pgx.ErrNoRows to a NotFoundError with msg and passes other errors through.
func notFoundOr(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return &NotFoundError{Message: msg}
	}
	return err
}
