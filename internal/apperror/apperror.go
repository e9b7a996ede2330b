package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrSlugTaken           = errors.New("slug taken")
	ErrInvalidSlug         = errors.New("invalid slug")
	ErrAllocationExhausted = errors.New("slug allocation exhausted")
)

type AppError struct {
	Err     error  // sentinel for errors.Is matching
	Message string // human-readable message returned to clients
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(slug string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("snippet %q not found", slug),
	}
}

func SlugTaken() *AppError {
	return &AppError{
		Err:     ErrSlugTaken,
		Message: "URL already taken",
	}
}

func InvalidSlug(reason string) *AppError {
	return &AppError{
		Err:     ErrInvalidSlug,
		Message: reason,
	}
}

// AllocationExhausted is returned when repeated attempts to generate a free
// slug all collided with live snippets.
func AllocationExhausted() *AppError {
	return &AppError{
		Err:     ErrAllocationExhausted,
		Message: "could not allocate a unique URL, try again",
	}
}
