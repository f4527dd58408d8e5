package domain

import "errors"

// Sentinel errors for the application.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflicting state")
	ErrInternal           = errors.New("internal server error")
	ErrInvalidInput       = errors.New("invalid input")
	ErrDatabaseConnection = errors.New("database connection error")

	// ErrTransient marks network and 5xx failures; the next scheduled
	// tick retries them.
	ErrTransient = errors.New("transient transport failure")

	// ErrActionUnavailable is returned when accept or cancel is invoked on
	// a card that currently offers no actions to the viewer.
	ErrActionUnavailable = errors.New("donation action not available")
)
