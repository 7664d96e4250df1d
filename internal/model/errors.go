package model

import "errors"

var (
	// ErrSourceIPRequired is returned when a threat ingest request is missing the source IP.
	ErrSourceIPRequired = errors.New("source_ip is required")

	// ErrInvalidSeverity is returned when a threat carries an unrecognized severity.
	ErrInvalidSeverity = errors.New("invalid severity")

	// ErrEventNotFound is returned when a threat event is not found.
	ErrEventNotFound = errors.New("threat event not found")

	// ErrUnauthorized is returned when a request carries no valid token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when a token does not match the addressed tenant or user.
	ErrForbidden = errors.New("forbidden")
)
