package errors

import "errors"

// Domain errors
var (
	// Run errors
	ErrRunNotFound       = errors.New("test run not found")
	ErrRunTerminal       = errors.New("test run already finished")
	ErrInvalidTransition = errors.New("invalid test run status transition")
	ErrEmptyRunID        = errors.New("test run ID cannot be empty")
	ErrEmptyURL          = errors.New("url cannot be empty")
	ErrNilResult         = errors.New("check result cannot be nil")
	ErrUnknownCheckKind  = errors.New("unknown check kind")

	// Crawl errors
	ErrCrawlUnreachable   = errors.New("start page unreachable")
	ErrDisallowedByRobots = errors.New("disallowed by robots.txt")

	// Browser errors
	ErrFieldNotFound      = errors.New("login field not found")
	ErrBrowserUnavailable = errors.New("browser automation unavailable")

	// Repository errors
	ErrRepositoryOperation   = errors.New("repository operation failed")
	ErrSerializationFailed   = errors.New("serialization failed")
	ErrDeserializationFailed = errors.New("deserialization failed")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrMissingRequired = errors.New("missing required field")
)
