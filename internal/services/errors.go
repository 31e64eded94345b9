// Package services defines the business logic for conversations, the image
// pipeline, and the report registry. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Pipeline failure taxonomy. Any failure during the Processing or Committing
// stages aborts the run and rolls back the optimistic message.
var (
	// ErrExternalService indicates that the asset upload or the analysis
	// call failed or timed out. A malformed analysis response is classified
	// here as well: the caller cannot distinguish a broken service from a
	// misbehaving one.
	ErrExternalService = errors.New("external service failure")

	// ErrPersistence indicates that a store write failed during the run.
	ErrPersistence = errors.New("persistence failure")
)

// Conversation and registry errors.
var (
	// ErrChatNotFound indicates that the requested chat session does not exist.
	ErrChatNotFound = errors.New("chat not found")

	// ErrReportNotFound indicates that the requested report does not exist.
	ErrReportNotFound = errors.New("report not found")

	// ErrEmptyMessage is returned when a text message contains no content.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrTooLong is returned when a text message exceeds the configured
	// maximum length.
	ErrTooLong = errors.New("message too long")

	// ErrEmptyImage is returned when an image submission carries no bytes.
	ErrEmptyImage = errors.New("image is empty")
)
