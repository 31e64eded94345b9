// Package handlers defines the HTTP-layer error codes used across all API
// endpoints. Codes are lowercase snake_case and stable; clients branch on
// them for programmatic error handling while the message stays free-form.
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Domain-specific:
	ErrCodeAnalysisFailed = "analysis_failed"
	ErrCodeAnswerFailed   = "answer_failed"
	ErrCodeListFailed     = "list_failed"
	ErrCodeSubmitFailed   = "submit_failed"
)
