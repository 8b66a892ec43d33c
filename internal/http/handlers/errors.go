// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` helper in this package). Codes are lowercase
// snake_case and travel in the "error" field of the envelope:
//
//	{ "ok": false, "error": "bad_date", "message": "...", "request_id": "..." }
//
// Status classes:
//   - 401 for authentication failures (codes come from auth.Code and are
//     written by middleware.InitDataAuth)
//   - 400 for malformed or missing input
//   - 404 for unknown users, reports and routes
//   - 500 for generation and internal failures; a failed generation reports
//     the code stored on the report (e.g. "upstream_error", "timeout")
package handlers

const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorized"
	ErrCodeNotFound     = "not_found"
	ErrCodeRateLimited  = "rate_limited"
	ErrCodeInternal     = "internal_error"

	// Input validation:
	ErrCodeMissingDate    = "missing_date"
	ErrCodeBadDate        = "bad_date"
	ErrCodeBadTime        = "bad_time"
	ErrCodeMissingPartner = "missing_partner"
	ErrCodeUnknownKind    = "unknown_kind"
	ErrCodeInvalidLocale  = "invalid_locale"

	// Domain-specific:
	ErrCodeUserNotFound     = "user_not_found"
	ErrCodeReportNotFound   = "report_not_found"
	ErrCodeGenerationFailed = "generation_failed"
	ErrCodeListFailed       = "list_failed"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)
