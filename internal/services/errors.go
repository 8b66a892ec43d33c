// Package services defines the business logic for identities and reports.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and translation
// into user-facing messages or HTTP status codes should be performed at the
// handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound indicates that no user exists for the given id.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidLocale is returned when a locale is not a well-formed BCP-47 tag.
	ErrInvalidLocale = errors.New("locale must be a BCP-47 language tag")

	// ErrReportNotFound indicates that the requested report does not exist or
	// is not owned by the current user.
	ErrReportNotFound = errors.New("report not found")

	// ErrReportTerminal is returned when completing a report that has already
	// reached Ready or Failed.
	ErrReportTerminal = errors.New("report already completed")

	// ErrSelectionChanged is returned by Complete when another request has
	// replaced the draft's section list since h was obtained. The draft is
	// left to that request.
	ErrSelectionChanged = errors.New("report selection changed")

	// ErrUnknownKind is returned for a report kind without a section catalog.
	ErrUnknownKind = errors.New("unknown report kind")

	// ErrGenerationFailed is matched by every *GenerationError.
	ErrGenerationFailed = errors.New("generation failed")
)

// GenerationError reports that a report ended in Failed. Code and Detail are
// the values persisted on the report.
type GenerationError struct {
	ReportID string
	Code     string
	Detail   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("report %s failed: %s", e.ReportID, e.Code)
}

// Is makes errors.Is(err, ErrGenerationFailed) true.
func (e *GenerationError) Is(target error) bool { return target == ErrGenerationFailed }
