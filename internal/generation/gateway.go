// Package generation talks to the external text-generation service.
//
// The gateway accepts a fully assembled prompt (plus optional media
// references) and returns non-empty text or a typed failure. Calls are slow
// and expected to fail now and then; callers bound them with a context
// deadline and always record the outcome.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Request is one generation call.
type Request struct {
	// System carries instructions that frame the prompt (tone, language).
	System string
	// Prompt is the literal user prompt, already fully assembled.
	Prompt string
	// Media holds optional image URLs forwarded alongside the prompt.
	Media []string
}

// Gateway produces text for a Request.
type Gateway interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GatewayFunc) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

// ErrEmptyOutput is returned when the service answered successfully but
// produced no text.
var ErrEmptyOutput = errors.New("generation returned empty output")

// UpstreamError is a non-2xx answer from the generation service.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("generation upstream http %d: %s", e.StatusCode, e.Message)
}

// HTTPStatusCode exposes the upstream status for retry classification.
func (e *UpstreamError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

// Error codes stored on failed reports.
const (
	CodeEmptyOutput    = "empty_output"
	CodeUpstreamError  = "upstream_error"
	CodeTimeout        = "timeout"
	CodeCanceled       = "canceled"
	CodeTransportError = "transport_error"
	CodeInternalError  = "internal_error"
)

// Classify maps a gateway error to the code persisted on a failed report.
func Classify(err error) string {
	var up *UpstreamError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrEmptyOutput):
		return CodeEmptyOutput
	case errors.As(err, &up):
		return CodeUpstreamError
	case errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, context.Canceled):
		return CodeCanceled
	case errors.As(err, &netErr) && netErr.Timeout():
		return CodeTimeout
	default:
		return CodeTransportError
	}
}
