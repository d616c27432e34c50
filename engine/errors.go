package engine

import (
	"context"
	"errors"

	"github.com/aws/smithy-go"
)

// ErrorCategory buckets provider failures for downstream reporting.
type ErrorCategory string

const (
	CategoryAccessDenied      ErrorCategory = "AccessDenied"
	CategoryRateLimitExceeded ErrorCategory = "RateLimitExceeded"
	CategoryTimeout           ErrorCategory = "Timeout"
	CategoryNotFound          ErrorCategory = "NotFound"
	CategoryInvalidRequest    ErrorCategory = "InvalidRequest"
	CategoryUnknown           ErrorCategory = "UnknownError"
)

// Severity separates advisory warnings from errors needing attention.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Retryable categories surface as warnings; the rest need attention.
func (c ErrorCategory) Severity() Severity {
	switch c {
	case CategoryRateLimitExceeded, CategoryTimeout:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// Categorize maps a provider failure onto an ErrorCategory using the
// smithy API error code when one is present.
func Categorize(err error) ErrorCategory {
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryTimeout
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return CategoryUnknown
	}

	switch apiErr.ErrorCode() {
	case "AccessDenied", "AccessDeniedException", "UnauthorizedOperation", "AuthorizationError":
		return CategoryAccessDenied
	case "Throttling", "ThrottlingException", "RequestLimitExceeded", "TooManyRequestsException", "SlowDown":
		return CategoryRateLimitExceeded
	case "RequestTimeout", "RequestTimeoutException":
		return CategoryTimeout
	case "ResourceNotFoundException", "NoSuchEntity", "NotFoundException", "NoSuchBucket":
		return CategoryNotFound
	case "ValidationError", "ValidationException", "InvalidParameterValue", "InvalidRequestException", "MalformedQueryString":
		return CategoryInvalidRequest
	default:
		return CategoryUnknown
	}
}
