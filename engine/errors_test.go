package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
		severity Severity
	}{
		{
			name:     "access denied",
			err:      &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"},
			category: CategoryAccessDenied,
			severity: SeverityError,
		},
		{
			name:     "unauthorized operation",
			err:      &smithy.GenericAPIError{Code: "UnauthorizedOperation", Message: "nope"},
			category: CategoryAccessDenied,
			severity: SeverityError,
		},
		{
			name:     "throttling is a warning",
			err:      &smithy.GenericAPIError{Code: "Throttling", Message: "slow down"},
			category: CategoryRateLimitExceeded,
			severity: SeverityWarning,
		},
		{
			name:     "request timeout is a warning",
			err:      &smithy.GenericAPIError{Code: "RequestTimeout", Message: "timed out"},
			category: CategoryTimeout,
			severity: SeverityWarning,
		},
		{
			name:     "context deadline",
			err:      fmt.Errorf("listing: %w", context.DeadlineExceeded),
			category: CategoryTimeout,
			severity: SeverityWarning,
		},
		{
			name:     "not found",
			err:      &smithy.GenericAPIError{Code: "ResourceNotFoundException", Message: "gone"},
			category: CategoryNotFound,
			severity: SeverityError,
		},
		{
			name:     "validation",
			err:      &smithy.GenericAPIError{Code: "ValidationError", Message: "bad input"},
			category: CategoryInvalidRequest,
			severity: SeverityError,
		},
		{
			name:     "plain error",
			err:      errors.New("connection reset"),
			category: CategoryUnknown,
			severity: SeverityError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			category := Categorize(tt.err)
			assert.Equal(t, tt.category, category)
			assert.Equal(t, tt.severity, category.Severity())
		})
	}
}

func TestCategorize_WrappedAPIError(t *testing.T) {
	inner := &smithy.GenericAPIError{Code: "TooManyRequestsException", Message: "throttled"}
	wrapped := fmt.Errorf("listing 123:us-east-1:sqs-queue: %w", inner)

	assert.Equal(t, CategoryRateLimitExceeded, Categorize(wrapped))
}
