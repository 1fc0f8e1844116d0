package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf_WrappedErrors(t *testing.T) {
	base := NewNotFoundError("application", "app-1")
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsConflict(wrapped))
	assert.Equal(t, ErrCodeInternal, CodeOf(stderrors.New("plain")))
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := stderrors.New("connection refused")
	err := NewDatabaseError("insert job", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, err.Retryable)
	assert.Contains(t, err.Error(), "insert job")
}

func TestNormalize(t *testing.T) {
	std := NewInvalidStateError("withdrawn")
	assert.Same(t, std, Normalize(fmt.Errorf("ctx: %w", std)))

	n := Normalize(stderrors.New("boom"))
	assert.Equal(t, ErrCodeInternal, n.Code)
	assert.False(t, n.Retryable)
}

func TestHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeNotFound:         http.StatusNotFound,
		ErrCodeConflict:         http.StatusConflict,
		ErrCodeInvalidState:     http.StatusUnprocessableEntity,
		ErrCodeForbidden:        http.StatusForbidden,
		ErrCodeValidationFailed: http.StatusBadRequest,
		ErrCodeUnauthenticated:  http.StatusUnauthorized,
		ErrCodeRateLimited:      http.StatusTooManyRequests,
		ErrCodeUpstreamFailure:  http.StatusBadGateway,
		ErrCodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, HTTPStatus(code), code)
	}
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("technical error keeps retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewUpstreamError("scraper", stderrors.New("502")))
		assert.Equal(t, string(ErrCodeUpstreamFailure), bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		assert.Equal(t, "SCRAPING", bpmn.ErrorVariables["errorCategory"])
	})

	t.Run("business error has no retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewInvalidStateError("terminal"))
		assert.Equal(t, 0, bpmn.Retries)
		assert.Equal(t, "BUSINESS", bpmn.ToErrorVariables()["errorCategory"])
	})

	t.Run("non retryable overrides code default", func(t *testing.T) {
		std := NewDatabaseError("select", nil)
		std.Retryable = false
		assert.Equal(t, 0, ConvertToBPMNError(std).Retries)
	})
}

func TestRateLimitedMetadata(t *testing.T) {
	err := NewRateLimitedError(30 * time.Second)
	assert.Equal(t, 30, err.Metadata["retryAfterSeconds"])
	assert.True(t, IsRetryableErrorCode(err.Code))
}
