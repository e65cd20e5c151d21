package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable_ByKind(t *testing.T) {
	assert.True(t, IsRetryable(ErrorKindNetwork, 0))
	assert.True(t, IsRetryable(ErrorKindRateLimit, 0))
	assert.True(t, IsRetryable(ErrorKindServer, 0))
	assert.False(t, IsRetryable(ErrorKindAuth, 0))
	assert.False(t, IsRetryable(ErrorKindInvalidInput, 0))
}

func TestIsRetryable_ByStatusCode(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		assert.True(t, IsRetryable(ErrorKindUnknown, code), "status %d should be retryable", code)
	}
	for _, code := range []int{200, 400, 401, 404}{
		assert.False(t, IsRetryable(ErrorKindUnknown, code), "status %d should not be retryable", code)
	}
}

func TestClassifyStatusCode(t *testing.T) {
	assert.Equal(t, ErrorKindAuth, ClassifyStatusCode(401))
	assert.Equal(t, ErrorKindRateLimit, ClassifyStatusCode(429))
	assert.Equal(t, ErrorKindInvalidInput, ClassifyStatusCode(400))
	assert.Equal(t, ErrorKindServer, ClassifyStatusCode(503))
	assert.Equal(t, ErrorKindNotFound, ClassifyStatusCode(404))
}

func TestClassifyMessage(t *testing.T) {
	assert.Equal(t, ErrorKindRateLimit, ClassifyMessage("Rate limit exceeded, try again later"))
	assert.Equal(t, ErrorKindContextLength, ClassifyMessage("This model's maximum context length is 4096 tokens"))
	assert.Equal(t, ErrorKindContentPolicy, ClassifyMessage("Your request was rejected by our content policy"))
	assert.Equal(t, ErrorKindAuth, ClassifyMessage("Incorrect API key provided"))
}

func TestFrameworkError_Unwrap(t *testing.T) {
	base := assertNewErr("boom")
	wrapped := NewFrameworkError("cache.Get", ErrorKindUnknown, base)
	assert.ErrorIs(t, wrapped, base)
	assert.Contains(t, wrapped.Error(), "cache.Get")
}

func assertNewErr(msg string) error {
	return &FrameworkError{Message: msg}
}
