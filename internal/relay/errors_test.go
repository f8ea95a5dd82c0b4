package relay

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("wrapped: %w", newError(KindStorageUnavailable, "storage unavailable", cause))

	assert.Equal(t, KindStorageUnavailable, KindOf(err))
	assert.Equal(t, "storage unavailable", MessageOf(err))
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "internal error", MessageOf(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindAuthenticationMissing, http.StatusUnauthorized},
		{KindAuthenticationInvalid, http.StatusForbidden},
		{KindValidationFailed, http.StatusBadRequest},
		{KindStorageUnavailable, http.StatusInternalServerError},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindNotFound, http.StatusNotFound},
		{KindPermissionDenied, http.StatusForbidden},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.kind))
		})
	}
}
