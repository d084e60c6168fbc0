package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("parsing limit: %w", ErrInvalidInput), http.StatusBadRequest},
		{"not ready", ErrNotReady, http.StatusServiceUnavailable},
		{"malformed", fmt.Errorf("decode: %w", ErrSnapshotMalformed), http.StatusBadGateway},
		{"fetch", ErrFetchFailed, http.StatusBadGateway},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := Newf(ErrSnapshotMalformed, http.StatusBadGateway, "record %d has no id", 3)
	assert.True(t, Is(err, ErrSnapshotMalformed))
	assert.Equal(t, "snapshot malformed: record 3 has no id", err.Error())
}
