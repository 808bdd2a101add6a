package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voicekey/internal/domain"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, domain.ErrRateLimit},
		{http.StatusUnauthorized, domain.ErrAuthInvalid},
		{http.StatusForbidden, domain.ErrAuthInvalid},
		{http.StatusRequestEntityTooLarge, domain.ErrContextOverflow},
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusBadRequest, domain.ErrInvalidInput},
		{http.StatusInternalServerError, domain.ErrProviderError},
		{http.StatusBadGateway, domain.ErrProviderError},
		{http.StatusServiceUnavailable, domain.ErrProviderError},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := mapHTTPError(tt.status, []byte(" {\"error\":\"x\"}\n"))
			assert.ErrorIs(t, err, tt.want)

			var he *domain.HTTPStatusError
			require.True(t, errors.As(err, &he))
			assert.Equal(t, tt.status, he.Status)
			assert.Equal(t, `{"error":"x"}`, he.Body)
		})
	}
}

func TestDoJSONRequestQuotesWholeErrorBody(t *testing.T) {
	body := strings.Repeat("x", 10000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	_, err := doJSONRequest(context.Background(), srv.Client(), srv.URL, []byte(`{}`), nil)
	var he *domain.HTTPStatusError
	require.True(t, errors.As(err, &he))
	assert.Equal(t, body, he.Body)
}
