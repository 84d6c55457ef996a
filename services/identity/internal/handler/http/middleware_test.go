package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentTypeJSON(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		contentType string
		wantCalled  bool
	}{
		{"post without content type", http.MethodPost, "", true},
		{"patch without content type", http.MethodPatch, "", true},
		{"post with json", http.MethodPost, "application/json", true},
		{"post with json charset", http.MethodPost, "application/json; charset=utf-8", true},
		{"post with form", http.MethodPost, "application/x-www-form-urlencoded", false},
		{"put with text", http.MethodPut, "text/plain", false},
		{"get ignores content type", http.MethodGet, "text/plain", true},
		{"delete ignores content type", http.MethodDelete, "text/plain", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/test", strings.NewReader(`{"key":"value"}`))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantCalled, called)
			if !tt.wantCalled {
				assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
				assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
				assert.Contains(t, rr.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
			}
		})
	}
}
