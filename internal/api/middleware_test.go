// internal/api/middleware_test.go
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Corphon/SoloRealmMCP/internal/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRateLimiterBurstAndRefusal(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("client-a") {
			t.Fatalf("request %d within burst refused", i+1)
		}
	}
	if rl.Allow("client-a") {
		t.Error("request past burst capacity allowed")
	}

	// Buckets are per key.
	if !rl.Allow("client-b") {
		t.Error("fresh client refused")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, getRequestID(c))
	})

	// Generated when absent.
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)
	if w.Body.String() == "" {
		t.Error("no request id generated")
	}
	if w.Header().Get("X-Request-ID") != w.Body.String() {
		t.Error("request id not echoed in the response header")
	}

	// Propagated when supplied.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-42")
	router.ServeHTTP(w, req)
	if w.Body.String() != "req-42" {
		t.Errorf("request id = %q, want the caller's", w.Body.String())
	}
}

func TestRateLimitByIPReturns429(t *testing.T) {
	router := gin.New()
	router.Use(RateLimitByIP(NewRateLimiter(0.0001, 1)))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request = %d", w.Code)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("second request = %d, want 429", w.Code)
	}
}

func TestHandleServiceErrorMapping(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		code     string
	}{
		{apperrors.NewValidationError("bad", nil), http.StatusBadRequest, ErrorBadRequest},
		{apperrors.NewNotFoundError("gone", nil), http.StatusNotFound, ErrorNotFound},
		{apperrors.NewUnauthorizedError("who", nil), http.StatusUnauthorized, ErrorUnauthorized},
		{apperrors.NewConflictError("busy", nil), http.StatusConflict, ErrorConflict},
		{apperrors.NewNarratorError("mute", nil), http.StatusBadGateway, ErrorNarratorFailed},
		{apperrors.NewDataError("disk", nil), http.StatusInternalServerError, ErrorStorageFailed},
	}

	rh := NewResponseHelper()
	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		rh.HandleServiceError(c, tt.err)

		if w.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.status)
			continue
		}
		var resp APIResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("%v: bad envelope: %v", tt.err, err)
		}
		if resp.Success || resp.Error == nil || resp.Error.Code != tt.code {
			t.Errorf("%v: envelope = %+v, want code %s", tt.err, resp, tt.code)
		}
	}
}

func TestSuccessEnvelope(t *testing.T) {
	rh := NewResponseHelper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-7")

	rh.Success(c, map[string]string{"zone": "Ashford"}, "loaded")

	var resp APIResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Message != "loaded" || resp.RequestID != "req-7" {
		t.Errorf("envelope = %+v", resp)
	}
}
