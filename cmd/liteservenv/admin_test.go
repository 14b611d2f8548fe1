package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestAdminRouter(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		path     string
		ready    bool
		wantCode int
		wantBody string
	}{
		"readyz before ready": {path: "/readyz", wantCode: http.StatusServiceUnavailable, wantBody: "not ready"},
		"readyz when ready":   {path: "/readyz", ready: true, wantCode: http.StatusOK, wantBody: "ok"},
		"metrics":             {path: "/metrics", wantCode: http.StatusOK, wantBody: "go_goroutines"},
		"unknown path":        {path: "/nope", wantCode: http.StatusNotFound},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var ready atomic.Bool
			ready.Store(tc.ready)
			h := newAdminRouter(ready.Load)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))

			if rec.Code != tc.wantCode {
				t.Errorf("GET %s = %d, want %d", tc.path, rec.Code, tc.wantCode)
			}
			if !strings.Contains(rec.Body.String(), tc.wantBody) {
				t.Errorf("GET %s body = %q, want it to contain %q", tc.path, rec.Body.String(), tc.wantBody)
			}
		})
	}
}
