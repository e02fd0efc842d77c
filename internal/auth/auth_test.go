package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	enabled := Middleware(Config{Enabled: true, Token: "s3cret"})(ok)
	disabled := Middleware(Config{Enabled: false, Token: "s3cret"})(ok)

	tests := []struct {
		name    string
		handler http.Handler
		target  string
		header  string
		want    int
	}{
		{"disabled lets everything through", disabled, "/api/v1/czml", "", http.StatusNoContent},
		{"missing token", enabled, "/api/v1/czml", "", http.StatusUnauthorized},
		{"wrong token", enabled, "/api/v1/czml", "Bearer nope", http.StatusUnauthorized},
		{"not a bearer header", enabled, "/api/v1/czml", "s3cret", http.StatusUnauthorized},
		{"valid bearer", enabled, "/api/v1/czml", "Bearer s3cret", http.StatusNoContent},
		{"viewer page exempt", enabled, "/", "", http.StatusNoContent},
		{"health exempt", enabled, "/healthz", "", http.StatusNoContent},
		{"metrics exempt", enabled, "/metrics", "", http.StatusNoContent},
		{"metadata exempt", enabled, "/api/v1/sp3/metadata", "", http.StatusNoContent},
		{"query token on sse stream", enabled, "/api/v1/stream/czml?access_token=s3cret", "", http.StatusNoContent},
		{"query token on websocket", enabled, "/api/v1/ws/czml?access_token=s3cret", "", http.StatusNoContent},
		{"wrong query token on stream", enabled, "/api/v1/stream/czml?access_token=nope", "", http.StatusUnauthorized},
		{"query token ignored off stream routes", enabled, "/api/v1/czml?access_token=s3cret", "", http.StatusUnauthorized},
		{"header wins over query token", enabled, "/api/v1/stream/czml?access_token=s3cret", "Bearer nope", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			tt.handler.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate")
			}
		})
	}
}
