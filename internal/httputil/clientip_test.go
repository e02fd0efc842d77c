package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trust      bool
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.168.1.1:12345", want: "192.168.1.1"},
		{name: "ipv6 with port", remoteAddr: "[::1]:12345", want: "::1"},
		{name: "bare address", remoteAddr: "192.168.1.1", want: "192.168.1.1"},
		{name: "headers ignored when untrusted", xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
		{name: "xff single", trust: true, xff: "1.2.3.4", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "xff leftmost", trust: true, xff: " 1.2.3.4 , 10.0.0.1", remoteAddr: "10.0.0.3:1234", want: "1.2.3.4"},
		{name: "xff empty first entry", trust: true, xff: ", 10.0.0.1", xri: "5.6.7.8", remoteAddr: "10.0.0.3:1234", want: "5.6.7.8"},
		{name: "x-real-ip fallback", trust: true, xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "5.6.7.8"},
		{name: "xff before x-real-ip", trust: true, xff: "1.2.3.4", xri: "5.6.7.8", remoteAddr: "10.0.0.1:1234", want: "1.2.3.4"},
		{name: "trusted without headers", trust: true, remoteAddr: "10.0.0.1:1234", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trust); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusBadRequest, ErrorBody{Error: "bad epoch", Line: 7})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "bad epoch" || body["line"].(float64) != 7 {
		t.Errorf("body = %v", body)
	}

	w = httptest.NewRecorder()
	WriteError(w, http.StatusServiceUnavailable, "no dataset")
	if w.Body.String() != "{\"error\":\"no dataset\"}\n" {
		t.Errorf("body = %q, line should be omitted", w.Body.String())
	}
}
