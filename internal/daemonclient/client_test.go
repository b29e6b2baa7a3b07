package daemonclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNormalizeBind(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "127.0.0.1"},
		{"0.0.0.0", "127.0.0.1"},
		{"127.0.0.1", "127.0.0.1"},
		{"192.168.1.10", "192.168.1.10"},
		{"::1", "[::1]"},
		{"[::1]", "[::1]"},
	}
	for _, tt := range tests {
		if got := NormalizeBind(tt.in); got != tt.want {
			t.Errorf("NormalizeBind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"root_folder":"/tmp/root","file_count":3,"cluster_count":1,"provider":"local","provider_healthy":true,"status":"running"}`))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}
	status, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if status.FileCount != 3 || status.Provider != "local" || !status.ProviderHealthy {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestRescanErrorResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"scan already running"}`))
	}))
	defer srv.Close()

	c := &Client{baseURL: srv.URL, httpClient: srv.Client()}
	_, err := c.Rescan(context.Background())
	if err == nil || !strings.Contains(err.Error(), "scan already running") {
		t.Errorf("expected server error surfaced, got %v", err)
	}
}
