package checker_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kanshi-dev/kanshi/internal/checker"
)

func runDummyHTTPServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello"))
	})
	mux.HandleFunc("/error", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	mux.HandleFunc("/teapot", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})
	return httptest.NewServer(mux)
}

func TestHTTPChecker_Check(t *testing.T) {
	t.Parallel()

	server := runDummyHTTPServer()
	defer server.Close()

	tests := []struct {
		Name    string
		Path    string
		Expect  []int
		Healthy bool
		Error   string
	}{
		{"ok", "/ok", nil, true, ""},
		{"error", "/error", nil, false, "unexpected status: 500_Internal_Server_Error"},
		{"expected-status", "/teapot", []int{418}, true, ""},
		{"unexpected-status", "/ok", []int{418}, false, "unexpected status: 200_OK"},
	}

	for _, tt := range tests {
		t.Run(tt.Name, func(t *testing.T) {
			c, err := checker.NewHTTP("web", server.URL+tt.Path, tt.Expect, 5*time.Second)
			if err != nil {
				t.Fatalf("failed to build checker: %s", err)
			}

			r := c.Check(context.Background())
			if r.Healthy != tt.Healthy {
				t.Errorf("expected healthy=%v but got %v (error=%q)", tt.Healthy, r.Healthy, r.Error)
			}
			if r.Error != tt.Error {
				t.Errorf("expected error %q but got %q", tt.Error, r.Error)
			}
			if r.ResponseTime <= 0 {
				t.Errorf("expected a positive response time but got %s", r.ResponseTime)
			}
			if r.Detail["status"] == "" {
				t.Errorf("expected status detail but got none")
			}
		})
	}
}

func TestHTTPChecker_timeout(t *testing.T) {
	t.Parallel()

	server := runDummyHTTPServer()
	defer server.Close()

	c, err := checker.NewHTTP("web", server.URL+"/slow", nil, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to build checker: %s", err)
	}

	r := c.Check(context.Background())
	if r.Healthy {
		t.Errorf("expected unhealthy result on timeout")
	}
	if r.Error != "check timed out" {
		t.Errorf("expected timeout error but got %q", r.Error)
	}
}

func TestHTTPChecker_unreachable(t *testing.T) {
	t.Parallel()

	server := runDummyHTTPServer()
	url := server.URL
	server.Close()

	c, err := checker.NewHTTP("web", url, nil, time.Second)
	if err != nil {
		t.Fatalf("failed to build checker: %s", err)
	}

	r := c.Check(context.Background())
	if r.Healthy {
		t.Errorf("expected unhealthy result for a closed server")
	}
	if !strings.Contains(r.Error, "refused") {
		t.Errorf("expected a connection error but got %q", r.Error)
	}
}
