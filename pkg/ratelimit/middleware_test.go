package ratelimit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/finance-garden/admission/pkg/ratelimit/memstore"
)

func newTestRouter(gate *Gate) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gate.Handler())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/accounts", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func doGet(r *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "192.168.1.10:5555"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestGateExemptPathsSkipStore(t *testing.T) {
	store := &countingStore{inner: memstore.New()}
	limiter := NewSlidingWindow(store)
	gate := NewGate(limiter, 1, time.Minute, []string{"/health"}, zerolog.Nop())
	r := newTestRouter(gate)

	for i := 0; i < 5; i++ {
		if resp := doGet(r, "/health"); resp.Code != http.StatusOK {
			t.Fatalf("exempt path rejected: %d", resp.Code)
		}
	}
	if store.calls != 0 {
		t.Errorf("exempt path touched the store %d times", store.calls)
	}

	stats := gate.Stats()
	if stats.Exempted != 5 {
		t.Errorf("Exempted = %d, want 5", stats.Exempted)
	}
}

func TestGateRejectsOverLimit(t *testing.T) {
	limiter := NewSlidingWindow(memstore.New())
	gate := NewGate(limiter, 2, time.Minute, nil, zerolog.Nop())
	r := newTestRouter(gate)

	for i := 0; i < 2; i++ {
		if resp := doGet(r, "/v1/accounts"); resp.Code != http.StatusOK {
			t.Fatalf("request %d rejected: %d", i, resp.Code)
		}
	}

	resp := doGet(r, "/v1/accounts")
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.Code)
	}
	if got := resp.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	var body struct {
		Error      string `json:"error"`
		Message    string `json:"message"`
		RetryAfter int    `json:"retry_after"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error != "Rate limit exceeded" {
		t.Errorf("error = %q", body.Error)
	}
	if body.Message != "Maximum 2 requests per 60 seconds" {
		t.Errorf("message = %q", body.Message)
	}
	if body.RetryAfter != 60 {
		t.Errorf("retry_after = %d, want 60", body.RetryAfter)
	}

	stats := gate.Stats()
	if stats.Admitted != 2 || stats.Rejected != 1 {
		t.Errorf("stats = %+v, want 2 admitted / 1 rejected", stats)
	}
}

func TestGatePartitionsByClient(t *testing.T) {
	limiter := NewSlidingWindow(memstore.New())
	gate := NewGate(limiter, 1, time.Minute, nil, zerolog.Nop())
	r := newTestRouter(gate)

	first := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	first.RemoteAddr = "192.168.1.10:5555"
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, first)
	if resp.Code != http.StatusOK {
		t.Fatalf("first client rejected: %d", resp.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/v1/accounts", nil)
	second.RemoteAddr = "192.168.1.11:5555"
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, second)
	if resp.Code != http.StatusOK {
		t.Errorf("second client should have its own budget, got %d", resp.Code)
	}
}

func TestGateFailsOpenWhenStoreErrors(t *testing.T) {
	store := &countingStore{inner: memstore.New(), failAll: true}
	limiter := NewSlidingWindow(store)
	gate := NewGate(limiter, 1, time.Minute, nil, zerolog.Nop())
	r := newTestRouter(gate)

	for i := 0; i < 3; i++ {
		if resp := doGet(r, "/v1/accounts"); resp.Code != http.StatusOK {
			t.Fatalf("gate must admit when the store is down, got %d", resp.Code)
		}
	}
}
