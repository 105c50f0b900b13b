package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestAllowBurst(t *testing.T) {
	l := NewLimiter(1, 2)
	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of 2 should be allowed")
	}
	if l.Allow("a") {
		t.Error("third request should be limited")
	}
	if !l.Allow("b") {
		t.Error("keys should have independent buckets")
	}
}

func TestUnlimited(t *testing.T) {
	l := NewLimiter(0, 1)
	for i := 0; i < 100; i++ {
		if !l.Allow("x") {
			t.Fatalf("request %d limited with rps 0", i)
		}
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.Allow("q")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx, "q"); err == nil {
		t.Error("expected wait to fail once the context expires")
	}
}

func TestNilWait(t *testing.T) {
	var l *Limiter
	if err := l.Wait(context.Background(), "k"); err != nil {
		t.Errorf("nil limiter returned %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	l := NewLimiter(1, 1)
	h := l.Middleware(IPKeyFunc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i, want := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d: status %d, want %d", i, rec.Code, want)
		}
	}
}

func TestIPKeyFunc(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")
	if got := IPKeyFunc(req); got != "1.2.3.4" {
		t.Errorf("IPKeyFunc = %q", got)
	}
}
