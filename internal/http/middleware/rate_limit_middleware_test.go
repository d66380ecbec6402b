package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

type stubLimiter struct {
	allow func(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func (s *stubLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	return s.allow(ctx, key, limit, window)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestLocalFixedWindowLimiter(t *testing.T) {
	l := NewLocalFixedWindowLimiter()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := l.Allow(ctx, "k", 3, time.Minute)
		if err != nil || !allowed {
			t.Fatalf("request %d: allowed=%v err=%v, want allowed", i, allowed, err)
		}
	}
	allowed, retryAfter, err := l.Allow(ctx, "k", 3, time.Minute)
	if err != nil || allowed {
		t.Fatalf("allowed=%v err=%v, want rejection", allowed, err)
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v, want within the window", retryAfter)
	}

	// A different key has its own window.
	if allowed, _, _ := l.Allow(ctx, "other", 3, time.Minute); !allowed {
		t.Fatal("separate key must not share the window")
	}
}

func TestRateLimiterMiddlewareRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(NewLocalFixedWindowLimiter(), 2, time.Minute, FailClosed, "test", testLogger())
	h := rl.Middleware()(okHandler())

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i, rec.Code)
		}
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("rejection must carry Retry-After")
	}
}

func TestRateLimiterKeysByUserHeader(t *testing.T) {
	var keys []string
	rl := NewRateLimiter(&stubLimiter{
		allow: func(_ context.Context, key string, _ int, _ time.Duration) (bool, time.Duration, error) {
			keys = append(keys, key)
			return true, 0, nil
		},
	}, 1, time.Minute, FailClosed, "test", testLogger())
	h := rl.Middleware()(okHandler())

	withUser := httptest.NewRequest(http.MethodGet, "/", nil)
	withUser.Header.Set("X-User-Id", "alice")
	h.ServeHTTP(httptest.NewRecorder(), withUser)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	anon.RemoteAddr = "192.0.2.7:1234"
	h.ServeHTTP(httptest.NewRecorder(), anon)

	if len(keys) != 2 || keys[0] != "u:alice" || keys[1] != "192.0.2.7" {
		t.Fatalf("keys = %v", keys)
	}
}

func TestRateLimiterFailureModes(t *testing.T) {
	broken := &stubLimiter{
		allow: func(context.Context, string, int, time.Duration) (bool, time.Duration, error) {
			return false, 0, errors.New("backend down")
		},
	}

	open := NewRateLimiter(broken, 1, time.Minute, FailOpen, "test", testLogger())
	rec := httptest.NewRecorder()
	open.Middleware()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("fail open: status = %d, want 200", rec.Code)
	}

	closed := NewRateLimiter(broken, 1, time.Minute, FailClosed, "test", testLogger())
	rec = httptest.NewRecorder()
	closed.Middleware()(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("fail closed: status = %d, want 429", rec.Code)
	}
}
