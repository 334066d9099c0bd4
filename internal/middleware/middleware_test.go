package middleware

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/pkg/transport"
)

type countingLimiter struct {
	counts map[string]int
	err    error
}

func (l *countingLimiter) CheckRateLimit(_ context.Context, identifier string, limit int, _ time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	l.counts[identifier]++
	return l.counts[identifier] <= limit, nil
}

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New()
	for _, h := range handlers {
		app.Use(h)
	}
	app.All("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })
	return app
}

func TestLimitByDevice(t *testing.T) {
	limiter := &countingLimiter{counts: make(map[string]int)}
	rl := NewRateLimiter(limiter, &config.RateLimitConfig{RequestsByDevice: 2, DeviceWindow: time.Hour})
	app := newApp(rl.LimitByDevice())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("POST", "/", nil)
		req.Header.Set(transport.DeviceHeader, "device-1")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test() failed: %v", err)
		}
		statuses = append(statuses, resp.StatusCode)
	}

	expected := []int{200, 200, 429}
	for i := range expected {
		if statuses[i] != expected[i] {
			t.Errorf("Request %d: expected %d, got %d", i, expected[i], statuses[i])
		}
	}

	resp, err := app.Test(httptest.NewRequest("POST", "/", nil))
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected request without device header to pass, got %d", resp.StatusCode)
	}
}

func TestLimitByIPFailsOpen(t *testing.T) {
	limiter := &countingLimiter{err: errors.New("redis down")}
	rl := NewRateLimiter(limiter, &config.RateLimitConfig{Requests: 1, Window: time.Minute})
	app := newApp(rl.LimitByIP())

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("Expected limiter errors to let requests through, got %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	app := newApp(CORS([]string{"https://example.com"}))

	req := httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://example.com")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	if resp.StatusCode != 204 {
		t.Errorf("Expected 204, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "https://example.com" {
		t.Errorf("Expected allowed origin, got %q", got)
	}

	req = httptest.NewRequest("OPTIONS", "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	resp, err = app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Expected no allowed origin, got %q", got)
	}
}

func TestRequestIDAndRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover(), RequestID())
	app.Get("/panic", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/panic", nil))
	if err != nil {
		t.Fatalf("app.Test() failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Expected 500, got %d", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID header")
	}
}

func TestAnonymizeIP(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"192.168.1.42", "192.168.1.0"},
		{"2001:db8:85a3:8d3:1319:8a2e:370:7348", "2001:db8:85a3::"},
		{"::ffff:10.1.2.3", "10.1.2.0"},
		{"not-an-ip", "not-an-ip"},
	}

	for _, tt := range tests {
		if got := AnonymizeIP(tt.in); got != tt.expected {
			t.Errorf("AnonymizeIP(%q): expected %q, got %q", tt.in, tt.expected, got)
		}
	}
}
