package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/iamgideonidoko/beacon/internal/config"
	"github.com/iamgideonidoko/beacon/pkg/logger"
	"github.com/iamgideonidoko/beacon/pkg/transport"
)

// RequestIDKey is the fiber local holding the request's uuid.UUID.
const RequestIDKey = "request_id"

// Limiter counts requests per identifier within a fixed window.
type Limiter interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
}

type RateLimiter struct {
	limiter Limiter
	config  *config.RateLimitConfig
}

func NewRateLimiter(limiter Limiter, config *config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		config:  config,
	}
}

// LimitByIP rate limits requests by IP address.
func (rl *RateLimiter) LimitByIP() fiber.Handler {
	return func(c *fiber.Ctx) error {
		identifier := fmt.Sprintf("ip:%s", c.IP())
		return rl.limit(c, identifier, rl.config.Requests, rl.config.Window, "Rate limit exceeded")
	}
}

// LimitByDevice rate limits by the device id the client reports in
// the device header. Requests without the header pass through.
func (rl *RateLimiter) LimitByDevice() fiber.Handler {
	return func(c *fiber.Ctx) error {
		deviceID := c.Get(transport.DeviceHeader)
		if deviceID == "" {
			return c.Next()
		}
		identifier := fmt.Sprintf("device:%s", deviceID)
		return rl.limit(c, identifier, rl.config.RequestsByDevice, rl.config.DeviceWindow, "Device rate limit exceeded")
	}
}

func (rl *RateLimiter) limit(c *fiber.Ctx, identifier string, limit int, window time.Duration, message string) error {
	if limit <= 0 {
		return c.Next()
	}

	allowed, err := rl.limiter.CheckRateLimit(c.Context(), identifier, limit, window)
	if err != nil {
		logger.Warn("Rate limit check failed", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return c.Next()
	}

	if !allowed {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       message,
			"retry_after": window.Seconds(),
		})
	}

	return c.Next()
}

func CORS(origins []string) fiber.Handler {
	allowedOrigins := make(map[string]bool)
	for _, origin := range origins {
		allowedOrigins[origin] = true
	}

	return func(c *fiber.Ctx) error {
		origin := c.Get("Origin")

		if allowedOrigins["*"] || allowedOrigins[origin] {
			c.Set("Access-Control-Allow-Origin", origin)
			c.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Set("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, "+transport.DeviceHeader)
			c.Set("Access-Control-Max-Age", "3600")
		}

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(http.StatusNoContent)
		}

		return c.Next()
	}
}

// RequestID tags each request with a fresh id, stored in the locals
// and echoed in the X-Request-ID response header.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := uuid.New()
		c.Locals(RequestIDKey, id)
		c.Set("X-Request-ID", id.String())
		return c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or a new one when the
// middleware is not installed.
func GetRequestID(c *fiber.Ctx) uuid.UUID {
	if id, ok := c.Locals(RequestIDKey).(uuid.UUID); ok {
		return id
	}
	return uuid.New()
}

func Logger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		fields := map[string]any{
			"method":      c.Method(),
			"path":        c.Path(),
			"status":      c.Response().StatusCode(),
			"duration_ms": time.Since(start).Milliseconds(),
			"ip":          c.IP(),
		}
		if id, ok := c.Locals(RequestIDKey).(uuid.UUID); ok {
			fields["request_id"] = id.String()
		}
		logger.Info("Request handled", fields)

		return err
	}
}

func Recover() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered", map[string]any{
					"panic": fmt.Sprint(r),
					"path":  c.Path(),
				})
				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}

// AnonymizeIP zeroes the last octet of an IPv4 address and keeps the
// first 48 bits of an IPv6 address. Unparseable input is returned as is.
func AnonymizeIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ip
	}
	if v4 := parsed.To4(); v4 != nil {
		return net.IPv4(v4[0], v4[1], v4[2], 0).String()
	}
	return parsed.Mask(net.CIDRMask(48, 128)).String()
}
