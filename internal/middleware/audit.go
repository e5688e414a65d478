package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request. Transfer submissions are
// money movement, so the trail records method, path, outcome and latency even
// when the access log is disabled.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		requestID, _ := c.Locals(requestIDHeader).(string)
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", requestID),
		}

		if err != nil {
			logger.Error("request failed", append(attrs, slog.Any("error", err))...)
			return err
		}

		logger.Info("request handled", attrs...)
		return nil
	}
}
