package httpapi

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// RequestID propagates X-Request-ID or assigns a fresh uuid.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(requestIDKey, rid)
			c.Response().Header().Set(echo.HeaderXRequestID, rid)
			return next(c)
		}
	}
}

// RequestLogger writes one line per request.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				// Пишем ответ сейчас, чтобы в лог попал итоговый статус
				c.Error(err)
			}

			rid, _ := c.Get(requestIDKey).(string)
			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("remote_ip", c.RealIP()),
			}

			switch {
			case c.Response().Status >= 500:
				logger.Error("request", append(fields, zap.Error(err))...)
			case err != nil:
				logger.Warn("request", append(fields, zap.Error(err))...)
			default:
				logger.Info("request", fields...)
			}

			return nil
		}
	}
}
