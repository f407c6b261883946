package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Pinger reports store liveness for /health/db.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerConfig struct {
	JWT         JWTConfig
	CORSOrigins []string
}

// NewServer wires middleware, health checks and the API routes.
func NewServer(cfg ServerConfig, h *Handler, db Pinger, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(echomw.Recover())
	e.Use(RequestID())
	e.Use(RequestLogger(logger))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
		}))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/health/db", healthDB(db))

	api := e.Group("/api/v1", JWTMiddleware(cfg.JWT))
	h.RegisterRoutes(api)

	return e
}

func healthDB(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		body := echo.Map{"status": "healthy"}
		if pool, ok := db.(*pgxpool.Pool); ok {
			stat := pool.Stat()
			body["pool"] = echo.Map{
				"total_conns":    stat.TotalConns(),
				"idle_conns":     stat.IdleConns(),
				"acquired_conns": stat.AcquiredConns(),
				"max_conns":      stat.MaxConns(),
			}
		}

		if err := db.Ping(ctx); err != nil {
			body["status"] = "unhealthy"
			body["error"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		return c.JSON(http.StatusOK, body)
	}
}
