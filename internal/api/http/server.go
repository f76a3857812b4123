package httpapi

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/weather-diary/internal/weather"
)

const serviceName = "weather-diary"

// NewApp creates the Fiber app with the error handler, health and metrics
// endpoints installed. One access-log line per request, these endpoints
// included, goes to accessLog.
func NewApp(logger *slog.Logger, accessLog io.Writer) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		ErrorHandler:          ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{Output: accessLog}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": serviceName,
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return app
}

// ErrorHandler renders every failure as JSON. Missing data is a 404; any
// other non-HTTP error is reported as a generic 500 without its details.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "failed to build report"

		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			code, message = fe.Code, fe.Message
		case errors.Is(err, weather.ErrNotFound):
			code, message = fiber.StatusNotFound, weather.ErrNotFound.Error()
		default:
			logger.Error("request failed", "path", c.Path(), "error", err)
		}

		return c.Status(code).JSON(fiber.Map{
			"error":   true,
			"message": message,
		})
	}
}
