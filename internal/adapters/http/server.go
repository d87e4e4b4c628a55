package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"
)

// NewApp builds the fiber application serving the control API.
func NewApp(handler *EnvironmentHandler, log zerolog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "testatrice",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		err := c.Next()
		log.Debug().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Msg("request")
		return err
	})

	api := app.Group("/api")
	v1 := api.Group("/v1")
	handler.Register(v1)

	return app
}
