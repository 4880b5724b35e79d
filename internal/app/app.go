package app

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/redis/go-redis/v9"

	"text2img/internal/handlers"
	u "text2img/internal/utils"
)

// SetupApp creates and configures a new Fiber app instance
func SetupApp(cfg u.Config, redis *redis.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               cfg.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			msg := "Internal Server Error"

			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
				msg = e.Message
			}

			u.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

			return c.Status(code).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    code,
					"message": msg,
				},
			})
		},
	})

	RegisterMiddleware(app, cfg)
	RegisterRoutes(app, cfg, redis)

	// Ensure all responses, including 404s, return JSON
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

// RegisterRoutes mounts all route handlers to the app
func RegisterRoutes(app *fiber.App, cfg u.Config, redis *redis.Client) {
	// One shared service instance so all render routes share the same font
	// cache and, on the chrome path, the same browser pool.
	svc := handlers.NewImageService(cfg, redis)

	app.Get("/", svc.HandleRender)
	app.Get("/health", svc.HandleHealth)
	app.Get("/renderer/stats", svc.HandleRendererStats)

	// Older clients reach the API under this prefix; keep both entrypoints
	// routable.
	api := app.Group("/image-api")
	api.Get("/", svc.HandleRender)
	api.Get("/health", svc.HandleHealth)

	app.Get("/monitor", monitor.New())
}
