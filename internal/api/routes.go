package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether a backing component is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// SubscriptionCounter reports the number of active tracking subscriptions.
type SubscriptionCounter interface {
	Count() int
}

// RegisterRoutes wires the HTTP surface. store may be nil when the audit
// store is not configured.
func RegisterRoutes(app *fiber.App, h *Handler, store HealthChecker, subs SubscriptionCounter) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/healthz", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"store": "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		if store == nil {
			checks["store"] = "not configured"
		} else {
			healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := store.HealthCheck(healthCtx); err != nil {
				checks["store"] = err.Error()
				status = "degraded"
				code = fiber.StatusServiceUnavailable
			}
		}

		body := fiber.Map{
			"status": status,
			"checks": checks,
		}
		if subs != nil {
			body["active_subscriptions"] = subs.Count()
		}
		return c.Status(code).JSON(body)
	})

	// API routes
	v1 := app.Group("/api/v1")
	v1.Post("/orders", h.PlaceOrderHandler)
	v1.Post("/orders/:id/cancel", h.CancelOrderHandler)
	v1.Get("/orders/:platform/:id", h.GetOrderHandler)
	v1.Get("/executions/logs", h.QueryLogsHandler)
	v1.Get("/executions/:id/logs", h.ExecutionLogsHandler)
	v1.Get("/notifications/:user", h.NotificationsHandler)
}
