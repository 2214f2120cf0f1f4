package api

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/execution-core/internal/execlog"
	"github.com/Checker-Finance/execution-core/pkg/model"
)

// ExecutionService defines the routing operations needed by the handler.
type ExecutionService interface {
	Execute(ctx context.Context, req model.ExecutionRequest) model.ExecutionResult
	Cancel(ctx context.Context, platform, orderID, userAddress string) model.CancelResult
}

// StatusService exposes one-shot order lookups through the tracker.
type StatusService interface {
	OrderStatus(ctx context.Context, platform, orderID string) *model.Order
}

// LogReader exposes read access to the execution log.
type LogReader interface {
	Query(ctx context.Context, filter execlog.Filter) ([]model.ExecutionLogEntry, error)
	ExecutionLogs(executionID string) []model.ExecutionLogEntry
}

// NotificationReader exposes per-user notification history.
type NotificationReader interface {
	History(userAddress string) []model.Notification
}

// Handler handles HTTP API requests for execution operations.
type Handler struct {
	logger        *zap.Logger
	executions    ExecutionService
	statuses      StatusService
	logs          LogReader
	notifications NotificationReader
}

// NewHandler creates a new Handler. logs and notifications are optional.
func NewHandler(logger *zap.Logger, executions ExecutionService, statuses StatusService,
	logs LogReader, notifications NotificationReader) *Handler {
	return &Handler{
		logger:        logger,
		executions:    executions,
		statuses:      statuses,
		logs:          logs,
		notifications: notifications,
	}
}

// PlaceOrderHandler handles order placement requests.
func (h *Handler) PlaceOrderHandler(c *fiber.Ctx) error {
	var req PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result := h.executions.Execute(c.Context(), toExecutionRequest(req))
	if !result.Success {
		h.logger.Warn("api.place_order.failed",
			zap.String("platform", req.Platform),
			zap.String("execution_id", result.ExecutionID),
			zap.String("error", result.Error))
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}

	return c.Status(fiber.StatusCreated).JSON(result)
}

// CancelOrderHandler handles order cancellation requests.
func (h *Handler) CancelOrderHandler(c *fiber.Ctx) error {
	orderID := c.Params("id")
	var req CancelOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	result := h.executions.Cancel(c.Context(), req.Platform, orderID, req.UserAddress)
	if !result.Success {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(result)
	}
	return c.JSON(result)
}

// GetOrderHandler returns the current state of an order via a one-shot lookup.
func (h *Handler) GetOrderHandler(c *fiber.Ctx) error {
	platform := c.Params("platform")
	orderID := c.Params("id")

	order := h.statuses.OrderStatus(c.Context(), platform, orderID)
	if order == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	return c.JSON(order)
}

// ExecutionLogsHandler returns all log entries for one execution, oldest first.
func (h *Handler) ExecutionLogsHandler(c *fiber.Ctx) error {
	if h.logs == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "execution logging disabled"})
	}
	entries := h.logs.ExecutionLogs(c.Params("id"))
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

// QueryLogsHandler returns log entries matching the query filters, newest first.
func (h *Handler) QueryLogsHandler(c *fiber.Ctx) error {
	if h.logs == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "execution logging disabled"})
	}

	filter := execlog.Filter{
		ExecutionID: c.Query("execution_id"),
		UserAddress: c.Query("user_address"),
		Platform:    c.Query("platform"),
		EventType:   model.EventType(c.Query("event_type")),
		OrderID:     c.Query("order_id"),
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid limit"})
		}
		filter.Limit = limit
	}
	if v := c.Query("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid offset"})
		}
		filter.Offset = offset
	}

	entries, err := h.logs.Query(c.Context(), filter)
	if err != nil {
		h.logger.Error("api.query_logs.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"entries": entries, "count": len(entries)})
}

// NotificationsHandler returns the notification history for a user.
func (h *Handler) NotificationsHandler(c *fiber.Ctx) error {
	if h.notifications == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "notifications disabled"})
	}
	history := h.notifications.History(c.Params("user"))
	return c.JSON(fiber.Map{"notifications": history, "count": len(history)})
}
