package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/rumi-monitor/internal/api/dto"
	"github.com/spec-kit/rumi-monitor/internal/observability"
	"github.com/spec-kit/rumi-monitor/internal/service"
	"github.com/spec-kit/rumi-monitor/pkg/util"
)

// MonitorHandler exposes the operator controls of the view monitor.
type MonitorHandler struct {
	monitor *service.Monitor
	level   zap.AtomicLevel
	logger  *zap.Logger
}

// NewMonitorHandler constructs handler.
func NewMonitorHandler(monitor *service.Monitor, level zap.AtomicLevel, logger *zap.Logger) *MonitorHandler {
	return &MonitorHandler{monitor: monitor, level: level, logger: logger}
}

// Views handles GET /views.
func (h *MonitorHandler) Views(c *fiber.Ctx) error {
	views, err := h.monitor.Views(c.UserContext())
	if err != nil {
		return err
	}
	selected := map[int64]bool{}
	for _, v := range h.monitor.Status().SelectedViews {
		selected[v.ID] = true
	}
	items := make([]dto.ViewResponse, 0, len(views))
	for _, v := range views {
		items = append(items, dto.ViewResponse{ID: v.ID, Title: v.Title, Group: v.Group, Selected: selected[v.ID]})
	}
	return c.JSON(fiber.Map{"data": items})
}

// SelectViews handles PUT /monitor/views.
func (h *MonitorHandler) SelectViews(c *fiber.Ctx) error {
	var req dto.SelectViewsRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	views, err := h.monitor.SelectViews(c.UserContext(), req.ViewIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": views})
}

// ClearViews handles DELETE /monitor/views.
func (h *MonitorHandler) ClearViews(c *fiber.Ctx) error {
	if err := h.monitor.ClearViews(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Start handles POST /monitor/start.
func (h *MonitorHandler) Start(c *fiber.Ctx) error {
	if err := h.monitor.Start(c.UserContext()); err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(fiber.Map{"data": h.monitor.Status()})
}

// Stop handles POST /monitor/stop.
func (h *MonitorHandler) Stop(c *fiber.Ctx) error {
	stopped := h.monitor.Stop()
	return c.JSON(fiber.Map{"data": fiber.Map{"stopped": stopped, "status": h.monitor.Status()}})
}

// Status handles GET /monitor/status.
func (h *MonitorHandler) Status(c *fiber.Ctx) error {
	st := h.monitor.Status()
	return c.JSON(fiber.Map{"data": fiber.Map{
		"monitor": st,
		"verbose": observability.IsVerbose(h.level),
	}})
}

// SetInterval handles PUT /monitor/interval.
func (h *MonitorHandler) SetInterval(c *fiber.Ctx) error {
	var req dto.IntervalRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	if err := h.monitor.SetInterval(time.Duration(req.Seconds * float64(time.Second))); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"interval_seconds": req.Seconds}})
}

// SetDryRun handles PUT /monitor/dry-run.
func (h *MonitorHandler) SetDryRun(c *fiber.Ctx) error {
	enabled, err := parseToggle(c)
	if err != nil {
		return err
	}
	h.monitor.SetDryRun(enabled)
	return c.JSON(fiber.Map{"data": fiber.Map{"dry_run": enabled}})
}

// SetVerbose handles PUT /monitor/verbose.
func (h *MonitorHandler) SetVerbose(c *fiber.Ctx) error {
	enabled, err := parseToggle(c)
	if err != nil {
		return err
	}
	observability.SetVerbose(h.level, enabled)
	h.logger.Info("verbose logging toggled", zap.Bool("verbose", enabled))
	return c.JSON(fiber.Map{"data": fiber.Map{"verbose": enabled}})
}

// TestTickets handles POST /monitor/test.
func (h *MonitorHandler) TestTickets(c *fiber.Ctx) error {
	var req dto.TestTicketsRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	results, err := h.monitor.TestTickets(c.UserContext(), req.Inputs())
	if err != nil {
		return err
	}
	processed := 0
	for _, r := range results {
		if r.Result.Processed {
			processed++
		}
	}
	return c.JSON(fiber.Map{"data": results, "meta": fiber.Map{"total": len(results), "processed": processed}})
}

// ResetProcessed handles DELETE /monitor/processed.
func (h *MonitorHandler) ResetProcessed(c *fiber.Ctx) error {
	n := h.monitor.ResetProcessed()
	return c.JSON(fiber.Map{"data": fiber.Map{"cleared": n}})
}

func parseToggle(c *fiber.Ctx) (bool, error) {
	var req dto.ToggleRequest
	if err := c.BodyParser(&req); err != nil || req.Enabled == nil {
		return false, util.NewValidationError("enabled must be true or false", nil)
	}
	return *req.Enabled, nil
}
