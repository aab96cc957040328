package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/rumi-monitor/internal/service"
	"github.com/spec-kit/rumi-monitor/pkg/util"
)

// HistoryHandler exposes the processed-history ledger.
type HistoryHandler struct {
	monitor *service.Monitor
}

// NewHistoryHandler constructs handler.
func NewHistoryHandler(monitor *service.Monitor) *HistoryHandler {
	return &HistoryHandler{monitor: monitor}
}

// List handles GET /history.
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	ticketID := int64(c.QueryInt("ticket_id", 0))
	if ticketID < 0 {
		return util.NewValidationError("ticket_id must be positive", nil)
	}
	entries, err := h.monitor.History(c.UserContext(), ticketID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": entries, "meta": fiber.Map{"total": len(entries)}})
}

// Clear handles DELETE /history.
func (h *HistoryHandler) Clear(c *fiber.Ctx) error {
	n, err := h.monitor.ClearHistory(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"cleared": n}})
}

// Export handles GET /history/export.
func (h *HistoryHandler) Export(c *fiber.Ctx) error {
	doc, err := h.monitor.ExportHistory(c.UserContext())
	if err != nil {
		return err
	}
	name := fmt.Sprintf("rumi-history-%s.json", doc.ExportedAt.Format("20060102-150405"))
	c.Attachment(name)
	return c.JSON(doc)
}
