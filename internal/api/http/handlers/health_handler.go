package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/persistence"
)

// HelpdeskProbe is the connectivity check used for readiness.
type HelpdeskProbe interface {
	Probe(ctx context.Context) (domain.User, error)
}

// HealthHandler responds to liveness and readiness probes.
type HealthHandler struct {
	serviceName string
	version     string
	redis       *persistence.Redis
	helpdesk    HelpdeskProbe
}

// NewHealthHandler returns a new handler instance. A nil redis means the
// settings store runs in memory.
func NewHealthHandler(serviceName, version string, redis *persistence.Redis, helpdesk HelpdeskProbe) *HealthHandler {
	return &HealthHandler{serviceName: serviceName, version: version, redis: redis, helpdesk: helpdesk}
}

// Live reports service liveness.
func (h *HealthHandler) Live(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "alive",
		"service": h.serviceName,
		"version": h.version,
	})
}

// Ready reports service readiness by checking dependencies.
func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	depStatus := fiber.Map{}
	ready := true

	if h.redis == nil {
		depStatus["redis"] = "memory"
	} else if err := h.redis.Ping(ctx); err != nil {
		depStatus["redis"] = err.Error()
		ready = false
	} else {
		depStatus["redis"] = "ok"
	}

	if _, err := h.helpdesk.Probe(ctx); err != nil {
		depStatus["helpdesk"] = err.Error()
		ready = false
	} else {
		depStatus["helpdesk"] = "ok"
	}

	if ready {
		return c.JSON(fiber.Map{
			"status":       "ready",
			"dependencies": depStatus,
		})
	}

	return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "DEPENDENCY_UNAVAILABLE",
			"message": "one or more dependencies unavailable",
			"details": depStatus,
		},
	})
}
