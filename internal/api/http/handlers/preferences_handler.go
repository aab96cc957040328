package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/rumi-monitor/internal/api/dto"
	"github.com/spec-kit/rumi-monitor/internal/domain"
	"github.com/spec-kit/rumi-monitor/internal/repository"
	"github.com/spec-kit/rumi-monitor/pkg/util"
)

// PreferencesHandler reads and writes durable display preferences.
type PreferencesHandler struct {
	settings repository.SettingsRepository
}

// NewPreferencesHandler constructs handler.
func NewPreferencesHandler(settings repository.SettingsRepository) *PreferencesHandler {
	return &PreferencesHandler{settings: settings}
}

// Get handles GET /preferences.
func (h *PreferencesHandler) Get(c *fiber.Ctx) error {
	prefs, err := h.settings.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": prefs})
}

// Update handles PUT /preferences.
func (h *PreferencesHandler) Update(c *fiber.Ctx) error {
	var req dto.PreferencesRequest
	if err := c.BodyParser(&req); err != nil {
		return util.NewValidationError("invalid payload", nil)
	}
	prefs, err := h.settings.Preferences(c.UserContext())
	if err != nil {
		return err
	}
	if req.FieldVisibility != nil {
		switch *req.FieldVisibility {
		case domain.FieldVisibilityAll, domain.FieldVisibilityMinimal:
			prefs.FieldVisibility = *req.FieldVisibility
		default:
			return util.NewValidationError("field_visibility must be all or minimal", nil)
		}
	}
	if req.ViewsHidden != nil {
		prefs.ViewsHidden = *req.ViewsHidden
	}
	if err := h.settings.SavePreferences(c.UserContext(), prefs); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": prefs})
}
