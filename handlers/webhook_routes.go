// handlers/webhook_routes.go
package handlers

import (
	"encoding/json"
	"errors"

	"gameplay-rewards-system/middleware"
	"gameplay-rewards-system/models"
	"gameplay-rewards-system/services"
	"gameplay-rewards-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupWebhookRoutes registers the partner event ingestion endpoint. Auth
// (signature, timestamp, partner) happens in PartnerAuthMiddleware; this
// handler owns schema validation and error-to-status mapping.
func SetupWebhookRoutes(app *fiber.App, db *gorm.DB, guard *utils.ReplayGuard, webhooks *services.WebhookService) {
	app.Post("/webhooks/events", middleware.PartnerAuthMiddleware(db, guard), func(c *fiber.Ctx) error {
		partner, ok := c.Locals("partner").(*models.Partner)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unknown partner"})
		}

		var envelope services.WebhookEnvelope
		if err := json.Unmarshal(c.Body(), &envelope); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid JSON body"})
		}

		outcome, err := webhooks.ProcessEvent(c.Context(), partner, &envelope)
		if err != nil {
			var verr *services.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error":  "validation failed",
					"fields": verr.Fields,
				})
			case errors.Is(err, services.ErrUserNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			case errors.Is(err, services.ErrInactiveSubscription):
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "subscription not active"})
			case errors.Is(err, services.ErrRetriesExhausted):
				return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "delivery retries exhausted"})
			default:
				// Transient: the event row is marked failed; the partner
				// redelivers and the idempotency key makes that safe.
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event processing failed"})
			}
		}

		return c.JSON(fiber.Map{
			"success":       outcome.Success,
			"eventId":       outcome.EventID,
			"pointsAwarded": outcome.PointsAwarded,
			"newBalance":    outcome.NewBalance,
		})
	})
}
