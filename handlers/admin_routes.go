// handlers/admin_routes.go
package handlers

import (
	"errors"
	"strconv"

	"gameplay-rewards-system/middleware"
	"gameplay-rewards-system/models"
	"gameplay-rewards-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SetupAdminRoutes registers the review/ops surface consumed by the admin UI.
func SetupAdminRoutes(app *fiber.App, db *gorm.DB, queue *services.QueueService, ledger *services.LedgerService, trust *services.TrustService, config *services.ConfigService) {
	admin := app.Group("/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	admin.Get("/queue", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		items, err := queue.Pending(limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load review queue",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"items": items})
	})

	admin.Post("/queue/:id/resolve", func(c *fiber.Ctx) error {
		queueID := c.Params("id")
		adminID := c.Locals("user_id").(string)

		var req struct {
			Action     string   `json:"action"`
			Notes      string   `json:"notes"`
			FraudFlags []string `json:"fraudFlags,omitempty"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}

		err := queue.Resolve(c.Context(), queueID, adminID, req.Action, req.Notes, req.FraudFlags)
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"success": true})
		case errors.Is(err, services.ErrQueueItemNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "queue item not found"})
		case errors.Is(err, services.ErrQueueItemClosed):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "queue item already completed"})
		case errors.Is(err, services.ErrUnknownAction):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown action"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to resolve queue item",
				"cause": err.Error(),
			})
		}
	})

	admin.Get("/fraud-logs", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		if limit < 1 || limit > 200 {
			limit = 50
		}
		query := db.Order("created_at DESC").Limit(limit)
		if resolution := c.Query("resolution"); resolution != "" {
			query = query.Where("resolution = ?", resolution)
		}

		var logs []models.FraudDetectionLog
		if err := query.Find(&logs).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load fraud logs",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"logs": logs})
	})

	// User listing and point adjustment are distinct operations with
	// independent error handling.
	admin.Get("/users", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))
		if page < 1 {
			page = 1
		}
		if size < 1 || size > 100 {
			size = 20
		}

		var total int64
		if err := db.Model(&models.User{}).Count(&total).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to count users",
				"cause": err.Error(),
			})
		}

		var users []models.User
		if err := db.Order("created_at DESC").Limit(size).Offset((page - 1) * size).
			Find(&users).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to list users",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"users": users, "total": total, "page": page, "size": size})
	})

	admin.Post("/users/:id/points-adjust", func(c *fiber.Ctx) error {
		userID := c.Params("id")
		adminID := c.Locals("user_id").(string)

		var req struct {
			Amount int64  `json:"amount"`
			Reason string `json:"reason"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if req.Amount == 0 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "amount must be non-zero"})
		}
		if req.Reason == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "reason is required"})
		}

		// Adjustment id keys on admin + reason so a retried request with the
		// same intent doesn't double-apply.
		sourceID := adminID + ":" + req.Reason
		entry, err := ledger.Award(userID, req.Amount,
			models.ReasonManualAdjustment, "admin_adjustment", sourceID, req.Reason)
		switch {
		case err == nil:
			return c.JSON(fiber.Map{"transaction": entry})
		case errors.Is(err, services.ErrLedgerUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		case errors.Is(err, services.ErrInsufficientBalance):
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "insufficient balance"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to adjust points",
				"cause": err.Error(),
			})
		}
	})

	admin.Get("/trust/:userId", func(c *fiber.Ctx) error {
		snapshot, err := trust.GetTrustScore(c.Params("userId"))
		switch {
		case err == nil:
			return c.JSON(snapshot)
		case errors.Is(err, services.ErrTrustUserNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
		default:
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read trust score",
				"cause": err.Error(),
			})
		}
	})

	admin.Get("/trust/:userId/history", func(c *fiber.Ctx) error {
		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		events, err := trust.GetTrustHistory(c.Params("userId"), limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read trust history",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"events": events})
	})

	admin.Get("/config", func(c *fiber.Ctx) error {
		return c.JSON(config.Get())
	})

	admin.Put("/config", func(c *fiber.Ctx) error {
		current := config.Get()
		if err := c.BodyParser(current); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if err := config.Update(current); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to update config",
				"cause": err.Error(),
			})
		}
		return c.JSON(current)
	})
}
