// handlers/user_routes.go
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

// SetupUserRoutes registers the user-facing read surface (balance, ledger
// history, trust) and the proof upload endpoint consumed by the file-storage
// collaborator. All routes require the Gateway-forwarded user context.
func SetupUserRoutes(app *fiber.App, db *gorm.DB, ledger *services.LedgerService, trust *services.TrustService, proofs *services.ProofService) {
	secured := app.Group("/user", middleware.UserContextMiddleware())

	secured.Get("/balance", func(c *fiber.Ctx) error {
		userID, err := internalUserID(db, c)
		if err != nil {
			return respondUserLookup(c, err)
		}

		balance, err := ledger.BalanceOf(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read balance",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"user_id": userID, "balance": balance})
	})

	secured.Get("/transactions", func(c *fiber.Ctx) error {
		userID, err := internalUserID(db, c)
		if err != nil {
			return respondUserLookup(c, err)
		}

		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		entries, total, err := ledger.Transactions(userID, page, size)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read transactions",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"transactions": entries,
			"total":        total,
			"page":         page,
			"size":         size,
		})
	})

	secured.Get("/trust", func(c *fiber.Ctx) error {
		userID, err := internalUserID(db, c)
		if err != nil {
			return respondUserLookup(c, err)
		}

		snapshot, err := trust.GetTrustScore(userID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read trust score",
				"cause": err.Error(),
			})
		}
		return c.JSON(snapshot)
	})

	secured.Get("/trust/history", func(c *fiber.Ctx) error {
		userID, err := internalUserID(db, c)
		if err != nil {
			return respondUserLookup(c, err)
		}

		limit, _ := strconv.Atoi(c.Query("limit", "50"))
		events, err := trust.GetTrustHistory(userID, limit)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to read trust history",
				"cause": err.Error(),
			})
		}
		return c.JSON(fiber.Map{"events": events})
	})

	// Proof upload: file storage is owned by the collaborator; we record the
	// artifact reference and decide whether it needs review.
	secured.Post("/proofs", func(c *fiber.Ctx) error {
		userID, err := internalUserID(db, c)
		if err != nil {
			return respondUserLookup(c, err)
		}

		var req services.ProofUploadRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		req.UserID = userID // the authenticated user owns the proof

		proof, enqueued, err := proofs.SubmitProof(&req)
		if err != nil {
			var verr *services.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation failed", "fields": verr.Fields})
			case errors.Is(err, services.ErrProofTooLarge):
				return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{"error": err.Error()})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to record proof"})
			}
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{
			"proofId":       proof.ID,
			"shouldEnqueue": enqueued,
		})
	})
}

// internalUserID resolves the Gateway's external user id to our mirror row.
func internalUserID(db *gorm.DB, c *fiber.Ctx) (string, error) {
	external := c.Locals("user_id").(string)
	var user models.User
	if err := db.Where("external_user_id = ?", external).First(&user).Error; err != nil {
		return "", err
	}
	return user.ID, nil
}

func respondUserLookup(c *fiber.Ctx, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "user lookup failed",
		"cause": err.Error(),
	})
}
