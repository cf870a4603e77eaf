// middleware/partner_auth.go
package middleware

import (
	"encoding/json"
	"log"
	"math"
	"strconv"
	"time"

	"gameplay-rewards-system/models"
	"gameplay-rewards-system/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	HeaderWebhookSignature = "X-Webhook-Signature"
	HeaderWebhookTimestamp = "X-Webhook-Timestamp"

	// Deliveries outside this window are rejected as possible replays and
	// are NOT retried by us — partners redeliver with a fresh timestamp.
	timestampTolerance = 5 * time.Minute
)

// PartnerAuthMiddleware authenticates inbound partner webhooks: signature
// header present, timestamp within tolerance, API key resolves to an active
// partner, HMAC-SHA256 over "<ts>.<raw body>" matches in constant time.
//
// Failure responses stay generic ("signature" / "timestamp" / "unknown
// partner") so callers can't use the endpoint as an oracle on the secret.
func PartnerAuthMiddleware(db *gorm.DB, guard *utils.ReplayGuard) fiber.Handler {
	return func(c *fiber.Ctx) error {
		signature := c.Get(HeaderWebhookSignature)
		if signature == "" {
			log.Printf("🚫 [PARTNER_AUTH] Missing signature header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}

		tsHeader := c.Get(HeaderWebhookTimestamp)
		ts, err := strconv.ParseInt(tsHeader, 10, 64)
		if err != nil {
			log.Printf("🚫 [PARTNER_AUTH] Bad timestamp header for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid timestamp",
			})
		}
		drift := time.Duration(math.Abs(float64(time.Now().Unix()-ts))) * time.Second
		if drift > timestampTolerance {
			log.Printf("🚫 [PARTNER_AUTH] Timestamp outside tolerance for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid timestamp",
			})
		}

		// The API key is declared in the envelope body. Peeking at it does
		// not touch the raw bytes the signature covers.
		body := c.Body()
		var envelope struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil || envelope.APIKey == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unknown partner",
			})
		}

		var partner models.Partner
		if err := db.Where("api_key = ? AND active = ?", envelope.APIKey, true).
			First(&partner).Error; err != nil {
			log.Printf("🚫 [PARTNER_AUTH] Unknown or inactive partner for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unknown partner",
			})
		}

		if !utils.VerifyWebhookSignature(partner.SecretKey, ts, body, signature) {
			log.Printf("🚫 [PARTNER_AUTH] Signature mismatch for partner %s", partner.Name)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid signature",
			})
		}

		// Cheap replay pre-filter ahead of the DB idempotency key. A repeat
		// triple is still processed — the ExternalEvent lookup returns the
		// stored result — this just records the redelivery.
		if guard != nil {
			if first, err := guard.FirstDelivery(c.Context(), envelope.APIKey, tsHeader, signature); err == nil && !first {
				log.Printf("🔁 [PARTNER_AUTH] Redelivery detected for partner %s", partner.Name)
				c.Locals("webhook_redelivery", true)
			}
		}

		c.Locals("partner", &partner)
		return c.Next()
	}
}
